// Package engine is the barcode allocation core. It owns the one
// consistency domain of the station — the line store plus the picking lock
// — and serializes every mutation behind a single mutex, because each
// operation is a read-full-state, compute, replace-full-state cycle.
package engine

import (
	"log"
	"sort"
	"strings"
	"sync"

	"packscan/registry"
	"packscan/store"
)

// Engine orchestrates the line store, SKU registry, barcode grammar and
// picking lock.
type Engine struct {
	mu    sync.Mutex
	lines store.LineStore
	reg   *registry.Registry
	lock  *store.LockFile

	// Events carries scan/ingest/completion notifications to the SSE hub,
	// the scan journal and the messaging outbox.
	Events *EventBus
}

// New creates an Engine and idempotently initializes the line store.
func New(lines store.LineStore, reg *registry.Registry, lock *store.LockFile) (*Engine, error) {
	if err := lines.Init(); err != nil {
		return nil, err
	}
	return &Engine{
		lines:  lines,
		reg:    reg,
		lock:   lock,
		Events: NewEventBus(),
	}, nil
}

// Registry exposes the SKU registry for read-side consumers.
func (e *Engine) Registry() *registry.Registry {
	return e.reg
}

// ReloadMasters re-reads the SKU classification masters. Safe to call
// while scans are in flight; lookups see the old or new masters atomically.
func (e *Engine) ReloadMasters() error {
	if err := e.reg.Reload(); err != nil {
		return err
	}
	e.emit(EventMastersReload, nil)
	log.Printf("SKU masters reloaded")
	return nil
}

// ListLines returns every order line decorated with derived fields, newest
// first.
func (e *Engine) ListLines() ([]store.OrderLine, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	lines, err := e.lines.ReadAll()
	if err != nil {
		return nil, err
	}
	for i := range lines {
		e.decorate(&lines[i])
	}
	store.SortNewestFirst(lines)
	return lines, nil
}

// PendingSKUs returns the group's outstanding SKUs in scan order: first
// ingest appearance, NoScan and blank SKUs excluded.
func (e *Engine) PendingSKUs(contact string) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	lines, err := e.lines.ReadAll()
	if err != nil {
		return nil, err
	}
	return e.pendingSKUs(lines, strings.TrimSpace(contact)), nil
}

// SKUContact returns the contact number holding the next unassigned unit
// of the given SKU, or "" when none is pending. The scanner UI uses this
// to decide whether a scan belongs to the active group.
func (e *Engine) SKUContact(sku string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	lines, err := e.lines.ReadAll()
	if err != nil {
		return "", err
	}
	want := registry.Normalize(sku)
	for i := range lines {
		l := &lines[i]
		if registry.Normalize(l.SKU) == want && l.Remaining() > 0 {
			return strings.TrimSpace(l.ContactNumber), nil
		}
	}
	return "", nil
}

// CurrentLock returns the persisted picking lock, unlocked when absent.
func (e *Engine) CurrentLock() (store.Lock, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lock.Load()
}

// decorate fills the derived fields of a line for presentation.
func (e *Engine) decorate(l *store.OrderLine) {
	skuNorm := registry.Normalize(l.SKU)
	l.SKUType = e.reg.Classify(skuNorm)
	if strings.TrimSpace(l.SKU) != "" {
		l.ProductName = e.reg.CanonicalName(skuNorm, l.ProductName)
	}
}

// pendingSKUs computes the outstanding SKU list for one group, ordered by
// first appearance at ingest (file order), lexicographic on ties. Policy
// choice inherited from the label layouts this station processes; see
// DESIGN.md.
func (e *Engine) pendingSKUs(lines []store.OrderLine, contact string) []string {
	type first struct {
		idx int
		sku string
	}
	seen := make(map[string]int)
	var order []first
	for i := range lines {
		l := &lines[i]
		if strings.TrimSpace(l.ContactNumber) != contact {
			continue
		}
		skuNorm := registry.Normalize(l.SKU)
		if skuNorm == "" || e.reg.Classify(skuNorm) == registry.TypeNoScan {
			continue
		}
		if l.Remaining() <= 0 {
			continue
		}
		if _, ok := seen[skuNorm]; !ok {
			seen[skuNorm] = i
			order = append(order, first{idx: i, sku: skuNorm})
		}
	}
	sort.Slice(order, func(i, j int) bool {
		if order[i].idx != order[j].idx {
			return order[i].idx < order[j].idx
		}
		return order[i].sku < order[j].sku
	})
	skus := make([]string, len(order))
	for i, f := range order {
		skus[i] = f.sku
	}
	return skus
}

// groupUnits sums assigned and required units for a group. Blank-SKU and
// NoScan lines never count toward completion.
func (e *Engine) groupUnits(lines []store.OrderLine, contact string) (done, total int) {
	for i := range lines {
		l := &lines[i]
		if strings.TrimSpace(l.ContactNumber) != contact {
			continue
		}
		skuNorm := registry.Normalize(l.SKU)
		if skuNorm == "" || e.reg.Classify(skuNorm) == registry.TypeNoScan {
			continue
		}
		total += l.Quantity
		done += l.Done()
	}
	return done, total
}

func (e *Engine) dedupKey(l *store.OrderLine) string {
	skuNorm := registry.Normalize(l.SKU)
	name := e.reg.CanonicalName(skuNorm, strings.TrimSpace(l.ProductName))
	return store.DedupKey(l.AWB, name, skuNorm, l.Quantity)
}
