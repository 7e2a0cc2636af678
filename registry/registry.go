// Package registry holds the SKU classification master data. It answers
// three questions about a SKU: what is its canonical code, how should it be
// scanned (Compulsory, Loose, NoScan) and what is its canonical product
// name. Lookups read an immutable snapshot; Reload swaps the snapshot
// atomically so concurrent readers see either the old or new masters in
// full, never a mix.
package registry

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"sync"
)

// SKUType classifies how a SKU participates in scanning.
type SKUType string

const (
	TypeCompulsory SKUType = "Compulsory" // unit tokens must be globally unique
	TypeLoose      SKUType = "Loose"      // unit tokens may repeat
	TypeNoScan     SKUType = "NoScan"     // never scanned; manual confirm only
	TypeUnknown    SKUType = "Unknown"
)

// Entry is one SKU master record.
type Entry struct {
	Name        string
	DisplayName string
	Type        SKUType
}

type snapshot struct {
	master map[string]Entry
	noScan map[string]struct{}
}

// Registry is the reloadable SKU master view.
type Registry struct {
	masterPath string
	noScanPath string

	mu   sync.RWMutex
	snap *snapshot
}

var (
	nonAlnumRx = regexp.MustCompile(`[^A-Za-z0-9]`)
	skuShapeRx = regexp.MustCompile(`^([A-Z]+)(\d+)$`)
)

// Normalize canonicalizes a raw SKU: strip non-alphanumerics, uppercase,
// and for letters+digits shapes zero-pad the numeric tail to 4 digits
// (taking the last 4 when longer), e.g. "at-1" -> "AT0001". Anything else
// is returned stripped and uppercased, including the empty string.
func Normalize(raw string) string {
	s := nonAlnumRx.ReplaceAllString(strings.ToUpper(raw), "")
	m := skuShapeRx.FindStringSubmatch(s)
	if m == nil {
		return s
	}
	prefix, digits := m[1], m[2]
	if len(digits) >= 4 {
		return prefix + digits[len(digits)-4:]
	}
	return prefix + strings.Repeat("0", 4-len(digits)) + digits
}

// New creates a Registry backed by the given master CSV paths and performs
// the initial load. Missing files yield an empty registry, not an error;
// the operation keeps working with every SKU classified Unknown.
func New(masterPath, noScanPath string) (*Registry, error) {
	r := &Registry{masterPath: masterPath, noScanPath: noScanPath}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload re-reads both master files and swaps the lookup snapshot.
func (r *Registry) Reload() error {
	master, err := loadSKUMaster(r.masterPath)
	if err != nil {
		return fmt.Errorf("load sku master: %w", err)
	}
	noScan, err := loadNoScan(r.noScanPath)
	if err != nil {
		return fmt.Errorf("load noscan list: %w", err)
	}
	r.mu.Lock()
	r.snap = &snapshot{master: master, noScan: noScan}
	r.mu.Unlock()
	return nil
}

func (r *Registry) snapshot() *snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snap
}

// Classify returns the scan classification of a normalized SKU. The NoScan
// list takes precedence over the master type; empty input is Unknown.
func (r *Registry) Classify(skuNorm string) SKUType {
	if skuNorm == "" {
		return TypeUnknown
	}
	s := r.snapshot()
	if _, ok := s.noScan[skuNorm]; ok {
		return TypeNoScan
	}
	if e, ok := s.master[skuNorm]; ok {
		return e.Type
	}
	return TypeUnknown
}

// CanonicalName returns the display name for a SKU, then the plain master
// name, then the caller-supplied fallback.
func (r *Registry) CanonicalName(skuNorm, fallback string) string {
	e, ok := r.snapshot().master[skuNorm]
	if !ok {
		return fallback
	}
	if e.DisplayName != "" {
		return e.DisplayName
	}
	if e.Name != "" {
		return e.Name
	}
	return fallback
}

// loadSKUMaster reads sku_master.csv. Two layouts are supported:
//
//	sku, product_name, type                  (old)
//	sku, product_name, type, display_name    (new)
func loadSKUMaster(path string) (map[string]Entry, error) {
	m := make(map[string]Entry)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return m, nil
		}
		return nil, err
	}
	defer f.Close()

	rd := csv.NewReader(f)
	rd.FieldsPerRecord = -1
	for {
		parts, err := rd.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(parts) < 3 {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(parts[0]), "sku") {
			continue // header
		}
		e := Entry{
			Name: strings.TrimSpace(parts[1]),
			Type: parseType(parts[2]),
		}
		if len(parts) >= 4 {
			e.DisplayName = strings.TrimSpace(parts[3])
		}
		key := Normalize(parts[0])
		if key == "" {
			continue
		}
		m[key] = e
	}
	return m, nil
}

// loadNoScan reads extras_noscan.csv: one SKU per line, first column only.
func loadNoScan(path string) (map[string]struct{}, error) {
	set := make(map[string]struct{})
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return set, nil
		}
		return nil, err
	}
	for i, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if i == 0 && strings.Contains(strings.ToLower(line), "sku") {
			continue // header
		}
		sku := strings.TrimSpace(strings.SplitN(line, ",", 2)[0])
		if key := Normalize(sku); key != "" {
			set[key] = struct{}{}
		}
	}
	return set, nil
}

func parseType(raw string) SKUType {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "compulsory":
		return TypeCompulsory
	case "loose":
		return TypeLoose
	case "noscan":
		return TypeNoScan
	default:
		return TypeUnknown
	}
}
