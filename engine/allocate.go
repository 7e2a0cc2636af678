package engine

import (
	"fmt"
	"strings"

	"packscan/apperr"
	"packscan/barcode"
	"packscan/registry"
	"packscan/store"
)

// Progress is a done/required unit pair.
type Progress struct {
	Scanned int `json:"scanned"`
	Qty     int `json:"qty"`
}

// PrintInfo locates the physical label page for a completed group.
type PrintInfo struct {
	SourceFile string `json:"source_file"`
	PageIndex  string `json:"page_index"`
}

// NextExpected tells the scanner which group and SKU the held lock wants
// next.
type NextExpected struct {
	Group string `json:"group"`
	SKU   string `json:"sku"`
}

// Result is the outcome of a successful allocation.
type Result struct {
	Message       string           `json:"message"`
	SKU           string           `json:"sku"`
	Token         string           `json:"token"`
	ContactNumber string           `json:"contact_number"`
	AWB           string           `json:"awb"`
	GroupComplete bool             `json:"group_complete"`
	RowProgress   Progress         `json:"row_progress"`
	GroupProgress Progress         `json:"group_progress"`
	PrintInfo     *PrintInfo       `json:"print_info"`
	SKUType       registry.SKUType `json:"sku_type"`
	NextExpected  *NextExpected    `json:"next_expected,omitempty"`
}

// Allocate resolves a scanned barcode to exactly one pending line item,
// appends its unit token, and reports group completion. groupHint, when
// non-empty, narrows lock-free candidate selection to one AWB.
//
// The whole call runs under the engine mutex: parse, uniqueness check,
// lock validation, target selection and the store write are one atomic
// unit with respect to other scans.
func (e *Engine) Allocate(rawBarcode, groupHint string) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	res, err := e.allocate(rawBarcode, groupHint)
	if err != nil {
		e.emit(EventScanRejected, ScanRejectedEvent{
			Barcode: strings.TrimSpace(rawBarcode),
			Status:  apperr.StatusOf(err),
			Message: err.Error(),
		})
		return nil, err
	}
	return res, nil
}

func (e *Engine) allocate(rawBarcode, groupHint string) (*Result, error) {
	scan, err := barcode.Parse(rawBarcode, e.reg)
	if err != nil {
		return nil, err
	}

	lines, err := e.lines.ReadAll()
	if err != nil {
		return nil, err
	}

	// Global token uniqueness for Compulsory and Unknown SKUs. Loose
	// tokens may repeat.
	if scan.Type == registry.TypeCompulsory || scan.Type == registry.TypeUnknown {
		for i := range lines {
			if lines[i].HasToken(scan.Token) {
				return nil, apperr.Conflict("Barcode %s already assigned", scan.Token)
			}
		}
	}

	// Candidates: same normalized SKU with units remaining, in store
	// (ingest) order.
	var cand []int
	for i := range lines {
		l := &lines[i]
		if registry.Normalize(l.SKU) != scan.SKU {
			continue
		}
		if l.Remaining() <= 0 {
			continue
		}
		cand = append(cand, i)
	}

	lock, err := e.lock.Load()
	if err != nil {
		return nil, err
	}

	target := -1
	if lock.Held() {
		pending := e.pendingSKUs(lines, lock.ActiveGroup)
		if len(pending) == 0 {
			// Stale or orphaned lock: its group has nothing scannable
			// left. Self-heal and fall through to lock-free selection.
			lock.Release()
			if err := e.lock.Save(lock); err != nil {
				return nil, err
			}
		} else {
			expected := pending[0]
			if containsSKU(pending, lock.ActiveSKU) {
				expected = lock.ActiveSKU
			}
			if scan.SKU != expected {
				return nil, apperr.Conflict("Finish the current shipment first: group %s expects SKU %s", lock.ActiveGroup, expected)
			}
			for _, i := range cand {
				if strings.TrimSpace(lines[i].ContactNumber) == lock.ActiveGroup {
					target = i
					break
				}
			}
			if target < 0 {
				return nil, apperr.NotFound("No unassigned unit for SKU %s in group %s", scan.SKU, lock.ActiveGroup)
			}
			lock.ActiveSKU = scan.SKU
		}
	}

	if target < 0 {
		if hint := strings.TrimSpace(groupHint); hint != "" {
			var narrowed []int
			for _, i := range cand {
				if strings.TrimSpace(lines[i].AWB) == hint {
					narrowed = append(narrowed, i)
				}
			}
			cand = narrowed
		}
		if len(cand) == 0 {
			if hint := strings.TrimSpace(groupHint); hint != "" {
				return nil, apperr.NotFound("No unassigned unit for SKU %s under AWB %s", scan.SKU, hint)
			}
			return nil, apperr.NotFound("No unassigned unit for SKU %s", scan.SKU)
		}
		target = e.pickTarget(lines, cand)
		if err := lock.Acquire(strings.TrimSpace(lines[target].ContactNumber), scan.SKU); err != nil {
			return nil, err
		}
	}

	line := &lines[target]
	contact := strings.TrimSpace(line.ContactNumber)

	line.AssignedTokens = append(line.AssignedTokens, scan.Token)
	if err := e.lines.WriteAll(lines); err != nil {
		return nil, err
	}

	done, total := e.groupUnits(lines, contact)
	complete := total > 0 && done >= total

	// Advance or release the lock now that the group's pending set moved.
	pending := e.pendingSKUs(lines, contact)
	if len(pending) == 0 {
		lock.Release()
	} else if !containsSKU(pending, lock.ActiveSKU) {
		if err := lock.Advance(pending[0]); err != nil {
			return nil, err
		}
	}
	if err := e.lock.Save(lock); err != nil {
		return nil, err
	}

	res := &Result{
		Message:       fmt.Sprintf("Assigned %s → %s", scan.Token, scan.SKU),
		SKU:           scan.SKU,
		Token:         scan.Token,
		ContactNumber: contact,
		AWB:           strings.TrimSpace(line.AWB),
		GroupComplete: complete,
		RowProgress:   Progress{Scanned: line.Done(), Qty: line.Quantity},
		GroupProgress: Progress{Scanned: done, Qty: total},
		SKUType:       scan.Type,
	}
	if complete {
		res.PrintInfo = e.printInfo(lines, target, contact)
	}
	if lock.Held() {
		res.NextExpected = &NextExpected{Group: lock.ActiveGroup, SKU: lock.ActiveSKU}
	}

	e.emit(EventScanAccepted, ScanAcceptedEvent{
		Barcode: strings.TrimSpace(rawBarcode),
		RowID:   line.RowID,
		Result:  res,
	})
	if complete {
		e.emit(EventGroupCompleted, GroupCompletedEvent{
			ContactNumber: contact,
			AWB:           res.AWB,
			PrintInfo:     res.PrintInfo,
		})
	}
	return res, nil
}

// pickTarget selects one candidate when no lock applies: prefer a
// candidate whose group consists of exactly one SKU-bearing line with
// quantity 1 (single-item shipments finish in one scan), else the first
// candidate in store order. Policy choice; see DESIGN.md.
func (e *Engine) pickTarget(lines []store.OrderLine, cand []int) int {
	linesPerContact := make(map[string]int)
	for i := range lines {
		if strings.TrimSpace(lines[i].SKU) != "" {
			linesPerContact[strings.TrimSpace(lines[i].ContactNumber)]++
		}
	}
	for _, i := range cand {
		l := &lines[i]
		if l.Quantity == 1 && linesPerContact[strings.TrimSpace(l.ContactNumber)] == 1 {
			return i
		}
	}
	return cand[0]
}

// printInfo resolves the label page for a completed group: the target
// line's own source/page, falling back to any other group line carrying
// both. One group maps to exactly one physical label page.
func (e *Engine) printInfo(lines []store.OrderLine, target int, contact string) *PrintInfo {
	src := strings.TrimSpace(lines[target].SourceFile)
	page := strings.TrimSpace(lines[target].PageIndex)
	if src == "" || page == "" {
		for i := range lines {
			l := &lines[i]
			if strings.TrimSpace(l.ContactNumber) != contact {
				continue
			}
			s, p := strings.TrimSpace(l.SourceFile), strings.TrimSpace(l.PageIndex)
			if s != "" && p != "" {
				src, page = s, p
				break
			}
		}
	}
	if src == "" || page == "" {
		return nil
	}
	return &PrintInfo{SourceFile: src, PageIndex: page}
}

func containsSKU(skus []string, sku string) bool {
	for _, s := range skus {
		if s == sku {
			return true
		}
	}
	return false
}
