package engine

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"packscan/apperr"
	"packscan/registry"
	"packscan/store"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	dir := t.TempDir()

	master := "sku,product_name,type\n" +
		"AT0001,Moonlight Black,Compulsory\n" +
		"AT0002,Galaxy Blue,Loose\n" +
		"AT0003,Gift Card,NoScan\n"
	masterPath := filepath.Join(dir, "sku_master.csv")
	noScanPath := filepath.Join(dir, "extras_noscan.csv")
	if err := os.WriteFile(masterPath, []byte(master), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(noScanPath, []byte("sku\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	reg, err := registry.New(masterPath, noScanPath)
	if err != nil {
		t.Fatal(err)
	}
	eng, err := New(
		store.NewCSVStore(filepath.Join(dir, "orders.csv")),
		reg,
		store.NewLockFile(filepath.Join(dir, "scan_lock.json")),
	)
	if err != nil {
		t.Fatal(err)
	}
	return eng
}

func rawLine(contact, awb, sku string, qty int) store.RawLine {
	return store.RawLine{
		ContactNumber: contact,
		AWB:           awb,
		SKU:           sku,
		Quantity:      qty,
		ProductName:   "Product " + sku,
		SourceFile:    "batch.pdf",
		PageIndex:     "1",
	}
}

func mustIngest(t *testing.T, e *Engine, lines ...store.RawLine) {
	t.Helper()
	if _, err := e.Ingest(lines, "batch.pdf"); err != nil {
		t.Fatal(err)
	}
}

func findLine(t *testing.T, e *Engine, sku string) store.OrderLine {
	t.Helper()
	lines, err := e.ListLines()
	if err != nil {
		t.Fatal(err)
	}
	for _, l := range lines {
		if l.SKU == sku {
			return l
		}
	}
	t.Fatalf("no line with SKU %q", sku)
	return store.OrderLine{}
}

func TestIngestIsIdempotent(t *testing.T) {
	e := newTestEngine(t)
	batch := []store.RawLine{
		rawLine("9990001111", "AWB1", "AT0001", 2),
		rawLine("9990001111", "AWB1", "AT0002", 1),
	}

	added, err := e.Ingest(batch, "batch.pdf")
	if err != nil {
		t.Fatal(err)
	}
	if added != 2 {
		t.Fatalf("first ingest added %d, want 2", added)
	}

	// Re-uploading the same document, even under another name, adds nothing.
	added, err = e.Ingest(batch, "batch-copy.pdf")
	if err != nil {
		t.Fatal(err)
	}
	if added != 0 {
		t.Fatalf("re-ingest added %d, want 0", added)
	}

	lines, _ := e.ListLines()
	if len(lines) != 2 {
		t.Fatalf("store holds %d lines, want 2", len(lines))
	}
}

func TestAllocateCompletesSingleLooseUnit(t *testing.T) {
	e := newTestEngine(t)
	mustIngest(t, e, rawLine("9990001111", "AWB1", "AT0002", 1))

	var completed int
	e.Events.Subscribe(func(evt Event) {
		if evt.Type == EventGroupCompleted {
			completed++
		}
	})

	res, err := e.Allocate("AT0002-TK1", "")
	if err != nil {
		t.Fatal(err)
	}
	if !res.GroupComplete {
		t.Fatal("single unit scan should complete the group")
	}
	if res.Token != "TK1" || res.SKU != "AT0002" {
		t.Errorf("result = %q/%q", res.SKU, res.Token)
	}
	if res.PrintInfo == nil || res.PrintInfo.SourceFile != "batch.pdf" || res.PrintInfo.PageIndex != "1" {
		t.Errorf("print info = %+v", res.PrintInfo)
	}
	if res.NextExpected != nil {
		t.Errorf("completed group should not expect more: %+v", res.NextExpected)
	}
	if completed != 1 {
		t.Errorf("group completion events = %d, want 1", completed)
	}

	lock, err := e.CurrentLock()
	if err != nil {
		t.Fatal(err)
	}
	if lock.Held() {
		t.Errorf("lock still held after completion: %+v", lock)
	}
}

func TestAllocateInvalidBarcode(t *testing.T) {
	e := newTestEngine(t)
	mustIngest(t, e, rawLine("9990001111", "AWB1", "AT0002", 1))

	var rejected int
	e.Events.Subscribe(func(evt Event) {
		if evt.Type == EventScanRejected {
			rejected++
		}
	})

	_, err := e.Allocate("???", "")
	if err == nil {
		t.Fatal("expected error")
	}
	if apperr.StatusOf(err) != 400 {
		t.Errorf("status = %d, want 400", apperr.StatusOf(err))
	}
	if rejected != 1 {
		t.Errorf("rejection events = %d, want 1", rejected)
	}
}

func TestDuplicateTokenRejected(t *testing.T) {
	e := newTestEngine(t)
	mustIngest(t, e, rawLine("9990001111", "AWB1", "AT0001", 2))

	if _, err := e.Allocate("AT0001-A001", ""); err != nil {
		t.Fatal(err)
	}
	_, err := e.Allocate("AT0001-A001", "")
	if err == nil {
		t.Fatal("duplicate token must be rejected")
	}
	if apperr.StatusOf(err) != 409 {
		t.Errorf("status = %d, want 409", apperr.StatusOf(err))
	}

	// A fresh token fills the second unit and completes the group.
	res, err := e.Allocate("AT0001-A002", "")
	if err != nil {
		t.Fatal(err)
	}
	if !res.GroupComplete {
		t.Error("second unique token should complete the group")
	}
}

func TestLockEnforcesExpectedSKU(t *testing.T) {
	e := newTestEngine(t)
	mustIngest(t, e,
		rawLine("9990001111", "AWB1", "AT0001", 1),
		rawLine("9990001111", "AWB1", "AT0002", 1),
	)

	res, err := e.Allocate("AT0001-A001", "")
	if err != nil {
		t.Fatal(err)
	}
	if res.GroupComplete {
		t.Fatal("group has a unit left")
	}
	if res.NextExpected == nil || res.NextExpected.SKU != "AT0002" {
		t.Fatalf("next expected = %+v, want AT0002", res.NextExpected)
	}

	// Scanning the wrong SKU while locked names the expected one.
	_, err = e.Allocate("AT0001-A002", "")
	if err == nil {
		t.Fatal("expected lock conflict")
	}
	if apperr.StatusOf(err) != 409 {
		t.Errorf("status = %d, want 409", apperr.StatusOf(err))
	}
	if !strings.Contains(err.Error(), "AT0002") {
		t.Errorf("conflict should name the expected SKU: %q", err.Error())
	}

	// The expected SKU finishes the group and releases the lock.
	res, err = e.Allocate("AT0002-TK1", "")
	if err != nil {
		t.Fatal(err)
	}
	if !res.GroupComplete {
		t.Error("group should be complete")
	}
	lock, _ := e.CurrentLock()
	if lock.Held() {
		t.Errorf("lock still held: %+v", lock)
	}
}

func TestLockBlocksOtherGroups(t *testing.T) {
	e := newTestEngine(t)
	mustIngest(t, e,
		rawLine("1110000000", "AWB1", "AT0001", 1),
		rawLine("1110000000", "AWB1", "AT0002", 1),
		rawLine("2220000000", "AWB2", "AT0001", 1),
		rawLine("2220000000", "AWB2", "AT0002", 1),
	)

	if _, err := e.Allocate("AT0001-A001", ""); err != nil {
		t.Fatal(err)
	}

	// The second group also has AT0001 pending, but the lock holds scans to
	// the first group until it is done.
	_, err := e.Allocate("AT0001-A002", "")
	if err == nil {
		t.Fatal("expected lock conflict")
	}
	if apperr.StatusOf(err) != 409 {
		t.Errorf("status = %d, want 409", apperr.StatusOf(err))
	}
}

func TestAllocateCapacityExhausted(t *testing.T) {
	e := newTestEngine(t)
	mustIngest(t, e, rawLine("9990001111", "AWB1", "AT0002", 1))

	if _, err := e.Allocate("AT0002-T1", ""); err != nil {
		t.Fatal(err)
	}
	_, err := e.Allocate("AT0002-T2", "")
	if err == nil {
		t.Fatal("expected no-capacity error")
	}
	if apperr.StatusOf(err) != 404 {
		t.Errorf("status = %d, want 404", apperr.StatusOf(err))
	}
}

func TestGroupHintNarrowsCandidates(t *testing.T) {
	e := newTestEngine(t)
	mustIngest(t, e,
		rawLine("1110000000", "AWB1", "AT0002", 1),
		rawLine("2220000000", "AWB2", "AT0002", 1),
	)

	res, err := e.Allocate("AT0002-T1", "AWB2")
	if err != nil {
		t.Fatal(err)
	}
	if res.AWB != "AWB2" {
		t.Errorf("hint ignored: allocated under %q", res.AWB)
	}

	_, err = e.Allocate("AT0002-T2", "AWB9")
	if err == nil {
		t.Fatal("unknown AWB hint should find nothing")
	}
	if apperr.StatusOf(err) != 404 {
		t.Errorf("status = %d, want 404", apperr.StatusOf(err))
	}
}

func TestPendingSKUsOrderAndExclusions(t *testing.T) {
	e := newTestEngine(t)
	mustIngest(t, e,
		rawLine("9990001111", "AWB1", "AT0002", 1),
		rawLine("9990001111", "AWB1", "AT0003", 1), // NoScan, excluded
		rawLine("9990001111", "AWB1", "AT0001", 1),
		rawLine("9990001111", "AWB1", "", 1), // blank SKU, excluded
	)

	skus, err := e.PendingSKUs("9990001111")
	if err != nil {
		t.Fatal(err)
	}
	if len(skus) != 2 || skus[0] != "AT0002" || skus[1] != "AT0001" {
		t.Fatalf("pending = %v, want [AT0002 AT0001]", skus)
	}

	// A fully assigned SKU drops out of the pending list.
	if _, err := e.Allocate("AT0002-T1", ""); err != nil {
		t.Fatal(err)
	}
	skus, _ = e.PendingSKUs("9990001111")
	if len(skus) != 1 || skus[0] != "AT0001" {
		t.Fatalf("pending = %v, want [AT0001]", skus)
	}
}

func TestSKUContact(t *testing.T) {
	e := newTestEngine(t)
	mustIngest(t, e, rawLine("9990001111", "AWB1", "AT0002", 1))

	contact, err := e.SKUContact("at-2")
	if err != nil {
		t.Fatal(err)
	}
	if contact != "9990001111" {
		t.Errorf("contact = %q", contact)
	}
	if contact, _ := e.SKUContact("AT0009"); contact != "" {
		t.Errorf("unknown SKU should yield no contact, got %q", contact)
	}
}

func TestStaleLockSelfHeals(t *testing.T) {
	e := newTestEngine(t)
	mustIngest(t, e, rawLine("9990001111", "AWB1", "AT0002", 1))

	// A leftover lock for a group with nothing pending must not wedge scans.
	var stale store.Lock
	stale.Acquire("0000000000", "AT0001")
	if err := e.lock.Save(stale); err != nil {
		t.Fatal(err)
	}

	res, err := e.Allocate("AT0002-T1", "")
	if err != nil {
		t.Fatalf("stale lock blocked the scan: %v", err)
	}
	if !res.GroupComplete {
		t.Error("scan should have completed the real group")
	}
	lock, _ := e.CurrentLock()
	if lock.Held() {
		t.Errorf("lock should be released: %+v", lock)
	}
}

func TestConfirmExtra(t *testing.T) {
	e := newTestEngine(t)
	mustIngest(t, e,
		rawLine("9990001111", "AWB1", "AT0003", 1), // NoScan
		rawLine("9990001111", "AWB1", "AT0001", 1), // Compulsory
	)

	noScan := findLine(t, e, "AT0003")
	if err := e.ConfirmExtra(noScan.RowID, ""); err != nil {
		t.Fatal(err)
	}
	got := findLine(t, e, "AT0003")
	if len(got.AssignedTokens) != 1 || got.AssignedTokens[0] != SentinelExtra {
		t.Errorf("tokens = %v, want [%s]", got.AssignedTokens, SentinelExtra)
	}

	compulsory := findLine(t, e, "AT0001")
	err := e.ConfirmExtra(compulsory.RowID, "")
	if err == nil || apperr.StatusOf(err) != 409 {
		t.Errorf("confirming a scannable line: err = %v, want 409", err)
	}

	if err := e.ConfirmExtra("", ""); err == nil || apperr.StatusOf(err) != 400 {
		t.Errorf("blank row_id: err = %v, want 400", err)
	}
	if err := e.ConfirmExtra("nope", ""); err == nil || apperr.StatusOf(err) != 404 {
		t.Errorf("unknown row_id: err = %v, want 404", err)
	}
}

func TestConfirmExtraDoesNotCountTowardCompletion(t *testing.T) {
	e := newTestEngine(t)
	mustIngest(t, e,
		rawLine("9990001111", "AWB1", "AT0003", 1),
		rawLine("9990001111", "AWB1", "AT0002", 1),
	)

	noScan := findLine(t, e, "AT0003")
	if err := e.ConfirmExtra(noScan.RowID, ""); err != nil {
		t.Fatal(err)
	}

	// Completion is still decided by the scannable line alone.
	res, err := e.Allocate("AT0002-T1", "")
	if err != nil {
		t.Fatal(err)
	}
	if !res.GroupComplete {
		t.Error("group should complete from the scannable line alone")
	}
	if res.GroupProgress.Qty != 1 {
		t.Errorf("group qty = %d, NoScan lines must not count", res.GroupProgress.Qty)
	}
}

func TestBulkAssign(t *testing.T) {
	e := newTestEngine(t)
	mustIngest(t, e,
		rawLine("9990001111", "AWBX", "AT0001", 1),
		rawLine("9990001111", "AWBX", "AT0002", 1),
	)

	changed, err := e.BulkAssign("AWBX", "tok1")
	if err != nil {
		t.Fatal(err)
	}
	if changed != 2 {
		t.Fatalf("changed = %d, want 2", changed)
	}
	if got := findLine(t, e, "AT0001"); !got.HasToken("TOK1") {
		t.Errorf("token not set: %v", got.AssignedTokens)
	}

	// Same token again is a no-op, a different one is a conflict.
	changed, err = e.BulkAssign("AWBX", "TOK1")
	if err != nil || changed != 0 {
		t.Errorf("repeat assign: changed=%d err=%v", changed, err)
	}
	_, err = e.BulkAssign("AWBX", "TOK2")
	if err == nil || apperr.StatusOf(err) != 409 {
		t.Errorf("conflicting assign: err = %v, want 409", err)
	}

	_, err = e.BulkAssign("AWB-MISSING", "TOK1")
	if err == nil || apperr.StatusOf(err) != 404 {
		t.Errorf("unknown awb: err = %v, want 404", err)
	}
	_, err = e.BulkAssign("", "")
	if err == nil || apperr.StatusOf(err) != 400 {
		t.Errorf("missing args: err = %v, want 400", err)
	}
}

func TestScanningNoScanSKURejected(t *testing.T) {
	e := newTestEngine(t)
	mustIngest(t, e, rawLine("9990001111", "AWB1", "AT0003", 1))

	_, err := e.Allocate("AT0003-A001", "")
	if err == nil {
		t.Fatal("expected rejection")
	}
	if apperr.StatusOf(err) != 409 {
		t.Errorf("status = %d, want 409", apperr.StatusOf(err))
	}
}
