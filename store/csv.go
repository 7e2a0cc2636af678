package store

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// LineStore is the persistence boundary for order lines. Every mutation
// follows a read-full-state, compute, replace-full-state discipline; a
// backend must make WriteAll atomic so a crash never leaves a torn record
// set visible to readers.
type LineStore interface {
	Init() error
	ReadAll() ([]OrderLine, error)
	WriteAll([]OrderLine) error
}

var headers = []string{
	"order_date",
	"order_id",
	"customer_name",
	"contact_number",
	"product_name",
	"sku",
	"quantity",
	"awb",
	"assigned_tokens",
	"row_id",
	"created_at",
	"source_file",
	"page_index",
}

// CSVStore persists order lines as a flat headered CSV file, replaced
// atomically on every write (write temp, rename over).
type CSVStore struct {
	path string
}

// NewCSVStore creates a CSV-backed line store at path.
func NewCSVStore(path string) *CSVStore {
	return &CSVStore{path: path}
}

// Init creates an empty headered file if none exists. Safe to call again.
func (s *CSVStore) Init() error {
	if _, err := os.Stat(s.path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat %s: %w", s.path, err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
	}
	return s.WriteAll(nil)
}

// ReadAll loads every line in file order, which is ingest order.
func (s *CSVStore) ReadAll() ([]OrderLine, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open line store: %w", err)
	}
	defer f.Close()

	rd := csv.NewReader(f)
	rd.FieldsPerRecord = -1
	records, err := rd.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read line store: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	// Map by header so column order changes survive.
	idx := make(map[string]int, len(records[0]))
	for i, h := range records[0] {
		idx[strings.TrimSpace(h)] = i
	}
	field := func(rec []string, name string) string {
		i, ok := idx[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return rec[i]
	}

	lines := make([]OrderLine, 0, len(records)-1)
	for _, rec := range records[1:] {
		qty, _ := strconv.Atoi(strings.TrimSpace(field(rec, "quantity")))
		if qty < 0 {
			qty = 0
		}
		lines = append(lines, OrderLine{
			OrderDate:      field(rec, "order_date"),
			OrderID:        field(rec, "order_id"),
			CustomerName:   field(rec, "customer_name"),
			ContactNumber:  field(rec, "contact_number"),
			ProductName:    field(rec, "product_name"),
			SKU:            field(rec, "sku"),
			Quantity:       qty,
			AWB:            field(rec, "awb"),
			AssignedTokens: splitTokens(field(rec, "assigned_tokens")),
			RowID:          field(rec, "row_id"),
			CreatedAt:      field(rec, "created_at"),
			SourceFile:     field(rec, "source_file"),
			PageIndex:      field(rec, "page_index"),
		})
	}
	return lines, nil
}

// WriteAll replaces the whole collection atomically.
func (s *CSVStore) WriteAll(lines []OrderLine) error {
	tmp := s.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create temp store: %w", err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(headers); err != nil {
		f.Close()
		return fmt.Errorf("write header: %w", err)
	}
	for i := range lines {
		l := &lines[i]
		rec := []string{
			l.OrderDate,
			l.OrderID,
			l.CustomerName,
			l.ContactNumber,
			l.ProductName,
			l.SKU,
			strconv.Itoa(l.Quantity),
			l.AWB,
			strings.Join(l.AssignedTokens, ","),
			l.RowID,
			l.CreatedAt,
			l.SourceFile,
			l.PageIndex,
		}
		if err := w.Write(rec); err != nil {
			f.Close()
			return fmt.Errorf("write line %s: %w", l.RowID, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("flush line store: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync line store: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close temp store: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace line store: %w", err)
	}
	return nil
}

func splitTokens(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var tokens []string
	for _, t := range strings.Split(raw, ",") {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t != "" {
			tokens = append(tokens, t)
		}
	}
	return tokens
}
