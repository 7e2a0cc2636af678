package store

import (
	"crypto/md5"
	"crypto/sha1"
	"fmt"
	"sort"
	"strings"
	"time"

	"packscan/registry"
)

const timeLayout = "2006-01-02 15:04:05"

// Now returns the current wall-clock time in the store's timestamp layout.
func Now() string {
	return time.Now().Format(timeLayout)
}

// OrderLine is one product line within one shipment. Lines are created at
// ingest and never mutated afterwards except for AssignedTokens, which
// records unit tokens in scan order.
type OrderLine struct {
	RowID          string   `json:"row_id"`
	OrderDate      string   `json:"order_date"`
	OrderID        string   `json:"order_id"`
	CustomerName   string   `json:"customer_name"`
	ContactNumber  string   `json:"contact_number"`
	ProductName    string   `json:"product_name"`
	SKU            string   `json:"sku"`
	Quantity       int      `json:"quantity"`
	AWB            string   `json:"awb"`
	AssignedTokens []string `json:"assigned_tokens"`
	CreatedAt      string   `json:"created_at"`
	SourceFile     string   `json:"source_file"`
	PageIndex      string   `json:"page_index"` // 1-based page inside SourceFile

	// Derived fields, populated on read by the engine; never persisted.
	SKUType registry.SKUType `json:"sku_type,omitempty"`
}

// Done is the number of units already assigned.
func (l *OrderLine) Done() int {
	return len(l.AssignedTokens)
}

// Remaining is the number of units still awaiting a scan.
func (l *OrderLine) Remaining() int {
	if r := l.Quantity - len(l.AssignedTokens); r > 0 {
		return r
	}
	return 0
}

// HasToken reports whether token already appears on this line.
func (l *OrderLine) HasToken(token string) bool {
	for _, t := range l.AssignedTokens {
		if t == token {
			return true
		}
	}
	return false
}

// RawLine is the shape delivered by the document extractor.
type RawLine struct {
	OrderDate     string `json:"order_date"`
	OrderID       string `json:"order_id"`
	CustomerName  string `json:"customer_name"`
	ContactNumber string `json:"contact_number"`
	ProductName   string `json:"product_name"`
	SKU           string `json:"sku"`
	Quantity      int    `json:"quantity"`
	AWB           string `json:"awb"`
	SourceFile    string `json:"source_file"`
	PageIndex     string `json:"page_index"`
}

// DedupKey is the deterministic identity of a physical line: the same AWB,
// canonical product name, normalized SKU and quantity always hash to the
// same key, so re-uploading a document (or overlapping page segments)
// cannot insert the line twice.
func DedupKey(awb, canonicalName, skuNorm string, quantity int) string {
	parts := []string{
		strings.ToUpper(strings.TrimSpace(awb)),
		strings.ToLower(canonicalName),
		skuNorm,
		fmt.Sprintf("%d", quantity),
	}
	sum := sha1.Sum([]byte(strings.Join(parts, "||")))
	return fmt.Sprintf("%x", sum)
}

// NewRowID derives a stable row id from a dedup key and creation stamp.
func NewRowID(dedupKey, createdAt string) string {
	sum := md5.Sum([]byte(dedupKey + "|" + createdAt))
	return fmt.Sprintf("%x", sum)[:12]
}

// SortNewestFirst orders lines for presentation: created_at descending,
// then AWB descending, with row_id as a deterministic tiebreak so repeated
// reads of the same state are reproducibly ordered.
func SortNewestFirst(lines []OrderLine) {
	sort.SliceStable(lines, func(i, j int) bool {
		a, b := &lines[i], &lines[j]
		if a.CreatedAt != b.CreatedAt {
			return a.CreatedAt > b.CreatedAt
		}
		if a.AWB != b.AWB {
			return a.AWB > b.AWB
		}
		return a.RowID > b.RowID
	})
}
