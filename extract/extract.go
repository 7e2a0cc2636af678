// Package extract parses the text of shipping-label document pages into
// raw order lines for ingest. One page is one label; a page that happens
// to hold several labels is split on the courier footer markers. Document
// rasterization and text extraction stay outside the core — callers hand
// this package per-page text.
package extract

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"packscan/store"
)

var (
	dateRx    = regexp.MustCompile(`(?i)order\s*date\s*[:\-]\s*(\d{4}-\d{2}-\d{2}|\d{2}[/-]\d{2}[/-]\d{4})`)
	contactRx = regexp.MustCompile(`(?i)contact\s*number[^0-9]{0,20}(\d{10})`)
	orderIDRx = regexp.MustCompile(`(?i)order\s*id[^0-9]{0,10}(\d{4,5})`)
	awbRx     = regexp.MustCompile(`(?i)courier\s*awb\s*no\s*:\s*([A-Z0-9]+)`)
	skuRx     = regexp.MustCompile(`\b([A-Z]{2,}\s*\d+)\b`)
	digitsRx  = regexp.MustCompile(`^\d+$`)
	trailRx   = regexp.MustCompile(`\b(\d+)\b\s*$`)
)

// splitMarkers end one label's text within a page.
var splitMarkers = []string{
	"powered by proship",
	"handover to bluedart air",
	"handover to bluedart",
}

// breakers end a product block.
var breakers = []string{
	"tracking id:", "order id:", "return address", "handover to",
	"sold by:", "gstin:", "prepaid", "cash on delivery", "delivery address:",
	"courier awb no:", "mode of shipping:", "total price:", "powered by proship",
}

// Parser turns label page text into raw order lines. The zero value works;
// the fields tune it to a vendor's label layout.
type Parser struct {
	// SKUPrefix filters recognized SKU tokens; tokens without the prefix
	// (and the literal NIL) are treated as absent.
	SKUPrefix string
	// VariantSKUs maps lowercase description fragments to a SKU, used
	// when the label omits the SKU line.
	VariantSKUs map[string]string
	// IgnoreContacts drops known non-customer numbers (the shipper's own).
	IgnoreContacts []string
}

// NewParser returns a Parser tuned for the current label vendor.
func NewParser() *Parser {
	return &Parser{
		SKUPrefix: "AT",
		VariantSKUs: map[string]string{
			"moonlight black": "AT0001",
			"sky blue":        "AT0002",
			"cloud white":     "AT0003",
			"blush pink":      "AT0004",
		},
		IgnoreContacts: []string{"9996642108"},
	}
}

// ParsePages extracts order lines from per-page label text. Page indexes
// are 1-based in the returned lines.
func (p *Parser) ParsePages(pages []string, sourceFile string) []store.RawLine {
	var all []store.RawLine
	for pageNo, text := range pages {
		lines := splitLines(text)
		if len(lines) == 0 {
			continue
		}
		for _, seg := range splitSegments(lines) {
			if !segmentHasAWB(seg) {
				continue
			}
			for _, r := range p.parseOrder(seg) {
				r.PageIndex = strconv.Itoa(pageNo + 1)
				r.SourceFile = sourceFile
				all = append(all, r)
			}
		}
	}
	return all
}

func splitLines(text string) []string {
	var out []string
	any := false
	for _, ln := range strings.Split(text, "\n") {
		ln = strings.TrimSpace(ln)
		out = append(out, ln)
		if ln != "" {
			any = true
		}
	}
	if !any {
		return nil
	}
	return out
}

// splitSegments cuts a page into per-label line groups on footer markers.
func splitSegments(lines []string) [][]string {
	var segments [][]string
	var buf []string
	flush := func() {
		for _, s := range buf {
			if s != "" {
				segments = append(segments, buf)
				break
			}
		}
		buf = nil
	}
	for _, ln := range lines {
		buf = append(buf, ln)
		low := strings.ToLower(ln)
		for _, m := range splitMarkers {
			if strings.HasPrefix(low, m) {
				flush()
				break
			}
		}
	}
	flush()
	return segments
}

func segmentHasAWB(seg []string) bool {
	for _, ln := range seg {
		if strings.Contains(strings.ToLower(ln), "awb") {
			return true
		}
	}
	return false
}

// parseOrder extracts the header fields and product blocks of one label.
func (p *Parser) parseOrder(seg []string) []store.RawLine {
	var orderDate, orderID, customer, contact, awb string

	for idx, ln := range seg {
		if m := dateRx.FindStringSubmatch(ln); m != nil {
			orderDate = normalizeDate(m[1])
			continue
		}
		if m := orderIDRx.FindStringSubmatch(ln); m != nil {
			orderID = m[1]
			continue
		}
		if m := awbRx.FindStringSubmatch(ln); m != nil {
			awb = strings.TrimSpace(m[1])
			continue
		}
		if strings.EqualFold(ln, "delivery address:") {
			// Next non-empty line is the customer name.
			for j := idx + 1; j < len(seg); j++ {
				if seg[j] != "" {
					customer = seg[j]
					break
				}
			}
			continue
		}
		if m := contactRx.FindStringSubmatch(ln); m != nil {
			if !p.ignoredContact(m[1]) {
				contact = m[1]
			}
		}
	}

	var rows []store.RawLine
	seen := make(map[string]struct{})
	i := 0
	for i < len(seg) {
		if strings.EqualFold(seg[i], "description") {
			items, next := p.parseProductBlock(seg, i)
			for _, it := range items {
				key := it.ProductName + "|" + it.SKU + "|" + strconv.Itoa(it.Quantity)
				if _, dup := seen[key]; dup {
					continue
				}
				seen[key] = struct{}{}
				rows = append(rows, store.RawLine{
					OrderDate:     orderDate,
					OrderID:       orderID,
					CustomerName:  customer,
					ContactNumber: contact,
					ProductName:   it.ProductName,
					SKU:           it.SKU,
					Quantity:      it.Quantity,
					AWB:           awb,
				})
			}
			i = next
		} else {
			i++
		}
	}
	return rows
}

type item struct {
	ProductName string
	SKU         string
	Quantity    int
}

// parseProductBlock walks the Description/SKU/Qty table. Rows are loose
// triples: a description (possibly wrapped across lines), an optional SKU
// line and a quantity line, in any of a few observed arrangements.
func (p *Parser) parseProductBlock(seg []string, i int) ([]item, int) {
	var items []item
	n := len(seg)

	// Must begin at the header trio.
	if i+2 >= n ||
		!strings.EqualFold(seg[i], "description") ||
		!strings.EqualFold(seg[i+1], "sku") ||
		!strings.EqualFold(seg[i+2], "qty") {
		return items, i
	}
	i += 3

	for i < n {
		for i < n && seg[i] == "" {
			i++
		}
		if i >= n || isBreak(seg[i]) {
			break
		}

		// Merge wrapped description lines: short continuations that are
		// neither a SKU line nor a quantity line.
		desc := seg[i]
		for i+1 < n && !isBreak(seg[i+1]) &&
			!skuRx.MatchString(seg[i+1]) &&
			!digitsRx.MatchString(seg[i+1]) &&
			len(strings.Fields(seg[i+1])) <= 3 {
			desc += " " + seg[i+1]
			i++
		}

		sku := ""
		skuLine := -1
		for j := i + 1; j < min(i+3, n); j++ {
			if m := skuRx.FindStringSubmatch(seg[j]); m != nil {
				sku = p.filterSKU(m[1])
				skuLine = j
				break
			}
		}

		qty := -1
		qtyLine := -1
		for j := i; j < min(i+3, n); j++ {
			if digitsRx.MatchString(seg[j]) {
				qty, _ = strconv.Atoi(seg[j])
				qtyLine = j
				break
			}
		}
		if qty < 0 {
			for j := i; j < min(i+3, n); j++ {
				if m := trailRx.FindStringSubmatch(seg[j]); m != nil {
					qty, _ = strconv.Atoi(m[1])
					qtyLine = j
					break
				}
			}
		}

		if sku == "" {
			sku = p.guessSKU(desc)
		}
		if sku == "" && qty < 0 {
			i++
			continue
		}
		if qty < 0 {
			qty = 1
		}

		if sku != "" || desc != "" {
			items = append(items, item{ProductName: desc, SKU: sku, Quantity: qty})
		}

		end := i
		if skuLine > end {
			end = skuLine
		}
		if qtyLine > end {
			end = qtyLine
		}
		i = end + 1
		if i < n && isBreak(seg[i]) {
			break
		}
	}
	return items, i
}

func (p *Parser) filterSKU(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	s = strings.ReplaceAll(s, " ", "")
	if s == "NIL" {
		return ""
	}
	if p.SKUPrefix != "" && !strings.HasPrefix(s, p.SKUPrefix) {
		return ""
	}
	return s
}

func (p *Parser) guessSKU(desc string) string {
	d := strings.ToLower(desc)
	needles := make([]string, 0, len(p.VariantSKUs))
	for needle := range p.VariantSKUs {
		needles = append(needles, needle)
	}
	sort.Strings(needles)
	for _, needle := range needles {
		if strings.Contains(d, needle) {
			return p.VariantSKUs[needle]
		}
	}
	return ""
}

func (p *Parser) ignoredContact(num string) bool {
	for _, ig := range p.IgnoreContacts {
		if num == ig {
			return true
		}
	}
	return false
}

func isBreak(ln string) bool {
	low := strings.ToLower(strings.TrimSpace(ln))
	if low == "" {
		return true
	}
	for _, b := range breakers {
		if strings.HasPrefix(low, b) {
			return true
		}
	}
	return false
}

func normalizeDate(s string) string {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"2006-01-02", "02/01/2006", "02-01-2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("02-01-2006")
		}
	}
	return s
}
