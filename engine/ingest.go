package engine

import (
	"strings"

	"packscan/registry"
	"packscan/store"
)

// Ingest appends extracted line items that are not already present,
// identified by their dedup key, so repeated uploads and overlapping page
// segments never duplicate a physical line. All accepted lines are
// committed in one atomic write. Returns the number inserted.
func (e *Engine) Ingest(raw []store.RawLine, sourceFile string) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(raw) == 0 {
		return 0, nil
	}

	lines, err := e.lines.ReadAll()
	if err != nil {
		return 0, err
	}
	existing := make(map[string]struct{}, len(lines))
	for i := range lines {
		existing[e.dedupKey(&lines[i])] = struct{}{}
	}

	now := store.Now()
	added := 0
	for _, r := range raw {
		skuNorm := registry.Normalize(r.SKU)
		name := e.reg.CanonicalName(skuNorm, strings.TrimSpace(r.ProductName))
		qty := r.Quantity
		if qty < 0 {
			qty = 0
		}
		src := sourceFile
		if src == "" {
			src = strings.TrimSpace(r.SourceFile)
		}
		line := store.OrderLine{
			OrderDate:     strings.TrimSpace(r.OrderDate),
			OrderID:       strings.TrimSpace(r.OrderID),
			CustomerName:  strings.TrimSpace(r.CustomerName),
			ContactNumber: strings.TrimSpace(r.ContactNumber),
			ProductName:   name,
			SKU:           skuNorm,
			Quantity:      qty,
			AWB:           strings.TrimSpace(r.AWB),
			CreatedAt:     now,
			SourceFile:    src,
			PageIndex:     strings.TrimSpace(r.PageIndex),
		}
		key := e.dedupKey(&line)
		if _, ok := existing[key]; ok {
			continue
		}
		line.RowID = store.NewRowID(key, now)
		lines = append(lines, line)
		existing[key] = struct{}{}
		added++
	}

	if added > 0 {
		if err := e.lines.WriteAll(lines); err != nil {
			return 0, err
		}
	}
	e.emit(EventLinesIngested, LinesIngestedEvent{
		SourceFile: sourceFile,
		Received:   len(raw),
		Added:      added,
	})
	return added, nil
}
