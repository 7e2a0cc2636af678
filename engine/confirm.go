package engine

import (
	"strings"

	"packscan/apperr"
	"packscan/registry"
)

// SentinelExtra marks a manually confirmed extra item.
const SentinelExtra = "CONFIRMED_EXTRA"

// ConfirmExtra records that a non-scannable extra item was physically
// included. Only blank-SKU and NoScan lines are eligible; the recorded
// token is auditable bookkeeping and never counts toward group completion.
func (e *Engine) ConfirmExtra(rowID, token string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	rowID = strings.TrimSpace(rowID)
	if rowID == "" {
		return apperr.BadRequest("row_id required")
	}
	token = strings.ToUpper(strings.TrimSpace(token))
	if token == "" {
		token = SentinelExtra
	}

	lines, err := e.lines.ReadAll()
	if err != nil {
		return err
	}
	for i := range lines {
		l := &lines[i]
		if strings.TrimSpace(l.RowID) != rowID {
			continue
		}
		skuNorm := registry.Normalize(l.SKU)
		if skuNorm != "" && e.reg.Classify(skuNorm) != registry.TypeNoScan {
			return apperr.Conflict("Not eligible for manual confirm")
		}
		l.AssignedTokens = []string{token}
		if err := e.lines.WriteAll(lines); err != nil {
			return err
		}
		e.emit(EventExtraConfirmed, ExtraConfirmedEvent{RowID: rowID, Token: token})
		return nil
	}
	return apperr.NotFound("row_id not found")
}

// BulkAssign sets the same token on every line of an AWB that has none.
// Retained for the pre-barcode workflow; the scan path never calls it.
func (e *Engine) BulkAssign(awb, token string) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	awb = strings.TrimSpace(awb)
	token = strings.ToUpper(strings.TrimSpace(token))
	if awb == "" || token == "" {
		return 0, apperr.BadRequest("awb and token are required")
	}

	lines, err := e.lines.ReadAll()
	if err != nil {
		return 0, err
	}

	var idxs []int
	for i := range lines {
		if strings.TrimSpace(lines[i].AWB) == awb {
			idxs = append(idxs, i)
		}
	}
	if len(idxs) == 0 {
		return 0, apperr.NotFound("AWB '%s' not found", awb)
	}

	// Refuse to overwrite: any line already holding a different token is a
	// conflict.
	for _, i := range idxs {
		for _, t := range lines[i].AssignedTokens {
			if t != "" && t != token {
				return 0, apperr.Conflict("Conflicting token already set for AWB '%s'", awb)
			}
		}
	}

	changed := 0
	for _, i := range idxs {
		if len(lines[i].AssignedTokens) == 0 {
			lines[i].AssignedTokens = []string{token}
			changed++
		}
	}
	if changed > 0 {
		if err := e.lines.WriteAll(lines); err != nil {
			return 0, err
		}
	}
	return changed, nil
}
