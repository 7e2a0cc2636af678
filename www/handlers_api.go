package www

import (
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"packscan/apperr"
	"packscan/store"

	"github.com/go-chi/chi/v5"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{"ok": false, "error": msg})
}

// writeEngineError maps typed engine errors to HTTP statuses; anything
// untyped is a storage or internal failure.
func writeEngineError(w http.ResponseWriter, err error) {
	writeError(w, apperr.StatusOf(err), err.Error())
}

// --- Auth ---

func (h *Handlers) apiLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	user, err := h.db.GetAdminUser(strings.TrimSpace(req.Username))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	if !checkPassword(req.Password, user.PasswordHash) {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	h.sessions.setUser(w, r, user.Username)
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "username": user.Username})
}

func (h *Handlers) apiLogout(w http.ResponseWriter, r *http.Request) {
	h.sessions.clear(w, r)
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
}

func (h *Handlers) apiChangePassword(w http.ResponseWriter, r *http.Request) {
	username, _ := h.sessions.getUser(r)
	var req struct {
		Current string `json:"current"`
		New     string `json:"new"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.New) < 8 {
		writeError(w, http.StatusBadRequest, "new password must be at least 8 characters")
		return
	}
	user, err := h.db.GetAdminUser(username)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	if !checkPassword(req.Current, user.PasswordHash) {
		writeError(w, http.StatusUnauthorized, "current password is wrong")
		return
	}
	hash, err := HashPassword(req.New)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "hash failed")
		return
	}
	if err := h.db.UpdateAdminPassword(username, hash); err != nil {
		writeError(w, http.StatusInternalServerError, "update failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
}

// --- Lines and allocation ---

func (h *Handlers) apiListLines(w http.ResponseWriter, r *http.Request) {
	lines, err := h.engine.ListLines()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if lines == nil {
		lines = []store.OrderLine{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "lines": lines})
}

func (h *Handlers) apiScan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Barcode string `json:"barcode"`
		AWB     string `json:"awb"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	res, err := h.engine.Allocate(req.Barcode, req.AWB)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "result": res})
}

func (h *Handlers) apiIngest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SourceFile string          `json:"source_file"`
		Lines      []store.RawLine `json:"lines"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	added, err := h.engine.Ingest(req.Lines, strings.TrimSpace(req.SourceFile))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":       true,
		"received": len(req.Lines),
		"added":    added,
	})
}

// apiUpload takes the per-page text of a label document, runs the
// extractor and ingests whatever it finds.
func (h *Handlers) apiUpload(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SourceFile string   `json:"source_file"`
		Pages      []string `json:"pages"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Pages) == 0 {
		writeError(w, http.StatusBadRequest, "pages required")
		return
	}
	raw := h.parser.ParsePages(req.Pages, strings.TrimSpace(req.SourceFile))
	added, err := h.engine.Ingest(raw, strings.TrimSpace(req.SourceFile))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":        true,
		"pages":     len(req.Pages),
		"extracted": len(raw),
		"added":     added,
	})
}

func (h *Handlers) apiConfirmExtra(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RowID string `json:"row_id"`
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.engine.ConfirmExtra(req.RowID, req.Token); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
}

func (h *Handlers) apiPendingSKUs(w http.ResponseWriter, r *http.Request) {
	contact := chi.URLParam(r, "contact")
	skus, err := h.engine.PendingSKUs(contact)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if skus == nil {
		skus = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "skus": skus})
}

func (h *Handlers) apiSKUContact(w http.ResponseWriter, r *http.Request) {
	sku := chi.URLParam(r, "sku")
	contact, err := h.engine.SKUContact(sku)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "contact": contact})
}

func (h *Handlers) apiLock(w http.ResponseWriter, r *http.Request) {
	lock, err := h.engine.CurrentLock()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":           true,
		"held":         lock.Held(),
		"active_group": lock.ActiveGroup,
		"active_sku":   lock.ActiveSKU,
	})
}

// --- Admin ---

func (h *Handlers) apiBulkAssign(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AWB   string `json:"awb"`
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	changed, err := h.engine.BulkAssign(req.AWB, req.Token)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "changed": changed})
}

func (h *Handlers) apiReloadMasters(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.ReloadMasters(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
}

func (h *Handlers) apiScanEvents(w http.ResponseWriter, r *http.Request) {
	limit := 200
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}
	events, err := h.db.ListScanEvents(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "events": events})
}

// apiExportCSV streams the decorated line store for offline reconciliation.
func (h *Handlers) apiExportCSV(w http.ResponseWriter, r *http.Request) {
	lines, err := h.engine.ListLines()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="orders_export.csv"`)

	cw := csv.NewWriter(w)
	cw.Write([]string{
		"order_date", "order_id", "customer_name", "contact_number",
		"product_name", "sku", "sku_type", "quantity", "scanned",
		"awb", "assigned_tokens", "row_id", "created_at",
		"source_file", "page_index",
	})
	for i := range lines {
		l := &lines[i]
		cw.Write([]string{
			l.OrderDate,
			l.OrderID,
			l.CustomerName,
			l.ContactNumber,
			l.ProductName,
			l.SKU,
			string(l.SKUType),
			strconv.Itoa(l.Quantity),
			strconv.Itoa(l.Done()),
			l.AWB,
			strings.Join(l.AssignedTokens, ","),
			l.RowID,
			l.CreatedAt,
			l.SourceFile,
			l.PageIndex,
		})
	}
	cw.Flush()
}
