// Package www is the thin HTTP adapter over the allocation engine: JSON
// in, JSON out, statuses taken from the engine's typed errors. No HTML is
// rendered here or anywhere below.
package www

import (
	"net/http"

	"packscan/config"
	"packscan/engine"
	"packscan/extract"
	"packscan/journal"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	engine   *engine.Engine
	db       *journal.DB
	parser   *extract.Parser
	sessions *sessionStore
	eventHub *EventHub
}

// NewRouter creates the chi router and returns it along with a stop
// function.
func NewRouter(eng *engine.Engine, db *journal.DB, cfg *config.WebConfig) (http.Handler, func()) {
	h := &Handlers{
		engine:   eng,
		db:       db,
		parser:   extract.NewParser(),
		sessions: newSessionStore(cfg.SessionSecret),
		eventHub: NewEventHub(),
	}

	h.eventHub.Start()
	h.eventHub.SetupEngineListeners(eng)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	// SSE (no auth — scan station screens)
	r.Get("/events", h.eventHub.HandleSSE)

	// Login/logout
	r.Post("/api/login", h.apiLogin)
	r.Post("/api/logout", h.apiLogout)

	// Scan-station API (no auth)
	r.Get("/api/lines", h.apiListLines)
	r.Post("/api/scan", h.apiScan)
	r.Post("/api/ingest", h.apiIngest)
	r.Post("/api/upload", h.apiUpload)
	r.Post("/api/confirm-extra", h.apiConfirmExtra)
	r.Get("/api/pending-skus/{contact}", h.apiPendingSKUs)
	r.Get("/api/sku-contact/{sku}", h.apiSKUContact)
	r.Get("/api/lock", h.apiLock)

	// Admin API
	r.Group(func(r chi.Router) {
		r.Use(h.adminMiddleware)
		r.Post("/api/assign", h.apiBulkAssign)
		r.Post("/api/reload-masters", h.apiReloadMasters)
		r.Get("/api/export.csv", h.apiExportCSV)
		r.Get("/api/scan-events", h.apiScanEvents)
		r.Post("/api/password", h.apiChangePassword)
	})

	return r, func() {
		h.eventHub.Stop()
	}
}

func (h *Handlers) adminMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, ok := h.sessions.getUser(r)
		if !ok || username == "" {
			writeError(w, http.StatusUnauthorized, "login required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
