package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"stockout-engine/internal/app"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Handler holds the ApplicationService and the chi router.
type Handler struct {
	svc    app.ApplicationService
	router chi.Router
	log    *zap.Logger
}

// NewHandler creates and wires the chi router with all routes.
func NewHandler(svc app.ApplicationService, allowedOrigins []string, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{svc: svc, log: logger}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logger(logger))
	r.Use(Recoverer(logger))
	r.Use(CORS(allowedOrigins))

	r.Get("/api/health", h.health)

	r.Group(func(r chi.Router) {
		r.Use(RequestBodyLimit(1 << 20)) // 1 MB

		// ── Outbound requests ─────────────────────────────────────────────────
		r.Post("/api/outbound/validate", h.apiValidateRequest)
		r.Post("/api/outbound/validate-line", h.apiValidateLine)
		r.Post("/api/outbound/plan", h.apiPlanLine)
		r.Post("/api/outbound", h.apiCreateRequest)
		r.Get("/api/outbound/{id}", h.apiGetRequest)
		r.Put("/api/outbound/{id}", h.apiEditRequest)
		r.Delete("/api/outbound/{id}", h.apiVoidRequest)

		// ── Stock ─────────────────────────────────────────────────────────────
		r.Get("/api/items/{id}/balances", h.apiListBalances)
		r.Get("/api/items/{id}/serials", h.apiAvailableSerials)

		// ── Serial reservations ───────────────────────────────────────────────
		r.Post("/api/serials/available", h.apiAvailableLineSerials)
		r.Post("/api/serials/reserve", h.apiReserveSerials)
		r.Post("/api/serials/release", h.apiReleaseSerials)
	})

	h.router = r
	return r
}

// health returns service status.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

// decodeJSON decodes the request body into v and returns false + writes an appropriate
// error response on failure. Returns HTTP 413 when the body exceeds the size limit set
// by RequestBodyLimit middleware; HTTP 400 for all other decode errors.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, r, "request body too large", "REQUEST_TOO_LARGE", http.StatusRequestEntityTooLarge)
			return false
		}
		writeError(w, r, "invalid JSON body: "+err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return false
	}
	return true
}

// queryQuantity parses the ?quantity= parameter. It writes a 400 and returns false
// when the value is missing or not an integer.
func queryQuantity(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := r.URL.Query().Get("quantity")
	qty, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeError(w, r, "quantity query parameter must be an integer", "BAD_REQUEST", http.StatusBadRequest)
		return 0, false
	}
	return qty, true
}
