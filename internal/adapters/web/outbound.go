package web

import (
	"net/http"

	"stockout-engine/internal/app"

	"github.com/go-chi/chi/v5"
)

// apiValidateRequest handles POST /api/outbound/validate.
func (h *Handler) apiValidateRequest(w http.ResponseWriter, r *http.Request) {
	var req app.SubmitRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	result, err := h.svc.ValidateRequest(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// apiValidateLine handles POST /api/outbound/validate-line.
func (h *Handler) apiValidateLine(w http.ResponseWriter, r *http.Request) {
	var req app.ValidateLineRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	result, err := h.svc.ValidateLine(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// apiPlanLine handles POST /api/outbound/plan.
func (h *Handler) apiPlanLine(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ItemID   string `json:"item_id"`
		Quantity int64  `json:"quantity"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	result, err := h.svc.PlanLine(r.Context(), body.ItemID, body.Quantity)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// apiCreateRequest handles POST /api/outbound.
func (h *Handler) apiCreateRequest(w http.ResponseWriter, r *http.Request) {
	var req app.SubmitRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ID != "" {
		writeError(w, r, "id must be empty when creating; use PUT /api/outbound/{id} to edit", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	result, err := h.svc.CommitRequest(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, result)
}

// apiEditRequest handles PUT /api/outbound/{id}.
func (h *Handler) apiEditRequest(w http.ResponseWriter, r *http.Request) {
	var req app.SubmitRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.ID = chi.URLParam(r, "id")
	result, err := h.svc.CommitRequest(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// apiVoidRequest handles DELETE /api/outbound/{id}.
func (h *Handler) apiVoidRequest(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.VoidRequest(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// apiGetRequest handles GET /api/outbound/{id}.
func (h *Handler) apiGetRequest(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.GetRequest(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// apiListBalances handles GET /api/items/{id}/balances.
func (h *Handler) apiListBalances(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.ListBalances(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// apiAvailableSerials handles GET /api/items/{id}/serials?quantity=N.
func (h *Handler) apiAvailableSerials(w http.ResponseWriter, r *http.Request) {
	qty, ok := queryQuantity(w, r)
	if !ok {
		return
	}
	result, err := h.svc.AvailableSerials(r.Context(), app.SingleLine(chi.URLParam(r, "id"), qty))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// apiAvailableLineSerials handles POST /api/serials/available, for a line of a draft.
func (h *Handler) apiAvailableLineSerials(w http.ResponseWriter, r *http.Request) {
	var req app.SerialLineRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	result, err := h.svc.AvailableSerials(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// apiReserveSerials handles POST /api/serials/reserve.
func (h *Handler) apiReserveSerials(w http.ResponseWriter, r *http.Request) {
	var req app.ReserveSerialsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	result, err := h.svc.ReserveSerials(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// apiReleaseSerials handles POST /api/serials/release.
func (h *Handler) apiReleaseSerials(w http.ResponseWriter, r *http.Request) {
	var req app.ReleaseSerialsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.HoldToken == "" {
		writeError(w, r, "hold_token is required", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	result, err := h.svc.ReleaseSerials(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}
