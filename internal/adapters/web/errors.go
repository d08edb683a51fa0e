package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"stockout-engine/internal/core"

	"go.uber.org/zap"
)

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
	Line      *int   `json:"line,omitempty"`
	Remaining *int64 `json:"remaining,omitempty"`
}

// writeError writes a structured JSON error response.
func writeError(w http.ResponseWriter, r *http.Request, message, code string, status int) {
	writeErrorResponse(w, r, errorResponse{Error: message, Code: code}, status)
}

func writeErrorResponse(w http.ResponseWriter, r *http.Request, resp errorResponse, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp.RequestID = requestIDFromContext(r.Context())
	_ = json.NewEncoder(w).Encode(resp)
}

// writeJSON writes a JSON response with status 200.
func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorCodes maps engine errors to API codes and statuses, most specific first.
var errorCodes = []struct {
	err    error
	code   string
	status int
}{
	{core.ErrConcurrentModification, "CONCURRENT_MODIFICATION", http.StatusConflict},
	{core.ErrLineOutOfRange, "BAD_REQUEST", http.StatusBadRequest},
	{core.ErrItemNotSelected, "ITEM_NOT_SELECTED", http.StatusUnprocessableEntity},
	{core.ErrInvalidQuantity, "INVALID_QUANTITY", http.StatusUnprocessableEntity},
	{core.ErrQuantityExceedsAvailable, "QUANTITY_EXCEEDS_AVAILABLE", http.StatusUnprocessableEntity},
	{core.ErrSerialCountMismatch, "SERIAL_COUNT_MISMATCH", http.StatusUnprocessableEntity},
	{core.ErrSerialNotAvailable, "SERIAL_NOT_AVAILABLE", http.StatusUnprocessableEntity},
	{core.ErrInsufficientStock, "INSUFFICIENT_STOCK", http.StatusConflict},
	{core.ErrRequestVoided, "REQUEST_VOIDED", http.StatusConflict},
	{core.ErrRequestNotFound, "REQUEST_NOT_FOUND", http.StatusNotFound},
	{core.ErrItemNotFound, "ITEM_NOT_FOUND", http.StatusNotFound},
	{core.ErrSerialNotFound, "SERIAL_NOT_FOUND", http.StatusNotFound},
}

// writeServiceError translates an ApplicationService error into an HTTP response.
// Unclassified errors are logged and reported as 500 without their details.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	for _, e := range errorCodes {
		if !errors.Is(err, e.err) {
			continue
		}
		resp := errorResponse{Error: err.Error(), Code: e.code}
		var lineErr *core.LineError
		if errors.As(err, &lineErr) {
			line := lineErr.LineIndex
			resp.Line = &line
			if errors.Is(err, core.ErrQuantityExceedsAvailable) {
				remaining := lineErr.Remaining
				resp.Remaining = &remaining
			}
		}
		writeErrorResponse(w, r, resp, e.status)
		return
	}

	h.log.Error("request failed",
		zap.String("request_id", requestIDFromContext(r.Context())),
		zap.String("path", r.URL.Path),
		zap.Error(err))
	writeError(w, r, "internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
}
