package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/atmx/fund-ledger/internal/metrics"
	"github.com/atmx/fund-ledger/internal/model"
)

// errorResponse is the JSON body of every failed request.
type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Retryable bool   `json:"retryable,omitempty"`
}

// statusFor maps a ledger error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrInsufficientShare),
		errors.Is(err, model.ErrInsufficientSupply),
		errors.Is(err, model.ErrInsufficientDeposit),
		errors.Is(err, model.ErrInsufficientPayment),
		errors.Is(err, model.ErrOverdraft):
		return http.StatusUnprocessableEntity
	case errors.Is(err, model.ErrNotAuthorized):
		return http.StatusForbidden
	case errors.Is(err, model.ErrAlreadyCompleted),
		errors.Is(err, model.ErrAlreadyResolved),
		errors.Is(err, model.ErrExpired),
		errors.Is(err, model.ErrTooEarly),
		errors.Is(err, model.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeCommandError records a rejected command and writes its error.
func writeCommandError(w http.ResponseWriter, operation string, err error) {
	metrics.RecordFailure(operation, err)
	writeLedgerError(w, err)
}

// writeLedgerError writes err with the status and code of its category.
// Errors outside the taxonomy are logged and reported without detail.
func writeLedgerError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	resp := errorResponse{Error: err.Error(), Code: model.Code(err)}
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "err", err)
		resp.Error = "internal error"
	}
	if errors.Is(err, model.ErrConflict) {
		resp.Retryable = true
	}
	writeJSON(w, status, resp)
}

// writeError writes a JSON error response for failures detected by the
// handler itself.
func writeError(w http.ResponseWriter, message, code string, status int) {
	writeJSON(w, status, errorResponse{Error: message, Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
