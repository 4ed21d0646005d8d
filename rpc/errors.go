package rpc

import (
	"encoding/json"
	"errors"
	"net/http"

	"matchpay/native/escrow"
	"matchpay/native/match"
	"matchpay/native/params"
	"matchpay/native/registry"
)

type errorResponse struct {
	Error string `json:"error"`
}

// statusForError maps settlement error kinds onto HTTP status codes. The
// error text itself is surfaced unchanged; composite operations already
// propagate inner kinds untouched.
func statusForError(err error) int {
	switch {
	case errors.Is(err, escrow.ErrNotFound),
		errors.Is(err, match.ErrProposalNotFound),
		errors.Is(err, match.ErrMatchNotFound),
		errors.Is(err, match.ErrRequestNotFound),
		errors.Is(err, match.ErrProviderNotFound),
		errors.Is(err, registry.ErrRequestNotFound),
		errors.Is(err, registry.ErrProviderNotFound):
		return http.StatusNotFound
	case errors.Is(err, escrow.ErrNotAuthorized),
		errors.Is(err, match.ErrNotAuthorized),
		errors.Is(err, params.ErrNotAuthorized):
		return http.StatusForbidden
	case errors.Is(err, match.ErrProposalExpired):
		return http.StatusGone
	case errors.Is(err, escrow.ErrCapacityExceeded),
		errors.Is(err, match.ErrCapacityExceeded),
		errors.Is(err, escrow.ErrDuplicateRequest),
		errors.Is(err, escrow.ErrDisputeInProgress),
		errors.Is(err, escrow.ErrInvalidStatus),
		errors.Is(err, match.ErrUpdateNotAllowed),
		errors.Is(err, match.ErrRequestNotOpen),
		errors.Is(err, escrow.ErrInsufficientBalance):
		return http.StatusConflict
	case errors.Is(err, match.ErrReputationTooLow),
		errors.Is(err, match.ErrTagOverlapTooLow),
		errors.Is(err, match.ErrNoProviders),
		errors.Is(err, match.ErrNoEligibleProviders):
		return http.StatusUnprocessableEntity
	case errors.Is(err, escrow.ErrInvalidAmount),
		errors.Is(err, escrow.ErrInvalidCurrency),
		errors.Is(err, match.ErrInvalidUrgency),
		errors.Is(err, match.ErrInvalidStatus),
		errors.Is(err, match.ErrInvalidProposedAmount),
		errors.Is(err, params.ErrInvalidValue),
		errors.Is(err, registry.ErrInvalidScore):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusForError(err), errorResponse{Error: err.Error()})
}

func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
