// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Sentinel errors for the transport layer.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrDuplicate    = errors.New("duplicate request")
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("unauthorized")
)

// RespondError maps ledger and transport errors to RFC7807 responses.
func RespondError(w http.ResponseWriter, err error) {
	switch shared.KindOf(err) {
	case shared.KindValidation:
		ProblemWithErrors(w, http.StatusBadRequest, "Validation Failed", shared.MessagesOf(err))
		return
	case shared.KindState:
		ProblemWithErrors(w, http.StatusConflict, "Invalid State", shared.MessagesOf(err))
		return
	case shared.KindPrecondition:
		ProblemWithErrors(w, http.StatusUnprocessableEntity, "Precondition Failed", shared.MessagesOf(err))
		return
	case shared.KindNotFound:
		ProblemWithErrors(w, http.StatusNotFound, "Not Found", shared.MessagesOf(err))
		return
	}
	switch {
	case errors.Is(err, shared.ErrNotConfigured):
		Problem(w, http.StatusServiceUnavailable, "Not Configured", err.Error())
	case errors.Is(err, ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicate):
		Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrUnauthorized):
		Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
