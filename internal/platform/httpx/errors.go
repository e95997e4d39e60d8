// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/stocklane/stocklane/internal/shared"
)

// Stable error codes surfaced to API clients.
const (
	CodeInsufficientStock = "InsufficientStock"
	CodeInvalidTransition = "InvalidTransition"
	CodeImmutableState    = "ImmutableState"
	CodeConflict          = "Conflict"
	CodeNotFound          = "NotFound"
	CodeForbidden         = "Forbidden"
	CodeValidation        = "Validation"
	CodeInternal          = "Internal"
)

// RespondError maps taxonomy errors to HTTP responses. Defensive invariant
// violations (InvalidState, InvalidQuantity, NestedTransaction) are internal
// bugs and deliberately surface as a generic failure.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrInsufficientStock):
		detail := ProblemDetail{
			Title:  "Insufficient Stock",
			Status: http.StatusConflict,
			Code:   CodeInsufficientStock,
			Detail: err.Error(),
		}
		var stockErr *shared.InsufficientStockError
		if errors.As(err, &stockErr) {
			detail.Available = &stockErr.Available
		}
		JSON(w, http.StatusConflict, detail)
	case errors.Is(err, shared.ErrInvalidTransition):
		Problem(w, http.StatusBadRequest, "Invalid Transition", CodeInvalidTransition, err.Error())
	case errors.Is(err, shared.ErrImmutableState):
		Problem(w, http.StatusConflict, "Immutable", CodeImmutableState, err.Error())
	case errors.Is(err, shared.ErrConflict):
		Problem(w, http.StatusConflict, "Conflict", CodeConflict, "concurrent write detected, retry the request")
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", CodeNotFound, err.Error())
	case errors.Is(err, shared.ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", CodeForbidden, err.Error())
	case errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", CodeValidation, err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", CodeInternal, "")
	}
}
