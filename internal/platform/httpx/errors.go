// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/freightdesk/freightdesk/internal/access"
)

// RespondError maps access domain errors to HTTP responses using RFC7807.
// Integrity errors are deliberately opaque: operators get logs, callers get
// a bare 500.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, access.ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, access.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, access.ErrCycle):
		Problem(w, http.StatusConflict, "Hierarchy Cycle", err.Error())
	case errors.Is(err, access.ErrConflict):
		Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, access.ErrDuplicate):
		Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, access.ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
