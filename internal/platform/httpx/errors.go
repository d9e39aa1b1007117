package httpx

import (
	"errors"
	"net/http"

	"github.com/keystone-iam/keystone/internal/shared"
)

// RespondError maps domain errors onto RFC7807 responses. Unrecognized
// errors collapse to an opaque 500 so storage internals never leak.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrConflict):
		Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrUnauthorized):
		Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
	case errors.Is(err, shared.ErrForbidden):
		// Never distinguishes role failure from feature failure.
		Problem(w, http.StatusForbidden, "Forbidden", "forbidden")
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
