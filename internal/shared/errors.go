package shared

import (
	"errors"
	"fmt"
)

// Domain error taxonomy. Services wrap these with context via %w and the
// httpx layer maps them onto problem responses.
var (
	// ErrValidation indicates malformed input surfaced verbatim to the caller.
	ErrValidation = errors.New("validation failed")
	// ErrConflict indicates a duplicate or contradictory write.
	ErrConflict = errors.New("conflict")
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized indicates a missing or unusable credential.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden indicates an authenticated caller failing a capability check.
	ErrForbidden = errors.New("forbidden")
)

// ErrInvalidCredentials is the single outcome for every credential failure.
// It never reveals whether the identifier or the password was wrong.
var ErrInvalidCredentials = fmt.Errorf("invalid credentials: %w", ErrUnauthorized)
