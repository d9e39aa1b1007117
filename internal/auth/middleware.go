package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/keystone-iam/keystone/internal/platform/httpx"
	"github.com/keystone-iam/keystone/internal/shared"
	"github.com/keystone-iam/keystone/internal/users"
)

// Verifier checks an access token and returns its claims.
type Verifier interface {
	Verify(tokenValue string) (*Claims, error)
}

// UserLoader loads the current user record for a verified subject.
type UserLoader interface {
	FindByID(ctx context.Context, id string) (*users.User, error)
}

// Middleware authenticates bearer requests and attaches the principal to
// the request context. The role comes from the live user record, not the
// claims, so a role change takes effect on the next request.
type Middleware struct {
	Tokens Verifier
	Users  UserLoader
	Logger *slog.Logger
}

// RequireAuthenticated rejects requests without a valid bearer token.
func (m Middleware) RequireAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, err := m.principal(r)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithPrincipal(r.Context(), principal)))
	})
}

func (m Middleware) principal(r *http.Request) (*shared.Principal, error) {
	raw := bearerToken(r)
	if raw == "" {
		return nil, fmt.Errorf("missing bearer token: %w", shared.ErrUnauthorized)
	}
	claims, err := m.Tokens.Verify(raw)
	if err != nil {
		return nil, err
	}
	user, err := m.Users.FindByID(r.Context(), claims.Subject)
	if err != nil {
		if m.Logger != nil {
			m.Logger.Warn("token subject not found", slog.String("subject", claims.Subject))
		}
		return nil, fmt.Errorf("unknown subject: %w", shared.ErrUnauthorized)
	}
	return &shared.Principal{
		UserID: user.ID.String(),
		Email:  user.Email,
		Role:   user.Role,
	}, nil
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
