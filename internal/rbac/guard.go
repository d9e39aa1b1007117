package rbac

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/keystone-iam/keystone/internal/platform/httpx"
	"github.com/keystone-iam/keystone/internal/shared"
)

// FeatureResolver resolves a role name into its granted feature names.
// Called fresh on every decision so capability changes apply immediately.
type FeatureResolver interface {
	ResolveFeatures(ctx context.Context, roleName string) ([]string, error)
}

// DecisionObserver counts allow/deny outcomes per operation.
type DecisionObserver interface {
	ObserveAuthzDecision(operation, outcome string)
}

// Guard is the single generic authorization function consulted by every
// protected operation. Denials are deliberately uniform: callers cannot
// tell a role failure from a feature failure.
type Guard struct {
	Policy   Policy
	Resolver FeatureResolver
	Logger   *slog.Logger
	Metrics  DecisionObserver
}

// Check authorizes the principal in ctx against the operation's
// requirement. No principal is a hard deny even for empty requirements.
func (g Guard) Check(ctx context.Context, operation string) error {
	principal := shared.PrincipalFromContext(ctx)
	if principal == nil {
		g.observe(operation, "unauthenticated")
		return fmt.Errorf("no principal: %w", shared.ErrUnauthorized)
	}
	req := g.Policy.Lookup(operation)
	if err := g.Authorize(ctx, principal, req); err != nil {
		g.observe(operation, "deny")
		return err
	}
	g.observe(operation, "allow")
	return nil
}

// Require wraps Check as middleware for routes with a fixed operation id.
func (g Guard) Require(operation string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := g.Check(r.Context(), operation); err != nil {
				httpx.RespondError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Authorize applies the role check and the feature check. The role check
// passes on an empty required set or membership. The feature check is
// ALL-of: every required feature must be granted to the principal's role.
func (g Guard) Authorize(ctx context.Context, principal *shared.Principal, req Requirement) error {
	if principal == nil {
		return fmt.Errorf("no principal: %w", shared.ErrUnauthorized)
	}
	if !roleAllowed(principal.Role, normalize(req.Roles)) {
		return shared.ErrForbidden
	}

	requiredFeatures := normalize(req.Features)
	if len(requiredFeatures) == 0 {
		return nil
	}
	granted, err := g.Resolver.ResolveFeatures(ctx, principal.Role)
	if err != nil {
		if g.Logger != nil {
			g.Logger.Error("resolve features", slog.String("role", principal.Role), slog.Any("error", err))
		}
		return err
	}
	if !hasAllFeatures(granted, requiredFeatures) {
		return shared.ErrForbidden
	}
	return nil
}

func (g Guard) observe(operation, outcome string) {
	if g.Metrics != nil {
		g.Metrics.ObserveAuthzDecision(operation, outcome)
	}
}

func roleAllowed(role string, required []string) bool {
	if len(required) == 0 {
		return true
	}
	for _, r := range required {
		if r == role {
			return true
		}
	}
	return false
}

func hasAllFeatures(granted, required []string) bool {
	set := make(map[string]struct{}, len(granted))
	for _, f := range granted {
		set[f] = struct{}{}
	}
	for _, f := range required {
		if _, ok := set[f]; !ok {
			return false
		}
	}
	return true
}
