package rbac

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keystone-iam/keystone/internal/shared"
)

type staticResolver struct {
	grants map[string][]string
}

func (r *staticResolver) ResolveFeatures(ctx context.Context, roleName string) ([]string, error) {
	return r.grants[roleName], nil
}

func grantedFeatures(n int) []string {
	out := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, fmt.Sprintf("feature_%d", i))
	}
	return out
}

func newTestGuard(policy Policy) Guard {
	return Guard{
		Policy: policy,
		Resolver: &staticResolver{grants: map[string][]string{
			"super_admin": grantedFeatures(10),
			"admin":       grantedFeatures(8),
			"employee":    grantedFeatures(4),
			"user":        grantedFeatures(1),
		}},
	}
}

func ctxWithRole(role string) context.Context {
	return shared.ContextWithPrincipal(context.Background(), &shared.Principal{
		UserID: "u-1",
		Email:  "ada@example.com",
		Role:   role,
	})
}

func TestCheckRejectsMissingPrincipal(t *testing.T) {
	guard := newTestGuard(Policy{})

	err := guard.Check(context.Background(), "anything")
	assert.ErrorIs(t, err, shared.ErrUnauthorized,
		"no principal is a hard deny even for empty requirements")
}

func TestCheckEmptyRequirementAllowsAnyPrincipal(t *testing.T) {
	guard := newTestGuard(Policy{})

	assert.NoError(t, guard.Check(ctxWithRole("user"), "unknown.operation"))
}

func TestCheckRoleMembership(t *testing.T) {
	guard := newTestGuard(Policy{
		"roles.list": {Roles: []string{"super_admin", "admin"}},
	})

	assert.NoError(t, guard.Check(ctxWithRole("admin"), "roles.list"))
	assert.NoError(t, guard.Check(ctxWithRole("super_admin"), "roles.list"))

	err := guard.Check(ctxWithRole("employee"), "roles.list")
	assert.ErrorIs(t, err, shared.ErrForbidden)
}

func TestCheckFeatureAllOf(t *testing.T) {
	guard := newTestGuard(Policy{
		"reports.export": {Features: []string{"feature_3", "feature_5"}},
	})

	// employee holds feature_1..4: one of the two required is missing.
	err := guard.Check(ctxWithRole("employee"), "reports.export")
	assert.ErrorIs(t, err, shared.ErrForbidden, "a partial grant is a denial")

	// admin holds feature_1..8: both present.
	assert.NoError(t, guard.Check(ctxWithRole("admin"), "reports.export"))
}

func TestCheckCombinedRoleAndFeature(t *testing.T) {
	guard := newTestGuard(Policy{
		"billing.close": {Roles: []string{"admin"}, Features: []string{"feature_2"}},
	})

	assert.NoError(t, guard.Check(ctxWithRole("admin"), "billing.close"))

	// super_admin has the feature but not the role.
	err := guard.Check(ctxWithRole("super_admin"), "billing.close")
	assert.ErrorIs(t, err, shared.ErrForbidden, "both checks must pass when both are set")
}

func TestDenialsAreUniform(t *testing.T) {
	guard := newTestGuard(Policy{
		"by.role":    {Roles: []string{"admin"}},
		"by.feature": {Features: []string{"feature_9"}},
	})
	ctx := ctxWithRole("user")

	roleDenied := guard.Check(ctx, "by.role")
	featureDenied := guard.Check(ctx, "by.feature")

	require.Error(t, roleDenied)
	require.Error(t, featureDenied)
	assert.Equal(t, roleDenied.Error(), featureDenied.Error(),
		"a role denial and a feature denial must be indistinguishable")
}

func TestRequirementNormalization(t *testing.T) {
	guard := newTestGuard(Policy{
		"messy.op": {Roles: []string{" Admin ", "admin", ""}},
	})

	assert.NoError(t, guard.Check(ctxWithRole("admin"), "messy.op"))
}

func TestDefaultPolicyFeatureRoutes(t *testing.T) {
	guard := newTestGuard(DefaultPolicy())

	assert.NoError(t, guard.Check(ctxWithRole("user"), "features.feature_1"))
	assert.ErrorIs(t, guard.Check(ctxWithRole("user"), "features.feature_2"), shared.ErrForbidden)

	assert.NoError(t, guard.Check(ctxWithRole("employee"), "features.feature_4"))
	assert.ErrorIs(t, guard.Check(ctxWithRole("employee"), "features.feature_5"), shared.ErrForbidden)

	assert.NoError(t, guard.Check(ctxWithRole("super_admin"), "features.feature_10"))
}

func TestRequireMiddleware(t *testing.T) {
	guard := newTestGuard(Policy{
		"roles.list": {Roles: []string{"admin"}},
	})
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := guard.Require("roles.list")(next)

	t.Run("allowed", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/roles", nil).WithContext(ctxWithRole("admin"))
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("forbidden", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/roles", nil).WithContext(ctxWithRole("user"))
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("unauthenticated", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/roles", nil)
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
