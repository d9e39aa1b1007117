package shared

import "context"

// Principal describes the authenticated actor attached to a request.
// Role is loaded from the credential store at token verification time, not
// read from claims, so role changes take effect on the next request.
type Principal struct {
	UserID string
	Email  string
	Role   string
}

type principalContextKey struct{}

// ContextWithPrincipal stores the principal in context.
func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal from context, nil when absent.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalContextKey{}).(*Principal)
	return p
}
