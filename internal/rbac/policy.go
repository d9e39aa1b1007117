package rbac

import (
	"fmt"
	"strings"
)

// Requirement declares the capabilities an operation demands. Empty role
// and feature sets mean the operation is open to any authenticated
// principal. Role and feature checks are orthogonal; when both are set,
// both must pass.
type Requirement struct {
	Roles    []string
	Features []string
}

// Empty reports whether the requirement demands nothing beyond
// authentication.
func (r Requirement) Empty() bool {
	return len(r.Roles) == 0 && len(r.Features) == 0
}

// Policy maps operation identifiers to requirements. It replaces per-route
// capability annotations with one declarative table consulted by the guard.
type Policy map[string]Requirement

// Lookup returns the requirement for an operation. Unknown operations
// demand nothing beyond authentication.
func (p Policy) Lookup(operation string) Requirement {
	if p == nil {
		return Requirement{}
	}
	return p[operation]
}

// normalize lowercases, trims and deduplicates a capability list.
func normalize(values []string) []string {
	unique := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(strings.ToLower(v))
		if v == "" {
			continue
		}
		if _, seen := unique[v]; seen {
			continue
		}
		unique[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// DefaultPolicy is the shipped operation table: each feature content route
// requires its own feature, and the registry listing is admin-only.
func DefaultPolicy() Policy {
	p := Policy{
		"roles.list": {Roles: []string{"super_admin", "admin"}},
	}
	for i := 1; i <= 10; i++ {
		name := fmt.Sprintf("feature_%d", i)
		p["features."+name] = Requirement{Features: []string{name}}
	}
	return p
}
