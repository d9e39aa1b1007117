package roles

import "time"

// Canonical role names. The registry never holds anything else.
const (
	RoleSuperAdmin = "super_admin"
	RoleAdmin      = "admin"
	RoleEmployee   = "employee"
	RoleUser       = "user"
)

// Role groups an ordered set of feature grants under a unique name.
type Role struct {
	ID          int64
	Name        string
	Description string
	Features    []FeatureRef
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// FeatureRef points at a catalog entry. Name is empty when the reference
// was loaded without materializing the feature (the cache stores ids only);
// the resolver batch-fetches names for such refs.
type FeatureRef struct {
	ID   int64
	Name string
}

// Materialized reports whether the ref carries its feature name.
func (f FeatureRef) Materialized() bool {
	return f.Name != ""
}

// KnownRole reports whether name is one of the canonical roles.
func KnownRole(name string) bool {
	switch name {
	case RoleSuperAdmin, RoleAdmin, RoleEmployee, RoleUser:
		return true
	}
	return false
}
