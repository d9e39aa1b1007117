package roles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/keystone-iam/keystone/internal/features"
	"github.com/keystone-iam/keystone/internal/shared"
)

// RepositoryPort defines data access methods for the role registry.
type RepositoryPort interface {
	GetByName(ctx context.Context, name string) (*Role, error)
	List(ctx context.Context) ([]Role, error)
	Upsert(ctx context.Context, name, description string, featureIDs []int64) error
}

// CatalogPort is the slice of the feature catalog the registry consumes.
type CatalogPort interface {
	List(ctx context.Context) ([]features.Feature, error)
	FindByIDs(ctx context.Context, ids []int64) ([]features.Feature, error)
}

// Service resolves role names into feature grants and seeds the policy
// table. It is the only component allowed to interpret feature refs.
type Service struct {
	repo    RepositoryPort
	catalog CatalogPort
	cache   *Cache
	logger  *slog.Logger
}

// NewService builds a Service instance. cache may be nil.
func NewService(repo RepositoryPort, catalog CatalogPort, cache *Cache, logger *slog.Logger) *Service {
	return &Service{repo: repo, catalog: catalog, cache: cache, logger: logger}
}

// policyEntry pins a role to a deterministic slice of the sorted catalog.
type policyEntry struct {
	name        string
	description string
	sliceEnd    int
}

// seedPolicy is the fixed grant table: all 10, first 8, first 4, first 1 of
// the lexicographically sorted feature list.
var seedPolicy = []policyEntry{
	{name: RoleSuperAdmin, description: "Super Admin with all features", sliceEnd: 10},
	{name: RoleAdmin, description: "Admin with first 8 features", sliceEnd: 8},
	{name: RoleEmployee, description: "Employee with first 4 features", sliceEnd: 4},
	{name: RoleUser, description: "User with only feature_1", sliceEnd: 1},
}

// SeedPolicy recomputes every role's feature set from the catalog and
// upserts by name. Idempotent: repeat runs converge on the same four rows.
// An empty catalog is skipped silently; the next bootstrap pass picks it up.
func (s *Service) SeedPolicy(ctx context.Context) error {
	all, err := s.catalog.List(ctx)
	if err != nil {
		return fmt.Errorf("roles: list catalog: %w", err)
	}
	if len(all) == 0 {
		if s.logger != nil {
			s.logger.Debug("role seeding skipped, feature catalog empty")
		}
		return nil
	}

	sorted := make([]features.Feature, len(all))
	copy(sorted, all)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	names := make([]string, 0, len(seedPolicy))
	for _, entry := range seedPolicy {
		end := entry.sliceEnd
		if end > len(sorted) {
			end = len(sorted)
		}
		ids := make([]int64, 0, end)
		for _, f := range sorted[:end] {
			ids = append(ids, f.ID)
		}
		if err := s.repo.Upsert(ctx, entry.name, entry.description, ids); err != nil {
			return err
		}
		names = append(names, entry.name)
	}
	s.cache.Invalidate(ctx, names...)
	if s.logger != nil {
		s.logger.Info("seeded role policy", slog.Int("roles", len(seedPolicy)))
	}
	return nil
}

// ResolveFeatures returns the sorted, deduplicated feature names granted to
// a role. An unknown role or an empty grant yields an empty slice, not an
// error. Refs may arrive materialized (registry row) or as bare ids (cache
// hit); bare ids are completed in one batch catalog call so an unpopulated
// reference never silently drops a grant.
func (s *Service) ResolveFeatures(ctx context.Context, roleName string) ([]string, error) {
	refs, err := s.loadRefs(ctx, roleName)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return []string{}, nil
		}
		return nil, err
	}
	if len(refs) == 0 {
		return []string{}, nil
	}

	names := make([]string, 0, len(refs))
	var bare []int64
	for _, ref := range refs {
		if ref.Materialized() {
			names = append(names, ref.Name)
			continue
		}
		bare = append(bare, ref.ID)
	}
	if len(bare) > 0 {
		fetched, err := s.catalog.FindByIDs(ctx, bare)
		if err != nil {
			return nil, fmt.Errorf("roles: materialize refs: %w", err)
		}
		for _, f := range fetched {
			if f.Name != "" {
				names = append(names, f.Name)
			}
		}
	}

	sort.Strings(names)
	return dedupe(names), nil
}

// RoleExists reports whether a role name is registered. Non-canonical
// names skip the registry round trip.
func (s *Service) RoleExists(ctx context.Context, name string) (bool, error) {
	if !KnownRole(name) {
		return false, nil
	}
	_, err := s.repo.GetByName(ctx, name)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// List returns all roles with materialized feature refs.
func (s *Service) List(ctx context.Context) ([]Role, error) {
	return s.repo.List(ctx)
}

// loadRefs prefers the cache (id-only refs) and falls back to the registry
// row (materialized refs), priming the cache on the way out.
func (s *Service) loadRefs(ctx context.Context, roleName string) ([]FeatureRef, error) {
	if ids, ok := s.cache.Get(ctx, roleName); ok {
		refs := make([]FeatureRef, len(ids))
		for i, id := range ids {
			refs[i] = FeatureRef{ID: id}
		}
		return refs, nil
	}

	role, err := s.repo.GetByName(ctx, roleName)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, len(role.Features))
	for i, ref := range role.Features {
		ids[i] = ref.ID
	}
	if err := s.cache.Set(ctx, roleName, ids); err != nil && s.logger != nil {
		s.logger.Warn("prime role cache", slog.Any("error", err))
	}
	return role.Features, nil
}

func dedupe(sorted []string) []string {
	out := sorted[:0]
	for i, name := range sorted {
		if i > 0 && name == sorted[i-1] {
			continue
		}
		out = append(out, name)
	}
	return out
}
