package roles

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keystone-iam/keystone/internal/features"
	"github.com/keystone-iam/keystone/internal/shared"
)

type mockRepo struct {
	roles   map[string]*Role
	catalog *mockCatalog
	upserts int
}

func newMockRepo(catalog *mockCatalog) *mockRepo {
	return &mockRepo{roles: make(map[string]*Role), catalog: catalog}
}

func (m *mockRepo) GetByName(ctx context.Context, name string) (*Role, error) {
	role, ok := m.roles[name]
	if !ok {
		return nil, fmt.Errorf("roles: %q: %w", name, shared.ErrNotFound)
	}
	return role, nil
}

func (m *mockRepo) List(ctx context.Context) ([]Role, error) {
	out := make([]Role, 0, len(m.roles))
	for _, r := range m.roles {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *mockRepo) Upsert(ctx context.Context, name, description string, featureIDs []int64) error {
	m.upserts++
	refs := make([]FeatureRef, 0, len(featureIDs))
	for _, id := range featureIDs {
		refs = append(refs, FeatureRef{ID: id, Name: m.catalog.nameOf(id)})
	}
	existing, ok := m.roles[name]
	if !ok {
		m.roles[name] = &Role{ID: int64(len(m.roles) + 1), Name: name, Description: description, Features: refs}
		return nil
	}
	existing.Description = description
	existing.Features = refs
	return nil
}

type mockCatalog struct {
	feats []features.Feature
}

func newMockCatalog(count int) *mockCatalog {
	c := &mockCatalog{}
	for i := 1; i <= count; i++ {
		c.feats = append(c.feats, features.Feature{ID: int64(i), Name: fmt.Sprintf("feature_%d", i)})
	}
	return c
}

func (c *mockCatalog) List(ctx context.Context) ([]features.Feature, error) {
	out := make([]features.Feature, len(c.feats))
	copy(out, c.feats)
	return out, nil
}

func (c *mockCatalog) FindByIDs(ctx context.Context, ids []int64) ([]features.Feature, error) {
	var out []features.Feature
	for _, f := range c.feats {
		for _, id := range ids {
			if f.ID == id {
				out = append(out, f)
			}
		}
	}
	return out, nil
}

func (c *mockCatalog) nameOf(id int64) string {
	for _, f := range c.feats {
		if f.ID == id {
			return f.Name
		}
	}
	return ""
}

func newTestService(t *testing.T, catalog *mockCatalog) (*Service, *mockRepo) {
	t.Helper()
	repo := newMockRepo(catalog)
	return NewService(repo, catalog, nil, nil), repo
}

func TestSeedPolicySupersetChain(t *testing.T) {
	catalog := newMockCatalog(10)
	svc, _ := newTestService(t, catalog)
	ctx := context.Background()

	require.NoError(t, svc.SeedPolicy(ctx))

	resolved := make(map[string][]string)
	for _, name := range []string{RoleSuperAdmin, RoleAdmin, RoleEmployee, RoleUser} {
		feats, err := svc.ResolveFeatures(ctx, name)
		require.NoError(t, err)
		resolved[name] = feats
	}

	assert.Len(t, resolved[RoleSuperAdmin], 10)
	assert.Len(t, resolved[RoleAdmin], 8)
	assert.Len(t, resolved[RoleEmployee], 4)
	assert.Len(t, resolved[RoleUser], 1)
	assert.Equal(t, []string{"feature_1"}, resolved[RoleUser])

	assert.Subset(t, resolved[RoleSuperAdmin], resolved[RoleAdmin])
	assert.Subset(t, resolved[RoleAdmin], resolved[RoleEmployee])
	assert.Subset(t, resolved[RoleEmployee], resolved[RoleUser])
}

func TestSeedPolicyIdempotent(t *testing.T) {
	catalog := newMockCatalog(10)
	svc, repo := newTestService(t, catalog)
	ctx := context.Background()

	require.NoError(t, svc.SeedPolicy(ctx))
	require.NoError(t, svc.SeedPolicy(ctx))

	assert.Len(t, repo.roles, 4, "re-seeding must upsert, not duplicate")
	assert.Equal(t, 8, repo.upserts)
}

func TestSeedPolicySkipsEmptyCatalog(t *testing.T) {
	catalog := newMockCatalog(0)
	svc, repo := newTestService(t, catalog)

	require.NoError(t, svc.SeedPolicy(context.Background()))
	assert.Empty(t, repo.roles, "seeding with an empty catalog must be a silent no-op")
}

func TestResolveFeaturesSortedAndDeduplicated(t *testing.T) {
	catalog := newMockCatalog(10)
	repo := newMockRepo(catalog)
	svc := NewService(repo, catalog, nil, nil)

	repo.roles["admin"] = &Role{
		ID:   1,
		Name: "admin",
		Features: []FeatureRef{
			{ID: 3, Name: "feature_3"},
			{ID: 1, Name: "feature_1"},
			{ID: 3, Name: "feature_3"},
			{ID: 2, Name: "feature_2"},
		},
	}

	feats, err := svc.ResolveFeatures(context.Background(), "admin")
	require.NoError(t, err)
	assert.Equal(t, []string{"feature_1", "feature_2", "feature_3"}, feats)
	assert.True(t, sort.StringsAreSorted(feats))
}

func TestResolveFeaturesMixedRepresentation(t *testing.T) {
	catalog := newMockCatalog(10)
	repo := newMockRepo(catalog)
	svc := NewService(repo, catalog, nil, nil)

	// Some refs materialized, some bare ids: the bare ones must be
	// batch-fetched, never dropped.
	repo.roles["employee"] = &Role{
		ID:   1,
		Name: "employee",
		Features: []FeatureRef{
			{ID: 4, Name: "feature_4"},
			{ID: 2},
			{ID: 1, Name: "feature_1"},
			{ID: 3},
		},
	}

	feats, err := svc.ResolveFeatures(context.Background(), "employee")
	require.NoError(t, err)
	assert.Equal(t, []string{"feature_1", "feature_2", "feature_3", "feature_4"}, feats)
}

func TestResolveFeaturesUnknownRole(t *testing.T) {
	catalog := newMockCatalog(10)
	svc, _ := newTestService(t, catalog)

	feats, err := svc.ResolveFeatures(context.Background(), "ghost")
	require.NoError(t, err, "an unknown role grants nothing but is not an error")
	assert.Empty(t, feats)
}

func TestResolveFeaturesEmptyGrant(t *testing.T) {
	catalog := newMockCatalog(10)
	repo := newMockRepo(catalog)
	svc := NewService(repo, catalog, nil, nil)
	repo.roles["user"] = &Role{ID: 1, Name: "user"}

	feats, err := svc.ResolveFeatures(context.Background(), "user")
	require.NoError(t, err)
	assert.Empty(t, feats)
}

func TestResolveFeaturesCacheHitYieldsBareRefs(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewCache(client, time.Minute)

	catalog := newMockCatalog(10)
	repo := newMockRepo(catalog)
	svc := NewService(repo, catalog, cache, nil)
	ctx := context.Background()

	repo.roles["admin"] = &Role{
		ID:   1,
		Name: "admin",
		Features: []FeatureRef{
			{ID: 1, Name: "feature_1"},
			{ID: 2, Name: "feature_2"},
		},
	}

	first, err := svc.ResolveFeatures(ctx, "admin")
	require.NoError(t, err)

	// Second resolve hits the cache, which stores ids only; the resolver
	// must materialize them through the catalog and produce the same set.
	delete(repo.roles, "admin")
	second, err := svc.ResolveFeatures(ctx, "admin")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
