package features

import (
	"context"
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keystone-iam/keystone/internal/shared"
)

type mockRepo struct {
	feats  map[string]Feature
	nextID int64
}

func newMockRepo() *mockRepo {
	return &mockRepo{feats: make(map[string]Feature), nextID: 1}
}

func (m *mockRepo) List(ctx context.Context) ([]Feature, error) {
	out := make([]Feature, 0, len(m.feats))
	for _, f := range m.feats {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *mockRepo) Count(ctx context.Context) (int64, error) {
	return int64(len(m.feats)), nil
}

func (m *mockRepo) FindByIDs(ctx context.Context, ids []int64) ([]Feature, error) {
	var out []Feature
	for _, f := range m.feats {
		for _, id := range ids {
			if f.ID == id {
				out = append(out, f)
			}
		}
	}
	return out, nil
}

func (m *mockRepo) FindByName(ctx context.Context, name string) (*Feature, error) {
	f, ok := m.feats[name]
	if !ok {
		return nil, fmt.Errorf("features: %q: %w", name, shared.ErrNotFound)
	}
	return &f, nil
}

func (m *mockRepo) InsertBatch(ctx context.Context, feats []Feature) error {
	for _, f := range feats {
		if _, exists := m.feats[f.Name]; exists {
			continue
		}
		f.ID = m.nextID
		m.nextID++
		m.feats[f.Name] = f
	}
	return nil
}

func (m *mockRepo) Ensure(ctx context.Context, name, description string) (*Feature, error) {
	f, exists := m.feats[name]
	if exists {
		f.Description = description
	} else {
		f = Feature{ID: m.nextID, Name: name, Description: description}
		m.nextID++
	}
	m.feats[name] = f
	return &f, nil
}

func TestSeedPopulatesEmptyCatalog(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	require.NoError(t, svc.Seed(ctx))

	feats, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, feats, SeedCount)
	assert.Equal(t, "feature_1", feats[0].Name)
	assert.Equal(t, "feature_10", feats[1].Name)
}

func TestSeedIdempotent(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	require.NoError(t, svc.Seed(ctx))
	require.NoError(t, svc.Seed(ctx))

	feats, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, feats, SeedCount, "re-seeding must not duplicate the catalog")
}

func TestSeedLeavesExistingCatalogAlone(t *testing.T) {
	repo := newMockRepo()
	_, err := repo.Ensure(context.Background(), "custom_feature", "hand seeded")
	require.NoError(t, err)

	svc := NewService(repo, nil)
	require.NoError(t, svc.Seed(context.Background()))

	feats, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, feats, 1, "a non-empty catalog is never re-seeded")
}
