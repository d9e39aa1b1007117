package features

import (
	"context"
	"fmt"
	"log/slog"
)

// RepositoryPort defines data access methods for the feature catalog.
type RepositoryPort interface {
	List(ctx context.Context) ([]Feature, error)
	Count(ctx context.Context) (int64, error)
	FindByIDs(ctx context.Context, ids []int64) ([]Feature, error)
	FindByName(ctx context.Context, name string) (*Feature, error)
	InsertBatch(ctx context.Context, feats []Feature) error
	Ensure(ctx context.Context, name, description string) (*Feature, error)
}

// Service handles feature catalog business logic.
type Service struct {
	repo   RepositoryPort
	logger *slog.Logger
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Seed populates the catalog with feature_1..feature_10 when it is empty.
// Safe to call on every process start: a non-empty catalog is left alone.
func (s *Service) Seed(ctx context.Context) error {
	count, err := s.repo.Count(ctx)
	if err != nil {
		return fmt.Errorf("features: count: %w", err)
	}
	if count > 0 {
		return nil
	}
	feats := make([]Feature, 0, SeedCount)
	for i := 1; i <= SeedCount; i++ {
		feats = append(feats, Feature{
			Name:        fmt.Sprintf("feature_%d", i),
			Description: fmt.Sprintf("Feature %d description", i),
		})
	}
	if err := s.repo.InsertBatch(ctx, feats); err != nil {
		return fmt.Errorf("features: seed: %w", err)
	}
	if s.logger != nil {
		s.logger.Info("seeded feature catalog", slog.Int("count", SeedCount))
	}
	return nil
}

// List returns all features ordered by name.
func (s *Service) List(ctx context.Context) ([]Feature, error) {
	return s.repo.List(ctx)
}

// FindByIDs batch-fetches features by id.
func (s *Service) FindByIDs(ctx context.Context, ids []int64) ([]Feature, error) {
	return s.repo.FindByIDs(ctx, ids)
}

// Ensure performs an administrative upsert by name.
func (s *Service) Ensure(ctx context.Context, name, description string) (*Feature, error) {
	return s.repo.Ensure(ctx, name, description)
}
