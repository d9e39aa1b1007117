package features

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/keystone-iam/keystone/internal/shared"
)

// Repository provides PostgreSQL backed persistence for the feature catalog.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// List returns all features ordered by name.
func (r *Repository) List(ctx context.Context) ([]Feature, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, description, created_at FROM features ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanFeatures(rows)
}

// Count reports how many features exist.
func (r *Repository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM features`).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// FindByIDs fetches features for the given ids in a single batch call.
func (r *Repository) FindByIDs(ctx context.Context, ids []int64) ([]Feature, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT id, name, description, created_at FROM features WHERE id = ANY($1) ORDER BY name`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanFeatures(rows)
}

// FindByName fetches a single feature by its unique slug.
func (r *Repository) FindByName(ctx context.Context, name string) (*Feature, error) {
	var f Feature
	err := r.pool.QueryRow(ctx, `SELECT id, name, description, created_at FROM features WHERE name = $1`, name).
		Scan(&f.ID, &f.Name, &f.Description, &f.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("features: %q: %w", name, shared.ErrNotFound)
		}
		return nil, err
	}
	return &f, nil
}

// InsertBatch inserts the given features in one transaction.
func (r *Repository) InsertBatch(ctx context.Context, feats []Feature) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	for _, f := range feats {
		if _, err := tx.Exec(ctx,
			`INSERT INTO features (name, description) VALUES ($1, $2) ON CONFLICT (name) DO NOTHING`,
			f.Name, f.Description); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// Ensure upserts a feature by name, the only write allowed after bootstrap.
func (r *Repository) Ensure(ctx context.Context, name, description string) (*Feature, error) {
	var f Feature
	err := r.pool.QueryRow(ctx,
		`INSERT INTO features (name, description) VALUES ($1, $2)
		 ON CONFLICT (name) DO UPDATE SET description = EXCLUDED.description
		 RETURNING id, name, description, created_at`,
		name, description).
		Scan(&f.ID, &f.Name, &f.Description, &f.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func scanFeatures(rows pgx.Rows) ([]Feature, error) {
	var feats []Feature
	for rows.Next() {
		var f Feature
		if err := rows.Scan(&f.ID, &f.Name, &f.Description, &f.CreatedAt); err != nil {
			return nil, err
		}
		feats = append(feats, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return feats, nil
}
