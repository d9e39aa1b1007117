package roles

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/keystone-iam/keystone/internal/shared"
)

// Repository provides PostgreSQL backed persistence for the role registry.
// Feature grants live in a roles.feature_ids array so a role stays a single
// row, mirroring the single-document shape of the registry.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetByName fetches a role with its feature refs fully materialized.
func (r *Repository) GetByName(ctx context.Context, name string) (*Role, error) {
	var (
		role Role
		ids  []int64
	)
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, description, feature_ids, created_at, updated_at FROM roles WHERE name = $1`, name).
		Scan(&role.ID, &role.Name, &role.Description, &ids, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("roles: %q: %w", name, shared.ErrNotFound)
		}
		return nil, err
	}
	refs, err := r.materializeRefs(ctx, ids)
	if err != nil {
		return nil, err
	}
	role.Features = refs
	return &role, nil
}

// List returns all roles ordered by name, feature refs materialized.
func (r *Repository) List(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, description, feature_ids, created_at, updated_at FROM roles ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Role
	var idSets [][]int64
	for rows.Next() {
		var role Role
		var ids []int64
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &ids, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, role)
		idSets = append(idSets, ids)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		refs, err := r.materializeRefs(ctx, idSets[i])
		if err != nil {
			return nil, err
		}
		out[i].Features = refs
	}
	return out, nil
}

// Upsert inserts or replaces a role by name. The feature set is fully
// replaced, never merged.
func (r *Repository) Upsert(ctx context.Context, name, description string, featureIDs []int64) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO roles (name, description, feature_ids)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (name) DO UPDATE
		 SET description = EXCLUDED.description,
		     feature_ids = EXCLUDED.feature_ids,
		     updated_at  = now()`,
		name, description, featureIDs)
	if err != nil {
		return fmt.Errorf("roles: upsert %q: %w", name, err)
	}
	return nil
}

func (r *Repository) materializeRefs(ctx context.Context, ids []int64) ([]FeatureRef, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT id, name FROM features WHERE id = ANY($1) ORDER BY name`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var refs []FeatureRef
	for rows.Next() {
		var ref FeatureRef
		if err := rows.Scan(&ref.ID, &ref.Name); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return refs, nil
}
