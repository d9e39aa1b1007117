package users

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/keystone-iam/keystone/internal/shared"
)

const userColumns = `id, first_name, last_name, username, email, password_hash, role,
	COALESCE(refresh_token_fingerprint, ''), date_of_birth, COALESCE(phone_number, ''), location,
	created_at, updated_at, deleted_at`

// Repository provides PostgreSQL backed persistence for user records.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new user. Unique violations are normalized to conflict
// errors so a race past the service-level existence checks still surfaces
// as a duplicate rather than a storage internal.
func (r *Repository) Create(ctx context.Context, u *User) error {
	var loc []byte
	if u.Location != nil {
		var err error
		loc, err = json.Marshal(u.Location)
		if err != nil {
			return fmt.Errorf("users: marshal location: %w", err)
		}
	}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (id, first_name, last_name, username, email, password_hash, role,
		                    date_of_birth, phone_number, location)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING created_at, updated_at`,
		u.ID, u.FirstName, u.LastName, u.Username, u.Email, u.PasswordHash, u.Role,
		u.DateOfBirth, nullable(u.PhoneNumber), loc).
		Scan(&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("users: duplicate %s: %w", pgErr.ConstraintName, shared.ErrConflict)
		}
		return err
	}
	return nil
}

// FindByUsernameOrEmail matches either unique index with a single query.
func (r *Repository) FindByUsernameOrEmail(ctx context.Context, usernameOrEmail string) (*User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = $1 OR email = $1`, usernameOrEmail)
	return scanUser(row)
}

// FindByID fetches a user by primary key.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// ExistsByUsername reports whether a username is taken.
func (r *Repository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE username = $1)`, username)
}

// ExistsByEmail reports whether an email is taken.
func (r *Repository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE email = $1)`, email)
}

// UpdateRefreshFingerprint atomically overwrites the stored fingerprint.
// An empty fingerprint clears it (logout / revocation).
func (r *Repository) UpdateRefreshFingerprint(ctx context.Context, id uuid.UUID, fingerprint string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET refresh_token_fingerprint = $2, updated_at = now() WHERE id = $1`,
		id, nullable(fingerprint))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("users: %s: %w", id, shared.ErrNotFound)
	}
	return nil
}

func (r *Repository) exists(ctx context.Context, query, arg string) (bool, error) {
	var ok bool
	if err := r.pool.QueryRow(ctx, query, arg).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

func scanUser(row pgx.Row) (*User, error) {
	var (
		u   User
		loc []byte
	)
	err := row.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Username, &u.Email, &u.PasswordHash, &u.Role,
		&u.RefreshTokenFingerprint, &u.DateOfBirth, &u.PhoneNumber, &loc,
		&u.CreatedAt, &u.UpdatedAt, &u.DeletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("users: %w", shared.ErrNotFound)
		}
		return nil, err
	}
	if len(loc) > 0 {
		var l Location
		if err := json.Unmarshal(loc, &l); err == nil {
			u.Location = &l
		}
	}
	return &u, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
