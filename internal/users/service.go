package users

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/keystone-iam/keystone/internal/shared"
)

// RepositoryPort defines data access methods for user records.
type RepositoryPort interface {
	Create(ctx context.Context, u *User) error
	FindByUsernameOrEmail(ctx context.Context, usernameOrEmail string) (*User, error)
	FindByID(ctx context.Context, id uuid.UUID) (*User, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	UpdateRefreshFingerprint(ctx context.Context, id uuid.UUID, fingerprint string) error
}

// RegistryPort is the slice of the role registry signup depends on.
type RegistryPort interface {
	RoleExists(ctx context.Context, name string) (bool, error)
}

// SignupInput carries validated signup fields into the credential store.
type SignupInput struct {
	FirstName            string
	LastName             string
	Username             string
	Email                string
	Password             string
	PasswordConfirmation string
	Role                 string
	DateOfBirth          *time.Time
	PhoneNumber          string
	Location             *Location
}

// Service wraps credential-store business rules.
type Service struct {
	repo   RepositoryPort
	roles  RegistryPort
	logger *slog.Logger
}

// NewService constructs a Service.
func NewService(repo RepositoryPort, roles RegistryPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, roles: roles, logger: logger}
}

// Create validates signup input and persists a new user. Checks run before
// any write so a rejected signup leaves the store untouched: duplicate
// username, duplicate email and password mismatch are distinct conflicts,
// an unknown role is a distinct not-found.
func (s *Service) Create(ctx context.Context, in SignupInput) (*User, error) {
	taken, err := s.repo.ExistsByUsername(ctx, in.Username)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, fmt.Errorf("username already exists: %w", shared.ErrConflict)
	}

	taken, err = s.repo.ExistsByEmail(ctx, in.Email)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, fmt.Errorf("email already exists: %w", shared.ErrConflict)
	}

	if in.Password != in.PasswordConfirmation {
		return nil, fmt.Errorf("passwords do not match: %w", shared.ErrConflict)
	}

	known, err := s.roles.RoleExists(ctx, in.Role)
	if err != nil {
		return nil, err
	}
	if !known {
		return nil, fmt.Errorf("role %s not found: %w", in.Role, shared.ErrNotFound)
	}

	user := &User{
		ID:          uuid.New(),
		FirstName:   in.FirstName,
		LastName:    in.LastName,
		Username:    in.Username,
		Email:       in.Email,
		Role:        in.Role,
		DateOfBirth: in.DateOfBirth,
		PhoneNumber: in.PhoneNumber,
		Location:    in.Location,
	}
	if err := PrepareCredentials(user, in.Password, true); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}
	if s.logger != nil {
		s.logger.Info("user created", slog.String("user_id", user.ID.String()), slog.String("role", user.Role))
	}
	return user, nil
}

// Authenticate validates username-or-email plus password. Every failure
// collapses to the same generic error.
func (s *Service) Authenticate(ctx context.Context, usernameOrEmail, password string) (*User, error) {
	user, err := s.repo.FindByUsernameOrEmail(ctx, usernameOrEmail)
	if err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if !VerifyPassword(user, password) {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}

// FindByID fetches a user by id string.
func (s *Service) FindByID(ctx context.Context, id string) (*User, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("users: bad id: %w", shared.ErrNotFound)
	}
	return s.repo.FindByID(ctx, uid)
}

// SetRefreshFingerprint overwrites the stored refresh-token fingerprint,
// invalidating whatever token was active before.
func (s *Service) SetRefreshFingerprint(ctx context.Context, id uuid.UUID, fingerprint string) error {
	return s.repo.UpdateRefreshFingerprint(ctx, id, fingerprint)
}

// ClearRefreshFingerprint revokes the active refresh token.
func (s *Service) ClearRefreshFingerprint(ctx context.Context, id uuid.UUID) error {
	return s.repo.UpdateRefreshFingerprint(ctx, id, "")
}
