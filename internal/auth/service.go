package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/keystone-iam/keystone/internal/shared"
	"github.com/keystone-iam/keystone/internal/users"
)

// UserPort is the slice of the credential store the auth flows consume.
type UserPort interface {
	Create(ctx context.Context, in users.SignupInput) (*users.User, error)
	Authenticate(ctx context.Context, usernameOrEmail, password string) (*users.User, error)
	FindByID(ctx context.Context, id string) (*users.User, error)
	SetRefreshFingerprint(ctx context.Context, id uuid.UUID, fingerprint string) error
	ClearRefreshFingerprint(ctx context.Context, id uuid.UUID) error
}

// RegistryPort resolves a role into its granted feature names.
type RegistryPort interface {
	ResolveFeatures(ctx context.Context, roleName string) ([]string, error)
}

// TokenPort mints and verifies token pairs.
type TokenPort interface {
	IssuePair(ctx context.Context, subjectID, email string) (TokenPair, error)
	Verify(tokenValue string) (*Claims, error)
}

// Recorder receives auth audit events. Implementations must be safe to
// call fire-and-forget; a nil Recorder disables auditing.
type Recorder interface {
	Record(ctx context.Context, event, userID string, meta map[string]any)
}

// Profile is the DTO returned to callers and the presentation layer. The
// feature list is advisory gating metadata, never a substitute for the
// server-side guard.
type Profile struct {
	ID          string          `json:"id"`
	FirstName   string          `json:"firstName"`
	LastName    string          `json:"lastName"`
	Username    string          `json:"username"`
	Email       string          `json:"email"`
	DateOfBirth *time.Time      `json:"dateOfBirth,omitempty"`
	PhoneNumber string          `json:"phoneNumber,omitempty"`
	Location    *users.Location `json:"location,omitempty"`
	Role        string          `json:"role"`
	Features    []string        `json:"features"`
}

// Session bundles a profile with a freshly minted token pair.
type Session struct {
	User   Profile
	Tokens TokenPair
}

// Service orchestrates signup, login, refresh, logout and profile reads.
type Service struct {
	users  UserPort
	roles  RegistryPort
	tokens TokenPort
	audit  Recorder
	logger *slog.Logger
}

// NewService constructs a Service. audit may be nil.
func NewService(users UserPort, roles RegistryPort, tokens TokenPort, audit Recorder, logger *slog.Logger) *Service {
	return &Service{users: users, roles: roles, tokens: tokens, audit: audit, logger: logger}
}

// Signup creates a user and opens a session. Store failures that are not
// already domain errors normalize to a generic conflict so storage
// internals never leak to the caller.
func (s *Service) Signup(ctx context.Context, in users.SignupInput) (*Session, error) {
	user, err := s.users.Create(ctx, in)
	if err != nil {
		if isDomainError(err) {
			return nil, err
		}
		if s.logger != nil {
			s.logger.Error("signup create user", slog.Any("error", err))
		}
		return nil, fmt.Errorf("failed to create user: %w", shared.ErrConflict)
	}
	sess, err := s.openSession(ctx, user)
	if err != nil {
		return nil, err
	}
	s.record(ctx, "auth.signup", user.ID.String(), map[string]any{"role": user.Role})
	return sess, nil
}

// Login authenticates credentials and opens a session.
func (s *Service) Login(ctx context.Context, usernameOrEmail, password string) (*Session, error) {
	user, err := s.users.Authenticate(ctx, usernameOrEmail, password)
	if err != nil {
		s.record(ctx, "auth.login_failed", "", nil)
		return nil, err
	}
	sess, err := s.openSession(ctx, user)
	if err != nil {
		return nil, err
	}
	s.record(ctx, "auth.login", user.ID.String(), nil)
	return sess, nil
}

// Refresh rotates the refresh token. The presented token must verify, its
// subject must exist, and it must exactly match the stored fingerprint.
// The fingerprint check is what makes rotation effective: a stolen,
// already-rotated token fails here even while unexpired.
//
// Two concurrent refreshes for one user race on the fingerprint write; the
// last write wins and the loser's new pair dies on its next use. That is
// the intended single-session-per-rotation behavior, not a bug.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	claims, err := s.tokens.Verify(refreshToken)
	if err != nil {
		return nil, err
	}
	user, err := s.users.FindByID(ctx, claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("refresh subject unknown: %w", shared.ErrUnauthorized)
	}
	if user.RefreshTokenFingerprint == "" || user.RefreshTokenFingerprint != refreshToken {
		s.record(ctx, "auth.refresh_rejected", user.ID.String(), nil)
		return nil, fmt.Errorf("invalid refresh token: %w", shared.ErrUnauthorized)
	}
	sess, err := s.openSession(ctx, user)
	if err != nil {
		return nil, err
	}
	s.record(ctx, "auth.refresh", user.ID.String(), nil)
	return sess, nil
}

// Logout revokes the active refresh token. Subsequent refreshes fail until
// the next login.
func (s *Service) Logout(ctx context.Context, userID string) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.users.ClearRefreshFingerprint(ctx, user.ID); err != nil {
		return err
	}
	s.record(ctx, "auth.logout", userID, nil)
	return nil
}

// GetProfile returns the profile DTO with freshly resolved features.
func (s *Service) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	profile, err := s.buildProfile(ctx, user)
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// openSession mints a pair and persists the refresh fingerprint. Both
// signing operations complete before the single atomic fingerprint write.
func (s *Service) openSession(ctx context.Context, user *users.User) (*Session, error) {
	pair, err := s.tokens.IssuePair(ctx, user.ID.String(), user.Email)
	if err != nil {
		return nil, err
	}
	if err := s.users.SetRefreshFingerprint(ctx, user.ID, pair.RefreshToken); err != nil {
		return nil, err
	}
	profile, err := s.buildProfile(ctx, user)
	if err != nil {
		return nil, err
	}
	return &Session{User: profile, Tokens: pair}, nil
}

func (s *Service) buildProfile(ctx context.Context, user *users.User) (Profile, error) {
	feats, err := s.roles.ResolveFeatures(ctx, user.Role)
	if err != nil {
		return Profile{}, err
	}
	return Profile{
		ID:          user.ID.String(),
		FirstName:   user.FirstName,
		LastName:    user.LastName,
		Username:    user.Username,
		Email:       user.Email,
		DateOfBirth: user.DateOfBirth,
		PhoneNumber: user.PhoneNumber,
		Location:    user.Location,
		Role:        user.Role,
		Features:    feats,
	}, nil
}

func (s *Service) record(ctx context.Context, event, userID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, event, userID, meta)
}

func isDomainError(err error) bool {
	return errors.Is(err, shared.ErrConflict) ||
		errors.Is(err, shared.ErrNotFound) ||
		errors.Is(err, shared.ErrValidation) ||
		errors.Is(err, shared.ErrUnauthorized)
}
