package auth

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/keystone-iam/keystone/internal/shared"
	"github.com/keystone-iam/keystone/internal/users"
)

type mockUsers struct {
	byID map[uuid.UUID]*users.User
}

func newMockUsers() *mockUsers {
	return &mockUsers{byID: make(map[uuid.UUID]*users.User)}
}

func (m *mockUsers) add(t *testing.T, username, email, password, role string) *users.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	u := &users.User{
		ID:           uuid.New(),
		FirstName:    "Ada",
		LastName:     "Lovelace",
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
	}
	m.byID[u.ID] = u
	return u
}

func (m *mockUsers) Create(ctx context.Context, in users.SignupInput) (*users.User, error) {
	for _, u := range m.byID {
		if u.Username == in.Username {
			return nil, fmt.Errorf("username already exists: %w", shared.ErrConflict)
		}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.MinCost)
	if err != nil {
		return nil, err
	}
	u := &users.User{
		ID:           uuid.New(),
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: string(hash),
		Role:         in.Role,
	}
	m.byID[u.ID] = u
	return u, nil
}

func (m *mockUsers) Authenticate(ctx context.Context, usernameOrEmail, password string) (*users.User, error) {
	for _, u := range m.byID {
		if u.Username == usernameOrEmail || u.Email == usernameOrEmail {
			if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil {
				return u, nil
			}
			break
		}
	}
	return nil, shared.ErrInvalidCredentials
}

func (m *mockUsers) FindByID(ctx context.Context, id string) (*users.User, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("users: bad id: %w", shared.ErrNotFound)
	}
	u, ok := m.byID[uid]
	if !ok {
		return nil, fmt.Errorf("users: %s: %w", id, shared.ErrNotFound)
	}
	return u, nil
}

func (m *mockUsers) SetRefreshFingerprint(ctx context.Context, id uuid.UUID, fingerprint string) error {
	u, ok := m.byID[id]
	if !ok {
		return fmt.Errorf("users: %s: %w", id, shared.ErrNotFound)
	}
	u.RefreshTokenFingerprint = fingerprint
	return nil
}

func (m *mockUsers) ClearRefreshFingerprint(ctx context.Context, id uuid.UUID) error {
	return m.SetRefreshFingerprint(ctx, id, "")
}

type mockRegistry struct {
	grants map[string][]string
}

func (m *mockRegistry) ResolveFeatures(ctx context.Context, roleName string) ([]string, error) {
	return m.grants[roleName], nil
}

type mockRecorder struct {
	mu     sync.Mutex
	events []string
}

func (m *mockRecorder) Record(ctx context.Context, event, userID string, meta map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
}

func (m *mockRecorder) seen() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.events...)
}

func newAuthFixture() (*Service, *mockUsers, *TokenService, *mockRecorder) {
	store := newMockUsers()
	tokens := NewTokenService(testSecret, 15*time.Minute, 7*24*time.Hour)
	registry := &mockRegistry{grants: map[string][]string{
		"user":  {"feature_1"},
		"admin": {"feature_1", "feature_2"},
	}}
	recorder := &mockRecorder{}
	return NewService(store, registry, tokens, recorder, nil), store, tokens, recorder
}

func TestLoginOpensSession(t *testing.T) {
	svc, store, tokens, recorder := newAuthFixture()
	user := store.add(t, "ada_l", "ada@example.com", "s3cret-pass", "user")

	sess, err := svc.Login(context.Background(), "ada_l", "s3cret-pass")
	require.NoError(t, err)

	assert.Equal(t, user.ID.String(), sess.User.ID)
	assert.Equal(t, []string{"feature_1"}, sess.User.Features)
	assert.NotEmpty(t, sess.Tokens.AccessToken)
	assert.Equal(t, sess.Tokens.RefreshToken, user.RefreshTokenFingerprint,
		"the stored fingerprint must match the minted refresh token")

	claims, err := tokens.Verify(sess.Tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID.String(), claims.Subject)

	assert.Contains(t, recorder.seen(), "auth.login")
}

func TestLoginFailureIsGenericAndRecorded(t *testing.T) {
	svc, store, _, recorder := newAuthFixture()
	store.add(t, "ada_l", "ada@example.com", "s3cret-pass", "user")

	_, err := svc.Login(context.Background(), "ada_l", "wrong")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
	assert.Contains(t, recorder.seen(), "auth.login_failed")
}

func TestSignupOpensSession(t *testing.T) {
	svc, _, _, recorder := newAuthFixture()

	sess, err := svc.Signup(context.Background(), users.SignupInput{
		FirstName: "Ada", LastName: "Lovelace",
		Username: "ada_l", Email: "ada@example.com",
		Password: "s3cret-pass", PasswordConfirmation: "s3cret-pass",
		Role: "user",
	})
	require.NoError(t, err)
	assert.Equal(t, "user", sess.User.Role)
	assert.NotEmpty(t, sess.Tokens.RefreshToken)
	assert.Contains(t, recorder.seen(), "auth.signup")
}

func TestSignupDomainErrorPassesThrough(t *testing.T) {
	svc, store, _, _ := newAuthFixture()
	store.add(t, "ada_l", "ada@example.com", "s3cret-pass", "user")

	_, err := svc.Signup(context.Background(), users.SignupInput{
		Username: "ada_l", Email: "other@example.com",
		Password: "p", PasswordConfirmation: "p", Role: "user",
	})
	require.ErrorIs(t, err, shared.ErrConflict)
	assert.Contains(t, err.Error(), "username already exists")
}

func TestRefreshRotatesToken(t *testing.T) {
	svc, store, _, recorder := newAuthFixture()
	store.add(t, "ada_l", "ada@example.com", "s3cret-pass", "user")
	ctx := context.Background()

	first, err := svc.Login(ctx, "ada_l", "s3cret-pass")
	require.NoError(t, err)

	// jwt timestamps have second precision; a later IssuedAt makes the
	// rotated token distinct.
	time.Sleep(1100 * time.Millisecond)

	second, err := svc.Refresh(ctx, first.Tokens.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, first.Tokens.RefreshToken, second.Tokens.RefreshToken)

	// The spent token is single-use.
	_, err = svc.Refresh(ctx, first.Tokens.RefreshToken)
	require.ErrorIs(t, err, shared.ErrUnauthorized)

	// The rotated token still works.
	_, err = svc.Refresh(ctx, second.Tokens.RefreshToken)
	require.NoError(t, err)

	assert.Contains(t, recorder.seen(), "auth.refresh")
	assert.Contains(t, recorder.seen(), "auth.refresh_rejected")
}

func TestRefreshRejectsTokenAfterLogout(t *testing.T) {
	svc, store, _, recorder := newAuthFixture()
	user := store.add(t, "ada_l", "ada@example.com", "s3cret-pass", "user")
	ctx := context.Background()

	sess, err := svc.Login(ctx, "ada_l", "s3cret-pass")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, user.ID.String()))
	assert.Empty(t, user.RefreshTokenFingerprint)

	_, err = svc.Refresh(ctx, sess.Tokens.RefreshToken)
	require.ErrorIs(t, err, shared.ErrUnauthorized)
	assert.Contains(t, recorder.seen(), "auth.logout")
}

func TestRefreshRejectsUnknownSubject(t *testing.T) {
	svc, _, tokens, _ := newAuthFixture()

	pair, err := tokens.IssuePair(context.Background(), uuid.NewString(), "ghost@example.com")
	require.NoError(t, err)

	_, err = svc.Refresh(context.Background(), pair.RefreshToken)
	assert.ErrorIs(t, err, shared.ErrUnauthorized)
}

func TestGetProfileResolvesFeaturesFresh(t *testing.T) {
	svc, store, _, _ := newAuthFixture()
	user := store.add(t, "ada_l", "ada@example.com", "s3cret-pass", "admin")

	profile, err := svc.GetProfile(context.Background(), user.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "admin", profile.Role)
	assert.Equal(t, []string{"feature_1", "feature_2"}, profile.Features)
}
