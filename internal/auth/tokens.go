package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/errgroup"

	"github.com/keystone-iam/keystone/internal/shared"
)

// Claims is the single claim shape shared by access and refresh tokens.
// It carries identity only; capabilities are re-resolved per request from
// the role registry and never trusted from a token.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// TokenPair bundles the two tokens minted together on every issuance.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// TokenService signs and verifies bearer tokens. Both token kinds share
// the signing secret and claim shape; only the TTLs differ.
type TokenService struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokenService constructs a TokenService.
func NewTokenService(secret string, accessTTL, refreshTTL time.Duration) *TokenService {
	return &TokenService{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// IssuePair mints an access/refresh pair for the subject. The two signing
// operations have no ordering dependency and run concurrently; both must
// succeed before the pair is returned.
func (s *TokenService) IssuePair(ctx context.Context, subjectID, email string) (TokenPair, error) {
	var pair TokenPair
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		token, err := s.sign(subjectID, email, s.accessTTL)
		if err != nil {
			return err
		}
		pair.AccessToken = token
		return nil
	})
	g.Go(func() error {
		token, err := s.sign(subjectID, email, s.refreshTTL)
		if err != nil {
			return err
		}
		pair.RefreshToken = token
		return nil
	})
	if err := g.Wait(); err != nil {
		return TokenPair{}, fmt.Errorf("auth: issue token pair: %w", err)
	}
	return pair, nil
}

// Verify checks signature and expiry and returns the claims. All failures
// map to the unauthorized sentinel.
func (s *TokenService) Verify(tokenValue string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenValue, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("auth: verify token: %w", shared.ErrUnauthorized)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("auth: token missing subject: %w", shared.ErrUnauthorized)
	}
	return claims, nil
}

// AccessTTL exposes the configured access token lifetime.
func (s *TokenService) AccessTTL() time.Duration { return s.accessTTL }

// RefreshTTL exposes the configured refresh token lifetime.
func (s *TokenService) RefreshTTL() time.Duration { return s.refreshTTL }

func (s *TokenService) sign(subjectID, email string, ttl time.Duration) (string, error) {
	now := s.now()
	claims := Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}
