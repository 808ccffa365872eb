// Package token issues and verifies the signed access and refresh tokens.
//
// Both kinds share one HMAC secret. They are told apart by the "knd" claim,
// which VerifyKind enforces, so an access token can never be replayed
// against the refresh endpoint.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"go-realestate/internal/model"
)

type claims struct {
	Kind model.TokenKind `json:"knd"`
	jwt.RegisteredClaims
}

type Service struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

type Option func(*Service)

// WithClock replaces the wall clock used for both issuing and verifying.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func NewService(secret string, accessTTL time.Duration, refreshTTL time.Duration, opts ...Option) (*Service, error) {
	if secret == "" {
		return nil, errors.New("token signing secret is required")
	}
	if accessTTL <= 0 || refreshTTL <= 0 {
		return nil, errors.New("token TTLs must be positive")
	}

	s := &Service{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

func (s *Service) AccessTTL() time.Duration {
	return s.accessTTL
}

func (s *Service) IssueAccessToken(userID string) (string, error) {
	return s.issue(userID, model.TokenKindAccess, s.accessTTL)
}

func (s *Service) IssueRefreshToken(userID string) (string, error) {
	return s.issue(userID, model.TokenKindRefresh, s.refreshTTL)
}

// Verify checks signature and expiry only. Callers that know which kind they
// expect should use VerifyKind.
func (s *Service) Verify(tokenString string) (*model.AuthClaims, error) {
	if tokenString == "" {
		return nil, model.ErrMissingToken
	}

	parsed := &claims{}
	token, err := jwt.ParseWithClaims(tokenString, parsed, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidToken, err)
	}

	if parsed.Subject == "" || parsed.ExpiresAt == nil {
		return nil, fmt.Errorf("%w: missing subject or expiry", model.ErrInvalidToken)
	}

	out := &model.AuthClaims{
		UserID:    parsed.Subject,
		Kind:      parsed.Kind,
		TokenID:   parsed.ID,
		ExpiresAt: parsed.ExpiresAt.Time,
	}
	if parsed.IssuedAt != nil {
		out.IssuedAt = parsed.IssuedAt.Time
	}

	return out, nil
}

func (s *Service) VerifyKind(tokenString string, kind model.TokenKind) (*model.AuthClaims, error) {
	c, err := s.Verify(tokenString)
	if err != nil {
		return nil, err
	}
	if c.Kind != kind {
		return nil, fmt.Errorf("%w: expected %s token, got %q", model.ErrInvalidToken, kind, c.Kind)
	}

	return c, nil
}

func (s *Service) issue(userID string, kind model.TokenKind, ttl time.Duration) (string, error) {
	if userID == "" {
		return "", errors.New("token subject is required")
	}

	now := s.now().UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})

	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", kind, err)
	}

	return signed, nil
}
