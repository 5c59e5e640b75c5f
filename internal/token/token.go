// Package token issues and verifies signed session tokens.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/and161185/arcadia/internal/errs"
	"github.com/and161185/arcadia/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
)

// DefaultTTL is the session token lifetime.
const DefaultTTL = 24 * time.Hour

type sessionClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Service signs HS256 session tokens. It keeps no server-side state.
type Service struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewService constructs a token service. A nil clock means time.Now.
func NewService(secret []byte, ttl time.Duration, now func() time.Time) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Service{secret: secret, ttl: ttl, now: now}
}

// TTL returns the configured token lifetime.
func (s *Service) TTL() time.Duration { return s.ttl }

// Issue signs a token for the account with a fresh random token id.
func (s *Service) Issue(accountID uuid.UUID, username string) (string, model.Claims, error) {
	if len(s.secret) == 0 {
		return "", model.Claims{}, errors.New("token secret is empty")
	}
	jti, err := uuid.NewV4()
	if err != nil {
		return "", model.Claims{}, fmt.Errorf("generate token id: %w", err)
	}
	now := s.now().Truncate(time.Second)
	exp := now.Add(s.ttl)
	claims := sessionClaims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        jti.String(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", model.Claims{}, err
	}
	return signed, model.Claims{
		AccountID: accountID,
		Username:  username,
		IssuedAt:  now,
		ExpiresAt: exp,
		TokenID:   jti.String(),
	}, nil
}

// Verify checks signature, algorithm and expiry and returns the claims.
func (s *Service) Verify(tok string) (model.Claims, error) {
	var claims sessionClaims
	parsed, err := jwt.ParseWithClaims(tok, &claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return model.Claims{}, errs.ErrExpiredToken
		}
		return model.Claims{}, fmt.Errorf("%w: %v", errs.ErrMalformedToken, err)
	}
	if !parsed.Valid {
		return model.Claims{}, errs.ErrMalformedToken
	}

	id, err := uuid.FromString(claims.Subject)
	if err != nil || id == uuid.Nil {
		return model.Claims{}, fmt.Errorf("%w: bad subject", errs.ErrMalformedToken)
	}
	out := model.Claims{AccountID: id, Username: claims.Username, TokenID: claims.ID}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}
