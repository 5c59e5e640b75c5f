// Package service contains application services for authentication and the game economy.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/and161185/arcadia/internal/audit"
	pkgcrypto "github.com/and161185/arcadia/internal/crypto"
	"github.com/and161185/arcadia/internal/errs"
	"github.com/and161185/arcadia/internal/limiter"
	"github.com/and161185/arcadia/internal/metrics"
	"github.com/and161185/arcadia/internal/model"
	"github.com/and161185/arcadia/internal/repository"
	"github.com/and161185/arcadia/internal/token"
	"github.com/and161185/arcadia/internal/validate"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
)

// DefaultStartingTokens is the balance granted on registration.
const DefaultStartingTokens = 100

// AuthService defines registration, login and credential management.
type AuthService interface {
	// Register validates input, creates an account with the starting balance and returns it.
	Register(ctx context.Context, email, username, password string) (*model.Account, error)
	// Authenticate checks credentials under rate limiting and issues a session token.
	Authenticate(ctx context.Context, email, password string) (*model.Account, string, error)
	// ChangePassword replaces the password after verifying the current one.
	ChangePassword(ctx context.Context, accountID uuid.UUID, oldPassword, newPassword string) error
	// ValidateSession verifies a token and loads its active account.
	ValidateSession(ctx context.Context, tok string) (*model.Account, error)
	// Logout records the end of a session. The token itself stays valid until expiry.
	Logout(ctx context.Context, tok string) error
}

type AuthServiceImpl struct {
	store          repository.Store
	tokens         *token.Service
	lim            limiter.Limiter
	audit          *audit.Sink
	startingTokens int64
	now            func() time.Time
	log            *zap.Logger
}

var _ AuthService = (*AuthServiceImpl)(nil)

// NewAuthService constructs AuthService with required dependencies.
func NewAuthService(store repository.Store, tokens *token.Service, lim limiter.Limiter, sink *audit.Sink, startingTokens int64, opts ...Option) *AuthServiceImpl {
	o := buildOptions(opts)
	if startingTokens < 0 {
		startingTokens = 0
	}
	return &AuthServiceImpl{
		store:          store,
		tokens:         tokens,
		lim:            lim,
		audit:          sink,
		startingTokens: startingTokens,
		now:            o.now,
		log:            o.log.Named("auth"),
	}
}

func normalizeEmail(email string) string { return strings.ToLower(strings.TrimSpace(email)) }

// Register creates a new account; the first violated input rule is reported.
func (s *AuthServiceImpl) Register(ctx context.Context, email, username, password string) (*model.Account, error) {
	email = normalizeEmail(email)
	username = strings.TrimSpace(username)
	if !validate.Email(email) {
		return nil, errs.Validation("invalid email format")
	}
	if ok, reason := validate.Username(username); !ok {
		return nil, errs.Validation(reason)
	}
	if ok, reason := validate.PasswordStrength(password); !ok {
		return nil, errs.Validation(reason)
	}

	allowed, err := s.lim.Allow(ctx, email)
	if err != nil {
		return nil, errs.Persistence(fmt.Errorf("rate limiter: %w", err))
	}
	if !allowed {
		metrics.AuthAttempts.WithLabelValues("register", metrics.OutcomeRateLimited).Inc()
		s.audit.Emit(ctx, audit.Warning(audit.RegistrationRateLimited, model.ResourceAuthentication, nil,
			map[string]any{"email": email}))
		return nil, errs.ErrRateLimited
	}

	hash, err := pkgcrypto.HashPassword(password)
	if err != nil {
		return nil, err
	}
	uid, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	now := s.now()
	acc := &model.Account{
		ID:           uid,
		Email:        email,
		Username:     username,
		PasswordHash: hash,
		Tokens:       s.startingTokens,
		Active:       true,
		CreatedAt:    now,
	}

	err = s.store.Tx.InTransaction(ctx, func(ctx context.Context) error {
		if err := s.store.Accounts.Create(ctx, acc); err != nil {
			return err
		}
		if acc.Tokens > 0 {
			if err := appendLedger(ctx, s.store.Ledger, acc.ID, model.KindSignupGrant, acc.Tokens, nil, "Welcome bonus", now); err != nil {
				return err
			}
		}
		return s.audit.Record(ctx, audit.Info(audit.UserRegistered, model.ResourceAuthentication, &acc.ID,
			map[string]any{"email": email, "username": username}))
	})
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("register", metrics.OutcomeFailure).Inc()
		if errors.Is(err, errs.ErrAlreadyExists) {
			s.audit.Emit(ctx, audit.Warning(audit.RegistrationFailed, model.ResourceAuthentication, nil,
				map[string]any{"email": email, "username": username, "reason": err.Error()}))
			if ferr := s.lim.Failure(ctx, email); ferr != nil {
				s.log.Warn("record limiter failure", zap.Error(ferr))
			}
			return nil, err
		}
		s.audit.Emit(ctx, audit.Error(audit.RegistrationError, model.ResourceAuthentication, nil,
			map[string]any{"email": email, "error": err.Error()}))
		return nil, errs.Persistence(err)
	}

	// Success: reset counters (best-effort).
	_ = s.lim.Success(ctx, email)
	metrics.AuthAttempts.WithLabelValues("register", metrics.OutcomeSuccess).Inc()
	s.log.Info("account registered", zap.String("account_id", acc.ID.String()))
	return acc, nil
}

var (
	dummyOnce sync.Once
	dummyHash string
)

// equalizeTiming burns one verification so a missing account costs the same as a wrong password.
func equalizeTiming(password string) {
	dummyOnce.Do(func() {
		dummyHash, _ = pkgcrypto.HashPassword("arcadia-timing-equalizer")
	})
	_ = pkgcrypto.VerifyPassword(password, dummyHash)
}

// Authenticate checks credentials with rate limiting by email.
func (s *AuthServiceImpl) Authenticate(ctx context.Context, email, password string) (*model.Account, string, error) {
	email = normalizeEmail(email)
	if !validate.Email(email) {
		return nil, "", errs.Validation("invalid email format")
	}

	allowed, err := s.lim.Allow(ctx, email)
	if err != nil {
		return nil, "", errs.Persistence(fmt.Errorf("rate limiter: %w", err))
	}
	if !allowed {
		metrics.AuthAttempts.WithLabelValues("login", metrics.OutcomeRateLimited).Inc()
		s.audit.Emit(ctx, audit.Warning(audit.LoginRateLimited, model.ResourceAuthentication, nil,
			map[string]any{"email": email}))
		return nil, "", errs.ErrRateLimited
	}

	acc, err := s.store.Accounts.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, errs.ErrNotFound) {
		return nil, "", errs.Persistence(err)
	}
	if acc == nil || !acc.Active {
		equalizeTiming(password)
		s.loginFailed(ctx, email, nil, audit.LoginFailedUserNotFound)
		return nil, "", errs.ErrInvalidCredentials
	}
	if !pkgcrypto.VerifyPassword(password, acc.PasswordHash) {
		s.loginFailed(ctx, email, &acc.ID, audit.LoginFailedWrongPassword)
		return nil, "", errs.ErrInvalidCredentials
	}

	tok, claims, err := s.tokens.Issue(acc.ID, acc.Username)
	if err != nil {
		return nil, "", fmt.Errorf("issue token: %w", err)
	}
	now := s.now()
	err = s.store.Tx.InTransaction(ctx, func(ctx context.Context) error {
		if err := s.store.Accounts.TouchLastLogin(ctx, acc.ID, now); err != nil {
			return err
		}
		return s.audit.Record(ctx, audit.Info(audit.LoginSuccess, model.ResourceAuthentication, &acc.ID,
			map[string]any{"email": email, "token_id": claims.TokenID}))
	})
	if err != nil {
		s.log.Error("record login", zap.String("account_id", acc.ID.String()), zap.Error(err))
		metrics.AuthAttempts.WithLabelValues("login", metrics.OutcomeError).Inc()
		s.audit.Emit(ctx, audit.Error(audit.LoginError, model.ResourceAuthentication, &acc.ID,
			map[string]any{"email": email, "error": err.Error()}))
		return nil, "", errs.Persistence(err)
	}
	acc.LastLoginAt = &now

	// Success: reset counters (best-effort).
	_ = s.lim.Success(ctx, email)
	metrics.AuthAttempts.WithLabelValues("login", metrics.OutcomeSuccess).Inc()
	return acc, tok, nil
}

func (s *AuthServiceImpl) loginFailed(ctx context.Context, email string, accountID *uuid.UUID, action string) {
	metrics.AuthAttempts.WithLabelValues("login", metrics.OutcomeFailure).Inc()
	if err := s.lim.Failure(ctx, email); err != nil {
		s.log.Warn("record limiter failure", zap.Error(err))
	}
	s.audit.Emit(ctx, audit.Warning(action, model.ResourceAuthentication, accountID,
		map[string]any{"email": email}))
}

// ChangePassword verifies the current password and stores a new hash.
func (s *AuthServiceImpl) ChangePassword(ctx context.Context, accountID uuid.UUID, oldPassword, newPassword string) error {
	if ok, reason := validate.PasswordStrength(newPassword); !ok {
		return errs.Validation(reason)
	}
	acc, err := s.store.Accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return errs.ErrAccountNotFound
		}
		return errs.Persistence(err)
	}
	if !acc.Active {
		return errs.ErrAccountNotFound
	}
	if !pkgcrypto.VerifyPassword(oldPassword, acc.PasswordHash) {
		s.audit.Emit(ctx, audit.Warning(audit.PasswordChangeFailed, model.ResourceAuthentication, &acc.ID,
			map[string]any{"reason": "wrong current password"}))
		return errs.ErrWrongPassword
	}

	hash, err := pkgcrypto.HashPassword(newPassword)
	if err != nil {
		return err
	}
	err = s.store.Tx.InTransaction(ctx, func(ctx context.Context) error {
		if err := s.store.Accounts.UpdatePassword(ctx, acc.ID, hash); err != nil {
			return err
		}
		return s.audit.Record(ctx, audit.Info(audit.PasswordChanged, model.ResourceAuthentication, &acc.ID, nil))
	})
	if err != nil {
		s.audit.Emit(ctx, audit.Error(audit.PasswordChangeFailed, model.ResourceAuthentication, &acc.ID,
			map[string]any{"error": err.Error()}))
		return errs.Persistence(err)
	}
	return nil
}

// ValidateSession verifies the token and returns its active account.
func (s *AuthServiceImpl) ValidateSession(ctx context.Context, tok string) (*model.Account, error) {
	claims, err := s.tokens.Verify(tok)
	if err != nil {
		return nil, err
	}
	acc, err := s.store.Accounts.GetByID(ctx, claims.AccountID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, errs.ErrInvalidCredentials
		}
		return nil, errs.Persistence(err)
	}
	if !acc.Active {
		return nil, errs.ErrInvalidCredentials
	}
	return acc, nil
}

// Logout audits the end of a session.
func (s *AuthServiceImpl) Logout(ctx context.Context, tok string) error {
	claims, err := s.tokens.Verify(tok)
	if err != nil {
		return err
	}
	return s.audit.Record(ctx, audit.Info(audit.Logout, model.ResourceAuthentication, &claims.AccountID,
		map[string]any{"token_id": claims.TokenID}))
}
