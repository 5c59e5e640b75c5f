package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/and161185/arcadia/internal/errs"
	"github.com/and161185/arcadia/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// AccountRepo implements AccountRepository using PostgreSQL.
type AccountRepo struct{ db *DB }

// NewAccountRepo constructs an account repository.
func NewAccountRepo(db *DB) *AccountRepo { return &AccountRepo{db: db} }

const accountColumns = `id, email, username, password_hash, tokens, subscription_active, subscription_expires_at, active, created_at, last_login_at`

// Create inserts a new account row.
func (r *AccountRepo) Create(ctx context.Context, a *model.Account) error {
	const q = `
INSERT INTO accounts (id, email, username, password_hash, tokens, subscription_active, subscription_expires_at, active, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.db.conn(ctx).Exec(ctx, q,
		a.ID, a.Email, a.Username, a.PasswordHash, a.Tokens,
		a.SubscriptionActive, a.SubscriptionExpiresAt, a.Active, a.CreatedAt)
	if isUniqueViolation(err) {
		switch violatedConstraint(err) {
		case "accounts_username_key":
			return errs.ErrDuplicateUsername
		case "accounts_email_key":
			return errs.ErrDuplicateEmail
		}
		return errs.ErrAlreadyExists
	}
	return err
}

// GetByID selects an account by ID.
func (r *AccountRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	const q = `SELECT ` + accountColumns + ` FROM accounts WHERE id=$1`
	return scanAccount(r.db.conn(ctx).QueryRow(ctx, q, id))
}

// GetByEmail selects an account by email.
func (r *AccountRepo) GetByEmail(ctx context.Context, email string) (*model.Account, error) {
	const q = `SELECT ` + accountColumns + ` FROM accounts WHERE email=$1`
	return scanAccount(r.db.conn(ctx).QueryRow(ctx, q, email))
}

// GetForUpdate selects an account and locks its row.
func (r *AccountRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	const q = `SELECT ` + accountColumns + ` FROM accounts WHERE id=$1 FOR UPDATE`
	return scanAccount(r.db.conn(ctx).QueryRow(ctx, q, id))
}

// AdjustTokens applies a relative balance change; the tokens >= 0 check rejects overdrafts.
func (r *AccountRepo) AdjustTokens(ctx context.Context, id uuid.UUID, delta int64) (int64, error) {
	const q = `UPDATE accounts SET tokens = tokens + $2 WHERE id=$1 RETURNING tokens`
	var balance int64
	if err := r.db.conn(ctx).QueryRow(ctx, q, id, delta).Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, errs.ErrAccountNotFound
		}
		return 0, err
	}
	return balance, nil
}

// UpdatePassword replaces the password hash.
func (r *AccountRepo) UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error {
	const q = `UPDATE accounts SET password_hash=$2 WHERE id=$1`
	tag, err := r.db.conn(ctx).Exec(ctx, q, id, hash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrAccountNotFound
	}
	return nil
}

// TouchLastLogin stamps last_login_at.
func (r *AccountRepo) TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	const q = `UPDATE accounts SET last_login_at=$2 WHERE id=$1`
	_, err := r.db.conn(ctx).Exec(ctx, q, id, at)
	return err
}

func scanAccount(row pgx.Row) (*model.Account, error) {
	var a model.Account
	err := row.Scan(&a.ID, &a.Email, &a.Username, &a.PasswordHash, &a.Tokens,
		&a.SubscriptionActive, &a.SubscriptionExpiresAt, &a.Active, &a.CreatedAt, &a.LastLoginAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrAccountNotFound
		}
		return nil, err
	}
	return &a, nil
}
