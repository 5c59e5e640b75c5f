package limiter

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PG is a PostgreSQL-backed limiter storing one row per identifier in auth_limiter.
type PG struct {
	pool   pgxQuerier
	policy Policy
	now    func() time.Time
}

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPG constructs a PostgreSQL-backed limiter.
func NewPG(pool *pgxpool.Pool, p Policy) *PG {
	return NewPGWithQuerier(pool, p, nil)
}

// NewPGWithQuerier constructs a PostgreSQL-backed limiter over any querier. A nil clock means time.Now.
func NewPGWithQuerier(q pgxQuerier, p Policy, now func() time.Time) *PG {
	if now == nil {
		now = time.Now
	}
	return &PG{pool: q, policy: p.normalized(), now: now}
}

// Allow reports whether id is currently allowed; an elapsed window deletes the row.
func (l *PG) Allow(ctx context.Context, id string) (bool, error) {
	const q = `SELECT fail_count, last_failure FROM auth_limiter WHERE identifier=$1`
	var count int
	var last time.Time
	err := l.pool.QueryRow(ctx, q, id).Scan(&count, &last)
	switch {
	case err == nil:
		now := l.now()
		if now.Sub(last) >= l.policy.Window {
			return true, l.Success(ctx, id)
		}
		return !l.policy.locked(count, last, now), nil
	case errors.Is(err, pgx.ErrNoRows):
		return true, nil
	default:
		return false, err
	}
}

// Success deletes the row for id.
func (l *PG) Success(ctx context.Context, id string) error {
	const q = `DELETE FROM auth_limiter WHERE identifier=$1`
	_, err := l.pool.Exec(ctx, q, id)
	return err
}

// Failure records a failed attempt, restarting the count when the previous one is stale.
func (l *PG) Failure(ctx context.Context, id string) error {
	const q = `
INSERT INTO auth_limiter (identifier, fail_count, last_failure)
VALUES ($1, 1, $2)
ON CONFLICT (identifier) DO UPDATE
SET
  fail_count = CASE WHEN $2 - auth_limiter.last_failure >= $3::interval THEN 1 ELSE auth_limiter.fail_count + 1 END,
  last_failure = $2`
	_, err := l.pool.Exec(ctx, q, id, l.now(), l.policy.Window)
	return err
}
