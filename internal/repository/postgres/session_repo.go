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

// SessionRepo implements SessionRepository using PostgreSQL.
type SessionRepo struct{ db *DB }

// NewSessionRepo constructs a game session repository.
func NewSessionRepo(db *DB) *SessionRepo { return &SessionRepo{db: db} }

// Create inserts an open session.
func (r *SessionRepo) Create(ctx context.Context, s *model.GameSession) error {
	const q = `
INSERT INTO game_sessions (id, account_id, game_id, tokens_charged, state, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.db.conn(ctx).Exec(ctx, q, s.ID, s.AccountID, s.GameID, s.TokensCharged, string(s.State), s.CreatedAt)
	return err
}

// GetOpenForUpdate selects and locks an open session.
func (r *SessionRepo) GetOpenForUpdate(ctx context.Context, id uuid.UUID) (*model.GameSession, error) {
	const q = `
SELECT id, account_id, game_id, tokens_charged, state, created_at
FROM game_sessions WHERE id=$1 AND state='open' FOR UPDATE`
	var s model.GameSession
	var state string
	err := r.db.conn(ctx).QueryRow(ctx, q, id).Scan(&s.ID, &s.AccountID, &s.GameID, &s.TokensCharged, &state, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrSessionNotFound
		}
		return nil, err
	}
	s.State = model.SessionState(state)
	return &s, nil
}

// Close stores the result and marks the session closed.
func (r *SessionRepo) Close(ctx context.Context, s *model.GameSession) error {
	const q = `
UPDATE game_sessions
SET score=$2, duration_seconds=$3, completed=$4, state='closed', closed_at=$5
WHERE id=$1 AND state='open'`
	tag, err := r.db.conn(ctx).Exec(ctx, q, s.ID, s.Score, s.DurationSeconds, s.Completed, s.ClosedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrSessionNotFound
	}
	return nil
}

// CountByAccount counts all sessions of an account.
func (r *SessionRepo) CountByAccount(ctx context.Context, accountID uuid.UUID) (int64, error) {
	const q = `SELECT count(*) FROM game_sessions WHERE account_id=$1`
	var n int64
	err := r.db.conn(ctx).QueryRow(ctx, q, accountID).Scan(&n)
	return n, err
}

// Totals aggregates an account's sessions.
func (r *SessionRepo) Totals(ctx context.Context, accountID uuid.UUID) (model.SessionTotals, error) {
	const q = `
SELECT count(*), count(*) FILTER (WHERE completed), COALESCE(sum(score), 0), COALESCE(sum(tokens_charged), 0)
FROM game_sessions WHERE account_id=$1`
	var t model.SessionTotals
	err := r.db.conn(ctx).QueryRow(ctx, q, accountID).Scan(&t.Sessions, &t.Completed, &t.TotalScore, &t.TokensSpent)
	return t, err
}

// BestScores returns the best closed-session score per game.
func (r *SessionRepo) BestScores(ctx context.Context, accountID uuid.UUID) ([]model.GameBest, error) {
	const q = `
SELECT g.id, g.title, max(s.score)
FROM game_sessions s JOIN games g ON g.id = s.game_id
WHERE s.account_id=$1 AND s.state='closed'
GROUP BY g.id, g.title
ORDER BY max(s.score) DESC, g.title`
	rows, err := r.db.conn(ctx).Query(ctx, q, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.GameBest
	for rows.Next() {
		var b model.GameBest
		if err := rows.Scan(&b.GameID, &b.GameTitle, &b.BestScore); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// Leaderboard returns top closed sessions ordered by score, ties by insertion order.
func (r *SessionRepo) Leaderboard(ctx context.Context, gameID *uuid.UUID, limit int) ([]model.LeaderboardEntry, error) {
	const q = `
SELECT a.username, s.score, g.title, s.created_at
FROM game_sessions s
JOIN accounts a ON a.id = s.account_id
JOIN games g ON g.id = s.game_id
WHERE s.state='closed' AND ($1::uuid IS NULL OR s.game_id = $1)
ORDER BY s.score DESC, s.seq ASC
LIMIT $2`
	rows, err := r.db.conn(ctx).Query(ctx, q, gameID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.LeaderboardEntry
	for rows.Next() {
		var e model.LeaderboardEntry
		var at time.Time
		if err := rows.Scan(&e.Username, &e.Score, &e.GameTitle, &at); err != nil {
			return nil, err
		}
		e.Rank = len(out) + 1
		e.Date = at.Format(time.DateOnly)
		out = append(out, e)
	}
	return out, rows.Err()
}
