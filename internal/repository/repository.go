// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"
	"time"

	"github.com/and161185/arcadia/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/shopspring/decimal"
)

// Transactor runs fn as one unit of work. Repositories called with the ctx
// passed to fn participate in it; a non-nil error from fn rolls everything back.
type Transactor interface {
	InTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// AccountRepository stores player and creator accounts.
type AccountRepository interface {
	// Create inserts a new account; duplicates map to errs.ErrDuplicateEmail or errs.ErrDuplicateUsername.
	Create(ctx context.Context, a *model.Account) error
	// GetByID loads an account by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Account, error)
	// GetByEmail loads an account by email.
	GetByEmail(ctx context.Context, email string) (*model.Account, error)
	// GetForUpdate loads an account and locks it for the rest of the unit of work.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*model.Account, error)
	// AdjustTokens adds delta to the balance and returns the new balance.
	AdjustTokens(ctx context.Context, id uuid.UUID, delta int64) (int64, error)
	// UpdatePassword replaces the stored hash.
	UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error
	// TouchLastLogin stamps the last successful login.
	TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
}

// GameRepository stores the game catalog.
type GameRepository interface {
	// Create inserts a catalog entry.
	Create(ctx context.Context, g *model.Game) error
	// GetByID loads a game by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Game, error)
	// GetForUpdate loads a game and locks it for the rest of the unit of work.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*model.Game, error)
	// ListActive returns active games ordered by title.
	ListActive(ctx context.Context) ([]model.Game, error)
	// IncrementPlayCount adds one play.
	IncrementPlayCount(ctx context.Context, id uuid.UUID) error
	// AddCreatorRevenue adds amount to the game's cumulative creator revenue.
	AddCreatorRevenue(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error
	// RaiseHighScore sets the high score when score is strictly greater and reports whether it did.
	RaiseHighScore(ctx context.Context, id uuid.UUID, score int64) (bool, error)
	// CreatorTotals aggregates games created by an account.
	CreatorTotals(ctx context.Context, creatorID uuid.UUID) (model.CreatorTotals, error)
}

// SessionRepository stores game sessions.
type SessionRepository interface {
	// Create inserts an open session.
	Create(ctx context.Context, s *model.GameSession) error
	// GetOpenForUpdate loads and locks an open session; closed or missing sessions are errs.ErrSessionNotFound.
	GetOpenForUpdate(ctx context.Context, id uuid.UUID) (*model.GameSession, error)
	// Close persists the result of a session and marks it closed.
	Close(ctx context.Context, s *model.GameSession) error
	// CountByAccount counts all sessions of an account.
	CountByAccount(ctx context.Context, accountID uuid.UUID) (int64, error)
	// Totals aggregates an account's sessions.
	Totals(ctx context.Context, accountID uuid.UUID) (model.SessionTotals, error)
	// BestScores returns the best closed-session score per game for an account.
	BestScores(ctx context.Context, accountID uuid.UUID) ([]model.GameBest, error)
	// Leaderboard returns top closed sessions by score, optionally for one game.
	Leaderboard(ctx context.Context, gameID *uuid.UUID, limit int) ([]model.LeaderboardEntry, error)
}

// LedgerRepository stores the append-only token ledger.
type LedgerRepository interface {
	// Append inserts a transaction.
	Append(ctx context.Context, t *model.Transaction) error
	// ListByAccount returns the newest transactions first.
	ListByAccount(ctx context.Context, accountID uuid.UUID, limit int) ([]model.Transaction, error)
	// SumTokenDelta returns the sum of all token deltas of an account.
	SumTokenDelta(ctx context.Context, accountID uuid.UUID) (int64, error)
}

// AchievementRepository stores granted achievements.
type AchievementRepository interface {
	// Grant inserts the achievement unless the account already holds its kind; it reports whether it inserted.
	Grant(ctx context.Context, a *model.Achievement) (bool, error)
	// ListByAccount returns an account's achievements, oldest first.
	ListByAccount(ctx context.Context, accountID uuid.UUID) ([]model.Achievement, error)
}

// AuditRepository stores audit events.
type AuditRepository interface {
	// Append inserts an event.
	Append(ctx context.Context, e *model.AuditEvent) error
	// ListRecent returns the newest events first.
	ListRecent(ctx context.Context, limit int) ([]model.AuditEvent, error)
	// PurgeInfoBefore deletes INFO events older than before and returns how many were removed.
	PurgeInfoBefore(ctx context.Context, before time.Time) (int64, error)
	// CountBySeverity counts events created at or after since, by severity.
	CountBySeverity(ctx context.Context, since time.Time) (map[model.Severity]int64, error)
}

// Store groups the repositories of one backend with its transactor.
type Store struct {
	Tx           Transactor
	Accounts     AccountRepository
	Games        GameRepository
	Sessions     SessionRepository
	Ledger       LedgerRepository
	Achievements AchievementRepository
	Audit        AuditRepository
}
