package memory

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"time"

	"github.com/and161185/arcadia/internal/errs"
	"github.com/and161185/arcadia/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/shopspring/decimal"
)

// AccountRepo implements AccountRepository in memory.
type AccountRepo struct{ db *DB }

// Create inserts an account; email and username are unique.
func (r *AccountRepo) Create(ctx context.Context, a *model.Account) error {
	defer r.db.lock(ctx)()
	for _, ex := range r.db.st.accounts {
		if strings.EqualFold(ex.Email, a.Email) {
			return errs.ErrDuplicateEmail
		}
		if strings.EqualFold(ex.Username, a.Username) {
			return errs.ErrDuplicateUsername
		}
	}
	r.db.st.accounts[a.ID] = *a
	return nil
}

// GetByID loads an account.
func (r *AccountRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	defer r.db.lock(ctx)()
	a, ok := r.db.st.accounts[id]
	if !ok {
		return nil, errs.ErrAccountNotFound
	}
	return &a, nil
}

// GetByEmail loads an account by email.
func (r *AccountRepo) GetByEmail(ctx context.Context, email string) (*model.Account, error) {
	defer r.db.lock(ctx)()
	for _, a := range r.db.st.accounts {
		if strings.EqualFold(a.Email, email) {
			return &a, nil
		}
	}
	return nil, errs.ErrAccountNotFound
}

// GetForUpdate loads an account; the unit-of-work lock already excludes other writers.
func (r *AccountRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	return r.GetByID(ctx, id)
}

// AdjustTokens applies delta, refusing to go negative.
func (r *AccountRepo) AdjustTokens(ctx context.Context, id uuid.UUID, delta int64) (int64, error) {
	defer r.db.lock(ctx)()
	a, ok := r.db.st.accounts[id]
	if !ok {
		return 0, errs.ErrAccountNotFound
	}
	if a.Tokens+delta < 0 {
		return 0, errNegativeBalance
	}
	a.Tokens += delta
	r.db.st.accounts[id] = a
	return a.Tokens, nil
}

// UpdatePassword replaces the hash.
func (r *AccountRepo) UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error {
	defer r.db.lock(ctx)()
	a, ok := r.db.st.accounts[id]
	if !ok {
		return errs.ErrAccountNotFound
	}
	a.PasswordHash = hash
	r.db.st.accounts[id] = a
	return nil
}

// TouchLastLogin stamps the last login.
func (r *AccountRepo) TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	defer r.db.lock(ctx)()
	a, ok := r.db.st.accounts[id]
	if !ok {
		return errs.ErrAccountNotFound
	}
	a.LastLoginAt = &at
	r.db.st.accounts[id] = a
	return nil
}

// GameRepo implements GameRepository in memory.
type GameRepo struct{ db *DB }

// Create inserts a game.
func (r *GameRepo) Create(ctx context.Context, g *model.Game) error {
	defer r.db.lock(ctx)()
	if _, ok := r.db.st.games[g.ID]; ok {
		return errs.ErrAlreadyExists
	}
	r.db.st.games[g.ID] = *g
	return nil
}

// GetByID loads a game.
func (r *GameRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Game, error) {
	defer r.db.lock(ctx)()
	g, ok := r.db.st.games[id]
	if !ok {
		return nil, errs.ErrGameNotFound
	}
	return &g, nil
}

// GetForUpdate loads a game.
func (r *GameRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*model.Game, error) {
	return r.GetByID(ctx, id)
}

// ListActive returns active games ordered by title.
func (r *GameRepo) ListActive(ctx context.Context) ([]model.Game, error) {
	defer r.db.lock(ctx)()
	var out []model.Game
	for _, g := range r.db.st.games {
		if g.Active {
			out = append(out, g)
		}
	}
	slices.SortFunc(out, func(a, b model.Game) int {
		if c := cmp.Compare(a.Title, b.Title); c != 0 {
			return c
		}
		return cmp.Compare(a.ID.String(), b.ID.String())
	})
	return out, nil
}

// IncrementPlayCount adds one play.
func (r *GameRepo) IncrementPlayCount(ctx context.Context, id uuid.UUID) error {
	return r.update(ctx, id, func(g *model.Game) { g.PlayCount++ })
}

// AddCreatorRevenue adds to the cumulative revenue.
func (r *GameRepo) AddCreatorRevenue(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error {
	return r.update(ctx, id, func(g *model.Game) { g.CreatorRevenue = g.CreatorRevenue.Add(amount) })
}

// RaiseHighScore sets the high score when score is strictly greater.
func (r *GameRepo) RaiseHighScore(ctx context.Context, id uuid.UUID, score int64) (bool, error) {
	raised := false
	err := r.update(ctx, id, func(g *model.Game) {
		if score > g.HighScore {
			g.HighScore = score
			raised = true
		}
	})
	return raised, err
}

// CreatorTotals aggregates games created by an account.
func (r *GameRepo) CreatorTotals(ctx context.Context, creatorID uuid.UUID) (model.CreatorTotals, error) {
	defer r.db.lock(ctx)()
	out := model.CreatorTotals{Revenue: decimal.Zero}
	for _, g := range r.db.st.games {
		if g.CreatorID != nil && *g.CreatorID == creatorID {
			out.GamesCreated++
			out.Revenue = out.Revenue.Add(g.CreatorRevenue)
		}
	}
	return out, nil
}

func (r *GameRepo) update(ctx context.Context, id uuid.UUID, fn func(g *model.Game)) error {
	defer r.db.lock(ctx)()
	g, ok := r.db.st.games[id]
	if !ok {
		return errs.ErrGameNotFound
	}
	fn(&g)
	r.db.st.games[id] = g
	return nil
}

// SessionRepo implements SessionRepository in memory. Slice order is insertion order.
type SessionRepo struct{ db *DB }

// Create appends an open session.
func (r *SessionRepo) Create(ctx context.Context, s *model.GameSession) error {
	defer r.db.lock(ctx)()
	r.db.st.sessions = append(r.db.st.sessions, *s)
	return nil
}

// GetOpenForUpdate loads an open session.
func (r *SessionRepo) GetOpenForUpdate(ctx context.Context, id uuid.UUID) (*model.GameSession, error) {
	defer r.db.lock(ctx)()
	for _, s := range r.db.st.sessions {
		if s.ID == id && s.State == model.SessionOpen {
			return &s, nil
		}
	}
	return nil, errs.ErrSessionNotFound
}

// Close stores the result of an open session.
func (r *SessionRepo) Close(ctx context.Context, s *model.GameSession) error {
	defer r.db.lock(ctx)()
	for i := range r.db.st.sessions {
		cur := &r.db.st.sessions[i]
		if cur.ID != s.ID {
			continue
		}
		if cur.State != model.SessionOpen {
			return errs.ErrSessionNotFound
		}
		cur.Score, cur.DurationSeconds, cur.Completed = s.Score, s.DurationSeconds, s.Completed
		cur.State, cur.ClosedAt = model.SessionClosed, s.ClosedAt
		return nil
	}
	return errs.ErrSessionNotFound
}

// CountByAccount counts all sessions of an account.
func (r *SessionRepo) CountByAccount(ctx context.Context, accountID uuid.UUID) (int64, error) {
	t, err := r.Totals(ctx, accountID)
	return t.Sessions, err
}

// Totals aggregates an account's sessions.
func (r *SessionRepo) Totals(ctx context.Context, accountID uuid.UUID) (model.SessionTotals, error) {
	defer r.db.lock(ctx)()
	var t model.SessionTotals
	for _, s := range r.db.st.sessions {
		if s.AccountID != accountID {
			continue
		}
		t.Sessions++
		t.TokensSpent += s.TokensCharged
		if s.Completed {
			t.Completed++
		}
		if s.Score != nil {
			t.TotalScore += *s.Score
		}
	}
	return t, nil
}

// BestScores returns the best closed-session score per game.
func (r *SessionRepo) BestScores(ctx context.Context, accountID uuid.UUID) ([]model.GameBest, error) {
	defer r.db.lock(ctx)()
	best := map[uuid.UUID]int64{}
	for _, s := range r.db.st.sessions {
		if s.AccountID != accountID || s.State != model.SessionClosed || s.Score == nil {
			continue
		}
		if cur, ok := best[s.GameID]; !ok || *s.Score > cur {
			best[s.GameID] = *s.Score
		}
	}
	out := make([]model.GameBest, 0, len(best))
	for id, score := range best {
		out = append(out, model.GameBest{GameID: id, GameTitle: r.db.st.games[id].Title, BestScore: score})
	}
	slices.SortFunc(out, func(a, b model.GameBest) int {
		if c := cmp.Compare(b.BestScore, a.BestScore); c != 0 {
			return c
		}
		return cmp.Compare(a.GameTitle, b.GameTitle)
	})
	return out, nil
}

// Leaderboard ranks closed sessions by score; ties keep insertion order.
func (r *SessionRepo) Leaderboard(ctx context.Context, gameID *uuid.UUID, limit int) ([]model.LeaderboardEntry, error) {
	defer r.db.lock(ctx)()
	var closed []model.GameSession
	for _, s := range r.db.st.sessions {
		if s.State != model.SessionClosed || s.Score == nil {
			continue
		}
		if gameID != nil && s.GameID != *gameID {
			continue
		}
		closed = append(closed, s)
	}
	slices.SortStableFunc(closed, func(a, b model.GameSession) int { return cmp.Compare(*b.Score, *a.Score) })
	if len(closed) > limit {
		closed = closed[:limit]
	}
	out := make([]model.LeaderboardEntry, 0, len(closed))
	for i, s := range closed {
		out = append(out, model.LeaderboardEntry{
			Rank:      i + 1,
			Username:  r.db.st.accounts[s.AccountID].Username,
			Score:     *s.Score,
			GameTitle: r.db.st.games[s.GameID].Title,
			Date:      s.CreatedAt.Format(time.DateOnly),
		})
	}
	return out, nil
}

// LedgerRepo implements LedgerRepository in memory.
type LedgerRepo struct{ db *DB }

// Append adds a transaction.
func (r *LedgerRepo) Append(ctx context.Context, t *model.Transaction) error {
	defer r.db.lock(ctx)()
	r.db.st.ledger = append(r.db.st.ledger, *t)
	return nil
}

// ListByAccount returns the newest transactions first.
func (r *LedgerRepo) ListByAccount(ctx context.Context, accountID uuid.UUID, limit int) ([]model.Transaction, error) {
	defer r.db.lock(ctx)()
	var out []model.Transaction
	for i := len(r.db.st.ledger) - 1; i >= 0 && len(out) < limit; i-- {
		if t := r.db.st.ledger[i]; t.AccountID == accountID {
			out = append(out, t)
		}
	}
	return out, nil
}

// SumTokenDelta returns the ledger balance of an account.
func (r *LedgerRepo) SumTokenDelta(ctx context.Context, accountID uuid.UUID) (int64, error) {
	defer r.db.lock(ctx)()
	var sum int64
	for _, t := range r.db.st.ledger {
		if t.AccountID == accountID {
			sum += t.TokenDelta
		}
	}
	return sum, nil
}

// AchievementRepo implements AchievementRepository in memory.
type AchievementRepo struct{ db *DB }

// Grant inserts unless the account already holds the kind.
func (r *AchievementRepo) Grant(ctx context.Context, a *model.Achievement) (bool, error) {
	defer r.db.lock(ctx)()
	for _, ex := range r.db.st.achievements {
		if ex.AccountID == a.AccountID && ex.Kind == a.Kind {
			return false, nil
		}
	}
	r.db.st.achievements = append(r.db.st.achievements, *a)
	return true, nil
}

// ListByAccount returns an account's achievements, oldest first.
func (r *AchievementRepo) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]model.Achievement, error) {
	defer r.db.lock(ctx)()
	var out []model.Achievement
	for _, a := range r.db.st.achievements {
		if a.AccountID == accountID {
			out = append(out, a)
		}
	}
	return out, nil
}

// AuditRepo implements AuditRepository in memory.
type AuditRepo struct{ db *DB }

// Append adds an event.
func (r *AuditRepo) Append(ctx context.Context, e *model.AuditEvent) error {
	defer r.db.lock(ctx)()
	r.db.st.audit = append(r.db.st.audit, *e)
	return nil
}

// ListRecent returns the newest events first.
func (r *AuditRepo) ListRecent(ctx context.Context, limit int) ([]model.AuditEvent, error) {
	defer r.db.lock(ctx)()
	var out []model.AuditEvent
	for i := len(r.db.st.audit) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, r.db.st.audit[i])
	}
	return out, nil
}

// PurgeInfoBefore drops INFO events older than before.
func (r *AuditRepo) PurgeInfoBefore(ctx context.Context, before time.Time) (int64, error) {
	defer r.db.lock(ctx)()
	kept := r.db.st.audit[:0:0]
	var n int64
	for _, e := range r.db.st.audit {
		if e.Severity == model.SeverityInfo && e.CreatedAt.Before(before) {
			n++
			continue
		}
		kept = append(kept, e)
	}
	r.db.st.audit = kept
	return n, nil
}

// CountBySeverity counts events created at or after since.
func (r *AuditRepo) CountBySeverity(ctx context.Context, since time.Time) (map[model.Severity]int64, error) {
	defer r.db.lock(ctx)()
	out := map[model.Severity]int64{}
	for _, e := range r.db.st.audit {
		if !e.CreatedAt.Before(since) {
			out[e.Severity]++
		}
	}
	return out, nil
}
