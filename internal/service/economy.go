package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/and161185/arcadia/internal/audit"
	"github.com/and161185/arcadia/internal/errs"
	"github.com/and161185/arcadia/internal/metrics"
	"github.com/and161185/arcadia/internal/model"
	"github.com/and161185/arcadia/internal/repository"
	"github.com/and161185/arcadia/internal/validate"
	"github.com/gofrs/uuid/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DefaultCreatorShare is the fraction of a paid session credited to the game's creator.
var DefaultCreatorShare = decimal.RequireFromString("0.35")

// Leaderboard and ledger page sizes.
const (
	defaultLeaderboardLimit = 10
	defaultLedgerLimit      = 20
	maxPageLimit            = 100
	maxTitleLength          = 200
)

// Games-played milestones that earn an achievement.
var gamesPlayedMilestones = map[int64]bool{10: true, 50: true, 100: true, 500: true}

// EconomyService defines the pay-to-play session lifecycle and token economy.
type EconomyService interface {
	// StartSession charges the account according to the game's policy and opens a session.
	StartSession(ctx context.Context, accountID, gameID uuid.UUID) (*model.SessionInfo, error)
	// FinalizeSession closes an open session with its result and returns newly granted achievement labels.
	FinalizeSession(ctx context.Context, sessionID uuid.UUID, result model.PlayResult) ([]string, error)
	// PurchaseTokens credits already-paid tokens.
	PurchaseTokens(ctx context.Context, accountID uuid.UUID, tokenAmount int64, paid decimal.Decimal) error
	// Leaderboard returns top closed sessions, optionally for one game.
	Leaderboard(ctx context.Context, gameID *uuid.UUID, limit int) ([]model.LeaderboardEntry, error)
	// UserStatistics aggregates an account's play history.
	UserStatistics(ctx context.Context, accountID uuid.UUID) (*model.UserStatistics, error)
	// AvailableGames lists active games with the account's access and cost.
	AvailableGames(ctx context.Context, accountID uuid.UUID) ([]model.GameAvailability, error)
	// PublishGame lists a community game owned by creatorID.
	PublishGame(ctx context.Context, creatorID uuid.UUID, g model.NewGame) (*model.Game, error)
	// Ledger returns the account's newest transactions.
	Ledger(ctx context.Context, accountID uuid.UUID, limit int) ([]model.Transaction, error)
}

type EconomyServiceImpl struct {
	store repository.Store
	audit *audit.Sink
	share decimal.Decimal
	now   func() time.Time
	log   *zap.Logger
}

var _ EconomyService = (*EconomyServiceImpl)(nil)

// NewEconomyService constructs EconomyService. A share outside [0, 1] falls back to DefaultCreatorShare.
func NewEconomyService(store repository.Store, sink *audit.Sink, share decimal.Decimal, opts ...Option) *EconomyServiceImpl {
	o := buildOptions(opts)
	if share.IsNegative() || share.GreaterThan(decimal.NewFromInt(1)) {
		share = DefaultCreatorShare
	}
	return &EconomyServiceImpl{
		store: store,
		audit: sink,
		share: share,
		now:   o.now,
		log:   o.log.Named("economy"),
	}
}

// requiredTokens applies the access policy. The reason is shown to players.
func requiredTokens(acc *model.Account, g *model.Game, now time.Time) (int64, string) {
	switch g.Policy {
	case model.PolicyFree:
		return 0, "free to play"
	case model.PolicyPremium:
		if acc.HasActiveSubscription(now) {
			return 0, "included with subscription"
		}
		return g.TokenPrice, fmt.Sprintf("requires %d tokens", g.TokenPrice)
	default:
		return g.TokenPrice, fmt.Sprintf("requires %d tokens", g.TokenPrice)
	}
}

// creatorPayout is floor(charged × share).
func (s *EconomyServiceImpl) creatorPayout(charged int64) int64 {
	return decimal.NewFromInt(charged).Mul(s.share).Floor().IntPart()
}

// lookupErr keeps not-found errors as they are and wraps everything else as persistence.
func lookupErr(err, notFound error) error {
	if errors.Is(err, errs.ErrNotFound) {
		return notFound
	}
	return errs.Persistence(err)
}

func insufficientTokens(need, have int64) error {
	return fmt.Errorf("%w: need %d, have %d", errs.ErrInsufficientTokens, need, have)
}

func appendLedger(ctx context.Context, repo repository.LedgerRepository, accountID uuid.UUID, kind model.TransactionKind, delta int64, ref *uuid.UUID, desc string, at time.Time) error {
	amount := model.TokensToAmount(delta).Abs()
	return appendLedgerAmount(ctx, repo, accountID, kind, delta, amount, ref, desc, at)
}

func appendLedgerAmount(ctx context.Context, repo repository.LedgerRepository, accountID uuid.UUID, kind model.TransactionKind, delta int64, amount decimal.Decimal, ref *uuid.UUID, desc string, at time.Time) error {
	id, err := uuid.NewV4()
	if err != nil {
		return err
	}
	return repo.Append(ctx, &model.Transaction{
		ID:          id,
		AccountID:   accountID,
		Kind:        kind,
		Amount:      amount,
		TokenDelta:  delta,
		ReferenceID: ref,
		Description: desc,
		CreatedAt:   at,
	})
}

// StartSession runs the whole charge-and-open sequence as one unit of work.
func (s *EconomyServiceImpl) StartSession(ctx context.Context, accountID, gameID uuid.UUID) (*model.SessionInfo, error) {
	now := s.now()
	var (
		info   *model.SessionInfo
		policy model.GamePolicy
	)
	err := s.store.Tx.InTransaction(ctx, func(ctx context.Context) error {
		game, err := s.store.Games.GetForUpdate(ctx, gameID)
		if err != nil {
			return lookupErr(err, errs.ErrGameNotFound)
		}
		if !game.Active {
			return errs.ErrGameNotFound
		}
		policy = game.Policy

		var acc *model.Account
		for _, id := range lockOrder(accountID, game.CreatorID) {
			locked, err := s.store.Accounts.GetForUpdate(ctx, id)
			switch {
			case id != accountID && err != nil:
				return errs.Persistence(fmt.Errorf("lock creator: %w", err))
			case err != nil:
				return lookupErr(err, errs.ErrAccountNotFound)
			case id == accountID:
				acc = locked
			}
		}
		if !acc.Active {
			return errs.ErrAccountNotFound
		}

		cost, _ := requiredTokens(acc, game, now)
		if cost > acc.Tokens {
			return insufficientTokens(cost, acc.Tokens)
		}

		remaining := acc.Tokens
		if cost > 0 {
			if remaining, err = s.store.Accounts.AdjustTokens(ctx, acc.ID, -cost); err != nil {
				return errs.Persistence(fmt.Errorf("debit account: %w", err))
			}
			if err := appendLedger(ctx, s.store.Ledger, acc.ID, model.KindPlayDebit, -cost, &game.ID,
				"Played "+game.Title, now); err != nil {
				return errs.Persistence(fmt.Errorf("record debit: %w", err))
			}
		}

		sid, err := uuid.NewV4()
		if err != nil {
			return err
		}
		session := &model.GameSession{
			ID:            sid,
			AccountID:     acc.ID,
			GameID:        game.ID,
			TokensCharged: cost,
			State:         model.SessionOpen,
			CreatedAt:     now,
		}
		if err := s.store.Sessions.Create(ctx, session); err != nil {
			return errs.Persistence(fmt.Errorf("create session: %w", err))
		}
		if err := s.store.Games.IncrementPlayCount(ctx, game.ID); err != nil {
			return errs.Persistence(fmt.Errorf("increment play count: %w", err))
		}

		var payout int64
		if cost > 0 && game.CreatorID != nil && *game.CreatorID != acc.ID {
			payout = s.creatorPayout(cost)
			if payout > 0 {
				if err := s.payCreator(ctx, game, session.ID, payout, now); err != nil {
					return errs.Persistence(fmt.Errorf("creator payout: %w", err))
				}
			}
		}

		if err := s.audit.Record(ctx, audit.Info(audit.GameSessionStarted, model.ResourceGame, &acc.ID, map[string]any{
			"game_id":        game.ID.String(),
			"game_title":     game.Title,
			"tokens_charged": cost,
			"session_id":     session.ID.String(),
		})); err != nil {
			return errs.Persistence(err)
		}

		info = &model.SessionInfo{
			SessionID:       session.ID,
			GameID:          game.ID,
			GameTitle:       game.Title,
			Difficulty:      game.Difficulty,
			TokensCharged:   cost,
			RemainingTokens: remaining,
			CreatorPayout:   payout,
		}
		return nil
	})

	switch {
	case err == nil:
	case errors.Is(err, errs.ErrPersistence):
		s.startFailed(ctx, accountID, gameID, err)
		return nil, err
	case errors.Is(err, errs.ErrInsufficientTokens), errors.Is(err, errs.ErrNotFound):
		s.audit.Emit(ctx, audit.Warning(audit.GameSessionDenied, model.ResourceGame, &accountID, map[string]any{
			"game_id": gameID.String(),
			"reason":  err.Error(),
		}))
		return nil, err
	default:
		s.startFailed(ctx, accountID, gameID, err)
		return nil, errs.Persistence(err)
	}

	metrics.SessionsStarted.WithLabelValues(string(policy)).Inc()
	if info.TokensCharged > 0 {
		metrics.TokensMoved.WithLabelValues(string(model.KindPlayDebit)).Add(float64(info.TokensCharged))
	}
	if info.CreatorPayout > 0 {
		metrics.TokensMoved.WithLabelValues(string(model.KindCreatorPayout)).Add(float64(info.CreatorPayout))
	}
	return info, nil
}

// lockOrder lists the accounts a session start locks, in ascending ID order.
// The creator is included only when it differs from the player.
func lockOrder(player uuid.UUID, creator *uuid.UUID) []uuid.UUID {
	if creator == nil || *creator == player {
		return []uuid.UUID{player}
	}
	if bytes.Compare(creator[:], player[:]) < 0 {
		return []uuid.UUID{*creator, player}
	}
	return []uuid.UUID{player, *creator}
}

func (s *EconomyServiceImpl) payCreator(ctx context.Context, game *model.Game, sessionID uuid.UUID, payout int64, now time.Time) error {
	if _, err := s.store.Accounts.AdjustTokens(ctx, *game.CreatorID, payout); err != nil {
		return err
	}
	if err := s.store.Games.AddCreatorRevenue(ctx, game.ID, model.TokensToAmount(payout)); err != nil {
		return err
	}
	return appendLedger(ctx, s.store.Ledger, *game.CreatorID, model.KindCreatorPayout, payout, &sessionID,
		"Creator revenue from "+game.Title, now)
}

func (s *EconomyServiceImpl) startFailed(ctx context.Context, accountID, gameID uuid.UUID, err error) {
	s.log.Error("start session", zap.String("game_id", gameID.String()), zap.Error(err))
	s.audit.Emit(ctx, audit.Error(audit.GameSessionStartError, model.ResourceGame, &accountID, map[string]any{
		"game_id": gameID.String(),
		"error":   err.Error(),
	}))
}

// FinalizeSession closes an open session and grants achievements.
func (s *EconomyServiceImpl) FinalizeSession(ctx context.Context, sessionID uuid.UUID, result model.PlayResult) ([]string, error) {
	if result.Score < 0 {
		return nil, errs.Validation("score cannot be negative")
	}
	if result.DurationSeconds < 0 {
		return nil, errs.Validation("duration cannot be negative")
	}
	now := s.now()
	var (
		labels    []string
		granted   []model.AchievementKind
		accountID uuid.UUID
	)
	err := s.store.Tx.InTransaction(ctx, func(ctx context.Context) error {
		labels, granted = nil, nil
		session, err := s.store.Sessions.GetOpenForUpdate(ctx, sessionID)
		if err != nil {
			return lookupErr(err, errs.ErrSessionNotFound)
		}
		accountID = session.AccountID
		game, err := s.store.Games.GetForUpdate(ctx, session.GameID)
		if err != nil {
			return lookupErr(err, errs.ErrGameNotFound)
		}

		score, duration := result.Score, result.DurationSeconds
		session.Score, session.DurationSeconds, session.Completed = &score, &duration, result.Completed
		session.State, session.ClosedAt = model.SessionClosed, &now
		if err := s.store.Sessions.Close(ctx, session); err != nil {
			return lookupErr(err, errs.ErrSessionNotFound)
		}

		grant := func(kind model.AchievementKind, name string, meta map[string]any) error {
			id, err := uuid.NewV4()
			if err != nil {
				return err
			}
			ok, err := s.store.Achievements.Grant(ctx, &model.Achievement{
				ID: id, AccountID: session.AccountID, Kind: kind, Name: name, Metadata: meta, EarnedAt: now,
			})
			if err != nil {
				return errs.Persistence(fmt.Errorf("grant %s: %w", kind, err))
			}
			if ok {
				labels = append(labels, name)
				granted = append(granted, kind)
			}
			return nil
		}

		raised, err := s.store.Games.RaiseHighScore(ctx, game.ID, score)
		if err != nil {
			return errs.Persistence(fmt.Errorf("raise high score: %w", err))
		}
		if raised {
			if err := grant(model.AchievementHighScore, "New High Score!",
				map[string]any{"game_id": game.ID.String(), "score": score}); err != nil {
				return err
			}
		}

		count, err := s.store.Sessions.CountByAccount(ctx, session.AccountID)
		if err != nil {
			return errs.Persistence(fmt.Errorf("count sessions: %w", err))
		}
		if count == 1 {
			if err := grant(model.AchievementFirstGame, "Welcome to Arcadia!", nil); err != nil {
				return err
			}
		}
		if gamesPlayedMilestones[count] {
			if err := grant(model.AchievementGamesPlayed, fmt.Sprintf("Played %d games!", count),
				map[string]any{"count": count}); err != nil {
				return err
			}
		}
		if result.Completed && score >= 1000 {
			if err := grant(model.AchievementPerfectGame, "Perfect Game!",
				map[string]any{"game_id": game.ID.String(), "score": score}); err != nil {
				return err
			}
		}

		return s.audit.Record(ctx, audit.Info(audit.GameSessionCompleted, model.ResourceGame, &session.AccountID, map[string]any{
			"session_id":   session.ID.String(),
			"game_id":      game.ID.String(),
			"score":        score,
			"duration":     duration,
			"completed":    result.Completed,
			"achievements": labels,
		}))
	})
	if err != nil {
		var acc *uuid.UUID
		if accountID != uuid.Nil {
			acc = &accountID
		}
		if errors.Is(err, errs.ErrNotFound) && !errors.Is(err, errs.ErrPersistence) {
			s.audit.Emit(ctx, audit.Warning(audit.GameSessionEndError, model.ResourceGame, acc, map[string]any{
				"session_id": sessionID.String(),
				"reason":     err.Error(),
			}))
			return nil, err
		}
		s.audit.Emit(ctx, audit.Error(audit.GameSessionEndError, model.ResourceGame, acc, map[string]any{
			"session_id": sessionID.String(),
			"error":      err.Error(),
		}))
		if errors.Is(err, errs.ErrPersistence) {
			return nil, err
		}
		return nil, errs.Persistence(err)
	}

	for _, k := range granted {
		metrics.AchievementsGranted.WithLabelValues(string(k)).Inc()
	}
	if labels == nil {
		labels = []string{}
	}
	return labels, nil
}

// PurchaseTokens credits tokens the caller has already been paid for.
func (s *EconomyServiceImpl) PurchaseTokens(ctx context.Context, accountID uuid.UUID, tokenAmount int64, paid decimal.Decimal) error {
	if tokenAmount <= 0 {
		return errs.Validation("token amount must be positive")
	}
	if paid.IsNegative() {
		return errs.Validation("paid amount cannot be negative")
	}
	now := s.now()
	err := s.store.Tx.InTransaction(ctx, func(ctx context.Context) error {
		acc, err := s.store.Accounts.GetForUpdate(ctx, accountID)
		if err != nil {
			return lookupErr(err, errs.ErrAccountNotFound)
		}
		if !acc.Active {
			return errs.ErrAccountNotFound
		}
		if _, err := s.store.Accounts.AdjustTokens(ctx, acc.ID, tokenAmount); err != nil {
			return errs.Persistence(fmt.Errorf("credit account: %w", err))
		}
		if err := appendLedgerAmount(ctx, s.store.Ledger, acc.ID, model.KindPurchase, tokenAmount, paid, nil,
			fmt.Sprintf("Purchased %d tokens", tokenAmount), now); err != nil {
			return errs.Persistence(fmt.Errorf("record purchase: %w", err))
		}
		return s.audit.Record(ctx, audit.Info(audit.TokensPurchased, model.ResourceEconomy, &acc.ID, map[string]any{
			"tokens": tokenAmount,
			"amount": paid.String(),
		}))
	})
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) && !errors.Is(err, errs.ErrPersistence) {
			s.audit.Emit(ctx, audit.Warning(audit.TokenPurchaseError, model.ResourceEconomy, &accountID, map[string]any{
				"tokens": tokenAmount,
				"reason": err.Error(),
			}))
			return err
		}
		s.audit.Emit(ctx, audit.Error(audit.TokenPurchaseError, model.ResourceEconomy, &accountID, map[string]any{
			"tokens": tokenAmount,
			"error":  err.Error(),
		}))
		if errors.Is(err, errs.ErrPersistence) {
			return err
		}
		return errs.Persistence(err)
	}
	metrics.TokensMoved.WithLabelValues(string(model.KindPurchase)).Add(float64(tokenAmount))
	return nil
}

func pageLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}
	return min(limit, maxPageLimit)
}

// Leaderboard ranks closed sessions by score; ties keep insertion order.
func (s *EconomyServiceImpl) Leaderboard(ctx context.Context, gameID *uuid.UUID, limit int) ([]model.LeaderboardEntry, error) {
	out, err := s.store.Sessions.Leaderboard(ctx, gameID, pageLimit(limit, defaultLeaderboardLimit))
	if err != nil {
		return nil, errs.Persistence(err)
	}
	return out, nil
}

func (s *EconomyServiceImpl) activeAccount(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	acc, err := s.store.Accounts.GetByID(ctx, id)
	if err != nil {
		return nil, lookupErr(err, errs.ErrAccountNotFound)
	}
	if !acc.Active {
		return nil, errs.ErrAccountNotFound
	}
	return acc, nil
}

// completionRate is completed/total×100 rounded to one decimal.
func completionRate(completed, total int64) float64 {
	if total == 0 {
		return 0
	}
	return decimal.NewFromInt(completed * 100).Div(decimal.NewFromInt(total)).Round(1).InexactFloat64()
}

// UserStatistics aggregates sessions, achievements and creator earnings.
func (s *EconomyServiceImpl) UserStatistics(ctx context.Context, accountID uuid.UUID) (*model.UserStatistics, error) {
	if _, err := s.activeAccount(ctx, accountID); err != nil {
		return nil, err
	}
	totals, err := s.store.Sessions.Totals(ctx, accountID)
	if err != nil {
		return nil, errs.Persistence(err)
	}
	achievements, err := s.store.Achievements.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, errs.Persistence(err)
	}
	best, err := s.store.Sessions.BestScores(ctx, accountID)
	if err != nil {
		return nil, errs.Persistence(err)
	}
	creator, err := s.store.Games.CreatorTotals(ctx, accountID)
	if err != nil {
		return nil, errs.Persistence(err)
	}
	return &model.UserStatistics{
		TotalSessions:     totals.Sessions,
		TotalScore:        totals.TotalScore,
		TokensSpent:       totals.TokensSpent,
		CompletedSessions: totals.Completed,
		CompletionRate:    completionRate(totals.Completed, totals.Sessions),
		Achievements:      achievements,
		BestScores:        best,
		GamesCreated:      creator.GamesCreated,
		CreatorRevenue:    creator.Revenue,
	}, nil
}

// AvailableGames evaluates the access policy of every active game for the account.
func (s *EconomyServiceImpl) AvailableGames(ctx context.Context, accountID uuid.UUID) ([]model.GameAvailability, error) {
	acc, err := s.activeAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	games, err := s.store.Games.ListActive(ctx)
	if err != nil {
		return nil, errs.Persistence(err)
	}
	now := s.now()
	out := make([]model.GameAvailability, 0, len(games))
	for i := range games {
		cost, reason := requiredTokens(acc, &games[i], now)
		canPlay := cost <= acc.Tokens
		if !canPlay {
			reason = fmt.Sprintf("insufficient tokens: need %d, have %d", cost, acc.Tokens)
		}
		out = append(out, model.GameAvailability{Game: games[i], CanPlay: canPlay, Cost: cost, Reason: reason})
	}
	return out, nil
}

// PublishGame lists a community game.
func (s *EconomyServiceImpl) PublishGame(ctx context.Context, creatorID uuid.UUID, ng model.NewGame) (*model.Game, error) {
	title := validate.CleanText(ng.Title)
	description, ok, reason := validate.Description(ng.Description)
	switch {
	case !ok:
		return nil, errs.Validation(reason)
	case title == "":
		return nil, errs.Validation("title is required")
	case len(title) > maxTitleLength:
		return nil, errs.Validation(fmt.Sprintf("title cannot exceed %d characters", maxTitleLength))
	case ng.Difficulty < 1 || ng.Difficulty > 5:
		return nil, errs.Validation("difficulty must be between 1 and 5")
	case ng.TokenPrice < 0:
		return nil, errs.Validation("token price cannot be negative")
	}
	if _, err := s.activeAccount(ctx, creatorID); err != nil {
		return nil, err
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	creator := creatorID
	g := &model.Game{
		ID:             id,
		Title:          title,
		Description:    description,
		Policy:         model.PolicyCommunity,
		TokenPrice:     ng.TokenPrice,
		Difficulty:     ng.Difficulty,
		CreatorID:      &creator,
		CreatorRevenue: decimal.Zero,
		Active:         true,
		CreatedAt:      s.now(),
	}
	err = s.store.Tx.InTransaction(ctx, func(ctx context.Context) error {
		if err := s.store.Games.Create(ctx, g); err != nil {
			return err
		}
		return s.audit.Record(ctx, audit.Info(audit.GamePublished, model.ResourceGame, &creator, map[string]any{
			"game_id":     g.ID.String(),
			"title":       g.Title,
			"token_price": g.TokenPrice,
		}))
	})
	if err != nil {
		s.audit.Emit(ctx, audit.Error(audit.GamePublishError, model.ResourceGame, &creator, map[string]any{
			"title": title,
			"error": err.Error(),
		}))
		return nil, errs.Persistence(err)
	}
	return g, nil
}

// Ledger returns the newest transactions of an account.
func (s *EconomyServiceImpl) Ledger(ctx context.Context, accountID uuid.UUID, limit int) ([]model.Transaction, error) {
	if _, err := s.activeAccount(ctx, accountID); err != nil {
		return nil, err
	}
	out, err := s.store.Ledger.ListByAccount(ctx, accountID, pageLimit(limit, defaultLedgerLimit))
	if err != nil {
		return nil, errs.Persistence(err)
	}
	return out, nil
}
