// Package app wires session tokens, the economy, the scoring generator and
// the threat detector into the operations a front end calls.
package app

import (
	"context"
	"fmt"
	"maps"

	"github.com/and161185/arcadia/internal/audit"
	"github.com/and161185/arcadia/internal/model"
	"github.com/and161185/arcadia/internal/play"
	"github.com/and161185/arcadia/internal/service"
	"github.com/and161185/arcadia/internal/threat"
	"github.com/gofrs/uuid/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ClientInfo describes the caller of a login.
type ClientInfo struct {
	UserAgent string
	IP        string
}

// PlayOutcome is the result of one full play-through.
type PlayOutcome struct {
	Session      model.SessionInfo
	Result       model.PlayResult
	Achievements []string
	Flags        []string // threat types raised by this play
}

// Deps are the collaborators of an Arcade.
type Deps struct {
	Auth      service.AuthService
	Economy   service.EconomyService
	Generator play.Generator
	Threats   *threat.Detector
	Audit     *audit.Sink
	Log       *zap.Logger
}

// Arcade is the front-end facing API of the core.
type Arcade struct {
	auth    service.AuthService
	economy service.EconomyService
	gen     play.Generator
	threats *threat.Detector
	audit   *audit.Sink
	log     *zap.Logger
}

// New builds an Arcade.
func New(d Deps) *Arcade {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Arcade{
		auth:    d.Auth,
		economy: d.Economy,
		gen:     d.Generator,
		threats: d.Threats,
		audit:   d.Audit,
		log:     log,
	}
}

// Register creates an account.
func (a *Arcade) Register(ctx context.Context, email, username, password string) (*model.Account, error) {
	return a.auth.Register(ctx, email, username, password)
}

// Login authenticates and returns a session token. Suspicious clients are
// flagged but not refused.
func (a *Arcade) Login(ctx context.Context, email, password string, client ClientInfo) (*model.Account, string, error) {
	phishing := a.threats.DetectPhishingAttempt(ctx, email, client.UserAgent, client.IP)

	acc, tok, err := a.auth.Authenticate(ctx, email, password)
	if err != nil {
		if phishing {
			a.reportThreat(ctx, nil, threat.TypePhishing, map[string]any{"email": email, "ip_address": client.IP})
		}
		// Failed attempts have no account; they are counted per email digest.
		if a.threats.DetectAbusePatternBy(ctx, audit.HashSensitive(email), threat.ActionLoginAttempt, "") {
			a.reportThreat(ctx, nil, threat.TypeAbusePattern, map[string]any{"action": threat.ActionLoginAttempt, "email": email})
		}
		return nil, "", err
	}
	if phishing {
		a.reportThreat(ctx, &acc.ID, threat.TypePhishing, map[string]any{"email": email, "ip_address": client.IP})
	}
	if a.threats.DetectAbusePattern(ctx, acc.ID, threat.ActionLoginAttempt, "") {
		a.reportThreat(ctx, &acc.ID, threat.TypeAbusePattern, map[string]any{"action": threat.ActionLoginAttempt})
	}
	return acc, tok, nil
}

// Logout audits the end of the session.
func (a *Arcade) Logout(ctx context.Context, tok string) error {
	return a.auth.Logout(ctx, tok)
}

// Whoami returns the account behind a token.
func (a *Arcade) Whoami(ctx context.Context, tok string) (*model.Account, error) {
	return a.auth.ValidateSession(ctx, tok)
}

// ChangePassword changes the password of the token's account.
func (a *Arcade) ChangePassword(ctx context.Context, tok, oldPassword, newPassword string) error {
	acc, err := a.auth.ValidateSession(ctx, tok)
	if err != nil {
		return err
	}
	if a.threats.DetectAbusePattern(ctx, acc.ID, threat.ActionPasswordChange, "") {
		a.reportThreat(ctx, &acc.ID, threat.TypeAbusePattern, map[string]any{"action": threat.ActionPasswordChange})
	}
	return a.auth.ChangePassword(ctx, acc.ID, oldPassword, newPassword)
}

// Games lists the catalog with the caller's access to each game.
func (a *Arcade) Games(ctx context.Context, tok string) ([]model.GameAvailability, error) {
	acc, err := a.auth.ValidateSession(ctx, tok)
	if err != nil {
		return nil, err
	}
	return a.economy.AvailableGames(ctx, acc.ID)
}

// Play starts a paid session, plays it through the generator and finalizes it.
// A generator failure leaves the session open; the charge is not refunded.
func (a *Arcade) Play(ctx context.Context, tok string, gameID uuid.UUID) (*PlayOutcome, error) {
	acc, err := a.auth.ValidateSession(ctx, tok)
	if err != nil {
		return nil, err
	}
	// Start attempts are counted whether or not the economy admits them.
	var flags []string
	if a.threats.DetectAbusePattern(ctx, acc.ID, threat.ActionGameStart, gameID.String()) {
		flags = append(flags, threat.TypeAbusePattern)
		a.reportThreat(ctx, &acc.ID, threat.TypeAbusePattern, map[string]any{"action": threat.ActionGameStart, "game_id": gameID.String()})
	}
	info, err := a.economy.StartSession(ctx, acc.ID, gameID)
	if err != nil {
		return nil, err
	}
	out := &PlayOutcome{Session: *info, Flags: flags}

	result, err := a.gen.Play(ctx, info.Difficulty)
	if err != nil {
		a.log.Error("play session", zap.String("session_id", info.SessionID.String()), zap.Error(err))
		return nil, fmt.Errorf("play session %s: %w", info.SessionID, err)
	}
	out.Result = result

	labels, err := a.economy.FinalizeSession(ctx, info.SessionID, result)
	if err != nil {
		return nil, err
	}
	out.Achievements = labels

	details := map[string]any{
		"session_id": info.SessionID.String(),
		"game_id":    gameID.String(),
		"score":      result.Score,
		"duration":   result.DurationSeconds,
	}
	if a.threats.DetectBotFarming(ctx, acc.ID, gameID, result.DurationSeconds, result.Score) {
		out.Flags = append(out.Flags, threat.TypeBotFarming)
		a.reportThreat(ctx, &acc.ID, threat.TypeBotFarming, details)
	}
	if a.threats.DetectCheating(ctx, acc.ID, gameID, result.Score, info.Difficulty) {
		out.Flags = append(out.Flags, threat.TypeCheating)
		a.reportThreat(ctx, &acc.ID, threat.TypeCheating, details)
	}
	return out, nil
}

// Purchase credits already-paid tokens to the token's account.
func (a *Arcade) Purchase(ctx context.Context, tok string, tokens int64, paid decimal.Decimal) error {
	acc, err := a.auth.ValidateSession(ctx, tok)
	if err != nil {
		return err
	}
	if a.threats.DetectAbusePattern(ctx, acc.ID, threat.ActionTokenPurchase, "") {
		a.reportThreat(ctx, &acc.ID, threat.TypeAbusePattern, map[string]any{"action": threat.ActionTokenPurchase})
	}
	return a.economy.PurchaseTokens(ctx, acc.ID, tokens, paid)
}

// Stats returns the caller's statistics.
func (a *Arcade) Stats(ctx context.Context, tok string) (*model.UserStatistics, error) {
	acc, err := a.auth.ValidateSession(ctx, tok)
	if err != nil {
		return nil, err
	}
	return a.economy.UserStatistics(ctx, acc.ID)
}

// Ledger returns the caller's recent transactions.
func (a *Arcade) Ledger(ctx context.Context, tok string, limit int) ([]model.Transaction, error) {
	acc, err := a.auth.ValidateSession(ctx, tok)
	if err != nil {
		return nil, err
	}
	return a.economy.Ledger(ctx, acc.ID, limit)
}

// Publish lists a community game owned by the caller.
func (a *Arcade) Publish(ctx context.Context, tok string, g model.NewGame) (*model.Game, error) {
	acc, err := a.auth.ValidateSession(ctx, tok)
	if err != nil {
		return nil, err
	}
	return a.economy.PublishGame(ctx, acc.ID, g)
}

// Leaderboard is public.
func (a *Arcade) Leaderboard(ctx context.Context, gameID *uuid.UUID, limit int) ([]model.LeaderboardEntry, error) {
	return a.economy.Leaderboard(ctx, gameID, limit)
}

// ThreatReport summarizes detections made by this process.
func (a *Arcade) ThreatReport() threat.Report {
	return a.threats.Report()
}

func (a *Arcade) reportThreat(ctx context.Context, accountID *uuid.UUID, kind string, details map[string]any) {
	d := map[string]any{"type": kind}
	maps.Copy(d, details)
	a.audit.Emit(ctx, audit.Warning(audit.SecurityThreatDetected, model.ResourceGame, accountID, d))
}
