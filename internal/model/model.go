// Package model contains domain models shared across layers.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/shopspring/decimal"
)

// TokenValue is the currency value of a single token.
var TokenValue = decimal.New(1, -2)

// TokensToAmount converts a token count into its currency amount.
func TokensToAmount(tokens int64) decimal.Decimal {
	return decimal.NewFromInt(tokens).Mul(TokenValue)
}

// Account is a registered player or creator.
type Account struct {
	ID                    uuid.UUID
	Email                 string
	Username              string
	PasswordHash          string     // PHC-encoded argon2id
	Tokens                int64      // never negative
	SubscriptionActive    bool
	SubscriptionExpiresAt *time.Time // nil with an active subscription means no expiry
	Active                bool
	CreatedAt             time.Time
	LastLoginAt           *time.Time
}

// HasActiveSubscription reports whether premium access applies at now.
func (a *Account) HasActiveSubscription(now time.Time) bool {
	if !a.SubscriptionActive {
		return false
	}
	return a.SubscriptionExpiresAt == nil || a.SubscriptionExpiresAt.After(now)
}

// GamePolicy decides how a game is paid for.
type GamePolicy string

const (
	PolicyFree      GamePolicy = "free"
	PolicyPremium   GamePolicy = "premium"
	PolicyCommunity GamePolicy = "community"
)

// Valid reports whether p is a known policy.
func (p GamePolicy) Valid() bool {
	switch p {
	case PolicyFree, PolicyPremium, PolicyCommunity:
		return true
	}
	return false
}

// Game is a catalog entry.
type Game struct {
	ID             uuid.UUID
	Title          string
	Description    string
	Policy         GamePolicy
	TokenPrice     int64
	Difficulty     int // 1..5
	CreatorID      *uuid.UUID
	PlayCount      int64
	HighScore      int64
	CreatorRevenue decimal.Decimal
	Active         bool
	CreatedAt      time.Time
}

// NewGame carries the creator-supplied fields of a community game.
type NewGame struct {
	Title       string
	Description string
	TokenPrice  int64
	Difficulty  int
}

// SessionState is the lifecycle state of a game session.
type SessionState string

const (
	SessionOpen   SessionState = "open"
	SessionClosed SessionState = "closed"
)

// GameSession records one paid play.
type GameSession struct {
	ID              uuid.UUID
	AccountID       uuid.UUID
	GameID          uuid.UUID
	TokensCharged   int64
	Score           *int64 // set on close
	DurationSeconds *int64 // set on close
	Completed       bool
	State           SessionState
	CreatedAt       time.Time
	ClosedAt        *time.Time
}

// TransactionKind classifies ledger entries.
type TransactionKind string

const (
	KindPurchase      TransactionKind = "purchase"
	KindPlayDebit     TransactionKind = "play-debit"
	KindCreatorPayout TransactionKind = "creator-payout"
	KindSignupGrant   TransactionKind = "signup-grant"
)

// Transaction is an append-only ledger entry.
type Transaction struct {
	ID          uuid.UUID
	AccountID   uuid.UUID
	Kind        TransactionKind
	Amount      decimal.Decimal
	TokenDelta  int64 // credits positive, debits negative
	ReferenceID *uuid.UUID
	Description string
	CreatedAt   time.Time
}

// AchievementKind identifies an achievement; an account holds each kind at most once.
type AchievementKind string

const (
	AchievementHighScore   AchievementKind = "high-score"
	AchievementFirstGame   AchievementKind = "first-game"
	AchievementGamesPlayed AchievementKind = "games-played"
	AchievementPerfectGame AchievementKind = "perfect-game"
)

// Achievement is a granted badge.
type Achievement struct {
	ID        uuid.UUID
	AccountID uuid.UUID
	Kind      AchievementKind
	Name      string
	Metadata  map[string]any
	EarnedAt  time.Time
}

// Severity of an audit event.
type Severity string

const (
	SeverityInfo    Severity = "INFO"
	SeverityWarning Severity = "WARNING"
	SeverityError   Severity = "ERROR"
)

// Audit resources.
const (
	ResourceAuthentication = "authentication"
	ResourceGame           = "game"
	ResourceEconomy        = "economy"
)

// AuditEvent is an append-only security and business record.
type AuditEvent struct {
	ID        uuid.UUID
	AccountID *uuid.UUID
	Action    string
	Resource  string
	Details   map[string]any
	Severity  Severity
	CreatedAt time.Time
}

// Claims are the verified contents of a session token.
type Claims struct {
	AccountID uuid.UUID
	Username  string
	IssuedAt  time.Time
	ExpiresAt time.Time
	TokenID   string // jti
}
