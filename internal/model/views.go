package model

import (
	"github.com/gofrs/uuid/v5"
	"github.com/shopspring/decimal"
)

// PlayResult is what the scoring source reports for a finished play.
type PlayResult struct {
	Score           int64
	DurationSeconds int64
	Completed       bool
	Events          []string
}

// SessionInfo is returned when a session is opened.
type SessionInfo struct {
	SessionID       uuid.UUID
	GameID          uuid.UUID
	GameTitle       string
	Difficulty      int
	TokensCharged   int64
	RemainingTokens int64
	CreatorPayout   int64
}

// GameAvailability describes whether an account may start a game and at what cost.
type GameAvailability struct {
	Game    Game
	CanPlay bool
	Cost    int64
	Reason  string
}

// LeaderboardEntry is one ranked row.
type LeaderboardEntry struct {
	Rank      int
	Username  string
	Score     int64
	GameTitle string
	Date      string // 2006-01-02
}

// GameBest is an account's best score on one game.
type GameBest struct {
	GameID    uuid.UUID
	GameTitle string
	BestScore int64
}

// UserStatistics aggregates an account's play history.
type UserStatistics struct {
	TotalSessions     int64
	TotalScore        int64
	TokensSpent       int64
	CompletedSessions int64
	CompletionRate    float64 // percent, one decimal
	Achievements      []Achievement
	BestScores        []GameBest
	GamesCreated      int64
	CreatorRevenue    decimal.Decimal
}

// SessionTotals are raw session aggregates for one account.
type SessionTotals struct {
	Sessions    int64
	Completed   int64
	TotalScore  int64
	TokensSpent int64
}

// CreatorTotals are aggregates over the games an account created.
type CreatorTotals struct {
	GamesCreated int64
	Revenue      decimal.Decimal
}
