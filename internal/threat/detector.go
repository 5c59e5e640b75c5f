// Package threat holds heuristic abuse detectors. Detections are advisory:
// they are logged, counted and kept in an incident log, but never block a caller.
package threat

import (
	"context"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/and161185/arcadia/internal/audit"
	"github.com/and161185/arcadia/internal/metrics"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
)

// Incident types.
const (
	TypeBotFarming   = "bot_farming"
	TypeCheating     = "cheating"
	TypeAbusePattern = "abuse_pattern"
	TypePhishing     = "phishing"
)

// Actions understood by DetectAbusePattern.
const (
	ActionLoginAttempt   = "login_attempt"
	ActionGameStart      = "game_start"
	ActionTokenPurchase  = "token_purchase"
	ActionProfileUpdate  = "profile_update"
	ActionPasswordChange = "password_change"
)

const (
	botWindow          = time.Hour
	botMaxSessions     = 20
	botMinDuration     = 5
	botSuspiciousScore = 1000

	abuseWindow       = 10 * time.Minute
	abuseDefaultLimit = 20

	defaultScoreCeiling = 10000
	recentPeriod        = 24 * time.Hour
	maxIncidents        = 10000
)

// MaxWindow is the longest sliding window any detection uses; older hits can be pruned.
const MaxWindow = botWindow

var scoreCeilings = map[int]int64{1: 2000, 2: 5000, 3: 10000, 4: 20000, 5: 50000}

var abuseLimits = map[string]int{
	ActionLoginAttempt:   10,
	ActionGameStart:      30,
	ActionTokenPurchase:  5,
	ActionProfileUpdate:  10,
	ActionPasswordChange: 3,
}

var (
	digitRunRe       = regexp.MustCompile(`[0-9]{3,}`)
	automationAgents = []string{"bot", "crawl", "spider", "scrape", "automated", "python", "curl", "wget", "postman"}
)

// Incident is one positive detection.
type Incident struct {
	Type    string
	Details map[string]any
	At      time.Time
}

// Report summarizes the incident log.
type Report struct {
	TotalIncidents int
	ByType         map[string]int
	Recent         []Incident // last 24 hours
	GeneratedAt    time.Time
}

// Detector evaluates detection heuristics. Safe for concurrent use.
type Detector struct {
	store WindowStore
	now   func() time.Time
	log   *zap.Logger

	mu        sync.Mutex
	incidents []Incident
}

// NewDetector constructs a detector over store. A nil clock means time.Now.
func NewDetector(store WindowStore, log *zap.Logger, now func() time.Time) *Detector {
	if log == nil {
		log = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	return &Detector{store: store, now: now, log: log.Named("threat")}
}

// ScoreCeiling returns the highest plausible score for a difficulty.
func ScoreCeiling(difficulty int) int64 {
	if c, ok := scoreCeilings[difficulty]; ok {
		return c
	}
	return defaultScoreCeiling
}

// DetectBotFarming flags impossible performance or more than 20 sessions
// of one game by one account within an hour.
func (d *Detector) DetectBotFarming(ctx context.Context, accountID, gameID uuid.UUID, durationSeconds, score int64) bool {
	if durationSeconds < botMinDuration && score > botSuspiciousScore {
		d.flag(TypeBotFarming, map[string]any{
			"account_id": accountID.String(),
			"game_id":    gameID.String(),
			"duration":   durationSeconds,
			"score":      score,
			"reason":     "unrealistic_performance",
		})
		return true
	}

	n, err := d.store.Hit(ctx, fmt.Sprintf("bot:%s:%s", accountID, gameID), botWindow)
	if err != nil {
		d.log.Warn("window store unavailable", zap.String("detector", TypeBotFarming), zap.Error(err))
		return false
	}
	if n > botMaxSessions {
		d.flag(TypeBotFarming, map[string]any{
			"account_id":        accountID.String(),
			"game_id":           gameID.String(),
			"sessions_per_hour": n,
			"reason":            "excessive_play_rate",
		})
		return true
	}
	return false
}

// DetectCheating flags a score above the difficulty's ceiling.
func (d *Detector) DetectCheating(_ context.Context, accountID, gameID uuid.UUID, score int64, difficulty int) bool {
	ceiling := ScoreCeiling(difficulty)
	if score <= ceiling {
		return false
	}
	d.flag(TypeCheating, map[string]any{
		"account_id":   accountID.String(),
		"game_id":      gameID.String(),
		"score":        score,
		"max_possible": ceiling,
		"difficulty":   difficulty,
		"reason":       "impossible_score",
	})
	return true
}

// DetectAbusePattern flags an account repeating an action more often than
// the action's limit within ten minutes.
func (d *Detector) DetectAbusePattern(ctx context.Context, accountID uuid.UUID, action, resourceID string) bool {
	return d.detectAbuse(ctx, "account_id", accountID.String(), action, resourceID)
}

// DetectAbusePatternBy is DetectAbusePattern for callers that have no account,
// such as failed logins. subject must be stable and free of personal data.
func (d *Detector) DetectAbusePatternBy(ctx context.Context, subject, action, resourceID string) bool {
	return d.detectAbuse(ctx, "subject", "subject:"+subject, action, resourceID)
}

func (d *Detector) detectAbuse(ctx context.Context, field, who, action, resourceID string) bool {
	n, err := d.store.Hit(ctx, fmt.Sprintf("abuse:%s:%s", who, action), abuseWindow)
	if err != nil {
		d.log.Warn("window store unavailable", zap.String("detector", TypeAbusePattern), zap.Error(err))
		return false
	}
	limit, ok := abuseLimits[action]
	if !ok {
		limit = abuseDefaultLimit
	}
	if n <= limit {
		return false
	}
	d.flag(TypeAbusePattern, map[string]any{
		field:         who,
		"action":      action,
		"resource_id": resourceID,
		"attempts":    n,
		"limit":       limit,
		"reason":      "rate_limit_exceeded",
	})
	return true
}

// DetectPhishingAttempt flags digit-heavy emails and automation user agents.
func (d *Detector) DetectPhishingAttempt(_ context.Context, email, userAgent, ipAddress string) bool {
	var indicators []string
	if digitRunRe.MatchString(email) {
		indicators = append(indicators, "suspicious_email_pattern")
	}
	ua := strings.ToLower(userAgent)
	for _, sig := range automationAgents {
		if strings.Contains(ua, sig) {
			indicators = append(indicators, "automated_user_agent")
			break
		}
	}
	if len(indicators) == 0 {
		return false
	}
	d.flag(TypePhishing, map[string]any{
		"email":      audit.MaskEmail(email),
		"email_hash": audit.HashSensitive(email),
		"user_agent": userAgent,
		"ip_address": audit.MaskIP(ipAddress),
		"indicators": indicators,
	})
	return true
}

func (d *Detector) flag(kind string, details map[string]any) {
	inc := Incident{Type: kind, Details: details, At: d.now()}

	d.mu.Lock()
	if len(d.incidents) >= maxIncidents {
		d.incidents = slices.Delete(d.incidents, 0, len(d.incidents)-maxIncidents+1)
	}
	d.incidents = append(d.incidents, inc)
	d.mu.Unlock()

	metrics.ThreatDetections.WithLabelValues(kind).Inc()
	d.log.Warn("security alert", zap.String("type", kind), zap.Any("details", details))
}

// Incidents returns a copy of the incident log, oldest first.
func (d *Detector) Incidents() []Incident {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.incidents)
}

// Report counts incidents by type and lists those of the last 24 hours.
func (d *Detector) Report() Report {
	now := d.now()
	d.mu.Lock()
	defer d.mu.Unlock()

	r := Report{TotalIncidents: len(d.incidents), ByType: map[string]int{}, GeneratedAt: now}
	cutoff := now.Add(-recentPeriod)
	for _, inc := range d.incidents {
		r.ByType[inc.Type]++
		if inc.At.After(cutoff) {
			inc.Details = maps.Clone(inc.Details)
			r.Recent = append(r.Recent, inc)
		}
	}
	return r
}
