// Package audit records security and business events in an append-only trail.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/and161185/arcadia/internal/metrics"
	"github.com/and161185/arcadia/internal/model"
	"github.com/and161185/arcadia/internal/repository"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
)

// Actions written by the auth and economy services.
const (
	UserRegistered           = "USER_REGISTERED"
	RegistrationFailed       = "REGISTRATION_FAILED"
	RegistrationRateLimited  = "REGISTRATION_RATE_LIMITED"
	RegistrationError        = "REGISTRATION_ERROR"
	LoginRateLimited         = "LOGIN_RATE_LIMITED"
	LoginFailedUserNotFound  = "LOGIN_FAILED_USER_NOT_FOUND"
	LoginFailedWrongPassword = "LOGIN_FAILED_WRONG_PASSWORD"
	LoginSuccess             = "LOGIN_SUCCESS"
	LoginError               = "LOGIN_ERROR"
	Logout                   = "LOGOUT"
	PasswordChanged          = "PASSWORD_CHANGED"
	PasswordChangeFailed     = "PASSWORD_CHANGE_FAILED"
	GameSessionStarted       = "GAME_SESSION_STARTED"
	GameSessionDenied        = "GAME_SESSION_DENIED"
	GameSessionStartError    = "GAME_SESSION_START_ERROR"
	GameSessionCompleted     = "GAME_SESSION_COMPLETED"
	GameSessionEndError      = "GAME_SESSION_END_ERROR"
	GamePublished            = "GAME_PUBLISHED"
	GamePublishError         = "GAME_PUBLISH_ERROR"
	TokensPurchased          = "TOKENS_PURCHASED"
	TokenPurchaseError       = "TOKEN_PURCHASE_ERROR"
	SecurityThreatDetected   = "SECURITY_THREAT_DETECTED"
)

// Sink writes audit events through the audit repository and mirrors them to the log.
type Sink struct {
	repo repository.AuditRepository
	log  *zap.Logger
	now  func() time.Time
}

// NewSink constructs a sink. A nil clock means time.Now.
func NewSink(repo repository.AuditRepository, log *zap.Logger, now func() time.Time) *Sink {
	if log == nil {
		log = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	return &Sink{repo: repo, log: log, now: now}
}

// Record appends the event. Inside a unit of work it commits or rolls back with it.
func (s *Sink) Record(ctx context.Context, e model.AuditEvent) error {
	if err := s.fill(&e); err != nil {
		return err
	}
	if err := s.repo.Append(ctx, &e); err != nil {
		metrics.AuditFailures.Inc()
		return fmt.Errorf("append audit event %s: %w", e.Action, err)
	}
	metrics.AuditEvents.WithLabelValues(string(e.Severity)).Inc()
	s.mirror(e)
	return nil
}

// Emit appends the event on a best-effort basis; a storage failure is only logged.
// Use it for failure paths whose unit of work was rolled back.
func (s *Sink) Emit(ctx context.Context, e model.AuditEvent) {
	if err := s.Record(ctx, e); err != nil {
		s.log.Error("audit event lost", zap.String("action", e.Action), zap.Error(err))
	}
}

func (s *Sink) fill(e *model.AuditEvent) error {
	if e.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return err
		}
		e.ID = id
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	if e.Severity == "" {
		e.Severity = model.SeverityInfo
	}
	e.Details = MaskDetails(e.Details)
	return nil
}

func (s *Sink) mirror(e model.AuditEvent) {
	fields := []zap.Field{
		zap.String("action", e.Action),
		zap.String("resource", e.Resource),
		zap.Any("details", e.Details),
	}
	if e.AccountID != nil {
		fields = append(fields, zap.String("account_id", e.AccountID.String()))
	}
	switch e.Severity {
	case model.SeverityError:
		s.log.Error("audit", fields...)
	case model.SeverityWarning:
		s.log.Warn("audit", fields...)
	default:
		s.log.Info("audit", fields...)
	}
}

// Info builds an INFO event.
func Info(action, resource string, accountID *uuid.UUID, details map[string]any) model.AuditEvent {
	return model.AuditEvent{Action: action, Resource: resource, AccountID: accountID, Details: details, Severity: model.SeverityInfo}
}

// Warning builds a WARNING event.
func Warning(action, resource string, accountID *uuid.UUID, details map[string]any) model.AuditEvent {
	return model.AuditEvent{Action: action, Resource: resource, AccountID: accountID, Details: details, Severity: model.SeverityWarning}
}

// Error builds an ERROR event.
func Error(action, resource string, accountID *uuid.UUID, details map[string]any) model.AuditEvent {
	return model.AuditEvent{Action: action, Resource: resource, AccountID: accountID, Details: details, Severity: model.SeverityError}
}
