// Package jobs runs periodic maintenance on a cron schedule.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/and161185/arcadia/internal/metrics"
	"github.com/and161185/arcadia/internal/model"
	"github.com/and161185/arcadia/internal/repository"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job names used in logs and the maintenance metric.
const (
	JobAuditPurge   = "audit_purge"
	JobWindowPrune  = "threat_window_prune"
	JobSnapshot     = "state_snapshot"
	JobMetricsWrite = "metrics_textfile"
)

// snapshotPeriod is how far back the audit gauges look.
const snapshotPeriod = 24 * time.Hour

// Pruner drops sliding-window entries older than maxAge and reports how many went away.
type Pruner interface {
	Prune(ctx context.Context, maxAge time.Duration) (int64, error)
}

// Config controls what a maintenance run does.
type Config struct {
	Schedule        string
	AuditRetention  time.Duration
	WindowMaxAge    time.Duration
	MetricsTextfile string
}

// Scheduler runs maintenance jobs.
type Scheduler struct {
	cron     *cron.Cron
	cfg      Config
	store    repository.Store
	window   Pruner
	gatherer prometheus.Gatherer
	now      func() time.Time
	log      *zap.Logger
}

// NewScheduler builds a scheduler. window and gatherer may be nil, which skips their jobs.
func NewScheduler(cfg Config, store repository.Store, window Pruner, gatherer prometheus.Gatherer, log *zap.Logger, now func() time.Time) *Scheduler {
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		cron:     cron.New(cron.WithLocation(time.UTC)),
		cfg:      cfg,
		store:    store,
		window:   window,
		gatherer: gatherer,
		now:      now,
		log:      log,
	}
}

// Start registers the maintenance run on the configured schedule and starts the cron loop.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.cfg.Schedule, func() {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Error("maintenance run", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("schedule %q: %w", s.cfg.Schedule, err)
	}
	s.cron.Start()
	s.log.Info("maintenance scheduler started", zap.String("schedule", s.cfg.Schedule))
	return nil
}

// Stop stops the cron loop and waits for a running job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("maintenance scheduler stopped")
}

// RunOnce executes every job once. A failing job does not stop the others.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	var errList []error

	if s.cfg.AuditRetention > 0 {
		cutoff := s.now().Add(-s.cfg.AuditRetention)
		n, err := s.store.Audit.PurgeInfoBefore(ctx, cutoff)
		if s.done(JobAuditPurge, err) {
			s.log.Info("audit events purged", zap.Int64("removed", n), zap.Time("before", cutoff))
		} else {
			errList = append(errList, fmt.Errorf("%s: %w", JobAuditPurge, err))
		}
	}

	if s.window != nil && s.cfg.WindowMaxAge > 0 {
		n, err := s.window.Prune(ctx, s.cfg.WindowMaxAge)
		if s.done(JobWindowPrune, err) {
			s.log.Debug("threat window pruned", zap.Int64("removed", n))
		} else {
			errList = append(errList, fmt.Errorf("%s: %w", JobWindowPrune, err))
		}
	}

	if s.gatherer != nil && s.cfg.MetricsTextfile != "" {
		if err := s.snapshot(ctx); !s.done(JobSnapshot, err) {
			errList = append(errList, fmt.Errorf("%s: %w", JobSnapshot, err))
		}
		err := prometheus.WriteToTextfile(s.cfg.MetricsTextfile, s.gatherer)
		if !s.done(JobMetricsWrite, err) {
			errList = append(errList, fmt.Errorf("%s: %w", JobMetricsWrite, err))
		}
	}

	return errors.Join(errList...)
}

// snapshot sets the state gauges from storage, so that the textfile reflects
// every process that shares the database and not only this one.
func (s *Scheduler) snapshot(ctx context.Context) error {
	games, err := s.store.Games.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list games: %w", err)
	}
	counts, err := s.store.Audit.CountBySeverity(ctx, s.now().Add(-snapshotPeriod))
	if err != nil {
		return fmt.Errorf("count audit events: %w", err)
	}

	metrics.CatalogGames.Reset()
	metrics.CatalogPlays.Reset()
	for _, g := range games {
		metrics.CatalogGames.WithLabelValues(string(g.Policy)).Inc()
		metrics.CatalogPlays.WithLabelValues(string(g.Policy)).Add(float64(g.PlayCount))
	}
	metrics.RecentAuditEvents.Reset()
	for _, sev := range []model.Severity{model.SeverityInfo, model.SeverityWarning, model.SeverityError} {
		metrics.RecentAuditEvents.WithLabelValues(string(sev)).Set(float64(counts[sev]))
	}
	return nil
}

func (s *Scheduler) done(job string, err error) bool {
	status := "ok"
	if err != nil {
		status = "error"
		s.log.Warn("maintenance job failed", zap.String("job", job), zap.Error(err))
	}
	metrics.MaintenanceRuns.WithLabelValues(job, status).Inc()
	return err == nil
}
