package jobs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/and161185/arcadia/internal/metrics"
	"github.com/and161185/arcadia/internal/model"
	"github.com/and161185/arcadia/internal/repository"
	"github.com/and161185/arcadia/internal/repository/memory"
	"github.com/and161185/arcadia/internal/threat"
	"github.com/gofrs/uuid/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var jobNow = time.Date(2026, 5, 1, 3, 0, 0, 0, time.UTC)

type brokenAudit struct{ repository.AuditRepository }

func (brokenAudit) PurgeInfoBefore(context.Context, time.Time) (int64, error) {
	return 0, errors.New("database is read-only")
}

func appendEvent(t *testing.T, repo repository.AuditRepository, sev model.Severity, age time.Duration) {
	t.Helper()
	err := repo.Append(context.Background(), &model.AuditEvent{
		ID:        uuid.Must(uuid.NewV4()),
		Action:    "TEST_EVENT",
		Resource:  model.ResourceAuthentication,
		Severity:  sev,
		CreatedAt: jobNow.Add(-age),
	})
	require.NoError(t, err)
}

func TestRunOnce_PurgesOldInfoEventsOnly(t *testing.T) {
	store := memory.NewStore(memory.New())
	day := 24 * time.Hour
	appendEvent(t, store.Audit, model.SeverityInfo, 100*day)
	appendEvent(t, store.Audit, model.SeverityInfo, day)
	appendEvent(t, store.Audit, model.SeverityWarning, 100*day)
	appendEvent(t, store.Audit, model.SeverityError, 100*day)

	before := testutil.ToFloat64(metrics.MaintenanceRuns.WithLabelValues(JobAuditPurge, "ok"))
	s := NewScheduler(Config{AuditRetention: 90 * day}, store, nil, nil, zaptest.NewLogger(t), func() time.Time { return jobNow })
	require.NoError(t, s.RunOnce(context.Background()))

	events, err := store.Audit.ListRecent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, events, 3)
	for _, e := range events {
		if e.Severity == model.SeverityInfo {
			assert.Equal(t, jobNow.Add(-day), e.CreatedAt)
		}
	}
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.MaintenanceRuns.WithLabelValues(JobAuditPurge, "ok")))
}

func TestRunOnce_PrunesWindowAndWritesTextfile(t *testing.T) {
	now := jobNow
	store := memory.NewStore(memory.New())
	require.NoError(t, store.Games.Create(context.Background(), &model.Game{
		ID: uuid.Must(uuid.NewV4()), Title: "Pixel Snake", Policy: model.PolicyFree,
		Difficulty: 1, PlayCount: 7, Active: true, CreatedAt: jobNow,
	}))
	appendEvent(t, store.Audit, model.SeverityWarning, time.Hour)
	appendEvent(t, store.Audit, model.SeverityWarning, 3*24*time.Hour)

	win := threat.NewMemoryWindow(func() time.Time { return now })
	_, err := win.Hit(context.Background(), "bot:a:b", time.Hour)
	require.NoError(t, err)
	now = now.Add(2 * time.Hour)
	_, err = win.Hit(context.Background(), "abuse:a:login_attempt", time.Hour)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "arcadia_test_jobs_total", Help: "test"})
	reg.MustRegister(counter)
	metrics.Register(reg)
	counter.Add(3)
	out := filepath.Join(t.TempDir(), "arcadia.prom")

	s := NewScheduler(Config{WindowMaxAge: threat.MaxWindow, MetricsTextfile: out},
		store, win, reg, zaptest.NewLogger(t), func() time.Time { return jobNow })
	require.NoError(t, s.RunOnce(context.Background()))

	assert.Equal(t, 1, win.Len())
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "arcadia_test_jobs_total 3")
	assert.Contains(t, string(data), `arcadia_catalog_games{policy="free"} 1`)
	assert.Contains(t, string(data), `arcadia_catalog_plays{policy="free"} 7`)
	assert.Contains(t, string(data), `arcadia_audit_events_recent{severity="WARNING"} 1`)
	assert.Contains(t, string(data), `arcadia_audit_events_recent{severity="ERROR"} 0`)
}

func TestRunOnce_ReportsFailuresAndContinues(t *testing.T) {
	now := jobNow
	win := threat.NewMemoryWindow(func() time.Time { return now })
	_, err := win.Hit(context.Background(), "k", time.Minute)
	require.NoError(t, err)
	now = now.Add(time.Minute)

	store := memory.NewStore(memory.New())
	store.Audit = brokenAudit{store.Audit}
	before := testutil.ToFloat64(metrics.MaintenanceRuns.WithLabelValues(JobAuditPurge, "error"))
	s := NewScheduler(Config{AuditRetention: time.Hour, WindowMaxAge: time.Minute},
		store, win, nil, zaptest.NewLogger(t), func() time.Time { return jobNow.Add(time.Hour) })
	err = s.RunOnce(context.Background())
	require.ErrorContains(t, err, "read-only")
	assert.Equal(t, 0, win.Len())
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.MaintenanceRuns.WithLabelValues(JobAuditPurge, "error")))
}

func TestStart_RejectsBadSchedule(t *testing.T) {
	store := memory.NewStore(memory.New())
	s := NewScheduler(Config{Schedule: "every tuesday"}, store, nil, nil, nil, nil)
	require.Error(t, s.Start(context.Background()))

	s = NewScheduler(Config{Schedule: "@every 1h"}, store, nil, nil, nil, nil)
	require.NoError(t, s.Start(context.Background()))
	s.Stop()
}
