package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/arcadia/internal/config"
	"github.com/and161185/arcadia/internal/errs"
	"github.com/and161185/arcadia/internal/limiter"
	"github.com/and161185/arcadia/internal/model"
	"github.com/and161185/arcadia/internal/play"
	"github.com/and161185/arcadia/internal/repository"
	"github.com/and161185/arcadia/internal/repository/memory"
	"github.com/and161185/arcadia/internal/threat"
)

const testSecret = "Zq8#pL2!vR9@xT4$mN7%kW1^cY6&bH3*"

type harness struct {
	store  repository.Store
	shared *SharedState
	now    time.Time
	deps   Deps
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	_ = withTmpConfig(t)
	t.Setenv("JWT_SECRET_KEY", testSecret)
	t.Setenv("RATE_LIMIT_BACKEND", "memory")
	t.Setenv("THREAT_BACKEND", "memory")
	t.Setenv("ENVIRONMENT", "development")

	h := &harness{
		store: memory.NewStore(memory.New()),
		now:   time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return h.now }
	h.shared = &SharedState{
		Limiter: limiter.NewMemory(limiter.DefaultPolicy(), clock),
		Window:  threat.NewMemoryWindow(clock),
	}
	h.deps = Deps{
		OpenBackend: func(context.Context, *config.Config, *zap.Logger) (*Backend, error) {
			return &Backend{Store: h.store, Shared: h.shared}, nil
		},
		Generator: play.Fixed{Score: 1500, DurationSeconds: 60, Completed: true, Events: []string{"Level 1 cleared", "Game over!"}},
		Now:       clock,
		Log:       zaptest.NewLogger(t),
	}
	return h
}

func (h *harness) run(args ...string) (string, error) {
	cmd := NewRootCmd(h.deps)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func (h *harness) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := h.run(args...)
	require.NoError(t, err, out)
	return out
}

func (h *harness) gameID(t *testing.T, title string) string {
	t.Helper()
	games, err := h.store.Games.ListActive(context.Background())
	require.NoError(t, err)
	for _, g := range games {
		if g.Title == title {
			return g.ID.String()
		}
	}
	t.Fatalf("game %q not found", title)
	return ""
}

func TestCLI_PlayerJourney(t *testing.T) {
	h := newHarness(t)

	out := h.mustRun(t, "register", "--email", "Alice@Arcadia.io", "--username", "alice", "--password", "Str0ng!pass")
	assert.Contains(t, out, "registered alice")
	assert.Contains(t, out, "with 100 tokens")

	out = h.mustRun(t, "login", "--email", "alice@arcadia.io", "--password", "Str0ng!pass")
	assert.Contains(t, out, "logged in as alice, 100 tokens")
	_, err := os.Stat(tokenPath())
	require.NoError(t, err)

	assert.Contains(t, h.mustRun(t, "seed"), "created 8 games")
	assert.Contains(t, h.mustRun(t, "seed"), "already has games")

	out = h.mustRun(t, "games")
	assert.Contains(t, out, "Pixel Snake")
	assert.Contains(t, out, "Tetris Challenge")

	out = h.mustRun(t, "play", h.gameID(t, "Tetris Challenge"))
	assert.Contains(t, out, "playing Tetris Challenge (difficulty 3)")
	assert.Contains(t, out, "  Level 1 cleared")
	assert.Contains(t, out, "score 1500 in 60s, completed")
	assert.Contains(t, out, "charged 3 tokens, 97 left")
	assert.Contains(t, out, "achievement unlocked: Welcome to Arcadia!")

	out = h.mustRun(t, "leaderboard", "--game", h.gameID(t, "Tetris Challenge"))
	assert.Contains(t, out, "alice")
	assert.Contains(t, out, "1500")
	assert.Contains(t, out, "2026-07-01")

	out = h.mustRun(t, "stats")
	assert.Contains(t, out, "sessions:        1 (1 completed, 100.0%)")
	assert.Contains(t, out, "tokens spent:    3")

	assert.Contains(t, h.mustRun(t, "buy", "--tokens", "10", "--paid", "1.5"), "purchased 10 tokens for 1.50")
	assert.Contains(t, h.mustRun(t, "whoami"), "tokens:       107")

	out = h.mustRun(t, "history")
	assert.Contains(t, out, string(model.KindPurchase))
	assert.Contains(t, out, "+10")
	assert.Contains(t, out, "Played Tetris Challenge")

	assert.Contains(t, h.mustRun(t, "publish", "--title", "Maze Runner", "--price", "3", "--difficulty", "2"), "published Maze Runner")
	assert.Contains(t, h.mustRun(t, "passwd", "--old", "Str0ng!pass", "--new", "N3w!password"), "password changed")

	assert.Contains(t, h.mustRun(t, "logout"), "logged out")
	_, err = h.run("whoami")
	require.ErrorIs(t, err, errNoSession)
}

func TestCLI_LoginFailureStoresNothing(t *testing.T) {
	h := newHarness(t)
	h.mustRun(t, "register", "--email", "a@b.io", "--username", "alice", "--password", "Str0ng!pass")

	_, err := h.run("login", "--email", "a@b.io", "--password", "Wr0ng!pass")
	require.Error(t, err)
	_, statErr := os.Stat(tokenPath())
	require.True(t, errors.Is(statErr, os.ErrNotExist))
}

func TestCLI_LoginLockoutSpansCommands(t *testing.T) {
	h := newHarness(t)
	h.mustRun(t, "register", "--email", "a@b.io", "--username", "alice", "--password", "Str0ng!pass")

	for i := 0; i < 5; i++ {
		_, err := h.run("login", "--email", "a@b.io", "--password", "Wr0ng!pass")
		require.ErrorIs(t, err, errs.ErrInvalidCredentials, "attempt %d", i+1)
	}
	_, err := h.run("login", "--email", "a@b.io", "--password", "Str0ng!pass")
	require.ErrorIs(t, err, errs.ErrRateLimited)

	h.now = h.now.Add(5 * time.Minute)
	assert.Contains(t, h.mustRun(t, "login", "--email", "a@b.io", "--password", "Str0ng!pass"), "logged in as alice")
}

func TestCLI_ThreatCountersSpanCommands(t *testing.T) {
	h := newHarness(t)
	h.mustRun(t, "register", "--email", "a@b.io", "--username", "alice", "--password", "Str0ng!pass")
	h.mustRun(t, "login", "--email", "a@b.io", "--password", "Str0ng!pass")
	h.mustRun(t, "seed")
	snake := h.gameID(t, "Pixel Snake")

	var out string
	for i := 0; i < 21; i++ {
		out = h.mustRun(t, "play", snake)
	}
	assert.Contains(t, out, "flagged for review: "+threat.TypeBotFarming)
}

func TestCLI_ExpiredSessionIsRejected(t *testing.T) {
	h := newHarness(t)
	h.mustRun(t, "register", "--email", "a@b.io", "--username", "alice", "--password", "Str0ng!pass")
	h.mustRun(t, "login", "--email", "a@b.io", "--password", "Str0ng!pass")

	h.now = h.now.Add(25 * time.Hour)
	_, err := h.run("stats")
	require.ErrorIs(t, err, errNoSession)
}

func TestCLI_InputErrors(t *testing.T) {
	h := newHarness(t)
	h.mustRun(t, "register", "--email", "a@b.io", "--username", "alice", "--password", "Str0ng!pass")
	h.mustRun(t, "login", "--email", "a@b.io", "--password", "Str0ng!pass")

	_, err := h.run("play", "not-a-uuid")
	require.ErrorContains(t, err, "bad game id")
	_, err = h.run("buy", "--tokens", "5", "--paid", "lots")
	require.ErrorContains(t, err, "bad --paid")
	_, err = h.run("leaderboard", "--game", "x")
	require.ErrorContains(t, err, "bad --game")
	_, err = h.run("register", "--email", "b@b.io")
	require.Error(t, err, "required flags")
}

func TestCLI_ConfigErrors(t *testing.T) {
	h := newHarness(t)
	t.Setenv("JWT_SECRET_KEY", "")
	_, err := h.run("register", "--email", "a@b.io", "--username", "alice", "--password", "Str0ng!pass")
	require.ErrorContains(t, err, "JWT_SECRET_KEY")
}

func TestCLI_CheckConfig(t *testing.T) {
	h := newHarness(t)
	out := h.mustRun(t, "check-config")
	assert.Contains(t, out, "WARN: database is using default credentials")

	_, err := h.run("check-config", "--strict")
	require.ErrorContains(t, err, "security issue")

	t.Setenv("DATABASE_URL", "postgres://svc:pw@db.internal:5432/arcadia?sslmode=verify-full")
	assert.Contains(t, h.mustRun(t, "check-config", "--strict"), "configuration OK (development)")
}

func TestCLI_MaintenanceOnce(t *testing.T) {
	h := newHarness(t)
	textfile := filepath.Join(t.TempDir(), "arcadia.prom")
	t.Setenv("METRICS_TEXTFILE", textfile)

	assert.Contains(t, h.mustRun(t, "maintenance"), "maintenance done")
	data, err := os.ReadFile(textfile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "arcadia_maintenance_runs_total")
}

func TestCLI_AuditTrail(t *testing.T) {
	h := newHarness(t)
	h.mustRun(t, "register", "--email", "a@b.io", "--username", "alice", "--password", "Str0ng!pass")
	_, _ = h.run("login", "--email", "a@b.io", "--password", "Wr0ng!pass")

	out := h.mustRun(t, "audit", "--limit", "5")
	assert.Contains(t, out, "USER_REGISTERED")
	assert.Contains(t, out, "LOGIN_FAILED_WRONG_PASSWORD")
	assert.Contains(t, out, "WARNING")

	_, err := h.run("audit", "--limit", "0")
	require.ErrorContains(t, err, "bad --limit")
}

func TestOpenRuntime_Backends(t *testing.T) {
	h := newHarness(t)
	deps := h.deps.withDefaults()
	base := func() *config.Config {
		t.Setenv("JWT_SECRET_KEY", testSecret)
		cfg, err := config.Load()
		require.NoError(t, err)
		return cfg
	}

	cfg := base()
	cfg.LimiterBackend = config.BackendPostgres
	_, err := openRuntime(context.Background(), cfg, deps)
	require.ErrorContains(t, err, "needs the PostgreSQL store")

	cfg = base()
	cfg.ThreatBackend = config.BackendPostgres
	_, err = openRuntime(context.Background(), cfg, deps)
	require.ErrorContains(t, err, "THREAT_BACKEND=postgres needs the PostgreSQL store")

	cfg = base()
	cfg.ThreatBackend = config.BackendRedis
	cfg.RedisURL = "not-a-url"
	_, err = openRuntime(context.Background(), cfg, deps)
	require.ErrorContains(t, err, "REDIS_URL")

	cfg.RedisURL = "redis://localhost:6379/0"
	rt, err := openRuntime(context.Background(), cfg, deps)
	require.NoError(t, err)
	assert.Nil(t, rt.window)
	rt.Close()

	cfg = base()
	rt, err = openRuntime(context.Background(), cfg, deps)
	require.NoError(t, err)
	assert.Same(t, h.shared.Window, rt.window)
	rt.Close()

	oneShot := deps
	oneShot.OpenBackend = func(context.Context, *config.Config, *zap.Logger) (*Backend, error) {
		return &Backend{Store: h.store}, nil
	}
	_, err = openRuntime(context.Background(), base(), oneShot)
	require.ErrorIs(t, err, errPerProcess)
}
