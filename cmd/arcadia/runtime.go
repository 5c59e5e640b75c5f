package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/and161185/arcadia/internal/app"
	"github.com/and161185/arcadia/internal/audit"
	"github.com/and161185/arcadia/internal/config"
	"github.com/and161185/arcadia/internal/jobs"
	"github.com/and161185/arcadia/internal/limiter"
	"github.com/and161185/arcadia/internal/metrics"
	"github.com/and161185/arcadia/internal/play"
	"github.com/and161185/arcadia/internal/repository"
	"github.com/and161185/arcadia/internal/repository/postgres"
	"github.com/and161185/arcadia/internal/service"
	"github.com/and161185/arcadia/internal/threat"
	"github.com/and161185/arcadia/internal/token"
)

// Backend is an opened storage backend.
type Backend struct {
	Store repository.Store
	// DB is set for PostgreSQL and backs the postgres limiter and threat window.
	DB *postgres.DB
	// Shared is in-process limiter and window state that outlives a single
	// command. The memory backends refuse to run without it.
	Shared *SharedState
	Close  func()
}

// SharedState is in-process abuse-protection state owned by a long-lived caller.
type SharedState struct {
	Limiter *limiter.Memory
	Window  *threat.MemoryWindow
}

// errPerProcess is returned when a memory backend is selected for a one-shot command.
var errPerProcess = errors.New("memory backends only live for one command; use postgres or redis")

// Deps are injectable collaborators of the CLI. Zero fields use the defaults.
type Deps struct {
	// OpenBackend opens storage. Default: PostgreSQL at DATABASE_URL, waiting for it to come up.
	OpenBackend func(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Backend, error)
	// Generator produces play results. Default: a randomly seeded play.RandomGenerator.
	Generator play.Generator
	// Now is the clock. Default: time.Now.
	Now func() time.Time
	// Log overrides the logger built from LOG_LEVEL and ENVIRONMENT.
	Log *zap.Logger
}

func (d Deps) withDefaults() Deps {
	if d.OpenBackend == nil {
		d.OpenBackend = openPostgres
	}
	if d.Generator == nil {
		d.Generator = play.NewRandomGenerator(rand.Uint64(), rand.Uint64())
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

// runtime is everything one command invocation needs.
type runtime struct {
	cfg      *config.Config
	log      *zap.Logger
	now      func() time.Time
	backend  *Backend
	tokens   *token.Service
	window   jobs.Pruner // nil for THREAT_BACKEND=redis, where keys expire on their own
	registry *prometheus.Registry
	arcade   *app.Arcade
	closers  []func()
}

func (r *runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	zc := zap.NewDevelopmentConfig()
	if cfg.Production() {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(cfg.Level())
	return zc.Build()
}

func openRuntime(ctx context.Context, cfg *config.Config, deps Deps) (*runtime, error) {
	rt := &runtime{cfg: cfg, now: deps.Now, log: deps.Log}
	if rt.log == nil {
		l, err := newLogger(cfg)
		if err != nil {
			return nil, fmt.Errorf("build logger: %w", err)
		}
		rt.log = l
		rt.closers = append(rt.closers, func() { _ = l.Sync() })
	}

	backend, err := deps.OpenBackend(ctx, cfg, rt.log)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.backend = backend
	if backend.Close != nil {
		rt.closers = append(rt.closers, backend.Close)
	}

	var rdb *redis.Client
	if cfg.LimiterBackend == config.BackendRedis || cfg.ThreatBackend == config.BackendRedis {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		rdb = redis.NewClient(opt)
		rt.closers = append(rt.closers, func() { _ = rdb.Close() })
	}

	lim, err := newLimiter(cfg, backend, rdb, rt.now)
	if err != nil {
		rt.Close()
		return nil, err
	}

	windows, err := newWindow(cfg, backend, rdb, rt.now)
	if err != nil {
		rt.Close()
		return nil, err
	}
	if p, ok := windows.(jobs.Pruner); ok {
		rt.window = p
	}

	rt.registry = prometheus.NewRegistry()
	metrics.Register(rt.registry)

	sink := audit.NewSink(backend.Store.Audit, rt.log, rt.now)
	rt.tokens = token.NewService([]byte(cfg.JWTSecret), cfg.TokenTTL, rt.now)
	opts := []service.Option{service.WithClock(rt.now), service.WithLogger(rt.log)}

	rt.arcade = app.New(app.Deps{
		Auth:      service.NewAuthService(backend.Store, rt.tokens, lim, sink, cfg.StartingTokens, opts...),
		Economy:   service.NewEconomyService(backend.Store, sink, cfg.CreatorRevenueShare, opts...),
		Generator: deps.Generator,
		Threats:   threat.NewDetector(windows, rt.log, rt.now),
		Audit:     sink,
		Log:       rt.log,
	})
	return rt, nil
}

func newLimiter(cfg *config.Config, backend *Backend, rdb *redis.Client, now func() time.Time) (limiter.Limiter, error) {
	policy := limiter.Policy{MaxFailures: cfg.MaxFailures, Window: cfg.LockoutWindow}
	switch cfg.LimiterBackend {
	case config.BackendRedis:
		return limiter.NewRedis(rdb, policy, now), nil
	case config.BackendPostgres:
		if backend.DB == nil {
			return nil, errors.New("RATE_LIMIT_BACKEND=postgres needs the PostgreSQL store")
		}
		return limiter.NewPGWithQuerier(backend.DB.Pool, policy, now), nil
	default:
		if backend.Shared == nil || backend.Shared.Limiter == nil {
			return nil, fmt.Errorf("RATE_LIMIT_BACKEND=memory: %w", errPerProcess)
		}
		return backend.Shared.Limiter, nil
	}
}

func newWindow(cfg *config.Config, backend *Backend, rdb *redis.Client, now func() time.Time) (threat.WindowStore, error) {
	switch cfg.ThreatBackend {
	case config.BackendRedis:
		return threat.NewRedisWindow(rdb, now), nil
	case config.BackendPostgres:
		if backend.DB == nil {
			return nil, errors.New("THREAT_BACKEND=postgres needs the PostgreSQL store")
		}
		return threat.NewPGWindow(backend.DB.Pool, now), nil
	default:
		if backend.Shared == nil || backend.Shared.Window == nil {
			return nil, fmt.Errorf("THREAT_BACKEND=memory: %w", errPerProcess)
		}
		return backend.Shared.Window, nil
	}
}

// openPostgres connects to DATABASE_URL, retrying while the server is not reachable yet.
func openPostgres(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Backend, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("parse DATABASE_URL: %w", err)
	}

	var pool *pgxpool.Pool
	backoff := retry.WithMaxRetries(5, retry.NewExponential(200*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		p, err := pgxpool.NewWithConfig(ctx, pcfg)
		if err != nil {
			return err
		}
		if err := p.Ping(ctx); err != nil {
			p.Close()
			log.Warn("database not ready", zap.Error(err))
			return retry.RetryableError(err)
		}
		pool = p
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	db := &postgres.DB{Pool: pool}
	return &Backend{Store: postgres.NewStore(db), DB: db, Close: db.Close}, nil
}
