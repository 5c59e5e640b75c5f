package config

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

const strongSecret = "Zq8#pL2!vR9@xT4$mN7%kW1^cY6&bH3*"

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", strongSecret)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, cfg.TokenTTL)
	assert.Equal(t, int64(100), cfg.StartingTokens)
	assert.True(t, cfg.CreatorRevenueShare.Equal(decimal.RequireFromString("0.35")))
	assert.Equal(t, BackendPostgres, cfg.LimiterBackend)
	assert.Equal(t, BackendPostgres, cfg.ThreatBackend)
	assert.Equal(t, 5, cfg.MaxFailures)
	assert.Equal(t, 5*time.Minute, cfg.LockoutWindow)
	assert.Equal(t, 90*24*time.Hour, cfg.AuditRetention)
	assert.Equal(t, "@daily", cfg.MaintenanceSchedule)
	assert.Equal(t, zapcore.InfoLevel, cfg.Level())
	assert.False(t, cfg.Production())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", strongSecret)
	t.Setenv("TOKEN_TTL", "2h")
	t.Setenv("DEFAULT_TOKENS", "50")
	t.Setenv("CREATOR_REVENUE_SHARE", "0.5")
	t.Setenv("RATE_LIMIT_BACKEND", " Redis ")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Hour, cfg.TokenTTL)
	assert.Equal(t, int64(50), cfg.StartingTokens)
	assert.Equal(t, "0.5", cfg.CreatorRevenueShare.String())
	assert.Equal(t, BackendRedis, cfg.LimiterBackend)
	assert.Equal(t, zapcore.DebugLevel, cfg.Level())
}

func TestLoad_Errors(t *testing.T) {
	cases := map[string]map[string]string{
		"missing secret":    {},
		"share above one":   {"JWT_SECRET_KEY": strongSecret, "CREATOR_REVENUE_SHARE": "1.5"},
		"redis without url": {"JWT_SECRET_KEY": strongSecret, "THREAT_BACKEND": "redis"},
		"unknown backend":   {"JWT_SECRET_KEY": strongSecret, "RATE_LIMIT_BACKEND": "etcd"},
		"bad level":         {"JWT_SECRET_KEY": strongSecret, "LOG_LEVEL": "loud"},
		"bad duration":      {"JWT_SECRET_KEY": strongSecret, "TOKEN_TTL": "soon"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("JWT_SECRET_KEY", "")
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
		})
	}
}

func TestSecurityIssues(t *testing.T) {
	cfg := &Config{
		JWTSecret:      strongSecret,
		TokenTTL:       24 * time.Hour,
		DatabaseDSN:    "postgres://svc:pw@db.internal:5432/arcadia?sslmode=verify-full",
		Environment:    "development",
		LogLevel:       "info",
		LimiterBackend: BackendMemory,
	}
	assert.Empty(t, cfg.SecurityIssues())

	cfg.JWTSecret = "secret"
	cfg.TokenTTL = 200 * time.Hour
	issues := strings.Join(cfg.SecurityIssues(), "\n")
	assert.Contains(t, issues, "too short")
	assert.Contains(t, issues, "weak or default")
	assert.Contains(t, issues, "longer than one week")

	cfg = &Config{
		JWTSecret:      strongSecret,
		TokenTTL:       time.Hour,
		DatabaseDSN:    defaultDSN,
		Environment:    EnvProduction,
		LogLevel:       "debug",
		LimiterBackend: BackendMemory,
		ThreatBackend:  BackendMemory,
	}
	issues = strings.Join(cfg.SecurityIssues(), "\n")
	assert.Contains(t, issues, "default credentials")
	assert.Contains(t, issues, "localhost in production")
	assert.Contains(t, issues, "TLS")
	assert.Contains(t, issues, "debug logging")
	assert.Contains(t, issues, "in-memory rate limiting is not shared")
	assert.Contains(t, issues, "in-memory threat counters are not shared")
}

func TestEntropy(t *testing.T) {
	assert.Equal(t, 0.0, entropy(""))
	assert.Equal(t, 0.0, entropy("aaaa"))
	assert.InDelta(t, 1.0, entropy("abab"), 1e-9)
	assert.Greater(t, entropy(strongSecret), minEntropyBits)
}
