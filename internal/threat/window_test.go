package threat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestMemoryWindow_HitAndExpire(t *testing.T) {
	c := &clock{t: time.Unix(1_700_000_000, 0)}
	w := NewMemoryWindow(c.Now)
	ctx := context.Background()

	n, _ := w.Hit(ctx, "k", time.Minute)
	require.Equal(t, 1, n)
	c.Advance(30 * time.Second)
	n, _ = w.Hit(ctx, "k", time.Minute)
	require.Equal(t, 2, n)

	// The first hit is exactly one window old and falls out.
	c.Advance(30 * time.Second)
	n, _ = w.Hit(ctx, "k", time.Minute)
	require.Equal(t, 2, n)

	n, _ = w.Hit(ctx, "other", time.Minute)
	require.Equal(t, 1, n)
}

func TestMemoryWindow_Prune(t *testing.T) {
	c := &clock{t: time.Unix(1_700_000_000, 0)}
	w := NewMemoryWindow(c.Now)
	ctx := context.Background()

	_, _ = w.Hit(ctx, "old", time.Hour)
	c.Advance(2 * time.Hour)
	_, _ = w.Hit(ctx, "fresh", time.Hour)

	n, err := w.Prune(ctx, time.Hour)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
	require.Equal(t, 1, w.Len())
}

func TestMemoryWindow_Concurrent(t *testing.T) {
	w := NewMemoryWindow(nil)
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = w.Hit(ctx, "k", time.Hour)
		}()
	}
	wg.Wait()
	n, _ := w.Hit(ctx, "k", time.Hour)
	require.Equal(t, 51, n)
}

func TestRedisWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	ctx := context.Background()

	c := &clock{t: time.Unix(1_700_000_000, 0)}
	w := NewRedisWindow(client, c.Now)

	for i := 1; i <= 3; i++ {
		n, err := w.Hit(ctx, "k", time.Minute)
		require.NoError(t, err)
		require.Equal(t, i, n)
		c.Advance(time.Second)
	}
	require.True(t, mr.Exists(w.prefix+"k"))
	require.Equal(t, time.Minute, mr.TTL(w.prefix+"k"))

	// 60s after the first hit: it sits exactly on the cutoff and is removed.
	c.Advance(57 * time.Second)
	n, err := w.Hit(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.Equal(t, 3, n)

	c.Advance(time.Minute)
	n, err = w.Hit(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	n, err = w.Hit(ctx, "other", time.Minute)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestRedisWindow_ServerDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	_, err := NewRedisWindow(client, nil).Hit(context.Background(), "k", time.Minute)
	require.Error(t, err)
}

func TestPGWindow_HitAndPrune(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	w := NewPGWindow(mock, func() time.Time { return now })
	ctx := context.Background()

	mock.ExpectQuery(`WITH pruned AS \(DELETE FROM threat_hits WHERE key=\$1 AND at <= \$2\),\s+added AS \(INSERT INTO threat_hits`).
		WithArgs("abuse:a:game_start", now.Add(-10*time.Minute), now).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(31))
	n, err := w.Hit(ctx, "abuse:a:game_start", 10*time.Minute)
	require.NoError(t, err)
	require.Equal(t, 31, n)

	mock.ExpectExec(`DELETE FROM threat_hits WHERE at <= \$1`).
		WithArgs(now.Add(-MaxWindow)).
		WillReturnResult(pgxmock.NewResult("DELETE", 4))
	removed, err := w.Prune(ctx, MaxWindow)
	require.NoError(t, err)
	require.Equal(t, int64(4), removed)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGWindow_NotConfigured(t *testing.T) {
	var w *PGWindow
	_, err := w.Hit(context.Background(), "k", time.Minute)
	require.Error(t, err)
}

func TestRedisWindow_NotConfigured(t *testing.T) {
	var w *RedisWindow
	_, err := w.Hit(context.Background(), "k", time.Minute)
	require.Error(t, err)
}
