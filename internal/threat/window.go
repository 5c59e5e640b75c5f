package threat

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	redis "github.com/redis/go-redis/v9"
)

// WindowStore counts events per key over a trailing window.
type WindowStore interface {
	// Hit records an event at the current time and returns how many events
	// for key fall inside the trailing window, this one included.
	Hit(ctx context.Context, key string, window time.Duration) (int, error)
}

// MemoryWindow is an in-process WindowStore. State is lost on restart.
type MemoryWindow struct {
	mu   sync.Mutex
	now  func() time.Time
	hits map[string][]time.Time
}

// NewMemoryWindow constructs an empty store. A nil clock means time.Now.
func NewMemoryWindow(now func() time.Time) *MemoryWindow {
	if now == nil {
		now = time.Now
	}
	return &MemoryWindow{now: now, hits: map[string][]time.Time{}}
}

// Hit implements WindowStore.
func (m *MemoryWindow) Hit(_ context.Context, key string, window time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	kept := trim(m.hits[key], now, window)
	kept = append(kept, now)
	m.hits[key] = kept
	return len(kept), nil
}

// Prune drops events older than maxAge and forgets empty keys. It returns the number of keys removed.
func (m *MemoryWindow) Prune(_ context.Context, maxAge time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var removed int64
	for k, ts := range m.hits {
		kept := trim(ts, now, maxAge)
		if len(kept) == 0 {
			delete(m.hits, k)
			removed++
			continue
		}
		m.hits[k] = kept
	}
	return removed, nil
}

// Len returns the number of tracked keys.
func (m *MemoryWindow) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.hits)
}

// trim keeps timestamps strictly younger than window. ts is sorted ascending.
func trim(ts []time.Time, now time.Time, window time.Duration) []time.Time {
	i := 0
	for i < len(ts) && now.Sub(ts[i]) >= window {
		i++
	}
	return ts[i:]
}

// RedisWindow keeps one sorted set per key, scored by unix microseconds,
// so that several processes share the same counters.
type RedisWindow struct {
	client redis.Cmdable
	prefix string
	now    func() time.Time
}

// NewRedisWindow constructs a Redis-backed store. A nil clock means time.Now.
func NewRedisWindow(client redis.Cmdable, now func() time.Time) *RedisWindow {
	if now == nil {
		now = time.Now
	}
	return &RedisWindow{client: client, prefix: "arcadia:threat:", now: now}
}

// Hit implements WindowStore.
func (w *RedisWindow) Hit(ctx context.Context, key string, window time.Duration) (int, error) {
	if w == nil || w.client == nil {
		return 0, errors.New("redis window not configured")
	}
	member, err := uuid.NewV4()
	if err != nil {
		return 0, err
	}
	k := w.prefix + key
	now := w.now()
	cutoff := strconv.FormatInt(now.Add(-window).UnixMicro(), 10)

	var card *redis.IntCmd
	_, err = w.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, k, "-inf", cutoff)
		pipe.ZAdd(ctx, k, redis.Z{Score: float64(now.UnixMicro()), Member: member.String()})
		card = pipe.ZCard(ctx, k)
		pipe.PExpire(ctx, k, window)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return int(card.Val()), nil
}

// PGWindow keeps one row per event in threat_hits, so that every process
// using the database shares the counters.
type PGWindow struct {
	db  pgQuerier
	now func() time.Time
}

type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPGWindow constructs a PostgreSQL-backed store. A nil clock means time.Now.
func NewPGWindow(db pgQuerier, now func() time.Time) *PGWindow {
	if now == nil {
		now = time.Now
	}
	return &PGWindow{db: db, now: now}
}

// Hit implements WindowStore. Expired events of key are deleted on the way.
func (w *PGWindow) Hit(ctx context.Context, key string, window time.Duration) (int, error) {
	if w == nil || w.db == nil {
		return 0, errors.New("postgres window not configured")
	}
	// The SELECT sees the snapshot taken before the CTEs run, hence the +1.
	const q = `
WITH pruned AS (DELETE FROM threat_hits WHERE key=$1 AND at <= $2),
     added AS (INSERT INTO threat_hits (key, at) VALUES ($1, $3))
SELECT count(*) + 1 FROM threat_hits WHERE key=$1 AND at > $2`
	now := w.now()
	var n int
	if err := w.db.QueryRow(ctx, q, key, now.Add(-window), now).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// Prune deletes events older than maxAge and returns how many went.
func (w *PGWindow) Prune(ctx context.Context, maxAge time.Duration) (int64, error) {
	tag, err := w.db.Exec(ctx, `DELETE FROM threat_hits WHERE at <= $1`, w.now().Add(-maxAge))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
