package limiter

import (
	"context"
	"errors"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Redis is a limiter shared between processes. Each identifier is a hash
// with fields count and last (unix milliseconds) that expires after the window.
type Redis struct {
	client redis.Cmdable
	policy Policy
	prefix string
	now    func() time.Time
}

// NewRedis constructs a Redis-backed limiter. A nil clock means time.Now.
func NewRedis(client redis.Cmdable, p Policy, now func() time.Time) *Redis {
	if now == nil {
		now = time.Now
	}
	return &Redis{client: client, policy: p.normalized(), prefix: "arcadia:limiter:", now: now}
}

func (l *Redis) key(id string) string { return l.prefix + id }

// Allow reports whether id is currently allowed.
func (l *Redis) Allow(ctx context.Context, id string) (bool, error) {
	if l == nil || l.client == nil {
		return false, errors.New("redis limiter not configured")
	}
	vals, err := l.client.HMGet(ctx, l.key(id), "count", "last").Result()
	if err != nil {
		return false, err
	}
	count, last, ok := parseRecord(vals)
	if !ok {
		return true, nil
	}
	now := l.now()
	if now.Sub(last) >= l.policy.Window {
		return true, l.client.Del(ctx, l.key(id)).Err()
	}
	return !l.policy.locked(count, last, now), nil
}

// Failure increments the failure count for id and refreshes the expiry.
func (l *Redis) Failure(ctx context.Context, id string) error {
	if l == nil || l.client == nil {
		return errors.New("redis limiter not configured")
	}
	key := l.key(id)
	now := l.now()
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, key, "count", 1)
		pipe.HSet(ctx, key, "last", now.UnixMilli())
		pipe.PExpire(ctx, key, l.policy.Window)
		return nil
	})
	return err
}

// Success removes the record for id.
func (l *Redis) Success(ctx context.Context, id string) error {
	if l == nil || l.client == nil {
		return errors.New("redis limiter not configured")
	}
	return l.client.Del(ctx, l.key(id)).Err()
}

func parseRecord(vals []any) (int, time.Time, bool) {
	if len(vals) != 2 || vals[0] == nil || vals[1] == nil {
		return 0, time.Time{}, false
	}
	cs, _ := vals[0].(string)
	ls, _ := vals[1].(string)
	count, err := strconv.Atoi(cs)
	if err != nil {
		return 0, time.Time{}, false
	}
	ms, err := strconv.ParseInt(ls, 10, 64)
	if err != nil {
		return 0, time.Time{}, false
	}
	return count, time.UnixMilli(ms), true
}
