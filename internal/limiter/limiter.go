// Package limiter provides brute-force protection for credential checks.
package limiter

import (
	"context"
	"time"
)

// Default lockout policy.
const (
	DefaultMaxFailures = 5
	DefaultWindow      = 300 * time.Second
)

// Limiter tracks failed attempts per identifier (an email) and locks it out
// once the threshold is reached within the window.
type Limiter interface {
	// Allow reports whether another attempt is permitted for id.
	Allow(ctx context.Context, id string) (bool, error)
	// Failure records a failed attempt for id.
	Failure(ctx context.Context, id string) error
	// Success clears the failure record for id.
	Success(ctx context.Context, id string) error
}

// Policy is the lockout threshold and window shared by all backends.
type Policy struct {
	MaxFailures int
	Window      time.Duration
}

// DefaultPolicy returns 5 failures within 300 seconds.
func DefaultPolicy() Policy {
	return Policy{MaxFailures: DefaultMaxFailures, Window: DefaultWindow}
}

func (p Policy) normalized() Policy {
	if p.MaxFailures <= 0 {
		p.MaxFailures = DefaultMaxFailures
	}
	if p.Window <= 0 {
		p.Window = DefaultWindow
	}
	return p
}

// locked reports whether a record with count failures, the last at last, is locked at now.
func (p Policy) locked(count int, last, now time.Time) bool {
	return count >= p.MaxFailures && now.Sub(last) < p.Window
}
