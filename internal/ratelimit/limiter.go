// Package ratelimit implements a fixed-window request counter keyed by client
// identifier.
//
// Expired windows are swept lazily at the start of every check, so the
// in-memory store needs no background timer. Long-lived processes can also run
// MemoryStore.RunSweeper. Counters live in the store; with MemoryStore every
// process instance limits only its own traffic, and RedisStore shares
// counters between instances.
package ratelimit

import (
	"context"
	"time"
)

// Defaults applied by NewLimiter.
const (
	DefaultLimit  = 10
	DefaultWindow = 60 * time.Second
)

// Entry is the state of one identifier's current window.
type Entry struct {
	Count     int
	ResetTime time.Time
}

// Result is the outcome of a single check.
type Result struct {
	Allowed   bool
	Remaining int
	ResetTime time.Time
}

// RetryAfter returns the time left in the window relative to now, rounded up
// to whole seconds and never less than one second.
func (r Result) RetryAfter(now time.Time) time.Duration {
	d := r.ResetTime.Sub(now)
	if d <= 0 {
		return time.Second
	}
	return ((d + time.Second - 1) / time.Second) * time.Second
}

// Store counts requests per identifier. Take must treat its sweep, read and
// write as a single critical section.
type Store interface {
	Take(ctx context.Context, identifier string, limit int, window time.Duration, now time.Time) (Result, error)
}

// Limiter applies a fixed-window limit on top of a Store.
type Limiter struct {
	store  Store
	limit  int
	window time.Duration
	now    func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithLimit sets the number of requests allowed per window.
func WithLimit(n int) Option {
	return func(l *Limiter) {
		if n > 0 {
			l.limit = n
		}
	}
}

// WithWindow sets the window width.
func WithWindow(d time.Duration) Option {
	return func(l *Limiter) {
		if d > 0 {
			l.window = d
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// NewLimiter returns a Limiter backed by store.
func NewLimiter(store Store, opts ...Option) *Limiter {
	l := &Limiter{
		store:  store,
		limit:  DefaultLimit,
		window: DefaultWindow,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Limit returns the configured ceiling.
func (l *Limiter) Limit() int { return l.limit }

// Window returns the configured window width.
func (l *Limiter) Window() time.Duration { return l.window }

// Now returns the limiter's current time.
func (l *Limiter) Now() time.Time { return l.now() }

// Check records one request for identifier and reports whether it is allowed.
func (l *Limiter) Check(ctx context.Context, identifier string) (Result, error) {
	return l.store.Take(ctx, identifier, l.limit, l.window, l.now())
}
