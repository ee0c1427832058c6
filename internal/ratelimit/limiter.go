// Package ratelimit implements the fixed-window counters that throttle sensitive
// attempt operations (start, submit, autosave, anti-cheat logging).
//
// Limits are best-effort abuse mitigation, not billing-grade quotas: the memory
// store is per process, the Redis store is shared but still tolerates clock skew
// between instances.
package ratelimit

import (
	"context"
	"errors"
	"time"
)

// Config is a window length and the number of calls allowed inside it.
type Config struct {
	Window time.Duration
	Max    int
}

// Result is the outcome of one Check.
type Result struct {
	Allowed   bool      `json:"allowed"`
	Remaining int       `json:"remaining"`
	ResetTime time.Time `json:"reset_time"`
}

// RetryAfter returns how long a denied caller should wait, rounded up to a second.
func (r Result) RetryAfter(now time.Time) time.Duration {
	d := r.ResetTime.Sub(now)
	if d <= 0 {
		return 0
	}
	return d.Truncate(time.Second) + time.Second
}

// ErrInvalidConfig is returned for a non-positive window.
var ErrInvalidConfig = errors.New("ratelimit: window must be positive")

// Store holds the counters. Hit must apply the window algorithm atomically
// for a single identifier.
type Store interface {
	Hit(ctx context.Context, identifier string, cfg Config, now time.Time) (Result, error)
}

// Limiter checks identifiers against a Store using an injected clock.
type Limiter struct {
	store Store
	now   func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New returns a Limiter over store.
func New(store Store, opts ...Option) *Limiter {
	l := &Limiter{store: store, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Now exposes the limiter's clock so callers compute Retry-After consistently.
func (l *Limiter) Now() time.Time {
	return l.now()
}

// Check counts one call for identifier. A fresh window starts when none exists
// or the stored one has reset; a full window denies without incrementing.
func (l *Limiter) Check(ctx context.Context, identifier string, cfg Config) (Result, error) {
	if cfg.Window <= 0 {
		return Result{}, ErrInvalidConfig
	}
	return l.store.Hit(ctx, identifier, cfg, l.now())
}

// CheckAction checks the preset for action keyed by subject.
func (l *Limiter) CheckAction(ctx context.Context, action Action, subject string) (Result, error) {
	cfg, ok := Presets[action]
	if !ok {
		return Result{}, errors.New("ratelimit: unknown action " + string(action))
	}
	return l.Check(ctx, Key(action, subject), cfg)
}

// entry is one identifier's window.
type entry struct {
	count     int
	resetTime time.Time
}

// apply runs the window algorithm on e in place. exists=false or an elapsed
// reset time start a new window.
func apply(e *entry, exists bool, cfg Config, now time.Time) Result {
	if !exists || !now.Before(e.resetTime) {
		e.count = 0
		e.resetTime = now.Add(cfg.Window)
	}

	if e.count >= cfg.Max {
		return Result{Allowed: false, Remaining: 0, ResetTime: e.resetTime}
	}

	e.count++
	return Result{Allowed: true, Remaining: cfg.Max - e.count, ResetTime: e.resetTime}
}
