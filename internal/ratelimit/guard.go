// Package ratelimit implements the fixed-window quota guard over a shared atomic counter store.
package ratelimit

import (
	"context"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
)

// Counter is the atomic increment-with-expiry primitive the guard is built on.
// Incr must be atomic across every process sharing the store.
type Counter interface {
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, seconds int64) error
	// TTL returns the remaining lifetime in seconds; ok is false when the key has no expiry.
	TTL(ctx context.Context, key string) (seconds int64, ok bool, err error)
}

// FailOpenRecorder observes store faults that were absorbed by failing open.
type FailOpenRecorder interface {
	RecordFailOpen(ctx context.Context, op string)
}

// Result is the outcome of one quota check.
type Result struct {
	Allowed    bool
	Limit      int64
	Remaining  int64
	ResetEpoch int64
	// TotalHits is the post-increment count; zero when the check failed open.
	TotalHits int64
	// FailedOpen is set when the store could not be consulted.
	FailedOpen bool
}

// Guard composes a Counter into allow/deny decisions. It keeps no in-process state.
type Guard struct {
	counter  Counter
	clock    clock.Clock
	logger   logrus.FieldLogger
	failOpen FailOpenRecorder
}

// Option configures a Guard.
type Option func(*Guard)

// WithClock sets the time source used for reset epochs.
func WithClock(c clock.Clock) Option { return func(g *Guard) { g.clock = c } }

// WithLogger sets the logger that receives store faults.
func WithLogger(l logrus.FieldLogger) Option { return func(g *Guard) { g.logger = l } }

// WithFailOpenRecorder sets the metric sink for store faults.
func WithFailOpenRecorder(r FailOpenRecorder) Option { return func(g *Guard) { g.failOpen = r } }

// NewGuard returns a Guard over counter.
func NewGuard(counter Counter, opts ...Option) *Guard {
	g := &Guard{counter: counter, clock: clock.New(), logger: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Check counts one attempt against key and decides whether it fits in the current window.
// It never returns an error: if the store fails the attempt is allowed and the fault is logged.
func (g *Guard) Check(ctx context.Context, key string, limit, windowSeconds int64) Result {
	now := g.clock.Now().Unix()

	n, err := g.counter.Incr(ctx, key)
	if err != nil {
		return g.open(ctx, "incr", key, limit, windowSeconds, now, err)
	}

	reset := now + windowSeconds
	if n == 1 {
		if err := g.counter.Expire(ctx, key, windowSeconds); err != nil {
			return g.open(ctx, "expire", key, limit, windowSeconds, now, err)
		}
	} else {
		ttl, ok, err := g.counter.TTL(ctx, key)
		if err != nil {
			return g.open(ctx, "ttl", key, limit, windowSeconds, now, err)
		}
		if ok {
			reset = now + ttl
		} else {
			// The creator's EXPIRE was lost; bound the window instead of letting the key live forever.
			if err := g.counter.Expire(ctx, key, windowSeconds); err != nil {
				g.logger.WithError(err).WithField("key", key).Warn("ratelimit: re-arming window expiry failed")
			}
		}
	}

	remaining := limit - n
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:    n <= limit,
		Limit:      limit,
		Remaining:  remaining,
		ResetEpoch: reset,
		TotalHits:  n,
	}
}

func (g *Guard) open(ctx context.Context, op, key string, limit, windowSeconds, now int64, err error) Result {
	g.logger.WithError(err).WithFields(logrus.Fields{"key": key, "op": op}).Warn("ratelimit: counter store failed, allowing request")
	if g.failOpen != nil {
		g.failOpen.RecordFailOpen(ctx, op)
	}
	return Result{
		Allowed:    true,
		Limit:      limit,
		Remaining:  limit,
		ResetEpoch: now + windowSeconds,
		FailedOpen: true,
	}
}
