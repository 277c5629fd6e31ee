// Package retry wraps fallible network operations with bounded
// exponential-backoff retry. Every network-touching call in the sync
// workflow goes through a Policy.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/sayshara/oldump/pkg/constants"
	"github.com/sayshara/oldump/pkg/logging"
)

// Policy executes operations with bounded exponential backoff.
// The wait before attempt n+1 is base * 2^n, matching the upstream
// pipeline's 2^attempt-second sleeps when base is one second.
type Policy struct {
	attempts int
	base     time.Duration
	clock    clockwork.Clock
}

// Option configures a Policy.
type Option func(*Policy)

// WithAttempts sets the maximum number of attempts.
func WithAttempts(n int) Option {
	return func(p *Policy) {
		p.attempts = n
	}
}

// WithBase sets the base backoff duration.
func WithBase(d time.Duration) Option {
	return func(p *Policy) {
		p.base = d
	}
}

// WithClock sets the clock used for backoff waits.
func WithClock(clock clockwork.Clock) Option {
	return func(p *Policy) {
		p.clock = clock
	}
}

// New creates a Policy with the default bound of three attempts and a
// one second base backoff.
func New(opts ...Option) *Policy {
	p := &Policy{
		attempts: constants.MaxRetries,
		base:     constants.RetryBackoff,
		clock:    clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.attempts < 1 {
		p.attempts = 1
	}
	return p
}

// Attempts returns the configured attempt bound.
func (p *Policy) Attempts() int {
	return p.attempts
}

// Do executes fn up to the attempt bound. Each failed attempt is logged
// before the wait. The final attempt's error is propagated, never
// swallowed. A cancelled context aborts the wait immediately.
func (p *Policy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}

		if attempt == p.attempts {
			break
		}

		wait := p.base << uint(attempt)
		logging.Ctx(ctx).Warn().
			Err(err).
			Str("op", op).
			Int("attempt", attempt).
			Int("max_attempts", p.attempts).
			Dur("backoff", wait).
			Msg("Attempt failed, backing off")

		select {
		case <-p.clock.After(wait):
		case <-ctx.Done():
			return fmt.Errorf("%s interrupted after %d attempts: %w", op, attempt, ctx.Err())
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", op, p.attempts, err)
}
