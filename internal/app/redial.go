package app

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Default redial parameters.
const (
	defaultMaxRetries = 5
	defaultBackoff    = 1 * time.Second
	defaultMaxBackoff = 30 * time.Second
)

// ErrRedialExhausted is returned by [Redialer.Wait] once MaxRetries
// consecutive attempts have been used up.
var ErrRedialExhausted = errors.New("app: redial attempts exhausted")

// RedialerConfig configures a [Redialer].
type RedialerConfig struct {
	// MaxRetries is the number of consecutive attempts before giving up.
	// Defaults to 5 if zero.
	MaxRetries int

	// Backoff is the delay before the first attempt. Doubles each attempt up
	// to MaxBackoff. Defaults to 1s if zero.
	Backoff time.Duration

	// MaxBackoff is the upper limit on the delay. Defaults to 30s if zero.
	MaxBackoff time.Duration
}

// Redialer paces fresh sessions after a session ended for a reason other
// than the user stopping it. It only computes and waits out the delay; the
// caller creates the new session. A Redialer is not safe for concurrent use.
type Redialer struct {
	maxRetries int
	backoff    time.Duration
	maxBackoff time.Duration

	attempt int
	next    time.Duration
}

// NewRedialer creates a new [Redialer] with the given configuration.
func NewRedialer(cfg RedialerConfig) *Redialer {
	r := &Redialer{
		maxRetries: cfg.MaxRetries,
		backoff:    cfg.Backoff,
		maxBackoff: cfg.MaxBackoff,
	}
	if r.maxRetries <= 0 {
		r.maxRetries = defaultMaxRetries
	}
	if r.backoff <= 0 {
		r.backoff = defaultBackoff
	}
	if r.maxBackoff <= 0 {
		r.maxBackoff = defaultMaxBackoff
	}
	r.Reset()
	return r
}

// Reset starts a new cycle: the attempt count goes back to zero and the
// delay to the initial backoff. Call it once a redialled session has
// reached the active state.
func (r *Redialer) Reset() {
	r.attempt = 0
	r.next = r.backoff
}

// Attempts returns the number of attempts made in the current cycle.
func (r *Redialer) Attempts() int { return r.attempt }

// Wait blocks for the current backoff delay and then doubles it. It returns
// [ErrRedialExhausted] without waiting once the retry budget is spent, and
// ctx.Err() if ctx is done first.
func (r *Redialer) Wait(ctx context.Context) error {
	if r.attempt >= r.maxRetries {
		slog.Error("app: redial failed after max retries", "max_retries", r.maxRetries)
		return ErrRedialExhausted
	}
	r.attempt++
	delay := r.next

	slog.Info("app: attempting redial",
		"attempt", r.attempt,
		"max_retries", r.maxRetries,
		"backoff", delay,
	)

	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
	}

	r.next *= 2
	if r.next > r.maxBackoff {
		r.next = r.maxBackoff
	}
	return nil
}
