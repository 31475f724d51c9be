// Package executor wraps store mutations in retry-with-exponential-backoff.
// The attempt N delay is 2^N × base plus uniform jitter in [0, base); after
// five consecutive failures the last error is surfaced unchanged. Errors
// registered as permanent (missing documents, business-rule rejections) skip
// the retry budget entirely: re-reading a deleted product or re-checking a
// deterministic stock shortage cannot change the outcome.
package executor

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	DefaultMaxAttempts = 5
	DefaultBaseDelay   = time.Second
)

type options struct {
	maxAttempts uint
	baseDelay   time.Duration
	permanent   []error
}

type Option func(*options)

func WithMaxAttempts(n uint) Option {
	return func(o *options) { o.maxAttempts = n }
}

// WithBaseDelay overrides the 1s delay base; tests shrink it.
func WithBaseDelay(d time.Duration) Option {
	return func(o *options) { o.baseDelay = d }
}

// WithPermanent registers errors that are surfaced immediately instead of
// being retried. Matching is errors.Is against the operation's error chain.
func WithPermanent(errs ...error) Option {
	return func(o *options) { o.permanent = append(o.permanent, errs...) }
}

// stepBackoff implements the doubling-plus-jitter schedule.
type stepBackoff struct {
	base    time.Duration
	attempt int
}

func (b *stepBackoff) NextBackOff() time.Duration {
	d := time.Duration(1<<b.attempt)*b.base + rand.N(b.base)
	b.attempt++
	return d
}

func (b *stepBackoff) Reset() { b.attempt = 0 }

// Execute runs op until it succeeds, fails permanently, or exhausts the
// attempt budget. The operation may run multiple times; callers pass
// all-or-nothing store transactions or otherwise repeat-safe mutations.
func Execute[T any](ctx context.Context, op func(ctx context.Context) (T, error), opts ...Option) (T, error) {
	o := options{maxAttempts: DefaultMaxAttempts, baseDelay: DefaultBaseDelay}
	for _, apply := range opts {
		apply(&o)
	}

	wrapped := func() (T, error) {
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		for _, p := range o.permanent {
			if errors.Is(err, p) {
				return v, backoff.Permanent(err)
			}
		}
		return v, err
	}

	return backoff.Retry(ctx, wrapped,
		backoff.WithBackOff(&stepBackoff{base: o.baseDelay}),
		backoff.WithMaxTries(o.maxAttempts),
	)
}
