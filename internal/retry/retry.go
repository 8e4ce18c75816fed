// Package retry wraps every outbound vendor call and every optimistic update
// in one place.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrConflict is returned by a CompareAndSwap save func when the stored
// version moved underneath it.
var ErrConflict = errors.New("version conflict")

type Options struct {
	Attempts     int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	// Notify is called before each sleep with the error that triggered it.
	Notify func(err error, next time.Duration)
}

func DefaultOptions() Options {
	return Options{
		Attempts:     2,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
	}
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

// Do calls fn up to opts.Attempts times, doubling the delay between tries.
func Do(ctx context.Context, opts Options, fn func(ctx context.Context) error) error {
	if opts.Attempts <= 0 {
		opts.Attempts = 1
	}
	if opts.InitialDelay <= 0 {
		opts.InitialDelay = DefaultOptions().InitialDelay
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = opts.InitialDelay
	eb.Multiplier = 2
	eb.RandomizationFactor = 0
	eb.MaxElapsedTime = 0
	if opts.MaxDelay > 0 {
		eb.MaxInterval = opts.MaxDelay
	}

	var b backoff.BackOff = backoff.WithMaxRetries(eb, uint64(opts.Attempts-1))
	b = backoff.WithContext(b, ctx)

	op := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		return fn(ctx)
	}
	if opts.Notify != nil {
		return backoff.RetryNotify(op, b, opts.Notify)
	}
	return backoff.Retry(op, b)
}

// CompareAndSwap runs load -> apply -> save, refetching and reapplying when
// save reports ErrConflict, at most attempts times.
func CompareAndSwap[T any](
	ctx context.Context,
	attempts int,
	load func(ctx context.Context) (T, error),
	apply func(v T) error,
	save func(ctx context.Context, v T) error,
) error {
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		v, err := load(ctx)
		if err != nil {
			return err
		}
		if err := apply(v); err != nil {
			return err
		}
		err = save(ctx, v)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrConflict) {
			return err
		}
		lastErr = err
	}
	return lastErr
}
