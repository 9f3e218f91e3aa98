package forge

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/sr-verde/gitmentario/core/config"
)

type RetryPolicy struct {
	Attempts int
	Initial  time.Duration
	Max      time.Duration
}

func RetryPolicyFrom(cfg config.PublishConfig) RetryPolicy {
	return RetryPolicy{
		Attempts: cfg.NetworkAttempts,
		Initial:  cfg.BackoffInitial,
		Max:      cfg.BackoffMax,
	}
}

// Retry runs fn until it succeeds, fails with a non-retryable error, or the
// policy's attempts are spent. The last error is returned unwrapped.
func Retry[T any](ctx context.Context, policy RetryPolicy, name string, fn func(context.Context) (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	if policy.Initial > 0 {
		b.InitialInterval = policy.Initial
	}
	if policy.Max > 0 {
		b.MaxInterval = policy.Max
	}

	attempts := policy.Attempts
	if attempts < 1 {
		attempts = 1
	}

	attempt := 0
	result, err := backoff.Retry(ctx, func() (T, error) {
		attempt++
		v, err := fn(ctx)
		if err != nil && !Retryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(attempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			slog.WarnContext(ctx, "forge call failed, retrying",
				"operation", name,
				"attempt", attempt,
				"backoff", next,
				"error", err)
		}),
	)

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Unwrap()
	}
	return result, err
}
