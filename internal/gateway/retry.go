package gateway

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"strconv"
	"time"
)

// RetryConfig bounds the retry loop for transport failures.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryConfig is tuned for interactive chat traffic: fail fast enough
// that the user sees an error instead of a stalled typing indicator.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     8 * time.Second,
		Multiplier:   2.0,
	}
}

// retryDo runs fn with bounded exponential backoff. Only transient errors
// (see retryable) trigger another attempt; anything else is returned as-is.
// A provider-supplied Retry-After overrides the computed delay when longer.
func retryDo[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	var zero T
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(cfg, attempt)
			if ra := retryAfterOf(lastErr); ra > delay {
				delay = ra
			}
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(delay):
			}
		}

		v, err := fn()
		if err == nil {
			return v, nil
		}
		if !retryable(err) {
			return zero, err
		}
		lastErr = err
	}
	return zero, lastErr
}

// backoffDelay computes the jittered delay before the given attempt (1-based).
func backoffDelay(cfg RetryConfig, attempt int) time.Duration {
	d := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt-1))
	if d > float64(cfg.MaxDelay) {
		d = float64(cfg.MaxDelay)
	}
	// Up to 25% jitter to avoid thundering herds on shared provider limits.
	d += d * 0.25 * rand.Float64()
	return time.Duration(d)
}

func retryAfterOf(err error) time.Duration {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.RetryAfter
	}
	return 0
}

// parseRetryAfter parses the delay-seconds form of a Retry-After header.
// HTTP-date form is ignored; providers in practice send seconds.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
