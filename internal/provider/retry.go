package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// RateLimitError signals a provider-side 429 with an optional server-provided
// wait before the next attempt.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("provider rate limited (retry after %s)", e.RetryAfter)
}

// ServerError signals a provider-side 5xx, retried with backoff.
type ServerError struct {
	StatusCode int
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("provider server error: status %d", e.StatusCode)
}

// RetryPolicy bounds retries around one external call. Rate limits honor the
// provider's Retry-After up to a cap, server errors back off exponentially,
// anything else is surfaced to the caller immediately for its own fallback
// decision.
type RetryPolicy struct {
	MaxAttempts   int
	BaseDelay     time.Duration
	MaxRetryAfter time.Duration
}

// Do runs fn under the policy.
func (p RetryPolicy) Do(ctx context.Context, logger *slog.Logger, op string, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	baseDelay := p.BaseDelay
	if baseDelay <= 0 {
		baseDelay = 500 * time.Millisecond
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		var delay time.Duration
		var rateErr *RateLimitError
		var srvErr *ServerError
		switch {
		case errors.As(lastErr, &rateErr):
			delay = rateErr.RetryAfter
			if delay <= 0 {
				delay = baseDelay
			}
			if p.MaxRetryAfter > 0 && delay > p.MaxRetryAfter {
				delay = p.MaxRetryAfter
			}
		case errors.As(lastErr, &srvErr):
			delay = baseDelay * time.Duration(1<<uint(attempt-1))
		default:
			// Not retryable here; let the caller decide what to do.
			return lastErr
		}

		if attempt == attempts {
			break
		}

		logger.Warn("Provider call failed, retrying",
			slog.String("operation", op),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", attempts),
			slog.Duration("delay", delay),
			slog.Any("error", lastErr),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", op, attempts, lastErr)
}

// retryAfter reads the standard Retry-After header, in seconds or HTTP date
// form.
func retryAfter(resp *http.Response) time.Duration {
	value := resp.Header.Get("Retry-After")
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

// classifyStatus maps a non-200 response to the retry taxonomy.
func classifyStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return &RateLimitError{RetryAfter: retryAfter(resp)}
	case resp.StatusCode >= 500:
		return &ServerError{StatusCode: resp.StatusCode}
	default:
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
}
