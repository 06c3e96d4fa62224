// Package retry applies an explicit backoff policy to fallible calls.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Policy describes how a call is retried. Policies are plain values so
// retry semantics stay visible and testable at the call site.
type Policy struct {
	MaxAttempts  int           // total attempts, including the first
	InitialDelay time.Duration // delay before the second attempt
	MaxDelay     time.Duration // backoff ceiling
	Multiplier   float64       // backoff growth factor
}

// DefaultPolicy returns the standard 3-attempt exponential backoff.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  3,
		InitialDelay: 2 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

// Do runs fn under the policy, sleeping with exponential backoff between
// attempts. Non-retriable errors abort immediately. The operation name
// only labels log lines and error messages.
func Do(ctx context.Context, policy Policy, operation string, fn func(context.Context) error) error {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}

	var lastErr error
	delay := policy.InitialDelay

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				slog.Info("operation succeeded after retry", "operation", operation, "attempt", attempt)
			}
			return nil
		}
		lastErr = err

		if !Retriable(err) {
			return fmt.Errorf("%s: %w", operation, err)
		}
		if attempt == policy.MaxAttempts {
			break
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", operation, ctx.Err())
		}

		slog.Warn("operation failed, retrying",
			"operation", operation, "attempt", attempt, "max_attempts", policy.MaxAttempts,
			"delay", delay, "error", err)

		select {
		case <-time.After(delay):
			delay = time.Duration(float64(delay) * policy.Multiplier)
			if policy.MaxDelay > 0 && delay > policy.MaxDelay {
				delay = policy.MaxDelay
			}
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", operation, ctx.Err())
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operation, policy.MaxAttempts, lastErr)
}

// Retriable reports whether an error looks transient. Timeouts, rate
// limits, server errors, and connection problems are retried; client
// errors are not.
func Retriable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	errStr := strings.ToLower(err.Error())

	if strings.Contains(errStr, "429") || strings.Contains(errStr, "rate limit") {
		return true
	}
	if strings.Contains(errStr, "500") || strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") || strings.Contains(errStr, "504") ||
		strings.Contains(errStr, "internal server error") ||
		strings.Contains(errStr, "bad gateway") ||
		strings.Contains(errStr, "service unavailable") ||
		strings.Contains(errStr, "gateway timeout") {
		return true
	}
	if strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "temporary failure") ||
		strings.Contains(errStr, "network") {
		return true
	}
	if strings.Contains(errStr, "400") || strings.Contains(errStr, "401") ||
		strings.Contains(errStr, "403") || strings.Contains(errStr, "404") {
		return false
	}

	// Unknown errors are retried; the attempt budget bounds the damage.
	return true
}
