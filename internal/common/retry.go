package common

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// RetryableFunc is an operation that may be attempted more than once.
type RetryableFunc func() error

// RetryConfig holds the retry behavior.
type RetryConfig struct {
	maxRetries   int
	initialDelay time.Duration
	maxDelay     time.Duration
	multiplier   float64
	retryIf      func(error) bool
}

// Option configures Do.
type Option func(*RetryConfig)

// WithMaxRetries sets the number of retries after the first attempt. Default 3.
func WithMaxRetries(n int) Option {
	return func(c *RetryConfig) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

// WithInitialDelay sets the delay before the first retry. Default 1s.
func WithInitialDelay(d time.Duration) Option {
	return func(c *RetryConfig) {
		if d > 0 {
			c.initialDelay = d
		}
	}
}

// WithMaxDelay caps the delay between retries. Default 30s.
func WithMaxDelay(d time.Duration) Option {
	return func(c *RetryConfig) {
		if d > 0 {
			c.maxDelay = d
		}
	}
}

// WithMultiplier sets the backoff multiplier. Default 2.0.
func WithMultiplier(m float64) Option {
	return func(c *RetryConfig) {
		if m > 0 {
			c.multiplier = m
		}
	}
}

// WithRetryIf limits retries to errors for which fn returns true.
// A non-retryable error is returned as is, without wrapping.
func WithRetryIf(fn func(error) bool) Option {
	return func(c *RetryConfig) {
		if fn != nil {
			c.retryIf = fn
		}
	}
}

func defaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		maxRetries:   3,
		initialDelay: 1 * time.Second,
		maxDelay:     30 * time.Second,
		multiplier:   2.0,
		retryIf:      func(error) bool { return true },
	}
}

// Do runs fn, retrying failed attempts with exponential backoff until one
// succeeds, the retries are exhausted, the error is not retryable, or ctx is done.
//
//	err := common.Do(ctx, func() error {
//	    release, _, err = client.Repositories.GetLatestRelease(ctx, owner, name)
//	    return err
//	}, common.WithMaxRetries(2), common.WithRetryIf(isTransient))
func Do(ctx context.Context, fn RetryableFunc, opts ...Option) error {
	if fn == nil {
		return errors.New("retry: function cannot be nil")
	}

	cfg := defaultRetryConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	lastErr := fn()
	if lastErr == nil {
		return nil
	}
	if !cfg.retryIf(lastErr) {
		return lastErr
	}

	for attempt := 1; attempt <= cfg.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("retry aborted after %d attempts: %w", attempt, err)
		}

		timer := time.NewTimer(backoff(attempt, cfg))
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry aborted during backoff (attempt %d/%d): %w", attempt, cfg.maxRetries, ctx.Err())
		case <-timer.C:
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !cfg.retryIf(lastErr) {
			return lastErr
		}
	}

	return fmt.Errorf("retry failed after %d attempts: %w", cfg.maxRetries+1, lastErr)
}

// backoff is initialDelay * multiplier^(attempt-1), capped at maxDelay.
func backoff(attempt int, cfg *RetryConfig) time.Duration {
	delay := float64(cfg.initialDelay) * math.Pow(cfg.multiplier, float64(attempt-1))
	if delay > float64(cfg.maxDelay) {
		return cfg.maxDelay
	}
	return time.Duration(delay)
}
