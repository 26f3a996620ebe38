// SPDX-License-Identifier: Apache-2.0
// Package resilience provides retry, timeout and circuit breaker helpers for
// outbound calls made by concord agents.
package resilience

import (
	stderrors "errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/jllopis/concord/pkg/config"
)

// BreakerConfig tunes a circuit breaker.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures that opens the circuit.
	MaxFailures uint32
	// Timeout is how long the circuit stays open before probing again.
	Timeout time.Duration
	// Interval clears the failure counts while closed. Zero never clears them.
	Interval time.Duration
	// IsSuccessful classifies results. Nil counts every nil error as success.
	IsSuccessful func(err error) bool
}

// DefaultBreakerConfig returns a conservative configuration.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxFailures: 5,
		Timeout:     30 * time.Second,
		Interval:    time.Minute,
	}
}

// BreakerConfigFrom converts breaker settings loaded from configuration.
func BreakerConfigFrom(cfg config.BreakerConfig) BreakerConfig {
	return BreakerConfig{
		MaxFailures: cfg.MaxFailures,
		Timeout:     cfg.Timeout,
		Interval:    cfg.Interval,
	}
}

// NewBreaker builds a named gobreaker circuit breaker that logs state changes.
func NewBreaker[T any](name string, cfg BreakerConfig, logger *slog.Logger) *gobreaker.CircuitBreaker[T] {
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = DefaultBreakerConfig().MaxFailures
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultBreakerConfig().Timeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	maxFailures := cfg.MaxFailures

	return gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		IsSuccessful: cfg.IsSuccessful,
	})
}

// IsOpen reports whether err was produced by a breaker refusing the call.
func IsOpen(err error) bool {
	return stderrors.Is(err, gobreaker.ErrOpenState) || stderrors.Is(err, gobreaker.ErrTooManyRequests)
}
