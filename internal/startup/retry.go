// Package startup retries the initial native helper connection so a daemon
// launched before the helper still comes up connected.
package startup

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// RetryConfig configures the exponential backoff retry behavior.
type RetryConfig struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	MaxAttempts  int
	Multiplier   float64
}

// DefaultRetryConfig matches the helper socket's reconnect backoff.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		MaxAttempts:  5,
		Multiplier:   2.0,
	}
}

// dialIndicators are the failure modes a loopback TCP dial can actually
// produce: nothing listening, a dropped listener, or a stalled handshake.
var dialIndicators = []string{
	"connection refused",
	"connection reset",
	"i/o timeout",
	"timeout",
	"network is unreachable",
}

// IsDialError reports whether err looks like the helper socket being
// unavailable, as opposed to a permanent configuration problem.
func IsDialError(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	for _, indicator := range dialIndicators {
		if strings.Contains(errStr, indicator) {
			return true
		}
	}
	return false
}

func (cfg RetryConfig) next(delay time.Duration) time.Duration {
	delay = time.Duration(float64(delay) * cfg.Multiplier)
	if delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	return delay
}

// WithRetry executes fn with exponential backoff while it keeps failing with
// dial errors. Any other error fails immediately.
func WithRetry(ctx context.Context, name string, cfg RetryConfig, fn func() error, logger *zerolog.Logger) error {
	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			if attempt > 1 {
				logger.Info().Str("operation", name).Int("attempt", attempt).
					Msg("succeeded after retry")
			}
			return nil
		}
		lastErr = err

		if !IsDialError(err) {
			logger.Error().Err(err).Str("operation", name).Msg("not a dial error, giving up")
			return err
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		logger.Warn().Err(err).Str("operation", name).
			Int("attempt", attempt).Int("maxAttempts", cfg.MaxAttempts).
			Dur("nextRetryIn", delay).Msg("helper not reachable, will retry")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = cfg.next(delay)
	}

	logger.Error().Err(lastErr).Str("operation", name).Int("attempts", cfg.MaxAttempts).
		Msg("gave up after all retries")
	return lastErr
}
