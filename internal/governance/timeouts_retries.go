package governance

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"time"

	"github.com/polisai/cosmosclient/pkg/domain"
)

// ErrMaxRetriesExceeded reports that a throttled request ran out of attempts or wait budget.
var ErrMaxRetriesExceeded = errors.New("throttle retry budget exhausted")

// ErrRequestTimeout is the cause attached to contexts that hit the request timeout.
var ErrRequestTimeout = errors.New("request timeout exceeded")

const (
	defaultInitialBackoff = 100 * time.Millisecond
	defaultMaxBackoff     = 5 * time.Second
	defaultBackoffFactor  = 2.0
)

// RetryConfig is the throttle retry budget plus the fallback backoff used
// when a throttled response carries no retry-after hint.
type RetryConfig struct {
	MaxRetries int           // retries after the first attempt; 0 disables retrying
	MaxWait    time.Duration // total sleep allowed across all retries

	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
	Jitter            bool

	// RetryableStatusCodes lists the statuses treated as throttling.
	RetryableStatusCodes map[int]bool
}

// DefaultRetryConfig returns the client defaults: 9 attempts within 30 seconds.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:           9,
		MaxWait:              30 * time.Second,
		InitialBackoff:       defaultInitialBackoff,
		MaxBackoff:           defaultMaxBackoff,
		BackoffMultiplier:    defaultBackoffFactor,
		Jitter:               true,
		RetryableStatusCodes: map[int]bool{http.StatusTooManyRequests: true},
	}
}

// RetryConfigFromOptions derives a retry configuration from resolved policy options.
func RetryConfigFromOptions(opts domain.RetryOptions) RetryConfig {
	cfg := DefaultRetryConfig()
	cfg.MaxRetries = opts.MaxRetryAttemptsOnThrottledRequests
	cfg.MaxWait = opts.MaxRetryWaitTime()
	return cfg
}

// Attempt is the outcome of a single try as seen by the retry policy.
type Attempt struct {
	StatusCode int
	// RetryAfter is the server's back-off hint; zero means none was given.
	RetryAfter time.Duration
}

// RetryPolicy determines if and when a throttled request should be retried.
type RetryPolicy struct {
	config RetryConfig
	sleep  func(context.Context, time.Duration) error
}

// NewRetryPolicy fills unset backoff fields with defaults; a negative
// MaxRetries is treated as zero.
func NewRetryPolicy(cfg RetryConfig) *RetryPolicy {
	cfg.MaxRetries = max(cfg.MaxRetries, 0)
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = defaultInitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = defaultMaxBackoff
	}
	if cfg.BackoffMultiplier <= 0 {
		cfg.BackoffMultiplier = defaultBackoffFactor
	}
	if cfg.RetryableStatusCodes == nil {
		cfg.RetryableStatusCodes = map[int]bool{http.StatusTooManyRequests: true}
	}
	return &RetryPolicy{config: cfg, sleep: sleepContext}
}

// Config returns the effective configuration.
func (rp *RetryPolicy) Config() RetryConfig { return rp.config }

// ShouldRetry reports whether another attempt is allowed after the given attempt
// index, having already waited `waited` and needing `next` before trying again.
func (rp *RetryPolicy) ShouldRetry(statusCode int, attempt int, waited, next time.Duration) bool {
	if attempt >= rp.config.MaxRetries {
		return false
	}
	if !rp.config.RetryableStatusCodes[statusCode] {
		return false
	}
	return waited+next <= rp.config.MaxWait
}

// CalculateBackoff returns the delay before the next attempt. A server hint wins
// over the computed exponential delay.
func (rp *RetryPolicy) CalculateBackoff(attempt int, retryAfter time.Duration) time.Duration {
	if retryAfter > 0 {
		return retryAfter
	}

	scaled := float64(rp.config.InitialBackoff) * math.Pow(rp.config.BackoffMultiplier, float64(attempt))
	delay := min(time.Duration(scaled), rp.config.MaxBackoff)
	if rp.config.Jitter && delay >= 4 {
		delay += time.Duration(rand.Int63n(int64(delay / 4))) // #nosec G404 -- jitter only
	}
	return delay
}

// Execute runs fn until it yields a non-retryable attempt or the budget runs out.
// It returns the number of retries performed. Exhaustion is reported as
// ErrMaxRetriesExceeded; errors from fn are returned as-is and never retried.
func (rp *RetryPolicy) Execute(ctx context.Context, fn func(attempt int) (Attempt, error)) (int, error) {
	var waited time.Duration

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt, err
		}

		result, err := fn(attempt)
		if err != nil {
			return attempt, err
		}

		if !rp.config.RetryableStatusCodes[result.StatusCode] {
			return attempt, nil
		}

		backoff := rp.CalculateBackoff(attempt, result.RetryAfter)
		if !rp.ShouldRetry(result.StatusCode, attempt, waited, backoff) {
			return attempt, fmt.Errorf("%w: status %d after %d retries", ErrMaxRetriesExceeded, result.StatusCode, attempt)
		}

		if err := rp.sleep(ctx, backoff); err != nil {
			return attempt, err
		}
		waited += backoff
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// TimeoutManager enforces the per-request timeout of a connection policy.
type TimeoutManager struct {
	requestTimeout time.Duration
}

// NewTimeoutManager creates a timeout manager. A non-positive timeout disables the deadline.
func NewTimeoutManager(requestTimeout time.Duration) *TimeoutManager {
	return &TimeoutManager{requestTimeout: requestTimeout}
}

// RequestTimeout returns the configured timeout.
func (tm *TimeoutManager) RequestTimeout() time.Duration {
	return tm.requestTimeout
}

// WithRequestTimeout creates a context bounded by the request timeout.
func (tm *TimeoutManager) WithRequestTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if tm.requestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeoutCause(ctx, tm.requestTimeout, ErrRequestTimeout)
}
