package governance

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimit is a token bucket budget: a sustained rate and the burst allowed above it.
type RateLimit struct {
	RequestsPerSecond int
	BurstSize         int
}

// RateLimiter keeps one token bucket per key, all sharing the same budget.
type RateLimiter struct {
	mu       sync.Mutex
	limit    RateLimit
	limiters map[string]*rate.Limiter
	now      func() time.Time
}

// NewRateLimiter creates a limiter. A non-positive rate defaults to 100 requests
// per second; a non-positive burst defaults to the rate.
func NewRateLimiter(limit RateLimit) *RateLimiter {
	if limit.RequestsPerSecond <= 0 {
		limit.RequestsPerSecond = 100
	}
	if limit.BurstSize <= 0 {
		limit.BurstSize = limit.RequestsPerSecond
	}
	return &RateLimiter{
		limit:    limit,
		limiters: make(map[string]*rate.Limiter),
		now:      time.Now,
	}
}

// Limit returns the effective budget.
func (rl *RateLimiter) Limit() RateLimit {
	return rl.limit
}

// Allow takes a token from key's bucket. When none is available it returns
// false and how long until the next token; the bucket is left untouched.
func (rl *RateLimiter) Allow(key string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	lim, ok := rl.limiters[key]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(rl.limit.RequestsPerSecond), rl.limit.BurstSize)
		rl.limiters[key] = lim
	}

	now := rl.now()
	r := lim.ReserveN(now, 1)
	wait := r.DelayFrom(now)
	if wait == 0 {
		return true, 0
	}
	r.CancelAt(now)
	return false, max(wait, time.Millisecond)
}
