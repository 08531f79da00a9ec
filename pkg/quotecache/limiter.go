package quotecache

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// LimiterConfig configures the adaptive credit policy for one backend.
type LimiterConfig struct {
	// RPS is the steady-state refill rate and the ceiling recovery converges
	// back to after throttling.
	RPS float64
	// Burst is the maximum number of credits that can accumulate.
	Burst int
	// BackoffFactor divides the refill rate on every upstream throttle
	// signal. Must be > 1.
	BackoffFactor float64
	// MinRPS is the floor the refill rate can be reduced to.
	MinRPS float64
	// RecoveryStep is added to the refill rate on sustained success, up to
	// RPS.
	RecoveryStep float64
}

func (c *LimiterConfig) withDefaults() LimiterConfig {
	cfg := *c
	if cfg.RPS <= 0 {
		cfg.RPS = 10
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.BackoffFactor <= 1 {
		cfg.BackoffFactor = 2
	}
	if cfg.MinRPS <= 0 {
		cfg.MinRPS = cfg.RPS / 16
	}
	if cfg.RecoveryStep <= 0 {
		cfg.RecoveryStep = cfg.RPS / 10
	}
	return cfg
}

// Limiter throttles outbound quote requests for a single backend. It is a
// token bucket whose refill rate backs off multiplicatively on upstream
// throttling and recovers additively on sustained success. All adjustment
// happens under the limiter's own mutex; unrelated backends never contend.
type Limiter struct {
	mu      sync.Mutex
	bucket  *rate.Limiter
	ceiling rate.Limit
	floor   rate.Limit
	backoff float64
	step    rate.Limit
}

func NewLimiter(cfg LimiterConfig) *Limiter {
	cfg = cfg.withDefaults()
	return &Limiter{
		bucket:  rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
		ceiling: rate.Limit(cfg.RPS),
		floor:   rate.Limit(cfg.MinRPS),
		backoff: cfg.BackoffFactor,
		step:    rate.Limit(cfg.RecoveryStep),
	}
}

// Acquire blocks until a credit is available or the caller's budget elapses.
// A credit is never double-spent: rate.Limiter reserves it atomically.
func (l *Limiter) Acquire(ctx context.Context) error {
	return l.bucket.Wait(ctx)
}

// ReportThrottle reduces the refill rate in response to an upstream "too many
// requests" signal.
func (l *Limiter) ReportThrottle() {
	l.mu.Lock()
	defer l.mu.Unlock()
	next := rate.Limit(float64(l.bucket.Limit()) / l.backoff)
	if next < l.floor {
		next = l.floor
	}
	l.bucket.SetLimit(next)
}

// ReportSuccess nudges the refill rate back toward the configured ceiling.
func (l *Limiter) ReportSuccess() {
	l.mu.Lock()
	defer l.mu.Unlock()
	cur := l.bucket.Limit()
	if cur >= l.ceiling {
		return
	}
	next := cur + l.step
	if next > l.ceiling {
		next = l.ceiling
	}
	l.bucket.SetLimit(next)
}

// Rate returns the current refill rate in requests per second.
func (l *Limiter) Rate() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return float64(l.bucket.Limit())
}
