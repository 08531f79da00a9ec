// Package quotecache deduplicates and throttles outbound quote requests.
//
// Concurrent solve calls asking for interchangeable quotes share one upstream
// request (single-flight), resolved quotes are served from cache until their
// TTL elapses, and every upstream call first acquires a credit from the
// backend's adaptive rate limiter.
package quotecache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"solsolver/pkg/backend"
	"solsolver/pkg/domain"
	"solsolver/pkg/metrics"
)

// ErrBudgetExhausted is returned when a caller's time budget elapses while
// waiting for a credit or a shared in-flight fetch. The fetch itself is not
// canceled; its result still lands in the cache for other waiters.
var ErrBudgetExhausted = errors.New("quote budget exhausted")

// Fingerprint identifies interchangeable quote requests. Two requests with
// equal fingerprints share cache entries and in-flight fetches.
type Fingerprint struct {
	Backend         string
	TokenIn         string
	TokenOut        string
	Amount          string
	Side            domain.Side
	ToleranceBucket int
}

func (f Fingerprint) String() string {
	return fmt.Sprintf("%s|%s|%s|%s|%s|%d", f.Backend, f.TokenIn, f.TokenOut, f.Amount, f.Side, f.ToleranceBucket)
}

// Quote is a backend's resolved answer for one fingerprint. Quotes are value
// objects: never mutated, superseded by newer fetches of the same fingerprint.
type Quote struct {
	Fingerprint Fingerprint
	Swap        *backend.Swap
	FetchedAt   time.Time
	ExpiresAt   time.Time
}

func (q *Quote) expired(now time.Time) bool {
	return !now.Before(q.ExpiresAt)
}

// FetchFunc performs the actual upstream quote request.
type FetchFunc func(ctx context.Context) (*backend.Swap, error)

// Config for a Cache.
type Config struct {
	// TTL is how long a resolved quote may be served from cache.
	TTL time.Duration
	// FetchTimeout caps a single upstream fetch, independent of any caller
	// budget.
	FetchTimeout time.Duration
	// SweepInterval is how often expired entries are evicted in the
	// background. Expired entries are additionally never served on read.
	SweepInterval time.Duration
}

func (c *Config) withDefaults() Config {
	cfg := *c
	if cfg.TTL <= 0 {
		cfg.TTL = 2 * time.Second
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 10 * time.Second
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}
	return cfg
}

// Cache is the process-wide quote cache shared by all concurrent solve calls.
type Cache struct {
	cfg     Config
	limiter *Limiter
	metrics *metrics.Metrics
	logger  *zap.Logger

	mu      sync.RWMutex
	entries map[string]*Quote
	flight  singleflight.Group
}

func New(cfg Config, limiter *Limiter, m *metrics.Metrics, logger *zap.Logger) *Cache {
	return &Cache{
		cfg:     cfg.withDefaults(),
		limiter: limiter,
		metrics: m,
		logger:  logger,
		entries: make(map[string]*Quote),
	}
}

// GetOrFetch returns a quote for the fingerprint: from cache when a fresh one
// exists, from a shared in-flight fetch when one is running, and otherwise by
// issuing the fetch itself after acquiring a rate-limit credit. The caller's
// context bounds only how long the caller waits; an issued fetch always runs
// to completion so its result can serve other fingerprint-equal requests.
func (c *Cache) GetOrFetch(ctx context.Context, fp Fingerprint, fetch FetchFunc) (*Quote, error) {
	key := fp.String()

	if q := c.lookup(key); q != nil {
		c.metrics.CacheHit()
		return q, nil
	}

	ch := c.flight.DoChan(key, func() (interface{}, error) {
		// Counted here so coalesced waiters record one miss per
		// outbound fetch, not one per caller.
		c.metrics.CacheMiss()
		return c.fetchQuote(ctx, fp, key, fetch)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Quote), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrBudgetExhausted, ctx.Err())
	}
}

// fetchQuote runs detached from the caller's deadline so a late caller
// abandoning the wait does not kill the request for everyone else.
func (c *Cache) fetchQuote(ctx context.Context, fp Fingerprint, key string, fetch FetchFunc) (*Quote, error) {
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.FetchTimeout)
	defer cancel()

	for {
		if err := c.limiter.Acquire(fctx); err != nil {
			return nil, fmt.Errorf("acquiring rate-limit credit: %w", err)
		}

		swap, err := fetch(fctx)
		if errors.Is(err, backend.ErrRateLimited) {
			// Retry within the fetch budget; the reduced refill rate is
			// the back-off.
			c.metrics.Throttled()
			c.limiter.ReportThrottle()
			c.logger.Debug("upstream throttled, backing off",
				zap.String("backend", fp.Backend),
				zap.Float64("rps", c.limiter.Rate()))
			if fctx.Err() != nil {
				return nil, err
			}
			continue
		}
		if err != nil {
			return nil, err
		}

		c.limiter.ReportSuccess()
		now := time.Now()
		q := &Quote{
			Fingerprint: fp,
			Swap:        swap,
			FetchedAt:   now,
			ExpiresAt:   now.Add(c.cfg.TTL),
		}
		c.mu.Lock()
		c.entries[key] = q
		c.mu.Unlock()
		return q, nil
	}
}

func (c *Cache) lookup(key string) *Quote {
	c.mu.RLock()
	defer c.mu.RUnlock()
	q, ok := c.entries[key]
	if !ok || q.expired(time.Now()) {
		return nil
	}
	return q
}

// Len reports the number of cached entries, expired or not.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// StartSweeper evicts expired entries periodically until ctx is done.
func (c *Cache) StartSweeper(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sweep(time.Now())
		}
	}
}

func (c *Cache) sweep(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, q := range c.entries {
		if q.expired(now) {
			delete(c.entries, key)
		}
	}
}
