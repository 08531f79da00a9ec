package solver

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	cosmath "cosmossdk.io/math"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"solsolver/pkg/backend"
	"solsolver/pkg/domain"
	"solsolver/pkg/metrics"
	"solsolver/pkg/quotecache"
)

// ErrInvalidAuction marks auctions that cannot be solved at all, as opposed
// to auctions where individual orders fail.
var ErrInvalidAuction = errors.New("invalid auction")

// Config holds the solve-loop tuning knobs.
type Config struct {
	// MaxSolveDuration caps how long a single solve may run regardless of
	// the auction deadline.
	MaxSolveDuration time.Duration
	// DeadlineSlack is subtracted from the effective deadline to leave
	// time for assembling and returning the solution.
	DeadlineSlack time.Duration
	// ConcurrentRequests bounds in-flight quote requests per solve.
	ConcurrentRequests int
	// ToleranceBps is the slippage tolerance passed to the backend.
	ToleranceBps int
	// ToleranceBucketBps rounds the tolerance down to bucket boundaries so
	// nearby tolerances share cache entries. Zero disables bucketing.
	ToleranceBucketBps int
	// MinSurplusBps rejects quotes that beat the limit price by less than
	// this margin.
	MinSurplusBps int
	// SmallestPartialFill is the minimum fill worth trying, in
	// reference-price value units.
	SmallestPartialFill cosmath.Int
	// PreferFullFill disables the partial-fill ladder, quoting partially
	// fillable orders at their full amount only.
	PreferFullFill bool
}

func (c Config) withDefaults() Config {
	if c.MaxSolveDuration <= 0 {
		c.MaxSolveDuration = 5 * time.Second
	}
	if c.DeadlineSlack <= 0 {
		c.DeadlineSlack = 500 * time.Millisecond
	}
	if c.ConcurrentRequests <= 0 {
		c.ConcurrentRequests = 8
	}
	if c.ToleranceBps <= 0 {
		c.ToleranceBps = 100
	}
	if c.SmallestPartialFill.IsNil() {
		c.SmallestPartialFill = cosmath.ZeroInt()
	}
	return c
}

// Solver turns auctions into solutions by quoting each order against a single
// swap backend and assembling the successful quotes into one settlement.
type Solver struct {
	backend    backend.Backend
	cache      *quotecache.Cache
	fills      *Fills
	cfg        Config
	metrics    *metrics.Metrics
	logger     *zap.Logger
	solutionID atomic.Uint64
}

func New(b backend.Backend, cache *quotecache.Cache, cfg Config, m *metrics.Metrics, logger *zap.Logger) *Solver {
	cfg = cfg.withDefaults()
	return &Solver{
		backend: b,
		cache:   cache,
		fills:   NewFills(cfg.SmallestPartialFill),
		cfg:     cfg,
		metrics: m,
		logger:  logger,
	}
}

// Solve quotes every order in the auction concurrently and assembles the
// quotes that satisfy their limit price into a solution. Per-order failures
// are absorbed; an auction with no fillable orders yields an empty solution.
func (s *Solver) Solve(ctx context.Context, auction *domain.Auction) (*domain.Solution, error) {
	start := time.Now()
	if err := validateAuction(auction, start); err != nil {
		return nil, err
	}

	deadline := start.Add(s.cfg.MaxSolveDuration)
	if auction.Deadline.Before(deadline) {
		deadline = auction.Deadline
	}
	deadline = deadline.Add(-s.cfg.DeadlineSlack)

	sctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	candidates := make([]*Candidate, len(auction.Orders))
	group, gctx := errgroup.WithContext(sctx)
	group.SetLimit(s.cfg.ConcurrentRequests)
	for i := range auction.Orders {
		i := i
		group.Go(func() error {
			candidates[i] = s.solveOrder(gctx, &auction.Orders[i], auction.Tokens)
			return nil
		})
	}
	// Tasks never return errors, so Wait only synchronizes.
	_ = group.Wait()

	s.fills.CollectGarbage()

	solution := Assemble(auction, candidates)
	solution.ID = s.solutionID.Add(1)

	elapsed := time.Since(start)
	s.metrics.ObserveSolve(elapsed)
	s.logger.Info("auction solved",
		zap.String("auction", auction.ID),
		zap.Int("orders", len(auction.Orders)),
		zap.Int("trades", len(solution.Trades)),
		zap.String("score", solution.Score.String()),
		zap.Duration("elapsed", elapsed),
	)
	return solution, nil
}

func validateAuction(auction *domain.Auction, now time.Time) error {
	if auction == nil || len(auction.Orders) == 0 {
		return errors.Join(ErrInvalidAuction, errors.New("no orders"))
	}
	if !auction.Deadline.After(now) {
		return errors.Join(ErrInvalidAuction, errors.New("deadline already passed"))
	}
	return nil
}

// solveOrder quotes one order. It never panics out of its goroutine; backend
// faults are logged and the order is skipped.
func (s *Solver) solveOrder(ctx context.Context, order *domain.Order, tokens domain.Tokens) (candidate *Candidate) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("backend panicked",
				zap.String("order", order.UID),
				zap.Any("panic", r),
			)
			s.metrics.OrderFailed()
			candidate = nil
		}
	}()

	swapOrder := s.fills.SwapOrder(order, tokens, s.tolerance())
	if swapOrder == nil {
		s.logger.Debug("order skipped", zap.String("order", order.UID))
		return nil
	}

	fp := quotecache.Fingerprint{
		Backend:         s.backend.Name(),
		TokenIn:         swapOrder.Sell.String(),
		TokenOut:        swapOrder.Buy.String(),
		Amount:          swapOrder.Amount.String(),
		Side:            swapOrder.Side,
		ToleranceBucket: swapOrder.ToleranceBps,
	}
	quote, err := s.cache.GetOrFetch(ctx, fp, func(fctx context.Context) (swap *backend.Swap, err error) {
		// The fetch runs on a shared singleflight goroutine, so a backend
		// panic must be converted here rather than in the caller.
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("backend panic: %v", r)
			}
		}()
		return s.backend.Swap(fctx, swapOrder, tokens)
	})
	if err != nil {
		s.reportFailure(order, err)
		return nil
	}

	input, output := quote.Swap.Input.Amount, quote.Swap.Output.Amount
	if !s.satisfiesLimit(order, input, output) {
		s.logger.Debug("quote below limit price",
			zap.String("order", order.UID),
			zap.String("input", input.String()),
			zap.String("output", output.String()),
		)
		if order.PartiallyFillable && !s.cfg.PreferFullFill {
			s.fills.ReduceNextTry(order.UID)
		}
		s.metrics.OrderFailed()
		return nil
	}

	if order.PartiallyFillable {
		s.fills.IncreaseNextTry(order.UID)
	}
	s.metrics.OrderSolved()
	return &Candidate{Order: order, Quote: quote}
}

func (s *Solver) reportFailure(order *domain.Order, err error) {
	switch {
	case errors.Is(err, backend.ErrNotFound):
		if order.PartiallyFillable && !s.cfg.PreferFullFill {
			s.fills.ReduceNextTry(order.UID)
		}
		s.logger.Debug("no route found", zap.String("order", order.UID))
	case errors.Is(err, backend.ErrOrderNotSupported):
		s.logger.Debug("order not supported", zap.String("order", order.UID))
	case errors.Is(err, backend.ErrRateLimited):
		s.logger.Debug("quote rate limited", zap.String("order", order.UID))
	case errors.Is(err, quotecache.ErrBudgetExhausted):
		s.logger.Debug("quote missed deadline", zap.String("order", order.UID))
	case errors.Is(err, backend.ErrUnavailable):
		s.logger.Warn("backend unavailable", zap.String("order", order.UID), zap.Error(err))
	default:
		s.logger.Warn("quote failed", zap.String("order", order.UID), zap.Error(err))
	}
	s.metrics.OrderFailed()
}

func (s *Solver) tolerance() int {
	tolerance := s.cfg.ToleranceBps
	if bucket := s.cfg.ToleranceBucketBps; bucket > 0 {
		tolerance = tolerance / bucket * bucket
		if tolerance == 0 {
			tolerance = bucket
		}
	}
	return tolerance
}

// satisfiesLimit enforces the order limit price plus the configured minimum
// surplus margin, all in exact integer cross-multiplication.
func (s *Solver) satisfiesLimit(order *domain.Order, input, output cosmath.Int) bool {
	if s.cfg.MinSurplusBps <= 0 {
		return domain.SatisfiesLimit(order, input, output)
	}
	if !input.IsPositive() || !output.IsPositive() {
		return false
	}
	lhs := output.Mul(order.Sell.Amount).MulRaw(10_000)
	rhs := input.Mul(order.Buy.Amount).MulRaw(10_000 + int64(s.cfg.MinSurplusBps))
	return lhs.GTE(rhs)
}
