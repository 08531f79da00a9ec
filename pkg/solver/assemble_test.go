package solver

import (
	"testing"
	"time"

	"cosmossdk.io/math"
	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solsolver/pkg/backend"
	"solsolver/pkg/domain"
	"solsolver/pkg/quotecache"
)

func quoteFor(order *domain.Order, input, output int64, backendName string, fetchedAt time.Time) *quotecache.Quote {
	return &quotecache.Quote{
		Fingerprint: quotecache.Fingerprint{Backend: backendName},
		Swap: &backend.Swap{
			Calls: []backend.Call{
				{Target: solana.TokenProgramID, Calldata: []byte{1, 2, 3}},
			},
			Input:  domain.Asset{Token: order.Sell.Token, Amount: math.NewInt(input)},
			Output: domain.Asset{Token: order.Buy.Token, Amount: math.NewInt(output)},
			Gas:    100,
		},
		FetchedAt: fetchedAt,
	}
}

func TestAssembleSettlesInAuctionOrder(t *testing.T) {
	orderA := partialOrder("a", 1000)
	orderB := partialOrder("b", 2000)
	auction := &domain.Auction{
		ID:     "auction-1",
		Orders: []domain.Order{*orderA, *orderB},
	}
	now := time.Now()

	// Candidates arrive in reverse order; trades still follow auction order.
	solution := Assemble(auction, []*Candidate{
		{Order: orderB, Quote: quoteFor(orderB, 2000, 300, "test", now)},
		{Order: orderA, Quote: quoteFor(orderA, 1000, 150, "test", now)},
	})

	require.Len(t, solution.Trades, 2)
	assert.Equal(t, "a", solution.Trades[0].OrderUID)
	assert.Equal(t, "b", solution.Trades[1].OrderUID)
	assert.Equal(t, uint64(200), solution.Gas)
}

func TestAssembleSkipsLimitViolations(t *testing.T) {
	order := partialOrder("a", 1000) // limit: 1000 sell for at least 100 buy
	auction := &domain.Auction{Orders: []domain.Order{*order}}

	solution := Assemble(auction, []*Candidate{
		{Order: order, Quote: quoteFor(order, 1000, 99, "test", time.Now())},
	})

	assert.True(t, solution.IsEmpty())
	assert.True(t, solution.Score.IsZero())
}

func TestAssemblePrefersHigherSurplus(t *testing.T) {
	order := partialOrder("a", 1000)
	auction := &domain.Auction{Orders: []domain.Order{*order}}
	now := time.Now()

	solution := Assemble(auction, []*Candidate{
		{Order: order, Quote: quoteFor(order, 1000, 120, "worse", now)},
		{Order: order, Quote: quoteFor(order, 1000, 150, "better", now)},
	})

	require.Len(t, solution.Trades, 1)
	require.Len(t, solution.Interactions, 1)
	// Score is the surplus over the 100 limit, unweighted without prices.
	assert.Equal(t, int64(50), solution.Score.Int64())
}

func TestAssembleTieBreaksByFreshnessThenBackend(t *testing.T) {
	order := partialOrder("a", 1000)
	auction := &domain.Auction{Orders: []domain.Order{*order}}
	older := time.Now()
	newer := older.Add(time.Second)

	fresh := quoteFor(order, 1000, 150, "zebra", newer)
	stale := quoteFor(order, 1000, 150, "alpha", older)
	solution := Assemble(auction, []*Candidate{
		{Order: order, Quote: stale},
		{Order: order, Quote: fresh},
	})
	require.Len(t, solution.Trades, 1)

	// Same surplus and timestamp: the smaller backend name wins, regardless
	// of candidate order.
	a := quoteFor(order, 1000, 150, "alpha", older)
	b := quoteFor(order, 1000, 150, "beta", older)
	first := Assemble(auction, []*Candidate{{Order: order, Quote: a}, {Order: order, Quote: b}})
	second := Assemble(auction, []*Candidate{{Order: order, Quote: b}, {Order: order, Quote: a}})
	assert.Equal(t, first.Trades, second.Trades)
	assert.Equal(t, first.Score, second.Score)
}

func TestAssembleSequencesApprovalBeforeSwap(t *testing.T) {
	order := partialOrder("a", 1000)
	auction := &domain.Auction{Orders: []domain.Order{*order}}

	quote := quoteFor(order, 1000, 150, "test", time.Now())
	spender := solana.MustPublicKeyFromBase58("JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4")
	quote.Swap.Allowance = &domain.Allowance{
		Spender: spender,
		Asset:   domain.Asset{Token: order.Sell.Token, Amount: math.NewInt(1000)},
	}

	solution := Assemble(auction, []*Candidate{{Order: order, Quote: quote}})
	require.Len(t, solution.Interactions, 2)

	approve := solution.Interactions[0]
	assert.Equal(t, solana.TokenProgramID, approve.Target)
	require.Len(t, approve.Calldata, 9)
	assert.Equal(t, byte(splApproveTag), approve.Calldata[0])

	swap := solution.Interactions[1]
	assert.Equal(t, []byte{1, 2, 3}, swap.Calldata)
}

func TestAssembleWeighsScoreByReferencePrice(t *testing.T) {
	order := partialOrder("a", 1000)
	auction := &domain.Auction{
		Orders: []domain.Order{*order},
		Tokens: domain.Tokens{
			usdc: {ReferencePrice: math.NewInt(3)},
		},
	}

	solution := Assemble(auction, []*Candidate{
		{Order: order, Quote: quoteFor(order, 1000, 150, "test", time.Now())},
	})

	// Surplus 50 in the buy token, weighted by its reference price.
	assert.Equal(t, int64(150), solution.Score.Int64())
}

func TestAssembleCapsExecutedAmount(t *testing.T) {
	order := partialOrder("a", 1000)
	auction := &domain.Auction{Orders: []domain.Order{*order}}

	// Partial fill: only 400 of the 1000 sell amount executes.
	solution := Assemble(auction, []*Candidate{
		{Order: order, Quote: quoteFor(order, 400, 60, "test", time.Now())},
	})

	require.Len(t, solution.Trades, 1)
	assert.Equal(t, int64(400), solution.Trades[0].Executed.Int64())
}
