// Package backend defines the uniform contract every liquidity backend
// implements, whether it quotes through an external aggregator API or computes
// swaps analytically from on-chain pool state.
package backend

import (
	"context"
	"errors"

	"cosmossdk.io/math"
	"github.com/gagliardetto/solana-go"

	"solsolver/pkg/domain"
)

// Categorized errors a backend can report for a single swap request. Anything
// else is treated as an internal backend fault.
var (
	// ErrNotFound means the backend could not find a route for the order.
	ErrNotFound = errors.New("no valid swap route found")
	// ErrRateLimited maps an upstream "too many requests" signal.
	ErrRateLimited = errors.New("rate limited")
	// ErrOrderNotSupported means the backend cannot quote this order shape.
	ErrOrderNotSupported = errors.New("order type is not supported")
	// ErrUnavailable covers banned tokens and similar upstream refusals.
	ErrUnavailable = errors.New("unavailable for legal reasons")
)

// SwapOrder is the simplified view of an auction order a backend quotes for:
// a token pair, a side and the exact amount on the fixed side.
type SwapOrder struct {
	Sell solana.PublicKey
	Buy  solana.PublicKey
	Side domain.Side
	// Amount refers to the sell token for sell orders and the buy token for
	// buy orders.
	Amount math.Int
	// ToleranceBps is the price tolerance the quote is sized for, already
	// rounded to the configured bucket.
	ToleranceBps int
}

// Fixed returns the token the amount refers to.
func (o *SwapOrder) Fixed() solana.PublicKey {
	if o.Side == domain.SideBuy {
		return o.Buy
	}
	return o.Sell
}

// Call is one on-chain call of a swap, in execution order.
type Call struct {
	Target   solana.PublicKey
	Calldata []byte
}

// Swap is a backend's priced answer for a specific token conversion. Input
// and output are the expected executed assets; Calls are ordered so that any
// setup or approval call precedes the swap call that consumes it.
type Swap struct {
	Calls     []Call
	Input     domain.Asset
	Output    domain.Asset
	Allowance *domain.Allowance
	Gas       uint64
}

// Backend is a single liquidity source able to price and assemble swaps.
// Implementations must be safe for concurrent use; the solver fans out one
// Swap call per order.
type Backend interface {
	Name() string
	Swap(ctx context.Context, order *SwapOrder, tokens domain.Tokens) (*Swap, error)
}
