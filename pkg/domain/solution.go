package domain

import (
	"cosmossdk.io/math"
	"github.com/gagliardetto/solana-go"
)

// Allowance is a token delegation a swap call relies on. The approval
// interaction granting it is always sequenced before the swap that spends it.
type Allowance struct {
	Spender solana.PublicKey
	Asset   Asset
}

// Interaction is one opaque on-chain call needed to execute a settlement.
type Interaction struct {
	Target   solana.PublicKey
	Calldata []byte
	Inputs   []Asset
	Outputs  []Asset
}

// Trade records the executed amount for one order included in a solution.
type Trade struct {
	OrderUID string
	Executed math.Int
}

// Solution is a proposed settlement: the trades it fills, the ordered
// interactions realizing them and a scalar score. A solution with no trades is
// the valid "no solution" result. Solutions are built fresh per solve call and
// never mutated after being returned.
type Solution struct {
	ID           uint64
	Trades       []Trade
	Interactions []Interaction
	Score        math.Int
	Gas          uint64
}

// Empty returns the canonical empty solution.
func Empty() *Solution {
	return &Solution{Score: math.ZeroInt()}
}

func (s *Solution) IsEmpty() bool {
	return len(s.Trades) == 0
}

// SatisfiesLimit reports whether executing input for output respects the
// order's limit price. The comparison cross-multiplies exact integers, so no
// rounding can ever favor the solution beyond the user's stated limit.
func SatisfiesLimit(order *Order, input, output math.Int) bool {
	if !input.IsPositive() || !output.IsPositive() {
		return false
	}
	// output/input >= buy/sell  <=>  output*sell >= input*buy
	return output.Mul(order.Sell.Amount).GTE(input.Mul(order.Buy.Amount))
}

// Surplus returns the amount by which a proposed execution beats the order's
// limit price, denominated in the order's buy token. Rounding is always
// against the surplus. Returns a negative value when the limit is violated.
func Surplus(order *Order, input, output math.Int) math.Int {
	if order.Sell.Amount.IsZero() {
		return math.ZeroInt()
	}
	// The minimum acceptable output for the given input, rounded up so the
	// surplus is never overstated.
	required := input.Mul(order.Buy.Amount).Add(order.Sell.Amount).Sub(math.OneInt()).Quo(order.Sell.Amount)
	return output.Sub(required)
}
