package solver

import (
	"encoding/binary"

	cosmath "cosmossdk.io/math"
	"github.com/gagliardetto/solana-go"

	"solsolver/pkg/domain"
	"solsolver/pkg/quotecache"
)

// splApproveTag is the SPL token program instruction index for Approve.
const splApproveTag = 4

// Candidate is a quote that survived the limit-price check for its order.
type Candidate struct {
	Order *domain.Order
	Quote *quotecache.Quote
}

// Assemble combines the surviving candidates into a single solution. Orders
// are settled in auction order and every approval an interaction relies on is
// sequenced before the swap that spends it, so the output is deterministic for
// identical inputs. When several candidates quote the same order, the highest
// surplus wins; ties go to the fresher quote, then to the lexicographically
// smaller backend name.
func Assemble(auction *domain.Auction, candidates []*Candidate) *domain.Solution {
	best := make(map[string]*Candidate, len(candidates))
	for _, candidate := range candidates {
		if candidate == nil {
			continue
		}
		uid := candidate.Order.UID
		current, ok := best[uid]
		if !ok || betterCandidate(candidate, current) {
			best[uid] = candidate
		}
	}

	solution := domain.Empty()
	for i := range auction.Orders {
		order := &auction.Orders[i]
		candidate, ok := best[order.UID]
		if !ok {
			continue
		}
		swap := candidate.Quote.Swap

		// Re-check the hard constraint at assembly time; it is never
		// relaxed no matter where the candidate came from.
		if !domain.SatisfiesLimit(order, swap.Input.Amount, swap.Output.Amount) {
			continue
		}

		solution.Trades = append(solution.Trades, domain.Trade{
			OrderUID: order.UID,
			Executed: executedAmount(order, swap.Input.Amount, swap.Output.Amount),
		})
		if swap.Allowance != nil {
			solution.Interactions = append(solution.Interactions, approveInteraction(swap.Allowance))
		}
		for _, call := range swap.Calls {
			solution.Interactions = append(solution.Interactions, domain.Interaction{
				Target:   call.Target,
				Calldata: call.Calldata,
				Inputs:   []domain.Asset{swap.Input},
				Outputs:  []domain.Asset{swap.Output},
			})
		}
		solution.Gas += swap.Gas
		solution.Score = solution.Score.Add(scoreContribution(order, swap.Input.Amount, swap.Output.Amount, auction.Tokens))
	}
	return solution
}

func betterCandidate(a, b *Candidate) bool {
	surplusA := domain.Surplus(a.Order, a.Quote.Swap.Input.Amount, a.Quote.Swap.Output.Amount)
	surplusB := domain.Surplus(b.Order, b.Quote.Swap.Input.Amount, b.Quote.Swap.Output.Amount)
	if !surplusA.Equal(surplusB) {
		return surplusA.GT(surplusB)
	}
	if !a.Quote.FetchedAt.Equal(b.Quote.FetchedAt) {
		return a.Quote.FetchedAt.After(b.Quote.FetchedAt)
	}
	return a.Quote.Fingerprint.Backend < b.Quote.Fingerprint.Backend
}

// executedAmount is the fixed-side amount actually filled, never above what
// the order asked for.
func executedAmount(order *domain.Order, input, output cosmath.Int) cosmath.Int {
	if order.Side == domain.SideBuy {
		return cosmath.MinInt(output, order.Buy.Amount)
	}
	return cosmath.MinInt(input, order.Sell.Amount)
}

// scoreContribution values the order's surplus in the auction's reference
// unit. Tokens without a reference price contribute their raw surplus.
func scoreContribution(order *domain.Order, input, output cosmath.Int, tokens domain.Tokens) cosmath.Int {
	surplus := domain.Surplus(order, input, output)
	if surplus.IsNegative() {
		return cosmath.ZeroInt()
	}
	if price, ok := tokens.ReferencePrice(order.Buy.Token); ok {
		return surplus.Mul(price)
	}
	return surplus
}

func approveInteraction(allowance *domain.Allowance) domain.Interaction {
	data := make([]byte, 9)
	data[0] = splApproveTag
	binary.LittleEndian.PutUint64(data[1:], allowance.Asset.Amount.Uint64())
	return domain.Interaction{
		Target:   solana.TokenProgramID,
		Calldata: data,
		Inputs:   []domain.Asset{allowance.Asset},
	}
}
