package solver

import (
	"sync"
	"time"

	cosmath "cosmossdk.io/math"
	"github.com/gagliardetto/solana-go"

	"solsolver/pkg/backend"
	"solsolver/pkg/domain"
)

// Entries not requested for this long belong to orders that were settled
// elsewhere or expired.
const fillEntryMaxAge = 10 * time.Minute

type fillEntry struct {
	next          cosmath.Int
	total         cosmath.Int
	lastRequested time.Time
}

// Fills manages the search for a fillable amount per order. Fully fillable
// orders are always tried whole; partially fillable ones walk a ladder:
// halve the attempt after a miss, double it (capped) after a hit, restart
// from the full amount when the attempt gets too small to be worth filling.
type Fills struct {
	mu      sync.Mutex
	amounts map[string]*fillEntry
	// smallestFill is the minimum fill worth trying, denominated in
	// reference-price value units.
	smallestFill cosmath.Int
}

func NewFills(smallestFill cosmath.Int) *Fills {
	if smallestFill.IsNil() {
		smallestFill = cosmath.ZeroInt()
	}
	return &Fills{
		amounts:      make(map[string]*fillEntry),
		smallestFill: smallestFill,
	}
}

// SwapOrder returns the quote request to try next for the order, or nil when
// the order is not worth quoting right now.
func (f *Fills) SwapOrder(order *domain.Order, tokens domain.Tokens, toleranceBps int) *backend.SwapOrder {
	if order.Sell.Token.Equals(order.Buy.Token) {
		return nil
	}

	swapOrder := &backend.SwapOrder{
		Sell:         order.Sell.Token,
		Buy:          order.Buy.Token,
		Side:         order.Side,
		ToleranceBps: toleranceBps,
	}
	if order.Side == domain.SideBuy {
		swapOrder.Amount = order.Buy.Amount
	} else {
		swapOrder.Amount = order.Sell.Amount
	}
	if !order.PartiallyFillable {
		return swapOrder
	}

	total := swapOrder.Amount
	smallest := f.smallestTokenFill(swapOrder.Fixed(), tokens)
	now := time.Now()

	f.mu.Lock()
	entry, ok := f.amounts[order.UID]
	if !ok {
		entry = &fillEntry{next: total, total: total}
		f.amounts[order.UID] = entry
	}
	entry.lastRequested = now
	entry.total = total
	if entry.next.LT(smallest) {
		// The ladder converged too low; start over instead of
		// converging to zero.
		entry.next = total
	} else if entry.next.GT(total) {
		entry.next = total
	}
	amount := entry.next
	f.mu.Unlock()

	if amount.IsZero() || amount.LT(smallest) {
		return nil
	}
	swapOrder.Amount = amount
	return swapOrder
}

// smallestTokenFill converts the configured smallest fill value into token
// units using the auction's reference price, when one is known.
func (f *Fills) smallestTokenFill(token solana.PublicKey, tokens domain.Tokens) cosmath.Int {
	if f.smallestFill.IsZero() {
		return cosmath.ZeroInt()
	}
	price, ok := tokens.ReferencePrice(token)
	if !ok {
		return cosmath.ZeroInt()
	}
	return f.smallestFill.Quo(price)
}

// ReduceNextTry halves the amount tried next for the order.
func (f *Fills) ReduceNextTry(uid string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if entry, ok := f.amounts[uid]; ok {
		entry.next = entry.next.QuoRaw(2)
	}
}

// IncreaseNextTry doubles the amount tried next, capped at the order total.
// Useful when on-chain liquidity reappears and allows bigger fills.
func (f *Fills) IncreaseNextTry(uid string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if entry, ok := f.amounts[uid]; ok {
		next := entry.next.MulRaw(2)
		if next.GT(entry.total) {
			next = entry.total
		}
		entry.next = next
	}
}

// CollectGarbage drops entries for orders we have not seen in a while.
func (f *Fills) CollectGarbage() {
	now := time.Now()
	f.mu.Lock()
	defer f.mu.Unlock()
	for uid, entry := range f.amounts {
		if now.Sub(entry.lastRequested) > fillEntryMaxAge {
			delete(f.amounts, uid)
		}
	}
}
