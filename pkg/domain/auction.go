package domain

import (
	"time"

	"cosmossdk.io/math"
	"github.com/gagliardetto/solana-go"
)

// Side is the trading side of an order.
type Side int

const (
	// SideSell orders have a fixed sell amount and a minimum buy amount.
	SideSell Side = iota
	// SideBuy orders have a fixed buy amount and a maximum sell amount.
	SideBuy
)

func (s Side) String() string {
	if s == SideBuy {
		return "buy"
	}
	return "sell"
}

// Class is the order classification.
type Class int

const (
	ClassMarket Class = iota
	ClassLimit
)

// Asset is an amount of a specific token.
type Asset struct {
	Token  solana.PublicKey
	Amount math.Int
}

// Order is a single user's request to convert one token into another under a
// limit price. The limit price is encoded by the sell/buy amount pair: for a
// sell order the buy amount is the minimum acceptable output, for a buy order
// the sell amount is the maximum acceptable input.
type Order struct {
	UID               string
	Sell              Asset
	Buy               Asset
	Side              Side
	Class             Class
	PartiallyFillable bool
}

// Token holds the on-chain reference data for a token in the auction.
type Token struct {
	Decimals         uint8
	ReferencePrice   math.Int
	AvailableBalance math.Int
}

// Tokens maps token addresses to their auction reference data.
type Tokens map[solana.PublicKey]Token

// ReferencePrice returns the reference price for a token, or false if the
// auction does not carry one.
func (t Tokens) ReferencePrice(token solana.PublicKey) (math.Int, bool) {
	entry, ok := t[token]
	if !ok || entry.ReferencePrice.IsNil() || !entry.ReferencePrice.IsPositive() {
		return math.ZeroInt(), false
	}
	return entry.ReferencePrice, true
}

// Auction is one batch of orders plus market context and a deadline. It is
// created per incoming request, owned by the solve call that produced it and
// never mutated.
type Auction struct {
	ID       string
	Tokens   Tokens
	Orders   []Order
	Deadline time.Time
}
