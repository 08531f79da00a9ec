// Package pool defines the interface an on-chain liquidity pool implements
// and the shared math used to quote against cached reserves.
package pool

import (
	"context"
	"encoding/binary"
	"fmt"

	cosmath "cosmossdk.io/math"
	"github.com/gagliardetto/solana-go"

	"solsolver/pkg/sol"
)

// Protocol identifies a pool's on-chain program family.
type Protocol string

// Pool is a single discovered liquidity pool. Implementations must be safe
// for concurrent use: quotes and reserve updates arrive from different
// goroutines.
type Pool interface {
	ProtocolName() Protocol
	ID() string
	ProgramID() solana.PublicKey
	// Tokens returns the pool's mint pair as base58 addresses.
	Tokens() (string, string)
	// Quote computes the output amount for swapping amountIn of inputMint.
	Quote(ctx context.Context, client *sol.Client, inputMint string, amountIn cosmath.Int) (cosmath.Int, error)
	// SwapInstruction builds the program call executing the swap.
	SwapInstruction(inputMint string, amountIn, minAmountOut cosmath.Int) (solana.PublicKey, []byte, error)
	// ReserveAccounts lists the vault accounts whose balances drive quotes.
	ReserveAccounts() []solana.PublicKey
	// UpdateReserves ingests fresh vault account data for one of the
	// ReserveAccounts.
	UpdateReserves(account solana.PublicKey, data []byte) error
}

// splTokenAccountSize is the packed size of an SPL token account.
const splTokenAccountSize = 165

// TokenAccountBalance extracts the balance from raw SPL token account data.
func TokenAccountBalance(data []byte) (uint64, error) {
	if len(data) < splTokenAccountSize {
		return 0, fmt.Errorf("data too short for SPL token account: got %d bytes", len(data))
	}
	// mint (32) + owner (32), then the u64 amount.
	return binary.LittleEndian.Uint64(data[64:72]), nil
}
