package orca

import "github.com/gagliardetto/solana-go"

var OrcaAmmProgramID = solana.MustPublicKeyFromBase58("9W959DqEETiGZocYWCQPaJ6sBmUzgfxXfqGeTEdp3aQP")

// Orca v1 charges a flat 0.3% trade fee.
const (
	feeNumerator   = 30
	feeDenominator = 10000
)

// Mint offsets after discriminator(8) + vaultA(32) + vaultB(32) + poolMint(32).
const (
	mintAOffset = 104
	mintBOffset = 136
)

const swapInstructionTag = 1
