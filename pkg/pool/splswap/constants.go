package splswap

import "github.com/gagliardetto/solana-go"

// SPL Token Swap program (official Solana program).
var SplTokenSwapProgramID = solana.MustPublicKeyFromBase58("SwaPpA9LAaLfeLi3a68M4DjnLqgtticKg6CnyNwgAC8")

// Account layout offsets of the two token mints, used for getProgramAccounts
// memcmp filters: version(1) + initialized(1) + nonce(1) + tokenProgram(32) +
// vaultA(32) + vaultB(32) + poolMint(32).
const (
	mintAOffset = 131
	mintBOffset = 163
)

const swapInstructionTag = 1
