package splswap

import (
	"context"
	"encoding/binary"
	"testing"

	cosmath "cosmossdk.io/math"
	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	wsol = solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")
	usdc = solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
)

func poolAccountData(t *testing.T) []byte {
	t.Helper()
	data := make([]byte, 324)
	data[0] = 1 // version
	data[1] = 1 // initialized
	data[2] = 255

	offset := 3
	copy(data[offset:], solana.TokenProgramID[:])
	offset += 32
	vaultA := solana.NewWallet().PublicKey()
	copy(data[offset:], vaultA[:])
	offset += 32
	vaultB := solana.NewWallet().PublicKey()
	copy(data[offset:], vaultB[:])
	offset += 32
	poolMint := solana.NewWallet().PublicKey()
	copy(data[offset:], poolMint[:])
	offset += 32
	copy(data[offset:], wsol[:])
	offset += 32
	copy(data[offset:], usdc[:])
	offset += 32
	feeAccount := solana.NewWallet().PublicKey()
	copy(data[offset:], feeAccount[:])
	offset += 32

	binary.LittleEndian.PutUint64(data[offset:], 25) // trade fee numerator
	offset += 8
	binary.LittleEndian.PutUint64(data[offset:], 10000) // trade fee denominator
	return data
}

func TestDecode(t *testing.T) {
	data := poolAccountData(t)

	var p SplSwapPool
	require.NoError(t, p.Decode(data))

	assert.Equal(t, uint8(1), p.Version)
	assert.True(t, p.IsInitialized)
	assert.Equal(t, solana.TokenProgramID, p.TokenProgramId)
	assert.Equal(t, wsol, p.MintA)
	assert.Equal(t, usdc, p.MintB)
	assert.Equal(t, uint64(25), p.TradeFeeNumerator)
	assert.Equal(t, uint64(10000), p.TradeFeeDenominator)

	assert.Error(t, p.Decode(data[:100]))
}

func TestDecodeMintOffsetsMatchFilters(t *testing.T) {
	data := poolAccountData(t)

	// The memcmp filter offsets must point at the decoded mint fields.
	assert.Equal(t, wsol[:], data[mintAOffset:mintAOffset+32])
	assert.Equal(t, usdc[:], data[mintBOffset:mintBOffset+32])
}

func TestUpdateReservesAndQuote(t *testing.T) {
	var p SplSwapPool
	require.NoError(t, p.Decode(poolAccountData(t)))
	p.TokenAccountA = solana.NewWallet().PublicKey()
	p.TokenAccountB = solana.NewWallet().PublicKey()

	vault := func(balance uint64) []byte {
		data := make([]byte, 165)
		binary.LittleEndian.PutUint64(data[64:72], balance)
		return data
	}
	require.NoError(t, p.UpdateReserves(p.TokenAccountA, vault(1_000_000)))
	require.NoError(t, p.UpdateReserves(p.TokenAccountB, vault(2_000_000)))

	// Reserves are live, so no RPC client is needed.
	out, err := p.Quote(context.Background(), nil, wsol.String(), cosmath.NewInt(10_000))
	require.NoError(t, err)
	// fee 25/10000 of 10000 = 25, out = 2_000_000*9975/1_009_975.
	assert.Equal(t, int64(19752), out.Int64())

	unknown := solana.NewWallet().PublicKey()
	assert.Error(t, p.UpdateReserves(unknown, vault(1)))

	// A mint the pool does not trade is rejected, never quoted in reverse.
	_, err = p.Quote(context.Background(), nil, unknown.String(), cosmath.NewInt(10_000))
	assert.Error(t, err)
}

func TestSwapInstructionLayout(t *testing.T) {
	var p SplSwapPool
	program, data, err := p.SwapInstruction(wsol.String(), cosmath.NewInt(500), cosmath.NewInt(490))
	require.NoError(t, err)

	assert.Equal(t, SplTokenSwapProgramID, program)
	require.Len(t, data, 17)
	assert.Equal(t, byte(swapInstructionTag), data[0])
	assert.Equal(t, uint64(500), binary.LittleEndian.Uint64(data[1:9]))
	assert.Equal(t, uint64(490), binary.LittleEndian.Uint64(data[9:17]))
}
