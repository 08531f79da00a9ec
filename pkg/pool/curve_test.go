package pool

import (
	"encoding/binary"
	"testing"

	cosmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstantProductOut(t *testing.T) {
	// No fee: out = 1000 * 100 / (1000 + 100) = 90.
	out, err := ConstantProductOut(1000, 1000, 100, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(90), out)

	// 0.3% fee on the input: afterFee = 100 - 0 = 100 for small amounts,
	// so use a size where the fee bites: afterFee = 10000 - 30 = 9970,
	// out = 1_000_000 * 9970 / (1_000_000 + 9970) = 9871.
	out, err = ConstantProductOut(1_000_000, 1_000_000, 10_000, 30, 10_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(9871), out)
}

func TestConstantProductOutLargeReserves(t *testing.T) {
	// reserveOut * afterFee overflows u64; the 128-bit intermediate must not.
	const reserve = uint64(1) << 60
	out, err := ConstantProductOut(reserve, reserve, 1<<30, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(1<<30-1), out)
}

func TestConstantProductOutRejectsEmptyPool(t *testing.T) {
	_, err := ConstantProductOut(0, 1000, 100, 0, 1)
	assert.Error(t, err)
	_, err = ConstantProductOut(1000, 0, 100, 0, 1)
	assert.Error(t, err)
	_, err = ConstantProductOut(1000, 1000, 0, 0, 1)
	assert.Error(t, err)
}

func TestUint64Amount(t *testing.T) {
	v, err := Uint64Amount(cosmath.NewInt(42))
	require.NoError(t, err)
	assert.Equal(t, uint64(42), v)

	_, err = Uint64Amount(cosmath.NewInt(-1))
	assert.Error(t, err)

	tooBig := cosmath.NewIntFromUint64(1<<63).MulRaw(4)
	_, err = Uint64Amount(tooBig)
	assert.Error(t, err)
}

func TestTokenAccountBalance(t *testing.T) {
	data := make([]byte, 165)
	binary.LittleEndian.PutUint64(data[64:72], 123_456_789)

	balance, err := TokenAccountBalance(data)
	require.NoError(t, err)
	assert.Equal(t, uint64(123_456_789), balance)

	_, err = TokenAccountBalance(data[:64])
	assert.Error(t, err)
}
