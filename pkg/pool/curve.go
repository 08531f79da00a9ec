package pool

import (
	"fmt"

	cosmath "cosmossdk.io/math"
	"lukechampine.com/uint128"
)

// ConstantProductOut computes the output of a constant-product swap with the
// trade fee taken from the input. Intermediates are 128-bit so the product of
// two u64 reserves cannot overflow.
func ConstantProductOut(reserveIn, reserveOut, amountIn, feeNumerator, feeDenominator uint64) (uint64, error) {
	if reserveIn == 0 || reserveOut == 0 {
		return 0, fmt.Errorf("pool has no liquidity")
	}
	if amountIn == 0 {
		return 0, fmt.Errorf("input amount is zero")
	}
	if feeDenominator == 0 {
		feeNumerator, feeDenominator = 0, 1
	}

	fee := uint128.From64(amountIn).Mul64(feeNumerator).Div64(feeDenominator).Lo
	afterFee := amountIn - fee

	// out = reserveOut * afterFee / (reserveIn + afterFee)
	numerator := uint128.From64(reserveOut).Mul64(afterFee)
	denominator := uint128.From64(reserveIn).Add64(afterFee)
	out := numerator.Div(denominator)
	if out.Hi != 0 {
		return 0, fmt.Errorf("output amount overflows u64")
	}
	return out.Lo, nil
}

// Uint64Amount converts an exact integer amount to u64, the width all SPL
// token amounts are encoded with.
func Uint64Amount(amount cosmath.Int) (uint64, error) {
	if amount.IsNegative() || !amount.IsUint64() {
		return 0, fmt.Errorf("amount %s does not fit into u64", amount)
	}
	return amount.Uint64(), nil
}
