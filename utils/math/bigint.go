package math

import (
	"math/big"

	"github.com/shopspring/decimal"
)

var (
	bps = decimal.NewFromInt(10000)
	one = decimal.NewFromInt(1)
)

// ToDecimal converts base units into whole tokens.
func ToDecimal(amount *big.Int, decimals uint8) decimal.Decimal {
	if amount == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(amount, -int32(decimals))
}

// FromDecimal converts whole tokens into base units, truncating dust.
func FromDecimal(d decimal.Decimal, decimals uint8) *big.Int {
	return d.Shift(int32(decimals)).BigInt()
}

// MulFraction scales amount by a decimal fraction, rounding toward zero.
func MulFraction(amount *big.Int, fraction decimal.Decimal) *big.Int {
	if amount == nil {
		return big.NewInt(0)
	}
	return decimal.NewFromBigInt(amount, 0).Mul(fraction).BigInt()
}

// ApplySlippage returns the minimum acceptable output for a tolerance fraction.
func ApplySlippage(amount *big.Int, tolerance decimal.Decimal) *big.Int {
	return MulFraction(amount, one.Sub(tolerance))
}

// DiffBps is (hi-lo)/lo expressed in basis points.
func DiffBps(hi, lo decimal.Decimal) decimal.Decimal {
	if !lo.IsPositive() {
		return decimal.Zero
	}
	return hi.Sub(lo).Div(lo).Mul(bps)
}

// Sub returns x-y as a new value.
func Sub(x, y *big.Int) *big.Int {
	return new(big.Int).Sub(x, y)
}

// Max returns the larger of x and y.
func Max(x, y *big.Int) *big.Int {
	if x.Cmp(y) >= 0 {
		return x
	}
	return y
}

// Copy returns an independent copy; nil maps to zero.
func Copy(x *big.Int) *big.Int {
	if x == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(x)
}

// ClampInt bounds v to [lo, hi].
func ClampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
