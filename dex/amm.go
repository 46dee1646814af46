package dex

import (
	"math/big"

	"github.com/shopspring/decimal"
)

const bpsDenominator = 10000

var bpsDecimal = decimal.NewFromInt(bpsDenominator)

// GetAmountOut is the constant product output for amountIn with a fee in bps.
// A 30 bps fee reproduces the 997/1000 factor of Uniswap V2.
func GetAmountOut(amountIn, reserveIn, reserveOut *big.Int, feeBps int64) *big.Int {
	if amountIn.Sign() <= 0 || reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return big.NewInt(0)
	}

	amountInWithFee := new(big.Int).Mul(amountIn, big.NewInt(bpsDenominator-feeBps))
	numerator := new(big.Int).Mul(amountInWithFee, reserveOut)
	denominator := new(big.Int).Add(
		new(big.Int).Mul(reserveIn, big.NewInt(bpsDenominator)),
		amountInWithFee,
	)
	return new(big.Int).Div(numerator, denominator)
}

// GetAmountIn calculates the input required for a desired output
func GetAmountIn(amountOut, reserveIn, reserveOut *big.Int, feeBps int64) *big.Int {
	if amountOut.Sign() <= 0 || reserveIn.Sign() <= 0 || reserveOut.Cmp(amountOut) <= 0 {
		return big.NewInt(0)
	}

	numerator := new(big.Int).Mul(
		new(big.Int).Mul(reserveIn, amountOut),
		big.NewInt(bpsDenominator),
	)
	denominator := new(big.Int).Mul(
		new(big.Int).Sub(reserveOut, amountOut),
		big.NewInt(bpsDenominator-feeBps),
	)
	return new(big.Int).Add(new(big.Int).Div(numerator, denominator), big.NewInt(1))
}

// SpotRate is the marginal exchange rate reserveOut/reserveIn net of the fee.
// Both reserves are raw base units, so the rate is unit-consistent along a cycle.
func SpotRate(reserveIn, reserveOut *big.Int, feeBps int64) decimal.Decimal {
	if reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return decimal.Zero
	}
	rate := decimal.NewFromBigInt(reserveOut, 0).DivRound(decimal.NewFromBigInt(reserveIn, 0), 36)
	return rate.Mul(decimal.NewFromInt(bpsDenominator - feeBps)).Div(bpsDecimal)
}

// PriceImpact is the fractional price movement a constant product pool
// suffers from a fill of amountIn: amountIn / (reserveIn + amountIn).
func PriceImpact(amountIn, reserveIn *big.Int) decimal.Decimal {
	if amountIn.Sign() <= 0 || reserveIn.Sign() < 0 {
		return decimal.Zero
	}
	in := decimal.NewFromBigInt(amountIn, 0)
	return in.DivRound(decimal.NewFromBigInt(reserveIn, 0).Add(in), 18)
}
