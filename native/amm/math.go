package amm

import (
	"errors"
	"math/big"
)

var (
	errInsufficientInput     = errors.New("amm: insufficient input amount")
	errInsufficientOutput    = errors.New("amm: insufficient output amount")
	errInsufficientLiquidity = errors.New("amm: insufficient liquidity")
)

var (
	feeNumerator   = big.NewInt(997)
	feeDenominator = big.NewInt(1000)
	// MinimumLiquidity is locked forever on a pair's first deposit.
	MinimumLiquidity = big.NewInt(1000)
)

// GetAmountOut returns the output for an exact input given the reserves,
// charging the 0.3% swap fee.
func GetAmountOut(amountIn, reserveIn, reserveOut *big.Int) (*big.Int, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, errInsufficientInput
	}
	if reserveIn == nil || reserveOut == nil || reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return nil, errInsufficientLiquidity
	}
	withFee := new(big.Int).Mul(amountIn, feeNumerator)
	numerator := new(big.Int).Mul(withFee, reserveOut)
	denominator := new(big.Int).Mul(reserveIn, feeDenominator)
	denominator.Add(denominator, withFee)
	return numerator.Quo(numerator, denominator), nil
}

// GetAmountIn returns the input required for an exact output given the
// reserves, rounding up.
func GetAmountIn(amountOut, reserveIn, reserveOut *big.Int) (*big.Int, error) {
	if amountOut == nil || amountOut.Sign() <= 0 {
		return nil, errInsufficientOutput
	}
	if reserveIn == nil || reserveOut == nil || reserveIn.Sign() <= 0 || reserveOut.Cmp(amountOut) <= 0 {
		return nil, errInsufficientLiquidity
	}
	numerator := new(big.Int).Mul(reserveIn, amountOut)
	numerator.Mul(numerator, feeDenominator)
	denominator := new(big.Int).Sub(reserveOut, amountOut)
	denominator.Mul(denominator, feeNumerator)
	numerator.Quo(numerator, denominator)
	return numerator.Add(numerator, big.NewInt(1)), nil
}

// quote returns the amount of B equivalent to amountA at the current ratio.
func quote(amountA, reserveA, reserveB *big.Int) (*big.Int, error) {
	if amountA == nil || amountA.Sign() <= 0 {
		return nil, errInsufficientInput
	}
	if reserveA.Sign() <= 0 || reserveB.Sign() <= 0 {
		return nil, errInsufficientLiquidity
	}
	out := new(big.Int).Mul(amountA, reserveB)
	return out.Quo(out, reserveA), nil
}

func minBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}
