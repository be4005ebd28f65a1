package common

import "math/big"

// BpsDenominator is the basis-point total used by fee splits.
const BpsDenominator = 10_000

var (
	// Base is one whole share in 18-decimal fixed point.
	Base = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	// FeeCeiling caps any single vault fee at half a share.
	FeeCeiling = new(big.Int).Div(Base, big.NewInt(2))
)

// Units returns n whole shares.
func Units(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), Base)
}

// MulBps returns amount*bps/10_000 rounded down.
func MulBps(amount *big.Int, bps uint64) *big.Int {
	if amount == nil || amount.Sign() <= 0 || bps == 0 {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(amount, new(big.Int).SetUint64(bps))
	return out.Div(out, big.NewInt(BpsDenominator))
}

// Clone returns a copy of v, mapping nil to zero.
func Clone(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// ParseDecimal converts a decimal string such as "0.1" into 18-decimal
// fixed point.
func ParseDecimal(s string) (*big.Int, bool) {
	r, ok := new(big.Rat).SetString(s)
	if !ok || r.Sign() < 0 {
		return nil, false
	}
	r.Mul(r, new(big.Rat).SetInt(Base))
	if !r.IsInt() {
		return nil, false
	}
	return new(big.Int).Set(r.Num()), true
}

// FormatDecimal renders an 18-decimal amount with trailing zeros trimmed.
func FormatDecimal(v *big.Int) string {
	if v == nil {
		return "0"
	}
	r := new(big.Rat).SetFrac(v, Base)
	s := r.FloatString(18)
	for len(s) > 0 && s[len(s)-1] == '0' {
		s = s[:len(s)-1]
	}
	if len(s) > 0 && s[len(s)-1] == '.' {
		s = s[:len(s)-1]
	}
	return s
}
