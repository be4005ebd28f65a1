package staking

import "math/big"

// ray is the fixed-point scale of the reward accumulator.
var ray = mustBigInt("1000000000000000000000000000") // 1e27 precision

func mustBigInt(value string) *big.Int {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		panic("invalid big integer constant")
	}
	return v
}

// rayMulDown returns a*b/ray rounded toward zero. Rewards always round down
// so that the sum of claims never exceeds what was forwarded.
func rayMulDown(a, b *big.Int) *big.Int {
	if a == nil || b == nil {
		return big.NewInt(0)
	}
	product := new(big.Int).Mul(a, b)
	return product.Quo(product, ray)
}

// rayDivDown returns a*ray/b rounded toward zero.
func rayDivDown(a, b *big.Int) *big.Int {
	if a == nil || b == nil || b.Sign() == 0 {
		return big.NewInt(0)
	}
	numerator := new(big.Int).Mul(a, ray)
	return numerator.Quo(numerator, b)
}

// release folds Pending into the accumulator. The part the accumulator
// cannot represent stays in Pending for the next accrual.
func (p *Pool) release() {
	if p.TotalStaked.Sign() == 0 || p.Pending.Sign() == 0 {
		return
	}
	step := rayDivDown(p.Pending, p.TotalStaked)
	if step.Sign() == 0 {
		return
	}
	p.AccRewardPerShare.Add(p.AccRewardPerShare, step)
	p.Pending.Sub(p.Pending, rayMulDown(step, p.TotalStaked))
}
