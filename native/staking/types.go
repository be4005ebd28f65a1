package staking

import (
	"math/big"

	"vaultchain/native/common"
)

// Pool tracks one vault's LP staking rewards. AccRewardPerShare is ray-scaled.
type Pool struct {
	VaultID           uint64
	RewardToken       string
	StakingToken      string
	Account           [20]byte
	TotalStaked       *big.Int
	AccRewardPerShare *big.Int
	Pending           *big.Int
	Forwarded         *big.Int
	Claimed           *big.Int
}

// Clone returns a deep copy of the pool.
func (p *Pool) Clone() *Pool {
	if p == nil {
		return nil
	}
	clone := *p
	clone.TotalStaked = common.Clone(p.TotalStaked)
	clone.AccRewardPerShare = common.Clone(p.AccRewardPerShare)
	clone.Pending = common.Clone(p.Pending)
	clone.Forwarded = common.Clone(p.Forwarded)
	clone.Claimed = common.Clone(p.Claimed)
	return &clone
}

// Position is one staker's balance in a pool.
type Position struct {
	Amount      *big.Int
	RewardDebt  *big.Int
	LockedUntil uint64
}

func (p *Position) normalize() {
	p.Amount = common.Clone(p.Amount)
	p.RewardDebt = common.Clone(p.RewardDebt)
}

// owed returns the rewards accumulated since the last settlement.
func (p *Position) owed(acc *big.Int) *big.Int {
	owed := rayMulDown(p.Amount, acc)
	owed.Sub(owed, p.RewardDebt)
	if owed.Sign() < 0 {
		return big.NewInt(0)
	}
	return owed
}
