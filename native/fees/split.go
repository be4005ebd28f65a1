package fees

import (
	"fmt"
	"math/big"

	"vaultchain/native/common"
)

// SplitPolicy apportions distributed fees between the staking pool and the
// treasury. The two shares must sum to BpsDenominator.
type SplitPolicy struct {
	StakingBps  uint32 `json:"stakingBps" toml:"StakingBps" yaml:"staking_bps"`
	TreasuryBps uint32 `json:"treasuryBps" toml:"TreasuryBps" yaml:"treasury_bps"`
}

// DefaultSplit sends 80% to stakers and 20% to the treasury.
func DefaultSplit() SplitPolicy {
	return SplitPolicy{StakingBps: 8000, TreasuryBps: 2000}
}

// Validate enforces that the split covers exactly the full amount.
func (p SplitPolicy) Validate() error {
	if uint64(p.StakingBps)+uint64(p.TreasuryBps) != common.BpsDenominator {
		return fmt.Errorf("fees: %w: split %d+%d must equal %d bps", common.ErrConfigInvariantViolated, p.StakingBps, p.TreasuryBps, common.BpsDenominator)
	}
	return nil
}

// SplitResult is the outcome of applying a policy to an amount.
type SplitResult struct {
	Staking  *big.Int
	Treasury *big.Int
}

// Apply splits amount by the policy. The staking share rounds down and the
// treasury receives the remainder so no dust is left behind.
func Apply(amount *big.Int, policy SplitPolicy) SplitResult {
	result := SplitResult{Staking: big.NewInt(0), Treasury: big.NewInt(0)}
	if amount == nil || amount.Sign() <= 0 {
		return result
	}
	result.Staking = common.MulBps(amount, uint64(policy.StakingBps))
	result.Treasury = new(big.Int).Sub(amount, result.Staking)
	return result
}

// Totals aggregates fee accounting for one vault.
type Totals struct {
	VaultID    uint64
	Account    [20]byte
	ShareToken string
	Reported   *big.Int
	ToStaking  *big.Int
	ToTreasury *big.Int
}

// Clone returns a copy of the totals structure with duplicated big.Int values.
func (t Totals) Clone() Totals {
	clone := Totals{VaultID: t.VaultID, Account: t.Account, ShareToken: t.ShareToken}
	clone.Reported = common.Clone(t.Reported)
	clone.ToStaking = common.Clone(t.ToStaking)
	clone.ToTreasury = common.Clone(t.ToTreasury)
	return clone
}

// Pending returns the reported fees not yet distributed.
func (t Totals) Pending() *big.Int {
	out := common.Clone(t.Reported)
	out.Sub(out, common.Clone(t.ToStaking))
	return out.Sub(out, common.Clone(t.ToTreasury))
}
