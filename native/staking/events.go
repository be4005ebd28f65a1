package staking

import (
	"math/big"
	"strconv"

	"vaultchain/core/events"
	"vaultchain/core/types"
)

const (
	EventTypePoolAdded          = "staking.pool.added"
	EventTypeAccrued            = "staking.accrued"
	EventTypeStaked             = "staking.staked"
	EventTypeUnstaked           = "staking.unstaked"
	EventTypeClaimed            = "staking.claimed"
	EventTypePairedTokenUpdated = "staking.paired.updated"
)

func PoolAddedEvent(p *Pool) *types.Event {
	return types.NewEvent(EventTypePoolAdded).
		With("vaultId", events.FormatUint(p.VaultID)).
		With("rewardToken", p.RewardToken).
		With("stakingToken", p.StakingToken).
		With("account", events.FormatAddress(p.Account))
}

// AccruedEvent reports whether the amount was applied or held pending.
func AccruedEvent(p *Pool, amount *big.Int) *types.Event {
	return types.NewEvent(EventTypeAccrued).
		With("vaultId", events.FormatUint(p.VaultID)).
		With("amount", events.FormatAmount(amount)).
		With("pending", events.FormatAmount(p.Pending)).
		With("accRewardPerShare", events.FormatAmount(p.AccRewardPerShare))
}

func StakedEvent(vaultID uint64, funder, beneficiary [20]byte, amount *big.Int, lockedUntil uint64) *types.Event {
	return types.NewEvent(EventTypeStaked).
		With("vaultId", events.FormatUint(vaultID)).
		With("funder", events.FormatAddress(funder)).
		With("account", events.FormatAddress(beneficiary)).
		With("amount", events.FormatAmount(amount)).
		With("lockedUntil", strconv.FormatUint(lockedUntil, 10))
}

func UnstakedEvent(vaultID uint64, account [20]byte, amount *big.Int) *types.Event {
	return types.NewEvent(EventTypeUnstaked).
		With("vaultId", events.FormatUint(vaultID)).
		With("account", events.FormatAddress(account)).
		With("amount", events.FormatAmount(amount))
}

func ClaimedEvent(vaultID uint64, account [20]byte, amount *big.Int) *types.Event {
	return types.NewEvent(EventTypeClaimed).
		With("vaultId", events.FormatUint(vaultID)).
		With("account", events.FormatAddress(account)).
		With("amount", events.FormatAmount(amount))
}

// PairedTokenUpdatedEvent has an empty vaultToken for default pairing changes.
func PairedTokenUpdatedEvent(vaultToken, prev, next string) *types.Event {
	return types.NewEvent(EventTypePairedTokenUpdated).
		With("vaultToken", vaultToken).
		With("oldPairedToken", prev).
		With("pairedToken", next)
}
