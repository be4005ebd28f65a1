package fees

import (
	"math/big"
	"strconv"

	"vaultchain/core/events"
	"vaultchain/core/types"
)

const (
	EventTypeVaultRegistered = "fees.vault.registered"
	EventTypeFeeReported     = "fees.reported"
	EventTypeDistributed     = "fees.distributed"
	EventTypePaused          = "fees.paused"
	EventTypeSplitUpdated    = "fees.split.updated"
	EventTypeTreasuryUpdated = "fees.treasury.updated"
)

func VaultRegisteredEvent(vaultID uint64, account [20]byte, shareToken string) *types.Event {
	return types.NewEvent(EventTypeVaultRegistered).
		With("vaultId", events.FormatUint(vaultID)).
		With("account", events.FormatAddress(account)).
		With("shareToken", shareToken)
}

func FeeReportedEvent(vaultID uint64, amount, pending *big.Int) *types.Event {
	return types.NewEvent(EventTypeFeeReported).
		With("vaultId", events.FormatUint(vaultID)).
		With("amount", events.FormatAmount(amount)).
		With("pending", events.FormatAmount(pending))
}

func DistributedEvent(caller [20]byte, d *Distribution) *types.Event {
	return types.NewEvent(EventTypeDistributed).
		With("vaultId", events.FormatUint(d.VaultID)).
		With("caller", events.FormatAddress(caller)).
		With("amount", events.FormatAmount(d.Amount)).
		With("toStaking", events.FormatAmount(d.ToStaking)).
		With("toTreasury", events.FormatAmount(d.ToTreasury))
}

func PausedEvent(prev, next bool) *types.Event {
	return types.NewEvent(EventTypePaused).
		With("oldPaused", events.FormatBool(prev)).
		With("paused", events.FormatBool(next))
}

func SplitUpdatedEvent(prev, next SplitPolicy) *types.Event {
	return types.NewEvent(EventTypeSplitUpdated).
		With("oldStakingBps", strconv.FormatUint(uint64(prev.StakingBps), 10)).
		With("oldTreasuryBps", strconv.FormatUint(uint64(prev.TreasuryBps), 10)).
		With("stakingBps", strconv.FormatUint(uint64(next.StakingBps), 10)).
		With("treasuryBps", strconv.FormatUint(uint64(next.TreasuryBps), 10))
}

func TreasuryUpdatedEvent(prev, next [20]byte) *types.Event {
	return types.NewEvent(EventTypeTreasuryUpdated).
		With("oldTreasury", events.FormatAddress(prev)).
		With("treasury", events.FormatAddress(next))
}
