package zap

import (
	"math/big"
	"strconv"

	"vaultchain/core/events"
	"vaultchain/core/types"
)

const (
	EventTypeMintAndSell     = "zap.mint_and_sell"
	EventTypeBuyAndRedeem    = "zap.buy_and_redeem"
	EventTypeBuyAndSwap      = "zap.buy_and_swap"
	EventTypeLiquidityZapped = "zap.liquidity_staked"
	EventTypeLockTimeUpdated = "zap.lock_time.updated"
)

func MintAndSellEvent(vaultID uint64, caller, to [20]byte, ids []*big.Int, shares, received *big.Int) *types.Event {
	return types.NewEvent(EventTypeMintAndSell).
		With("vaultId", events.FormatUint(vaultID)).
		With("caller", events.FormatAddress(caller)).
		With("to", events.FormatAddress(to)).
		With("ids", events.FormatIDs(ids)).
		With("shares", events.FormatAmount(shares)).
		With("baseOut", events.FormatAmount(received))
}

func BuyAndRedeemEvent(vaultID uint64, caller, to [20]byte, o *RedeemOutcome) *types.Event {
	return types.NewEvent(EventTypeBuyAndRedeem).
		With("vaultId", events.FormatUint(vaultID)).
		With("caller", events.FormatAddress(caller)).
		With("to", events.FormatAddress(to)).
		With("ids", events.FormatIDs(o.IDs)).
		With("baseSpent", events.FormatAmount(o.BaseSpent)).
		With("refunded", events.FormatAmount(o.Refunded))
}

func BuyAndSwapEvent(vaultID uint64, caller, to [20]byte, in []*big.Int, o *RedeemOutcome) *types.Event {
	return types.NewEvent(EventTypeBuyAndSwap).
		With("vaultId", events.FormatUint(vaultID)).
		With("caller", events.FormatAddress(caller)).
		With("to", events.FormatAddress(to)).
		With("inIds", events.FormatIDs(in)).
		With("outIds", events.FormatIDs(o.IDs)).
		With("baseSpent", events.FormatAmount(o.BaseSpent)).
		With("refunded", events.FormatAmount(o.Refunded))
}

func LiquidityZappedEvent(vaultID uint64, caller, to [20]byte, o *LiquidityOutcome) *types.Event {
	return types.NewEvent(EventTypeLiquidityZapped).
		With("vaultId", events.FormatUint(vaultID)).
		With("caller", events.FormatAddress(caller)).
		With("to", events.FormatAddress(to)).
		With("shares", events.FormatAmount(o.Shares)).
		With("baseUsed", events.FormatAmount(o.BaseUsed)).
		With("liquidity", events.FormatAmount(o.Liquidity)).
		With("lockedUntil", strconv.FormatUint(o.LockedUntil, 10))
}

func LockTimeUpdatedEvent(prev, next uint64) *types.Event {
	return types.NewEvent(EventTypeLockTimeUpdated).
		With("oldSeconds", strconv.FormatUint(prev, 10)).
		With("seconds", strconv.FormatUint(next, 10))
}
