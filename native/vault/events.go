package vault

import (
	"math/big"

	"vaultchain/core/events"
	"vaultchain/core/types"
)

const (
	EventTypeCreated         = "vault.created"
	EventTypeMinted          = "vault.minted"
	EventTypeRedeemed        = "vault.redeemed"
	EventTypeSwapped         = "vault.swapped"
	EventTypeFeesUpdated     = "vault.fees.updated"
	EventTypeFeaturesUpdated = "vault.features.updated"
	EventTypeManagerUpdated  = "vault.manager.updated"
)

func CreatedEvent(v *Vault) *types.Event {
	return types.NewEvent(EventTypeCreated).
		With("vaultId", events.FormatUint(v.ID)).
		With("name", v.Name).
		With("symbol", v.Symbol).
		With("assetClass", v.AssetClass).
		With("is1155", events.FormatBool(v.Is1155)).
		With("allowAll", events.FormatBool(v.AllowAll)).
		With("manager", events.FormatAddress(v.Manager)).
		With("account", events.FormatAddress(v.Account))
}

func MintedEvent(v *Vault, caller [20]byte, ids, amounts []*big.Int, shares, fee *big.Int) *types.Event {
	return types.NewEvent(EventTypeMinted).
		With("vaultId", events.FormatUint(v.ID)).
		With("caller", events.FormatAddress(caller)).
		With("ids", events.FormatIDs(ids)).
		With("amounts", events.FormatIDs(amounts)).
		With("shares", events.FormatAmount(shares)).
		With("fee", events.FormatAmount(fee))
}

func RedeemedEvent(vaultID uint64, caller, to [20]byte, specific, ids []*big.Int, fee *big.Int) *types.Event {
	return types.NewEvent(EventTypeRedeemed).
		With("vaultId", events.FormatUint(vaultID)).
		With("caller", events.FormatAddress(caller)).
		With("to", events.FormatAddress(to)).
		With("specificIds", events.FormatIDs(specific)).
		With("ids", events.FormatIDs(ids)).
		With("fee", events.FormatAmount(fee))
}

func SwappedEvent(vaultID uint64, caller, to [20]byte, in, out []*big.Int, fee *big.Int) *types.Event {
	return types.NewEvent(EventTypeSwapped).
		With("vaultId", events.FormatUint(vaultID)).
		With("caller", events.FormatAddress(caller)).
		With("to", events.FormatAddress(to)).
		With("inIds", events.FormatIDs(in)).
		With("outIds", events.FormatIDs(out)).
		With("fee", events.FormatAmount(fee))
}

// FeesUpdatedEvent carries both schedules so indexers can diff them.
func FeesUpdatedEvent(vaultID uint64, prev, next Fees) *types.Event {
	return types.NewEvent(EventTypeFeesUpdated).
		With("vaultId", events.FormatUint(vaultID)).
		With("oldMint", events.FormatAmount(prev.Mint)).
		With("mint", events.FormatAmount(next.Mint)).
		With("oldRandomRedeem", events.FormatAmount(prev.RandomRedeem)).
		With("randomRedeem", events.FormatAmount(next.RandomRedeem)).
		With("oldTargetRedeem", events.FormatAmount(prev.TargetRedeem)).
		With("targetRedeem", events.FormatAmount(next.TargetRedeem)).
		With("oldRandomSwap", events.FormatAmount(prev.RandomSwap)).
		With("randomSwap", events.FormatAmount(next.RandomSwap)).
		With("oldTargetSwap", events.FormatAmount(prev.TargetSwap)).
		With("targetSwap", events.FormatAmount(next.TargetSwap))
}

func FeaturesUpdatedEvent(vaultID uint64, prev, next Features) *types.Event {
	evt := types.NewEvent(EventTypeFeaturesUpdated).With("vaultId", events.FormatUint(vaultID))
	flags := []struct {
		name, oldName string
		old, next     bool
	}{
		{"mint", "oldMint", prev.Mint, next.Mint},
		{"randomRedeem", "oldRandomRedeem", prev.RandomRedeem, next.RandomRedeem},
		{"targetRedeem", "oldTargetRedeem", prev.TargetRedeem, next.TargetRedeem},
		{"randomSwap", "oldRandomSwap", prev.RandomSwap, next.RandomSwap},
		{"targetSwap", "oldTargetSwap", prev.TargetSwap, next.TargetSwap},
	}
	for _, f := range flags {
		evt.With(f.oldName, events.FormatBool(f.old)).With(f.name, events.FormatBool(f.next))
	}
	return evt
}

func ManagerUpdatedEvent(vaultID uint64, prev, next [20]byte, finalized bool) *types.Event {
	return types.NewEvent(EventTypeManagerUpdated).
		With("vaultId", events.FormatUint(vaultID)).
		With("oldManager", events.FormatAddress(prev)).
		With("manager", events.FormatAddress(next)).
		With("finalized", events.FormatBool(finalized))
}
