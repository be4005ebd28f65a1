package factory

import (
	"vaultchain/core/events"
	"vaultchain/core/types"
	"vaultchain/native/vault"
)

const (
	EventTypeVaultCreated = "factory.vault.created"
	EventTypeFeeExclusion = "factory.fee_exclusion.updated"
	EventTypeZapUpdated   = "factory.zap.updated"
	EventTypeDefaultFees  = "factory.default_fees.updated"
)

func VaultCreatedEvent(v *vault.Vault, creator [20]byte) *types.Event {
	return types.NewEvent(EventTypeVaultCreated).
		With("vaultId", events.FormatUint(v.ID)).
		With("symbol", v.Symbol).
		With("assetClass", v.AssetClass).
		With("creator", events.FormatAddress(creator)).
		With("account", events.FormatAddress(v.Account))
}

func FeeExclusionEvent(addr [20]byte, prev, next bool) *types.Event {
	return types.NewEvent(EventTypeFeeExclusion).
		With("account", events.FormatAddress(addr)).
		With("oldExcluded", events.FormatBool(prev)).
		With("excluded", events.FormatBool(next))
}

func ZapUpdatedEvent(prev, next [20]byte) *types.Event {
	return types.NewEvent(EventTypeZapUpdated).
		With("oldZap", events.FormatAddress(prev)).
		With("zap", events.FormatAddress(next))
}

// DefaultFeesUpdatedEvent mirrors the per-vault fee event without a vault id.
func DefaultFeesUpdatedEvent(prev, next vault.Fees) *types.Event {
	evt := vault.FeesUpdatedEvent(0, prev, next)
	evt.Type = EventTypeDefaultFees
	delete(evt.Attributes, "vaultId")
	return evt
}
