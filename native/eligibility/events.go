package eligibility

import (
	"vaultchain/core/events"
	"vaultchain/core/types"
)

const (
	// EventTypeModuleAdded is emitted when a module is registered.
	EventTypeModuleAdded = "eligibility.module.added"
	// EventTypeBindingUpdated is emitted when a vault's active module changes.
	EventTypeBindingUpdated = "eligibility.binding.updated"
)

// ModuleAddedEvent announces a new module in the arena.
func ModuleAddedEvent(id uint64, kind Kind, name string) *types.Event {
	return types.NewEvent(EventTypeModuleAdded).
		With("moduleId", events.FormatUint(id)).
		With("kind", kind.String()).
		With("name", name)
}

// BindingUpdatedEvent records the old and new binding of a vault.
func BindingUpdatedEvent(prev, next *Binding) *types.Event {
	return types.NewEvent(EventTypeBindingUpdated).
		With("vaultId", events.FormatUint(next.VaultID)).
		With("oldModuleId", events.FormatUint(prev.ModuleID)).
		With("oldEnabled", events.FormatBool(prev.Enabled)).
		With("moduleId", events.FormatUint(next.ModuleID)).
		With("enabled", events.FormatBool(next.Enabled))
}
