package proxy

import (
	"vaultchain/core/events"
	"vaultchain/core/types"
)

const (
	EventTypeUpgraded     = "proxy.upgraded"
	EventTypeAdminChanged = "proxy.admin.changed"
)

func UpgradedEvent(c Component, prev, next [20]byte) *types.Event {
	return types.NewEvent(EventTypeUpgraded).
		With("component", c.String()).
		With("index", events.FormatUint(uint64(c))).
		With("oldImpl", events.FormatAddress(prev)).
		With("impl", events.FormatAddress(next))
}

func AdminChangedEvent(c Component, prev, next [20]byte) *types.Event {
	return types.NewEvent(EventTypeAdminChanged).
		With("component", c.String()).
		With("index", events.FormatUint(uint64(c))).
		With("oldAdmin", events.FormatAddress(prev)).
		With("admin", events.FormatAddress(next))
}
