package app

import (
	"math/big"
	"strconv"

	"vaultchain/core/events"
	"vaultchain/native/fees"
	"vaultchain/native/staking"
	"vaultchain/observability"
	"vaultchain/observability/metrics"
)

// metricsEmitter sits between the executor and downstream subscribers. It
// only ever sees committed events.
type metricsEmitter struct {
	metrics *metrics.VaultMetrics
	next    events.Emitter
}

func (m *metricsEmitter) Emit(evt events.Event) {
	if evt == nil {
		return
	}
	if m.metrics != nil {
		observability.Events().RecordEvent(evt.EventType())
		if p, ok := evt.(events.Payload); ok {
			m.record(p)
		}
	}
	if m.next != nil {
		m.next.Emit(evt)
	}
}

func (m *metricsEmitter) record(p events.Payload) {
	evt := p.Event()
	if evt == nil {
		return
	}
	vaultID, _ := strconv.ParseUint(evt.Attr("vaultId"), 10, 64)
	switch evt.Type {
	case fees.EventTypeFeeReported:
		m.metrics.RecordFee(vaultID, parseAmount(evt.Attr("amount")))
	case fees.EventTypeDistributed:
		m.metrics.RecordDistribution("staking", parseAmount(evt.Attr("toStaking")))
		m.metrics.RecordDistribution("treasury", parseAmount(evt.Attr("toTreasury")))
	case staking.EventTypeClaimed:
		m.metrics.RecordClaim(vaultID)
	}
}

func parseAmount(raw string) *big.Int {
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil
	}
	return v
}
