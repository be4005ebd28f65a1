package metrics

import (
	"math/big"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestVaultMetricsRecordsValues(t *testing.T) {
	m := Vaults()
	require.Same(t, m, Vaults())

	m.ObserveOperation("vault.mint", "ok", time.Millisecond)
	m.ObserveOperation("vault.mint", "ok", time.Millisecond)
	require.Equal(t, 2.0, testutil.ToFloat64(m.operations.WithLabelValues("vault.mint", "ok")))

	fee, _ := new(big.Int).SetString("450000000000000000", 10)
	m.RecordFee(7, fee)
	require.InDelta(t, 0.45, testutil.ToFloat64(m.feesReported.WithLabelValues("7")), 1e-9)

	m.RecordFee(7, big.NewInt(0))
	require.InDelta(t, 0.45, testutil.ToFloat64(m.feesReported.WithLabelValues("7")), 1e-9)

	m.SetHeight(12)
	require.Equal(t, 12.0, testutil.ToFloat64(m.operationNonce))
}

func TestNilVaultMetricsIsSafe(t *testing.T) {
	var m *VaultMetrics
	m.ObserveOperation("x", "ok", 0)
	m.RecordZap("mint-and-sell", "ok")
	m.RecordClaim(1)
}
