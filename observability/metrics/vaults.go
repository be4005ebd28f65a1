package metrics

import (
	"context"
	"math/big"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// VaultMetrics tracks executor operations and the value flowing through the
// fee and staking paths.
type VaultMetrics struct {
	operations     *prometheus.CounterVec
	opLatency      *prometheus.HistogramVec
	feesReported   *prometheus.CounterVec
	distributions  *prometheus.CounterVec
	zapExecutions  *prometheus.CounterVec
	stakingClaims  *prometheus.CounterVec
	operationNonce prometheus.Gauge

	// OTLP mirrors of the operation series, exported when telemetry is on.
	opCounter   metric.Int64Counter
	opHistogram metric.Float64Histogram
}

var (
	vaultsOnce     sync.Once
	vaultsRegistry *VaultMetrics

	shareScale = new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
)

func Vaults() *VaultMetrics {
	vaultsOnce.Do(func() {
		vaultsRegistry = &VaultMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "vault_operations_total",
				Help: "Executed operations by name and result kind.",
			}, []string{"op", "result"}),
			opLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "vault_operation_duration_seconds",
				Help:    "Latency of executed operations.",
				Buckets: prometheus.DefBuckets,
			}, []string{"op"}),
			feesReported: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "vault_fees_reported_shares_total",
				Help: "Fees reported to the distributor, in whole shares, by vault.",
			}, []string{"vault"}),
			distributions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "vault_fee_distributions_shares_total",
				Help: "Distributed fee value, in whole shares, by destination.",
			}, []string{"destination"}),
			zapExecutions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "vault_zap_executions_total",
				Help: "Zap entry point executions by entry point and result kind.",
			}, []string{"entry", "result"}),
			stakingClaims: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "vault_staking_claims_total",
				Help: "Staking reward claims by vault.",
			}, []string{"vault"}),
			operationNonce: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "vault_executor_height",
				Help: "Height of the most recently committed operation.",
			}),
		}
		prometheus.MustRegister(
			vaultsRegistry.operations,
			vaultsRegistry.opLatency,
			vaultsRegistry.feesReported,
			vaultsRegistry.distributions,
			vaultsRegistry.zapExecutions,
			vaultsRegistry.stakingClaims,
			vaultsRegistry.operationNonce,
		)
		vaultsRegistry.initMeter()
	})
	return vaultsRegistry
}

func (m *VaultMetrics) initMeter() {
	meter := otel.GetMeterProvider().Meter("vaultchain/executor")
	counter, err := meter.Int64Counter("vaultchain.operations")
	if err != nil {
		meter = noop.NewMeterProvider().Meter("vaultchain/executor")
		counter, _ = meter.Int64Counter("vaultchain.operations")
	}
	histogram, err := meter.Float64Histogram("vaultchain.operation.duration", metric.WithUnit("s"))
	if err != nil {
		histogram, _ = noop.NewMeterProvider().Meter("vaultchain/executor").Float64Histogram("vaultchain.operation.duration")
	}
	m.opCounter = counter
	m.opHistogram = histogram
}

// ObserveOperation records a finished executor operation. result is the
// error kind, or "ok".
func (m *VaultMetrics) ObserveOperation(op, result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, result).Inc()
	m.opLatency.WithLabelValues(op).Observe(duration.Seconds())
	attrs := metric.WithAttributes(attribute.String("op", op), attribute.String("result", result))
	m.opCounter.Add(context.Background(), 1, attrs)
	m.opHistogram.Record(context.Background(), duration.Seconds(), attrs)
}

// SetHeight publishes the committed height.
func (m *VaultMetrics) SetHeight(height uint64) {
	if m == nil {
		return
	}
	m.operationNonce.Set(float64(height))
}

func (m *VaultMetrics) RecordFee(vaultID uint64, amount *big.Int) {
	if m == nil || amount == nil || amount.Sign() <= 0 {
		return
	}
	m.feesReported.WithLabelValues(strconv.FormatUint(vaultID, 10)).Add(toShares(amount))
}

func (m *VaultMetrics) RecordDistribution(destination string, amount *big.Int) {
	if m == nil || amount == nil || amount.Sign() <= 0 {
		return
	}
	m.distributions.WithLabelValues(destination).Add(toShares(amount))
}

func (m *VaultMetrics) RecordZap(entry, result string) {
	if m == nil {
		return
	}
	m.zapExecutions.WithLabelValues(entry, result).Inc()
}

func (m *VaultMetrics) RecordClaim(vaultID uint64) {
	if m == nil {
		return
	}
	m.stakingClaims.WithLabelValues(strconv.FormatUint(vaultID, 10)).Inc()
}

func toShares(amount *big.Int) float64 {
	value, _ := new(big.Float).Quo(new(big.Float).SetInt(amount), shareScale).Float64()
	return value
}
