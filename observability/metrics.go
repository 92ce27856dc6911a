package observability

import (
	"math"
	"math/big"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// LiquidationMetrics records auction state machine activity.
type LiquidationMetrics struct {
	batchesStarted    prometheus.Counter
	batchesSettled    *prometheus.CounterVec
	bondsSlashedWei   prometheus.Counter
	vaultsLiquidated  prometheus.Counter
	winnersSkipped    prometheus.Counter
	clearingPriceWad  prometheus.Gauge
	settleDurationSec prometheus.Histogram
}

// VaultMetrics records health engine activity.
type VaultMetrics struct {
	operations *prometheus.CounterVec
	flagged    prometheus.Counter
}

var (
	liquidationOnce sync.Once
	liquidationReg  *LiquidationMetrics

	vaultOnce sync.Once
	vaultReg  *VaultMetrics
)

// Liquidation returns the lazily-initialised liquidation metrics registry.
func Liquidation() *LiquidationMetrics {
	liquidationOnce.Do(func() {
		liquidationReg = &LiquidationMetrics{
			batchesStarted: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "stablenet",
				Subsystem: "liquidation",
				Name:      "batches_started_total",
				Help:      "Total liquidation batches opened for commitment.",
			}),
			batchesSettled: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "stablenet",
				Subsystem: "liquidation",
				Name:      "batches_settled_total",
				Help:      "Total settled batches segmented by outcome.",
			}, []string{"outcome"}),
			bondsSlashedWei: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "stablenet",
				Subsystem: "liquidation",
				Name:      "bonds_slashed_wei_total",
				Help:      "Cumulative forfeited bond value in wei.",
			}),
			vaultsLiquidated: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "stablenet",
				Subsystem: "liquidation",
				Name:      "vaults_liquidated_total",
				Help:      "Total vaults that received a non-zero fill at settlement.",
			}),
			winnersSkipped: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "stablenet",
				Subsystem: "liquidation",
				Name:      "winners_skipped_total",
				Help:      "Winning bids skipped because payment collection failed.",
			}),
			clearingPriceWad: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "stablenet",
				Subsystem: "liquidation",
				Name:      "clearing_price_wad",
				Help:      "Clearing price of the most recently settled batch.",
			}),
			settleDurationSec: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "stablenet",
				Subsystem: "liquidation",
				Name:      "settle_duration_seconds",
				Help:      "Wall-clock latency of batch settlement.",
				Buckets:   prometheus.DefBuckets,
			}),
		}
		prometheus.MustRegister(
			liquidationReg.batchesStarted,
			liquidationReg.batchesSettled,
			liquidationReg.bondsSlashedWei,
			liquidationReg.vaultsLiquidated,
			liquidationReg.winnersSkipped,
			liquidationReg.clearingPriceWad,
			liquidationReg.settleDurationSec,
		)
	})
	return liquidationReg
}

// Vault returns the lazily-initialised vault metrics registry.
func Vault() *VaultMetrics {
	vaultOnce.Do(func() {
		vaultReg = &VaultMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "stablenet",
				Subsystem: "vault",
				Name:      "operations_total",
				Help:      "Total vault operations segmented by kind and outcome.",
			}, []string{"op", "outcome"}),
			flagged: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "stablenet",
				Subsystem: "vault",
				Name:      "flagged_total",
				Help:      "Total vaults flagged for liquidation.",
			}),
		}
		prometheus.MustRegister(vaultReg.operations, vaultReg.flagged)
	})
	return vaultReg
}

// ObserveBatchStarted increments the batch counter.
func (m *LiquidationMetrics) ObserveBatchStarted() {
	if m == nil {
		return
	}
	m.batchesStarted.Inc()
}

// ObserveBatchSettled records a settlement outcome ("filled" or "empty"), the
// resulting clearing price, and the settlement latency.
func (m *LiquidationMetrics) ObserveBatchSettled(outcome string, clearingPrice *big.Int, seconds float64) {
	if m == nil {
		return
	}
	m.batchesSettled.WithLabelValues(outcome).Inc()
	m.clearingPriceWad.Set(bigFloat(clearingPrice))
	m.settleDurationSec.Observe(seconds)
}

// AddBondsSlashed accumulates forfeited bond value.
func (m *LiquidationMetrics) AddBondsSlashed(amount *big.Int) {
	if m == nil {
		return
	}
	m.bondsSlashedWei.Add(bigFloat(amount))
}

// AddVaultsLiquidated accumulates vaults that received a fill.
func (m *LiquidationMetrics) AddVaultsLiquidated(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.vaultsLiquidated.Add(float64(n))
}

// ObserveWinnerSkipped counts a winner dropped for failed payment.
func (m *LiquidationMetrics) ObserveWinnerSkipped() {
	if m == nil {
		return
	}
	m.winnersSkipped.Inc()
}

// ObserveOperation counts a vault operation outcome.
func (m *VaultMetrics) ObserveOperation(op string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.operations.WithLabelValues(op, outcome).Inc()
}

// ObserveFlagged counts a vault handed to the liquidation queue.
func (m *VaultMetrics) ObserveFlagged() {
	if m == nil {
		return
	}
	m.flagged.Inc()
}

func bigFloat(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return 0
	}
	return f
}
