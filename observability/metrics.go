package observability

import (
	"math/big"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// LendingMetrics records lending engine activity. Counters are segmented by
// operation and outcome so dashboards can separate user errors from failures.
type LendingMetrics struct {
	Operations   *prometheus.CounterVec
	Liquidations *prometheus.CounterVec

	TotalBorrows     prometheus.Gauge
	ProtocolReserves prometheus.Gauge
	BadDebtQueued    prometheus.Gauge
	BadDebtTotal     prometheus.Gauge
}

// PricefeedMetrics records oracle guard activity.
type PricefeedMetrics struct {
	Updates    *prometheus.CounterVec
	Rejections *prometheus.CounterVec
}

var (
	lendingMetricsOnce sync.Once
	lendingRegistry    *LendingMetrics

	pricefeedMetricsOnce sync.Once
	pricefeedRegistry    *PricefeedMetrics
)

// Lending returns the lazily-initialised lending metrics registry.
func Lending() *LendingMetrics {
	lendingMetricsOnce.Do(func() {
		lendingRegistry = &LendingMetrics{
			Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "havenlend",
				Subsystem: "lending",
				Name:      "operations_total",
				Help:      "Total lending engine operations segmented by operation and outcome.",
			}, []string{"op", "outcome"}),
			Liquidations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "havenlend",
				Subsystem: "lending",
				Name:      "liquidations_total",
				Help:      "Total liquidation calls segmented by result (executed, rejected_healthy).",
			}, []string{"result"}),
			TotalBorrows: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "havenlend",
				Subsystem: "lending",
				Name:      "total_borrows_wei",
				Help:      "Outstanding borrowed debt including accrued interest.",
			}),
			ProtocolReserves: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "havenlend",
				Subsystem: "lending",
				Name:      "protocol_reserves_wei",
				Help:      "Accumulated protocol reserve share of borrower interest.",
			}),
			BadDebtQueued: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "havenlend",
				Subsystem: "lending",
				Name:      "bad_debt_queued_wei",
				Help:      "Socialized bad debt awaiting absorption from future supplier interest.",
			}),
			BadDebtTotal: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "havenlend",
				Subsystem: "lending",
				Name:      "bad_debt_outstanding_wei",
				Help:      "Recorded borrower bad debt not yet socialized.",
			}),
		}
		prometheus.MustRegister(
			lendingRegistry.Operations,
			lendingRegistry.Liquidations,
			lendingRegistry.TotalBorrows,
			lendingRegistry.ProtocolReserves,
			lendingRegistry.BadDebtQueued,
			lendingRegistry.BadDebtTotal,
		)
	})
	return lendingRegistry
}

// Pricefeed returns the lazily-initialised oracle guard metrics registry.
func Pricefeed() *PricefeedMetrics {
	pricefeedMetricsOnce.Do(func() {
		pricefeedRegistry = &PricefeedMetrics{
			Updates: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "havenlend",
				Subsystem: "pricefeed",
				Name:      "updates_total",
				Help:      "Accepted price updates per asset.",
			}, []string{"asset"}),
			Rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "havenlend",
				Subsystem: "pricefeed",
				Name:      "rejections_total",
				Help:      "Rejected price updates per asset and reason.",
			}, []string{"asset", "reason"}),
		}
		prometheus.MustRegister(pricefeedRegistry.Updates, pricefeedRegistry.Rejections)
	})
	return pricefeedRegistry
}

// SetBigGauge renders a big.Int onto a float gauge. Precision loss beyond
// float64 range is acceptable for monitoring purposes.
func SetBigGauge(gauge prometheus.Gauge, value *big.Int) {
	if gauge == nil {
		return
	}
	if value == nil {
		gauge.Set(0)
		return
	}
	f, _ := new(big.Float).SetInt(value).Float64()
	gauge.Set(f)
}
