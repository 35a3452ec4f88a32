// Package metrics exposes the live executor/signal-generator's
// Prometheus surface: orders placed, positions open, and kill-switch
// state, on a private registry rather than the global default one —
// grounded on SynapseStrike's metrics.Registry + promauto.With idiom.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry is this module's private Prometheus registry.
var Registry = prometheus.NewRegistry()

var (
	OrdersPlacedTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "earningsgap",
			Subsystem: "executor",
			Name:      "orders_placed_total",
			Help:      "Total orders placed, by intent and side.",
		},
		[]string{"intent", "side"},
	)

	OrdersFailedTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "earningsgap",
			Subsystem: "executor",
			Name:      "orders_failed_total",
			Help:      "Total order placement failures, by intent.",
		},
		[]string{"intent"},
	)

	PositionsOpen = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: "earningsgap",
			Subsystem: "executor",
			Name:      "positions_open",
			Help:      "Current number of open live positions.",
		},
	)

	KillSwitchEngaged = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: "earningsgap",
			Subsystem: "executor",
			Name:      "kill_switch_engaged",
			Help:      "Whether the kill switch is engaged (1) or not (0).",
		},
	)

	SkippedTradesTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "earningsgap",
			Subsystem: "signalgen",
			Name:      "skipped_trades_total",
			Help:      "Total candidates skipped, by reason.",
		},
		[]string{"reason"},
	)
)

// RecordOrderPlaced increments the placed-order counter for intent/side.
func RecordOrderPlaced(intent, side string) {
	OrdersPlacedTotal.WithLabelValues(intent, side).Inc()
}

// RecordOrderFailed increments the failed-order counter for intent.
func RecordOrderFailed(intent string) {
	OrdersFailedTotal.WithLabelValues(intent).Inc()
}

// SetPositionsOpen sets the current open-position gauge.
func SetPositionsOpen(n int) {
	PositionsOpen.Set(float64(n))
}

// SetKillSwitchEngaged sets the kill-switch gauge to 1 or 0.
func SetKillSwitchEngaged(engaged bool) {
	v := 0.0
	if engaged {
		v = 1.0
	}
	KillSwitchEngaged.Set(v)
}

// RecordSkippedTrade increments the skipped-trade counter for reason.
func RecordSkippedTrade(reason string) {
	SkippedTradesTotal.WithLabelValues(reason).Inc()
}
