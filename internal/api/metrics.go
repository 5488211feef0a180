// Package api exposes the orchestrator's ambient health/metrics HTTP
// surface: a liveness check and a Prometheus-format snapshot of the
// section 4.7 periodic metrics task (state counts, global notional,
// active order count), served alongside the slog line that task already
// emits rather than replacing it.
package api

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics owns its own registry rather than registering into
// prometheus's package-level DefaultRegisterer: the orchestrator, and
// its tests, may construct more than one Metrics instance in a process,
// and MustRegister against the global registry panics on the second
// registration of the same metric name.
type Metrics struct {
	registry *prometheus.Registry

	stateCount             *prometheus.GaugeVec
	globalNotional         prometheus.Gauge
	activeOrders           prometheus.Gauge
	reconcileDiscrepancies *prometheus.CounterVec
	feedReconnects         *prometheus.CounterVec
	denials                *prometheus.CounterVec
}

// NewMetrics creates and registers every gauge/counter the orchestrator's
// periodic tasks update.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		stateCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "marketmaker_market_state_count",
			Help: "Number of active markets currently in each state machine state.",
		}, []string{"state"}),
		globalNotional: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "marketmaker_global_notional_usdc",
			Help: "Aggregate notional currently committed across all markets (I2).",
		}),
		activeOrders: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "marketmaker_active_orders",
			Help: "Number of live ActiveOrder entries across all assets.",
		}),
		reconcileDiscrepancies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketmaker_reconcile_discrepancies_total",
			Help: "Discrepancies found between local order state and the venue, by kind.",
		}, []string{"kind"}),
		feedReconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketmaker_feed_reconnects_total",
			Help: "Feed reconnect attempts, by channel.",
		}, []string{"channel"}),
		denials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketmaker_risk_denials_total",
			Help: "Buy placements denied by RiskManager, by reason.",
		}, []string{"reason"}),
	}

	m.registry.MustRegister(
		m.stateCount, m.globalNotional, m.activeOrders,
		m.reconcileDiscrepancies, m.feedReconnects, m.denials,
	)
	return m
}

// SetStateCounts replaces the state-count gauge vector with a fresh
// snapshot, called once per metrics tick. The vector is reset first, so a
// state absent from counts disappears from the exposition rather than
// keeping its old value.
func (m *Metrics) SetStateCounts(counts map[string]int) {
	m.stateCount.Reset()
	for state, n := range counts {
		m.stateCount.WithLabelValues(state).Set(float64(n))
	}
}

// SetGlobalNotional records the current aggregate notional at risk.
func (m *Metrics) SetGlobalNotional(v float64) { m.globalNotional.Set(v) }

// SetActiveOrders records the current count of live ActiveOrder entries.
func (m *Metrics) SetActiveOrders(n int) { m.activeOrders.Set(float64(n)) }

// IncReconcileDiscrepancy counts one discrepancy found during a
// reconciliation pass.
func (m *Metrics) IncReconcileDiscrepancy(kind string) {
	m.reconcileDiscrepancies.WithLabelValues(kind).Inc()
}

// IncFeedReconnect counts one reconnect attempt on a feed channel.
func (m *Metrics) IncFeedReconnect(channel string) {
	m.feedReconnects.WithLabelValues(channel).Inc()
}

// IncRiskDenial counts one buy placement denied by RiskManager.
func (m *Metrics) IncRiskDenial(reason string) {
	m.denials.WithLabelValues(reason).Inc()
}
