package observability

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type farmingMetrics struct {
	deposits       *prometheus.CounterVec
	payouts        *prometheus.CounterVec
	payoutFailures *prometheus.CounterVec
	lostFound      *prometheus.CounterVec
}

var (
	farmingMetricsOnce sync.Once
	farmingRegistry    *farmingMetrics
)

// Farming returns the metrics registry tracking farming engine activity.
func Farming() *farmingMetrics {
	farmingMetricsOnce.Do(func() {
		farmingRegistry = &farmingMetrics{
			deposits: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "farm",
				Subsystem: "engine",
				Name:      "deposits_total",
				Help:      "Count of accepted inbound deposits segmented by kind.",
			}, []string{"kind"}),
			payouts: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "farm",
				Subsystem: "engine",
				Name:      "payouts_total",
				Help:      "Count of finalized outbound transfers segmented by intent kind.",
			}, []string{"kind"}),
			payoutFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "farm",
				Subsystem: "engine",
				Name:      "payout_failures_total",
				Help:      "Count of outbound transfers reported as failed, segmented by intent kind.",
			}, []string{"kind"}),
			lostFound: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "farm",
				Subsystem: "engine",
				Name:      "lostfound_credits_total",
				Help:      "Count of amounts parked in the lost-and-found ledger segmented by token.",
			}, []string{"token"}),
		}
		prometheus.MustRegister(
			farmingRegistry.deposits,
			farmingRegistry.payouts,
			farmingRegistry.payoutFailures,
			farmingRegistry.lostFound,
		)
	})
	return farmingRegistry
}

// RecordDeposit increments the deposit counter for the supplied kind.
func (m *farmingMetrics) RecordDeposit(kind string) {
	if m == nil {
		return
	}
	m.deposits.WithLabelValues(normalizeLabel(kind)).Inc()
}

// RecordPayout increments the finalized payout counter for the intent kind.
func (m *farmingMetrics) RecordPayout(kind string) {
	if m == nil {
		return
	}
	m.payouts.WithLabelValues(normalizeLabel(kind)).Inc()
}

// RecordPayoutFailure increments the failed payout counter for the intent kind.
func (m *farmingMetrics) RecordPayoutFailure(kind string) {
	if m == nil {
		return
	}
	m.payoutFailures.WithLabelValues(normalizeLabel(kind)).Inc()
}

// RecordLostFound increments the lost-and-found credit counter for the token.
func (m *farmingMetrics) RecordLostFound(token string) {
	if m == nil {
		return
	}
	m.lostFound.WithLabelValues(normalizeLabel(token)).Inc()
}

func normalizeLabel(v string) string {
	normalized := strings.TrimSpace(strings.ToLower(v))
	if normalized == "" {
		normalized = "unknown"
	}
	return normalized
}
