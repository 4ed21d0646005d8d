package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type SettlementMetrics struct {
	deposits         prometheus.Counter
	settlements      *prometheus.CounterVec
	disputesOpened   prometheus.Counter
	disputesResolved *prometheus.CounterVec
	proposalsMinted  prometheus.Counter
	matchesAccepted  prometheus.Counter
	matchUpdates     *prometheus.CounterVec
	activeEscrows    prometheus.Gauge
}

var (
	settlementOnce     sync.Once
	settlementRegistry *SettlementMetrics
)

func Settlement() *SettlementMetrics {
	settlementOnce.Do(func() {
		settlementRegistry = &SettlementMetrics{
			deposits: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "settlement_deposits_total",
				Help: "Count of escrow deposits accepted by the ledger.",
			}),
			settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "settlement_settlements_total",
				Help: "Count of escrow settlements by outcome.",
			}, []string{"outcome"}),
			disputesOpened: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "settlement_disputes_opened_total",
				Help: "Count of escrows frozen by a dispute.",
			}),
			disputesResolved: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "settlement_disputes_resolved_total",
				Help: "Count of dispute resolutions by ruling.",
			}, []string{"ruling"}),
			proposalsMinted: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "settlement_proposals_minted_total",
				Help: "Count of proposals minted by the coordinator.",
			}),
			matchesAccepted: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "settlement_matches_accepted_total",
				Help: "Count of proposals converted into matches.",
			}),
			matchUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "settlement_match_updates_total",
				Help: "Count of match status updates by target status.",
			}, []string{"status"}),
			activeEscrows: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "settlement_escrows_created",
				Help: "Total escrows created by the ledger.",
			}),
		}
		prometheus.MustRegister(
			settlementRegistry.deposits,
			settlementRegistry.settlements,
			settlementRegistry.disputesOpened,
			settlementRegistry.disputesResolved,
			settlementRegistry.proposalsMinted,
			settlementRegistry.matchesAccepted,
			settlementRegistry.matchUpdates,
			settlementRegistry.activeEscrows,
		)
	})
	return settlementRegistry
}

func (m *SettlementMetrics) ObserveDeposit(total uint64) {
	if m == nil {
		return
	}
	m.deposits.Inc()
	m.activeEscrows.Set(float64(total))
}

func (m *SettlementMetrics) ObserveSettlement(outcome string) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.settlements.WithLabelValues(outcome).Inc()
}

func (m *SettlementMetrics) ObserveDisputeOpened() {
	if m == nil {
		return
	}
	m.disputesOpened.Inc()
}

func (m *SettlementMetrics) ObserveDisputeResolved(ruling string) {
	if m == nil {
		return
	}
	if ruling == "" {
		ruling = "unknown"
	}
	m.disputesResolved.WithLabelValues(ruling).Inc()
}

func (m *SettlementMetrics) ObserveProposal() {
	if m == nil {
		return
	}
	m.proposalsMinted.Inc()
}

func (m *SettlementMetrics) ObserveMatchAccepted() {
	if m == nil {
		return
	}
	m.matchesAccepted.Inc()
}

func (m *SettlementMetrics) ObserveMatchUpdate(status string) {
	if m == nil {
		return
	}
	if status == "" {
		status = "unknown"
	}
	m.matchUpdates.WithLabelValues(status).Inc()
}
