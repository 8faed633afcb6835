package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments exported by the node.
type Metrics struct {
	FinalizedHeight  prometheus.Gauge
	LogBlockHeight   prometheus.Gauge
	PendingReceipts  prometheus.Gauge
	ActiveValidators prometheus.Gauge
	TotalStake       prometheus.Gauge
	CumulativeMint   prometheus.Gauge
	Difficulty       prometheus.Gauge
	RequestsTotal    *prometheus.CounterVec
}

// NewMetrics registers the node's instruments on the given registerer.
// Pass a fresh prometheus.NewRegistry() in tests to avoid global state.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		FinalizedHeight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "poechain_finalized_height",
			Help: "Height of the latest finalized block.",
		}),
		LogBlockHeight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "poechain_logblock_height",
			Help: "Height of the latest sealed log block.",
		}),
		PendingReceipts: factory.NewGauge(prometheus.GaugeOpts{
			Name: "poechain_pending_receipts",
			Help: "Receipts waiting in the notarization queue.",
		}),
		ActiveValidators: factory.NewGauge(prometheus.GaugeOpts{
			Name: "poechain_active_validators",
			Help: "Validators currently in the active set.",
		}),
		TotalStake: factory.NewGauge(prometheus.GaugeOpts{
			Name: "poechain_total_stake",
			Help: "Aggregated stake of the active validator set.",
		}),
		CumulativeMint: factory.NewGauge(prometheus.GaugeOpts{
			Name: "poechain_cumulative_mint_micro",
			Help: "Total minted micro-tokens across finalized blocks.",
		}),
		Difficulty: factory.NewGauge(prometheus.GaugeOpts{
			Name: "poechain_difficulty",
			Help: "Mining difficulty in force for the next block.",
		}),
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "poechain_api_requests_total",
			Help: "API requests served, by route and status class.",
		}, []string{"route", "status"}),
	}
}
