package sniper

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks the bidding engine's operational counters.
type Metrics struct {
	BidsPlaced      prometheus.Counter
	BidsFailed      prometheus.Counter
	AuctionsSkipped prometheus.Counter
	OutcomesSettled *prometheus.CounterVec
	TickDuration    prometheus.Histogram
}

// NewMetrics registers the engine metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		BidsPlaced: factory.NewCounter(prometheus.CounterOpts{
			Name: "sniper_bids_placed_total",
			Help: "Bids successfully placed.",
		}),
		BidsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "sniper_bids_failed_total",
			Help: "Auctions that terminated Failed.",
		}),
		AuctionsSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "sniper_auctions_skipped_total",
			Help: "Auctions skipped by the pre-bid price guard.",
		}),
		OutcomesSettled: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sniper_outcomes_settled_total",
			Help: "Auction outcomes settled by the reconciler.",
		}, []string{"outcome"}),
		TickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "sniper_tick_duration_seconds",
			Help:    "Scheduler tick duration.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
	}
}
