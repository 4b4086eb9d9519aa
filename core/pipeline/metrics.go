package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
)

// metrics holds the process-wide progress counters (spec §5 "Progress
// counters and metrics use atomic primitives" — backed here by
// prometheus's atomic-safe collector types rather than hand-rolled
// atomics). Registered once in NewRangeExecutor/NewTipFollower; an
// external HTTP handler scraping them is out of scope (§1).
type metrics struct {
	blocksInFlight   prometheus.Gauge
	reorderDepth     prometheus.Gauge
	inspectorLatency *prometheus.HistogramVec
	bundlesEmitted   *prometheus.CounterVec
	blockFailures    *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		blocksInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "brontes",
			Name:      "blocks_in_flight",
			Help:      "Number of block units currently being processed by the worker pool.",
		}),
		reorderDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "brontes",
			Name:      "reorder_buffer_depth",
			Help:      "Number of completed blocks waiting in the reordering buffer.",
		}),
		inspectorLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "brontes",
			Name:      "inspector_latency_seconds",
			Help:      "Latency of a single inspector's Inspect call.",
		}, []string{"inspector"}),
		bundlesEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "brontes",
			Name:      "bundles_emitted_total",
			Help:      "Bundles emitted, labeled by mev_kind.",
		}, []string{"mev_kind"}),
		blockFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "brontes",
			Name:      "block_failures_total",
			Help:      "Per-block failures, labeled by stage and error kind.",
		}, []string{"stage", "kind"}),
	}
	reg.MustRegister(m.blocksInFlight, m.reorderDepth, m.inspectorLatency, m.bundlesEmitted, m.blockFailures)
	return m
}
