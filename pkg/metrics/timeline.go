package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// Latency of the timeline HTTP handler
	TimelineLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "timeline_request_latency_seconds",
		Help:    "Latency of the timeline handler",
		Buckets: prometheus.DefBuckets,
	})

	// Total number of timelines served
	TimelineRequests = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "timeline_requests_total",
		Help: "Total number of timeline requests",
	})

	// Total number of successful model reloads
	ModelReloads = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "model_reloads_total",
		Help: "Total number of model snapshot swaps",
	})
)

func Init() {
	prometheus.MustRegister(
		TimelineLatency,
		TimelineRequests,
		ModelReloads,
	)
}
