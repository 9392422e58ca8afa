package engine

import "github.com/prometheus/client_golang/prometheus"

// Outcome label values for requestsTotal.
const (
	outcomeSuccess = "success"
	outcomeError   = "error"
	outcomePanic   = "panic"
)

var (
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "infernum_engine_requests_total",
			Help: "Total number of requests run by the engine worker, by outcome.",
		},
		[]string{"outcome"},
	)

	inferenceDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "infernum_engine_inference_duration_seconds",
			Help:    "Time spent inside the model for one request, in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)

	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "infernum_engine_queue_depth",
			Help: "Number of requests waiting for the worker.",
		},
	)

	processingGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "infernum_engine_processing",
			Help: "1 while the worker is running a request, 0 when idle.",
		},
	)

	drainedRequestsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "infernum_engine_drained_requests_total",
			Help: "Queued requests the worker started after shutdown began.",
		},
	)
)

func init() {
	prometheus.MustRegister(requestsTotal)
	prometheus.MustRegister(inferenceDuration)
	prometheus.MustRegister(queueDepth)
	prometheus.MustRegister(processingGauge)
	prometheus.MustRegister(drainedRequestsTotal)

	// Pre-initialize outcome labels so they appear in /metrics from startup.
	for _, o := range []string{outcomeSuccess, outcomeError, outcomePanic} {
		requestsTotal.WithLabelValues(o)
	}
}
