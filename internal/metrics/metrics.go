package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "dentalvoice"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	uploadAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upload_attempts_total",
			Help:      "Relay upload attempts by outcome (success, retryable, terminal).",
		},
		[]string{"outcome"},
	)

	uploadLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upload_duration_seconds",
			Help:      "Latency of single relay upload attempts.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)

	deliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Recording submissions by outcome (delivered, queued, abandoned).",
		},
		[]string{"outcome"},
	)

	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Recordings waiting in the offline queue.",
		},
	)

	connectivity = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connectivity_status",
			Help:      "Connectivity status: 0 healthy, 1 slow, 2 down.",
		},
	)

	drainPasses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "drain_passes_total",
			Help:      "Offline queue drain passes by trigger (timer, manual).",
		},
		[]string{"trigger"},
	)

	relayForwards = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_forwards_total",
			Help:      "Relay requests forwarded to the webhook by upstream status class.",
		},
		[]string{"status"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			uploadAttempts,
			uploadLatency,
			deliveries,
			queueDepth,
			connectivity,
			drainPasses,
			relayForwards,
		)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

// ObserveUpload records one transport attempt.
func ObserveUpload(outcome string, seconds float64) {
	uploadAttempts.WithLabelValues(outcome).Inc()
	uploadLatency.Observe(seconds)
}

func IncDelivery(outcome string) {
	deliveries.WithLabelValues(outcome).Inc()
}

func SetQueueDepth(n int) {
	queueDepth.Set(float64(n))
}

// SetConnectivity takes the numeric gauge value of a connectivity status.
func SetConnectivity(v float64) {
	connectivity.Set(v)
}

func IncDrain(trigger string) {
	drainPasses.WithLabelValues(trigger).Inc()
}

func IncRelayForward(status string) {
	relayForwards.WithLabelValues(status).Inc()
}
