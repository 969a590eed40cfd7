package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	jobTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "curbly",
			Name:      "job_transitions_total",
			Help:      "Trash job status transitions by target status.",
		},
		[]string{"status"},
	)

	bids = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "curbly",
			Name:      "cleaning_bids_total",
			Help:      "Cleaning bids by outcome (placed, accepted, rejected).",
		},
		[]string{"outcome"},
	)

	reconcileSweeps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "curbly",
			Name:      "reconcile_sweeps_total",
			Help:      "Reconciler assignment sweeps by direction.",
		},
		[]string{"direction"},
	)

	queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "curbly",
			Name:      "worker_queue_depth",
			Help:      "Active jobs per worker.",
		},
		[]string{"worker_id"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "curbly",
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(jobTransitions, bids, reconcileSweeps, queueDepth, httpRequests)
	})
}

// IncTransition counts a job transition into the given status.
func IncTransition(status string) {
	jobTransitions.WithLabelValues(status).Inc()
}

// IncBid counts a bid outcome.
func IncBid(outcome string) {
	bids.WithLabelValues(outcome).Inc()
}

// IncReconcile counts a reconciler sweep, direction assign or unassign.
func IncReconcile(direction string) {
	reconcileSweeps.WithLabelValues(direction).Inc()
}

// SetQueueDepth records the active-job count for a worker.
func SetQueueDepth(workerID string, depth int) {
	queueDepth.WithLabelValues(workerID).Set(float64(depth))
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}
