package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry is the dedicated Prometheus registry for the service
	Registry = prometheus.NewRegistry()

	// HTTPRequests counts requests by method, path, and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// WebhookDeliveries counts webhook delivery outcomes by event type and status
	WebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Webhook deliveries by event type and status."},
		[]string{"event_type", "status"},
	)
	// WebhookLatency tracks webhook delivery latencies in milliseconds
	WebhookLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "webhook_delivery_latency_ms", Help: "Webhook delivery latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000}},
		[]string{"event_type", "status"},
	)

	// SolverNodes counts scored search nodes
	SolverNodes = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "solver_nodes_total", Help: "Search nodes bounded and scored."},
	)
	// SolverCycles records the wall time of solver cycles in seconds
	SolverCycles = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "solver_cycle_seconds", Help: "Solver cycle duration in seconds.", Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10}},
	)
	// SolverQueue is the open-node count of the last cycle, summed over running solvers
	SolverQueue = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "solver_queue_nodes", Help: "Open search nodes across running solvers."},
	)

	// Jobs counts scoring jobs by outcome
	Jobs = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "score_jobs_total", Help: "Scoring jobs by outcome."},
		[]string{"outcome"},
	)
	// JobsRunning is the number of jobs being solved
	JobsRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "score_jobs_running", Help: "Scoring jobs in progress."},
	)
)

// RegisterDefault registers the collectors on Registry once.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests, HTTPDuration)
		Registry.MustRegister(WebhookDeliveries, WebhookLatency)
		Registry.MustRegister(SolverNodes, SolverCycles, SolverQueue)
		Registry.MustRegister(Jobs, JobsRunning)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once

// Handler serves Registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}
