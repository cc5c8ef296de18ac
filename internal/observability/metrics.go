package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gridmesh",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gridmesh",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	dispatchReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gridmesh",
			Subsystem: "dispatch",
			Name:      "messages_received_total",
			Help:      "Messages delivered to dispatcher mailboxes.",
		},
		[]string{"node", "type"},
	)
	dispatchSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gridmesh",
			Subsystem: "dispatch",
			Name:      "messages_sent_total",
			Help:      "Messages sent between dispatchers.",
		},
		[]string{"node", "type"},
	)
	simulationRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gridmesh",
			Subsystem: "sim",
			Name:      "runs_total",
			Help:      "Simulation runs by outcome.",
		},
		[]string{"status"},
	)
	simulationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gridmesh",
			Subsystem: "sim",
			Name:      "run_duration_seconds",
			Help:      "Simulation run duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"status"},
	)
	solverJobs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gridmesh",
			Subsystem: "solver",
			Name:      "jobs_total",
			Help:      "Solver jobs by terminal status.",
		},
		[]string{"status"},
	)
	solverJobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gridmesh",
			Subsystem: "solver",
			Name:      "job_duration_seconds",
			Help:      "Solver job duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			dispatchReceived, dispatchSent,
			simulationRuns, simulationDuration,
			solverJobs, solverJobDuration,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordDispatchRecv(node, messageType string) {
	RegisterMetrics()
	dispatchReceived.WithLabelValues(node, messageType).Inc()
}

func RecordDispatchSend(node, messageType string) {
	RegisterMetrics()
	dispatchSent.WithLabelValues(node, messageType).Inc()
}

func RecordSimulationRun(status string, duration time.Duration) {
	RegisterMetrics()
	simulationRuns.WithLabelValues(status).Inc()
	simulationDuration.WithLabelValues(status).Observe(duration.Seconds())
}

func RecordSolverJob(status string, duration time.Duration) {
	RegisterMetrics()
	solverJobs.WithLabelValues(status).Inc()
	solverJobDuration.WithLabelValues(status).Observe(duration.Seconds())
}
