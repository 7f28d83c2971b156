// ============================================================================
// ruvltra-core Metrics - Prometheus Monitoring
// ============================================================================
//
// Package: internal/metrics
// File: metrics.go
// Function: Collects and exposes Prometheus metrics for the worker pool,
// inference engine, and pattern memory, per spec §7 "Observability".
//
// Design origin:
//   Direct transform of ChuLiYu/raft-recovery/internal/metrics.Collector:
//   same shape (one struct of prometheus instruments built and registered
//   in NewCollector, one Record*/Set* method per event), retargeted from
//   job-queue counters to this domain's task/backend/breaker counters.
//
// ============================================================================

package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector collects Prometheus metrics for one running pool.
type Collector struct {
	tasksSubmitted prometheus.Counter
	tasksCompleted prometheus.Counter
	tasksFailed    prometheus.Counter
	tasksTimedOut  prometheus.Counter
	tasksCancelled prometheus.Counter
	tasksRejected  prometheus.Counter

	taskLatency *prometheus.HistogramVec

	queueLength  prometheus.Gauge
	workerCount  prometheus.Gauge
	idleCount    prometheus.Gauge

	backendReady      *prometheus.GaugeVec
	backendCalls      *prometheus.CounterVec
	circuitBreakerOpen prometheus.Gauge

	patternCount prometheus.Gauge
}

// NewCollector builds and registers every metric against reg. Passing
// prometheus.NewRegistry() isolates the collector for tests; passing
// prometheus.DefaultRegisterer wires it into the process-wide /metrics
// endpoint.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		tasksSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ruvltra_tasks_submitted_total",
			Help: "Total number of generation tasks admitted to the pool",
		}),
		tasksCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ruvltra_tasks_completed_total",
			Help: "Total number of generation tasks completed successfully",
		}),
		tasksFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ruvltra_tasks_failed_total",
			Help: "Total number of generation tasks that failed on every backend",
		}),
		tasksTimedOut: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ruvltra_tasks_timed_out_total",
			Help: "Total number of generation tasks that hit their deadline",
		}),
		tasksCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ruvltra_tasks_cancelled_total",
			Help: "Total number of generation tasks cancelled before settlement",
		}),
		tasksRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ruvltra_tasks_rejected_total",
			Help: "Total number of generation tasks rejected by backpressure",
		}),
		taskLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ruvltra_task_latency_seconds",
			Help:    "Generation task latency in seconds, by backend",
			Buckets: prometheus.DefBuckets,
		}, []string{"backend"}),
		queueLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ruvltra_queue_length",
			Help: "Current number of tasks waiting for a worker",
		}),
		workerCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ruvltra_worker_count",
			Help: "Current number of live workers",
		}),
		idleCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ruvltra_worker_idle_count",
			Help: "Current number of idle workers",
		}),
		backendReady: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ruvltra_backend_ready",
			Help: "1 if a backend is currently ready, 0 otherwise",
		}, []string{"backend"}),
		backendCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ruvltra_backend_calls_total",
			Help: "Total number of generation calls attempted per backend, by outcome",
		}, []string{"backend", "outcome"}),
		circuitBreakerOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ruvltra_circuit_breaker_open",
			Help: "1 if the remote HTTP backend's circuit breaker is currently open",
		}),
		patternCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ruvltra_pattern_memory_patterns",
			Help: "Total learned patterns across every worker's pattern memory",
		}),
	}

	reg.MustRegister(
		c.tasksSubmitted, c.tasksCompleted, c.tasksFailed, c.tasksTimedOut,
		c.tasksCancelled, c.tasksRejected, c.taskLatency,
		c.queueLength, c.workerCount, c.idleCount,
		c.backendReady, c.backendCalls, c.circuitBreakerOpen,
		c.patternCount,
	)

	return c
}

// RecordSubmitted records a task admitted to the pool.
func (c *Collector) RecordSubmitted() { c.tasksSubmitted.Inc() }

// RecordRejected records a task rejected by backpressure (QueueOverflow).
func (c *Collector) RecordRejected() { c.tasksRejected.Inc() }

// RecordSettled records one task's terminal outcome and latency.
func (c *Collector) RecordSettled(backend string, latencySeconds float64, outcome string) {
	switch outcome {
	case "completed":
		c.tasksCompleted.Inc()
	case "failed":
		c.tasksFailed.Inc()
	case "timeout":
		c.tasksTimedOut.Inc()
	case "cancelled":
		c.tasksCancelled.Inc()
	}
	if outcome == "completed" {
		c.taskLatency.WithLabelValues(backend).Observe(latencySeconds)
	}
}

// RecordBackendCall records one backend attempt's outcome ("success" or
// "failure"), per spec §4.2 "Ranked fallback".
func (c *Collector) RecordBackendCall(backend, outcome string) {
	c.backendCalls.WithLabelValues(backend, outcome).Inc()
}

// SetBackendReady reports a backend's current readiness bit.
func (c *Collector) SetBackendReady(backend string, ready bool) {
	v := 0.0
	if ready {
		v = 1.0
	}
	c.backendReady.WithLabelValues(backend).Set(v)
}

// SetCircuitBreakerOpen reports the HTTP backend's breaker state.
func (c *Collector) SetCircuitBreakerOpen(open bool) {
	v := 0.0
	if open {
		v = 1.0
	}
	c.circuitBreakerOpen.Set(v)
}

// UpdatePoolStats mirrors the pool's point-in-time load (spec §6
// "ruvltra_status").
func (c *Collector) UpdatePoolStats(workerCount, idleCount, queueLength int) {
	c.workerCount.Set(float64(workerCount))
	c.idleCount.Set(float64(idleCount))
	c.queueLength.Set(float64(queueLength))
}

// SetPatternCount reports the total learned pattern count across every
// worker's pattern memory.
func (c *Collector) SetPatternCount(n int) {
	c.patternCount.Set(float64(n))
}

// StartServer starts the Prometheus /metrics HTTP server on port, serving
// the metrics registered against handler.
func StartServer(port int, handler http.Handler) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	addr := fmt.Sprintf(":%d", port)
	return http.ListenAndServe(addr, mux)
}

// DefaultHandler returns the promhttp handler for the default registry,
// used when the caller built its Collector against
// prometheus.DefaultRegisterer.
func DefaultHandler() http.Handler {
	return promhttp.Handler()
}
