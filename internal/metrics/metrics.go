// Package metrics collects and exposes Prometheus metrics for the job
// server: submission/completion counters, compute latency and the
// pending-queue depth. Scraped from /metrics on a dedicated port.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector bundles the server's Prometheus metrics. A nil *Collector
// is valid and records nothing, so wiring metrics stays optional.
type Collector struct {
	jobsSubmitted prometheus.Counter
	jobsCompleted prometheus.Counter
	jobsFailed    prometheus.Counter
	jobsRejected  prometheus.Counter

	jobLatency  prometheus.Histogram
	jobsPending prometheus.Gauge
	workerCount prometheus.Gauge
}

// NewCollector creates and registers the collector on the default
// registry.
func NewCollector() *Collector {
	c := &Collector{
		jobsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "webserver_jobs_submitted_total",
			Help: "Total number of jobs accepted by ingress",
		}),
		jobsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "webserver_jobs_completed_total",
			Help: "Total number of jobs whose result reached the done state",
		}),
		jobsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "webserver_jobs_failed_total",
			Help: "Total number of jobs finalized with an error payload",
		}),
		jobsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "webserver_jobs_rejected_total",
			Help: "Total number of submissions rejected after shutdown",
		}),
		jobLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "webserver_job_latency_seconds",
			Help:    "Time from dequeue to finalized result in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		jobsPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "webserver_jobs_pending",
			Help: "Current number of jobs waiting in the queue",
		}),
		workerCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "webserver_workers",
			Help: "Number of workers in the pool",
		}),
	}

	prometheus.MustRegister(c.jobsSubmitted)
	prometheus.MustRegister(c.jobsCompleted)
	prometheus.MustRegister(c.jobsFailed)
	prometheus.MustRegister(c.jobsRejected)
	prometheus.MustRegister(c.jobLatency)
	prometheus.MustRegister(c.jobsPending)
	prometheus.MustRegister(c.workerCount)

	return c
}

// RecordSubmitted counts one accepted submission.
func (c *Collector) RecordSubmitted() {
	if c == nil {
		return
	}
	c.jobsSubmitted.Inc()
}

// RecordCompleted counts one finalized job and observes its latency.
func (c *Collector) RecordCompleted(latencySeconds float64) {
	if c == nil {
		return
	}
	c.jobsCompleted.Inc()
	c.jobLatency.Observe(latencySeconds)
}

// RecordFailed counts one job finalized with an error payload.
func (c *Collector) RecordFailed() {
	if c == nil {
		return
	}
	c.jobsFailed.Inc()
}

// RecordRejected counts one post-shutdown submission.
func (c *Collector) RecordRejected() {
	if c == nil {
		return
	}
	c.jobsRejected.Inc()
}

// SetPending publishes the current queue depth.
func (c *Collector) SetPending(n int) {
	if c == nil {
		return
	}
	c.jobsPending.Set(float64(n))
}

// SetWorkers publishes the pool size.
func (c *Collector) SetWorkers(n int) {
	if c == nil {
		return
	}
	c.workerCount.Set(float64(n))
}

// StartServer serves /metrics on the given port. It blocks, so callers
// run it in its own goroutine.
func StartServer(port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(fmt.Sprintf(":%d", port), mux)
}
