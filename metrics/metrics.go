/*
Package metrics provides utilities for exposing prometheus metrics.
*/
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	StatusOK    = "success"
	StatusError = "error"
)

var (
	dimensionsSpring   = []string{"method", "status", "uri"}
	dimensionsQueue    = []string{"operation", "status"}
	dimensionsOutcomes = []string{"outcome"}
)

// Options define metrics options.
type Options struct {
	Namespace           string
	Registerer          prometheus.Registerer // defaults to prometheus.DefaultRegisterer
	BucketsLatencyHTTP  []float64
	BucketsLatencyQueue []float64
}

// Metrics holds the relocation metrics.
type Metrics struct {
	latencySpring *prometheus.HistogramVec
	latencyQueue  *prometheus.HistogramVec
	outcomes      *prometheus.CounterVec
	cycleMessages prometheus.Histogram
	cycleLatency  prometheus.Histogram
}

// New creates and registers the metrics.
func New(options Options) *Metrics {
	if options.Registerer == nil {
		options.Registerer = prometheus.DefaultRegisterer
	}
	if len(options.BucketsLatencyHTTP) == 0 {
		options.BucketsLatencyHTTP = []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5, 10}
	}
	if len(options.BucketsLatencyQueue) == 0 {
		options.BucketsLatencyQueue = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5, 10, 20}
	}

	factory := promauto.With(options.Registerer)

	return &Metrics{

		latencySpring: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: options.Namespace,
				Name:      "http_server_requests_seconds",
				Help:      "Spring-like request durations in seconds.",
				Buckets:   options.BucketsLatencyHTTP,
			},
			dimensionsSpring,
		),

		latencyQueue: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: options.Namespace,
				Name:      "queue_requests_seconds",
				Help:      "Queue request (receive, send, delete) duration in seconds.",
				Buckets:   options.BucketsLatencyQueue,
			},
			dimensionsQueue,
		),

		outcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: options.Namespace,
				Name:      "relocation_outcomes_total",
				Help:      "Number of relocated messages by outcome.",
			},
			dimensionsOutcomes,
		),

		cycleMessages: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: options.Namespace,
				Name:      "cycle_messages",
				Help:      "Number of messages received per cycle.",
				Buckets:   []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
			},
		),

		cycleLatency: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: options.Namespace,
				Name:      "cycle_seconds",
				Help:      "Cycle duration in seconds, long poll included.",
				Buckets:   options.BucketsLatencyQueue,
			},
		),
	}
}

// RecordOutcome counts one relocation outcome.
func (m *Metrics) RecordOutcome(outcome string) {
	m.outcomes.WithLabelValues(outcome).Inc()
}

// RecordQueueCall records latency for one queue call.
func (m *Metrics) RecordQueueCall(operation, status string, elapsed time.Duration) {
	m.latencyQueue.WithLabelValues(operation, status).Observe(elapsed.Seconds())
}

// RecordCycle records one worker cycle.
func (m *Metrics) RecordCycle(received int, elapsed time.Duration) {
	m.cycleMessages.Observe(float64(received))
	m.cycleLatency.Observe(elapsed.Seconds())
}

// Middleware provides a gin middleware for exposing prometheus metrics.
func (m *Metrics) Middleware(metricsMaskPath bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		elap := time.Since(start)

		status := strconv.Itoa(c.Writer.Status())
		elapsedSeconds := float64(elap) / float64(time.Second)

		var path string
		if metricsMaskPath {
			path = c.FullPath()
			// FullPath returns a matched route full path. For not found routes returns an empty string.
			if path == "" {
				path = "NO_ROUTE_HANDLER"
			}
		} else {
			path = c.Request.URL.Path
		}

		m.latencySpring.WithLabelValues(c.Request.Method, status, path).Observe(elapsedSeconds)
	}
}
