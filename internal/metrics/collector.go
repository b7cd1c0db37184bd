// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector records prometheus metrics for the memory service. A nil
// *Collector is valid and records nothing, so metrics stay optional in
// library use.
type Collector struct {
	memoryOpsTotal  *prometheus.CounterVec
	memoriesStored  *prometheus.GaugeVec
	memoryTokens    *prometheus.HistogramVec
	promptTokens    *prometheus.HistogramVec
	promptDuration  prometheus.Histogram
	adaptationsRuns *prometheus.CounterVec

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	logger *zap.Logger
}

// NewCollector registers the service's metrics under namespace. reg may be
// nil to use the default registry.
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.memoryOpsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memory_operations_total",
			Help:      "Total number of memory store operations",
		},
		[]string{"operation", "tier", "status"},
	)

	c.memoriesStored = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "memories_tracked",
			Help:      "Number of memories currently tracked by the budget manager",
		},
		[]string{"component"},
	)

	c.memoryTokens = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "memory_tokens",
			Help:      "Estimated token cost per stored memory",
			Buckets:   prometheus.ExponentialBuckets(4, 2, 10),
		},
		[]string{"tier"},
	)

	c.promptTokens = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "prompt_tokens",
			Help:      "Token usage per constructed prompt block",
			Buckets:   prometheus.ExponentialBuckets(16, 2, 12),
		},
		[]string{"block"},
	)

	c.promptDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "prompt_construction_duration_seconds",
			Help:      "Prompt construction duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	c.adaptationsRuns = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "adaptations_total",
			Help:      "Total number of adaptation passes",
		},
		[]string{"strategy"},
	)

	c.httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// RecordMemoryOp records one store operation.
func (c *Collector) RecordMemoryOp(operation, tier, status string) {
	if c == nil {
		return
	}
	c.memoryOpsTotal.WithLabelValues(operation, tier, status).Inc()
}

// RecordMemoryTokens records the estimated token cost of a stored memory.
func (c *Collector) RecordMemoryTokens(tier string, tokens int) {
	if c == nil {
		return
	}
	c.memoryTokens.WithLabelValues(tier).Observe(float64(tokens))
}

// SetTrackedMemories records the budget manager's tracked-memory count.
func (c *Collector) SetTrackedMemories(component string, count int) {
	if c == nil {
		return
	}
	c.memoriesStored.WithLabelValues(component).Set(float64(count))
}

// RecordPrompt records a prompt construction pass and its per-block usage.
func (c *Collector) RecordPrompt(duration time.Duration, blocks map[string]int) {
	if c == nil {
		return
	}
	c.promptDuration.Observe(duration.Seconds())
	for block, tokens := range blocks {
		c.promptTokens.WithLabelValues(block).Observe(float64(tokens))
	}
}

// RecordAdaptation records one adaptation pass.
func (c *Collector) RecordAdaptation(strategy string) {
	if c == nil {
		return
	}
	c.adaptationsRuns.WithLabelValues(strategy).Inc()
}

// RecordHTTPRequest records one HTTP request.
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if c == nil {
		return
	}
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func statusCode(status int) string {
	return strconv.Itoa(status)
}
