// Package metrics exposes Prometheus instrumentation for the agent
// loop, tool execution, model invocations, and the content cache.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "scribe"

// Histogram bucket definitions.
var (
	// Model request duration: 100ms to 5min.
	modelDurationBuckets = []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300}

	// Tool duration: 10ms to the 30s timeout.
	toolDurationBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 5, 10, 30}

	// Tool iterations per run: the loop caps at ten.
	iterationBuckets = []float64{0, 1, 2, 3, 5, 8, 10}
)

// Collector holds all Prometheus metrics for the service.
type Collector struct {
	RunsTotal            *prometheus.CounterVec
	RunIterations        prometheus.Histogram
	ModelRequestDuration *prometheus.HistogramVec
	ProviderErrorsTotal  *prometheus.CounterVec
	ToolDuration         *prometheus.HistogramVec
	ToolCallsTotal       *prometheus.CounterVec

	cacheHits        prometheus.Counter
	cacheMisses      prometheus.Counter
	cacheEvictions   prometheus.Counter
	cacheExpirations prometheus.Counter
	cacheEntries     prometheus.Gauge
	cacheBytes       prometheus.Gauge
}

// NewCollector creates and registers all metrics.
func NewCollector(registry prometheus.Registerer) *Collector {
	factory := promauto.With(registry)

	return &Collector{
		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "agent",
				Name:      "runs_total",
				Help:      "Agent runs by outcome (complete, model_error, iteration_limit).",
			},
			[]string{"outcome"},
		),
		RunIterations: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "agent",
				Name:      "run_tool_iterations",
				Help:      "Tool iterations executed per run.",
				Buckets:   iterationBuckets,
			},
		),
		ModelRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "model",
				Name:      "request_duration_seconds",
				Help:      "Model invocation duration.",
				Buckets:   modelDurationBuckets,
			},
			[]string{"backend", "outcome"},
		),
		ProviderErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "model",
				Name:      "errors_total",
				Help:      "Classified model invocation failures.",
			},
			[]string{"backend", "kind"},
		),
		ToolDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "tool",
				Name:      "duration_seconds",
				Help:      "Tool execution duration.",
				Buckets:   toolDurationBuckets,
			},
			[]string{"tool"},
		),
		ToolCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "tool",
				Name:      "calls_total",
				Help:      "Tool calls by outcome (success, failure, timeout, canceled, unknown).",
			},
			[]string{"tool", "outcome"},
		),
		cacheHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Content cache hits.",
		}),
		cacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Content cache misses.",
		}),
		cacheEvictions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "evictions_total",
			Help:      "Entries evicted by LRU capacity pressure.",
		}),
		cacheExpirations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "expirations_total",
			Help:      "Entries removed after exceeding the TTL.",
		}),
		cacheEntries: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "entries",
			Help:      "Live cache entries.",
		}),
		cacheBytes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "bytes",
			Help:      "Total bytes held by the cache.",
		}),
	}
}

// ObserveModelRequest records one model invocation.
func (c *Collector) ObserveModelRequest(backend string, d time.Duration, err error) {
	if c == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.ModelRequestDuration.WithLabelValues(backend, outcome).Observe(d.Seconds())
}

// ObserveToolCall records one tool dispatch.
func (c *Collector) ObserveToolCall(tool, outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.ToolCallsTotal.WithLabelValues(tool, outcome).Inc()
	c.ToolDuration.WithLabelValues(tool).Observe(d.Seconds())
}

// ObserveRun records a completed run.
func (c *Collector) ObserveRun(outcome string, iterations int) {
	if c == nil {
		return
	}
	c.RunsTotal.WithLabelValues(outcome).Inc()
	c.RunIterations.Observe(float64(iterations))
}

// ObserveProviderError records a classified model failure.
func (c *Collector) ObserveProviderError(backend, kind string) {
	if c == nil {
		return
	}
	c.ProviderErrorsTotal.WithLabelValues(backend, kind).Inc()
}

// cache.Observer implementation.

func (c *Collector) CacheHit() {
	if c != nil {
		c.cacheHits.Inc()
	}
}

func (c *Collector) CacheMiss() {
	if c != nil {
		c.cacheMisses.Inc()
	}
}

func (c *Collector) CacheEviction() {
	if c != nil {
		c.cacheEvictions.Inc()
	}
}

func (c *Collector) CacheExpiration() {
	if c != nil {
		c.cacheExpirations.Inc()
	}
}

func (c *Collector) CacheSize(entries int, bytes int64) {
	if c != nil {
		c.cacheEntries.Set(float64(entries))
		c.cacheBytes.Set(float64(bytes))
	}
}
