// Package metrics exposes crawler and pipeline counters on a dedicated
// prometheus registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pharmyrus"

// Default buckets
var (
	LayerDurationBuckets = []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 120, 300}
	CrawlDurationBuckets = []float64{.5, 1, 2.5, 5, 10, 20, 30, 60, 120}
)

// Collector holds every metric the service records. All methods are safe on
// a nil *Collector so callers never need to check whether metrics are on.
type Collector struct {
	registry *prometheus.Registry

	activeLeases  prometheus.Gauge
	cacheLookups  *prometheus.CounterVec
	crawlAttempts *prometheus.CounterVec
	crawlDuration *prometheus.HistogramVec
	layerDuration *prometheus.HistogramVec
	pipelineRuns  *prometheus.CounterVec
}

// NewCollector registers all metrics on a fresh registry
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	c := &Collector{
		registry: registry,
		activeLeases: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_leases",
			Help:      "Page sessions currently leased from the crawler pool",
		}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Result cache lookups by result",
		}, []string{"result"}),
		crawlAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "crawl_attempts_total",
			Help:      "Patent extraction attempts by outcome",
		}, []string{"outcome"}),
		crawlDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "crawl_duration_seconds",
			Help:      "Patent fetch duration including retries",
			Buckets:   CrawlDurationBuckets,
		}, []string{"valid"}),
		layerDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "layer_duration_seconds",
			Help:      "Pipeline layer duration by layer and status",
			Buckets:   LayerDurationBuckets,
		}, []string{"layer", "status"}),
		pipelineRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_runs_total",
			Help:      "Completed pipeline runs by result",
		}, []string{"result"}),
	}

	registry.MustRegister(
		c.activeLeases,
		c.cacheLookups,
		c.crawlAttempts,
		c.crawlDuration,
		c.layerDuration,
		c.pipelineRuns,
	)
	return c
}

// Handler serves the registry in the prometheus exposition format
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the underlying registry
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

func (c *Collector) LeaseAcquired() {
	if c == nil {
		return
	}
	c.activeLeases.Inc()
}

func (c *Collector) LeaseReleased() {
	if c == nil {
		return
	}
	c.activeLeases.Dec()
}

// CacheLookup counts a cache hit or miss
func (c *Collector) CacheLookup(hit bool) {
	if c == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	c.cacheLookups.WithLabelValues(result).Inc()
}

// CrawlAttempt counts one extraction attempt: "success", "retry" or "failed"
func (c *Collector) CrawlAttempt(outcome string) {
	if c == nil {
		return
	}
	c.crawlAttempts.WithLabelValues(outcome).Inc()
}

// CrawlFinished observes the duration of one patent fetch
func (c *Collector) CrawlFinished(valid bool, duration time.Duration) {
	if c == nil {
		return
	}
	label := "false"
	if valid {
		label = "true"
	}
	c.crawlDuration.WithLabelValues(label).Observe(duration.Seconds())
}

// LayerFinished observes one pipeline layer
func (c *Collector) LayerFinished(layer, status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.layerDuration.WithLabelValues(layer, status).Observe(duration.Seconds())
}

// PipelineFinished counts a pipeline run as "ok" or "failed"
func (c *Collector) PipelineFinished(ok bool) {
	if c == nil {
		return
	}
	result := "failed"
	if ok {
		result = "ok"
	}
	c.pipelineRuns.WithLabelValues(result).Inc()
}
