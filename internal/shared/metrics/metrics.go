package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the storage layer's Prometheus metrics on a private registry.
// All record methods are safe on a nil *Collector so components can run without metrics.
type Collector struct {
	registry *prometheus.Registry

	CacheHits      *prometheus.CounterVec
	CacheMisses    *prometheus.CounterVec
	CacheEvictions *prometheus.CounterVec
	CacheEntries   *prometheus.GaugeVec

	ConnectionState   prometheus.Gauge
	ReconnectAttempts prometheus.Counter
	IndexFailures     *prometheus.CounterVec

	FallbackOperations *prometheus.CounterVec
	FileRecoveries     *prometheus.CounterVec
}

// NewCollector creates a collector with metrics registered under namespace
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Cache lookups that returned a live entry",
		}, []string{"cache"}),
		CacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Cache lookups that found nothing or an expired entry",
		}, []string{"cache"}),
		CacheEvictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "evictions_total",
			Help:      "Entries evicted to make room for new ones",
		}, []string{"cache"}),
		CacheEntries: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "entries",
			Help:      "Current number of cached entries",
		}, []string{"cache"}),
		ConnectionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "mongo",
			Name:      "connection_state",
			Help:      "0=disconnected 1=connecting 2=connected 3=reconnecting 4=failed",
		}),
		ReconnectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mongo",
			Name:      "reconnect_attempts_total",
			Help:      "Failed connection attempts that scheduled or exhausted a retry",
		}),
		IndexFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mongo",
			Name:      "index_failures_total",
			Help:      "Index create/drop failures during provisioning",
		}, []string{"collection"}),
		FallbackOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "filestore",
			Name:      "operations_total",
			Help:      "Repository lookups served by the file fallback store",
		}, []string{"collection"}),
		FileRecoveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "filestore",
			Name:      "recoveries_total",
			Help:      "Corrupted collection files recovered, by outcome",
		}, []string{"outcome"}),
	}

	registry.MustRegister(
		c.CacheHits, c.CacheMisses, c.CacheEvictions, c.CacheEntries,
		c.ConnectionState, c.ReconnectAttempts, c.IndexFailures,
		c.FallbackOperations, c.FileRecoveries,
	)
	return c
}

// Registry exposes the private registry, mostly for tests
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collector's metrics in the Prometheus text format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) CacheHit(cache string) {
	if c != nil {
		c.CacheHits.WithLabelValues(cache).Inc()
	}
}

func (c *Collector) CacheMiss(cache string) {
	if c != nil {
		c.CacheMisses.WithLabelValues(cache).Inc()
	}
}

func (c *Collector) CacheEviction(cache string) {
	if c != nil {
		c.CacheEvictions.WithLabelValues(cache).Inc()
	}
}

func (c *Collector) CacheSize(cache string, n int) {
	if c != nil {
		c.CacheEntries.WithLabelValues(cache).Set(float64(n))
	}
}

func (c *Collector) SetConnectionState(state int) {
	if c != nil {
		c.ConnectionState.Set(float64(state))
	}
}

func (c *Collector) ReconnectAttempt() {
	if c != nil {
		c.ReconnectAttempts.Inc()
	}
}

func (c *Collector) IndexFailure(collection string) {
	if c != nil {
		c.IndexFailures.WithLabelValues(collection).Inc()
	}
}

func (c *Collector) FallbackOperation(collection string) {
	if c != nil {
		c.FallbackOperations.WithLabelValues(collection).Inc()
	}
}

func (c *Collector) FileRecovery(outcome string) {
	if c != nil {
		c.FileRecoveries.WithLabelValues(outcome).Inc()
	}
}
