package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCollector_Counters(t *testing.T) {
	c := NewCollector("test")

	c.CacheHit("object")
	c.CacheHit("object")
	c.CacheMiss("query")
	c.CacheEviction("object")
	c.CacheSize("object", 7)
	c.ReconnectAttempt()
	c.IndexFailure("polls")
	c.FallbackOperation("welcome_settings")
	c.FileRecovery("reset")
	c.SetConnectionState(2)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.CacheHits.WithLabelValues("object")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.CacheMisses.WithLabelValues("query")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.CacheEvictions.WithLabelValues("object")))
	assert.Equal(t, 7.0, testutil.ToFloat64(c.CacheEntries.WithLabelValues("object")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.ReconnectAttempts))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.IndexFailures.WithLabelValues("polls")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.FallbackOperations.WithLabelValues("welcome_settings")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.FileRecoveries.WithLabelValues("reset")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.ConnectionState))
}

func TestCollector_NilSafe(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.CacheHit("object")
		c.CacheMiss("object")
		c.CacheEviction("object")
		c.CacheSize("object", 1)
		c.SetConnectionState(1)
		c.ReconnectAttempt()
		c.IndexFailure("x")
		c.FallbackOperation("x")
		c.FileRecovery("x")
	})
}

func TestCollector_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		NewCollector("a")
		NewCollector("a")
	})
}
