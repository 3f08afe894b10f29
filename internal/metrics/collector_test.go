package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_CountsLeasesAndCache(t *testing.T) {
	c := NewCollector()

	c.LeaseAcquired()
	c.LeaseAcquired()
	c.LeaseReleased()
	assert.Equal(t, 1.0, testutil.ToFloat64(c.activeLeases))

	c.CacheLookup(true)
	c.CacheLookup(false)
	c.CacheLookup(false)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.cacheLookups.WithLabelValues("hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.cacheLookups.WithLabelValues("miss")))

	c.CrawlAttempt("retry")
	assert.Equal(t, 1.0, testutil.ToFloat64(c.crawlAttempts.WithLabelValues("retry")))
}

func TestCollector_NilIsNoop(t *testing.T) {
	var c *Collector

	assert.NotPanics(t, func() {
		c.LeaseAcquired()
		c.LeaseReleased()
		c.CacheLookup(true)
		c.CrawlAttempt("success")
		c.CrawlFinished(true, time.Second)
		c.LayerFinished("synonyms", "success", time.Second)
		c.PipelineFinished(true)
	})
	assert.Nil(t, c.Registry())
	assert.NotNil(t, c.Handler())
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector()
	c.LayerFinished("discovery", "partial", 1500*time.Millisecond)
	c.PipelineFinished(false)

	server := httptest.NewServer(c.Handler())
	defer server.Close()

	resp, err := server.Client().Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `pharmyrus_layer_duration_seconds_count{layer="discovery",status="partial"} 1`)
	assert.Contains(t, string(body), `pharmyrus_pipeline_runs_total{result="failed"} 1`)
}
