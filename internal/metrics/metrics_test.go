package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.CommentCreated(false)
	m.CommentCreated(true)
	m.CommentCreated(true)
	m.RateLimited("email")
	m.CacheLookup("page", true)
	m.CacheLookup("page", false)
	m.CacheError("get")
	m.GeoLookup("failed")
	m.HTTPRequest("/comments", "GET", "200", 0.01)

	require.Equal(t, 1.0, testutil.ToFloat64(m.commentsCreated.WithLabelValues("root")))
	require.Equal(t, 2.0, testutil.ToFloat64(m.commentsCreated.WithLabelValues("reply")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.rateLimited.WithLabelValues("email")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues("page", "hit")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues("page", "miss")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.cacheErrors.WithLabelValues("get")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.geoLookups.WithLabelValues("failed")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("/comments", "GET", "200")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() {
		m.CommentCreated(true)
		m.RateLimited("ip")
		m.CacheLookup("page", true)
		m.CacheError("set")
		m.GeoLookup("local")
		m.HTTPRequest("/", "GET", "200", 0)
	})
}
