package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveProxyRequestCounts(t *testing.T) {
	ObserveProxyRequest("unit-echo", 200, 5*time.Millisecond)
	ObserveProxyRequest("unit-echo", 200, 7*time.Millisecond)
	ObserveProxyRequest("unit-echo", 500, time.Millisecond)

	assert.Equal(t, float64(2),
		testutil.ToFloat64(proxyRequests.WithLabelValues("unit-echo", "200")))
	assert.Equal(t, float64(1),
		testutil.ToFloat64(proxyRequests.WithLabelValues("unit-echo", "500")))
}

func TestCorrelatorGaugesTrackLatestValue(t *testing.T) {
	SetCorrelatorStats("unit-corr", 3, 2)
	SetCorrelatorStats("unit-corr", 5, 0)

	assert.Equal(t, float64(5),
		testutil.ToFloat64(correlatorDiscarded.WithLabelValues("unit-corr")))
	assert.Equal(t, float64(0),
		testutil.ToFloat64(correlatorPending.WithLabelValues("unit-corr")))
}

func TestBackendLifecycleCounters(t *testing.T) {
	RecordBackendStart("unit-be", "stdio")
	RecordBackendCrash("unit-be")
	RecordBackendStop("unit-be")

	assert.Equal(t, float64(1),
		testutil.ToFloat64(backendStarts.WithLabelValues("unit-be", "stdio")))
	assert.Equal(t, float64(1),
		testutil.ToFloat64(backendCrashes.WithLabelValues("unit-be")))
	assert.Equal(t, float64(1),
		testutil.ToFloat64(backendStops.WithLabelValues("unit-be")))
}
