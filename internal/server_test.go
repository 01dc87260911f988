package internal

import (
	"net/http"
	"testing"

	"github.com/2beens/tableorder/internal/telemetry/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestServer_connStateMetrics(t *testing.T) {
	server := &Server{
		metricsManager: metrics.NewTestManager(),
	}

	server.connStateMetrics(nil, http.StateNew)
	server.connStateMetrics(nil, http.StateNew)
	assert.Equal(t, float64(2), testutil.ToFloat64(server.metricsManager.GaugeRequests))

	server.connStateMetrics(nil, http.StateActive)
	assert.Equal(t, float64(2), testutil.ToFloat64(server.metricsManager.GaugeRequests))

	server.connStateMetrics(nil, http.StateClosed)
	assert.Equal(t, float64(1), testutil.ToFloat64(server.metricsManager.GaugeRequests))
}
