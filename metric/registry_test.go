package metric

import (
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndUnregister(t *testing.T) {
	r := NewMetricsRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "busbridge",
		Name:      "test_total",
		Help:      "test counter",
	})

	require.NoError(t, r.Register("bridge", "test_total", counter))

	// Same key is rejected
	err := r.Register("bridge", "test_total", counter)
	assert.Error(t, err)

	assert.True(t, r.Unregister("bridge", "test_total"))
	assert.False(t, r.Unregister("bridge", "test_total"))
}

func TestRegisterPrometheusConflict(t *testing.T) {
	r := NewMetricsRegistry()

	mk := func() prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "busbridge",
			Name:      "conflict_total",
			Help:      "test counter",
		})
	}

	require.NoError(t, r.Register("a", "conflict_total", mk()))
	// Different key, identical metric descriptor
	err := r.Register("b", "conflict_total", mk())
	assert.Error(t, err)
}

func TestHandlerServesMetrics(t *testing.T) {
	r := NewMetricsRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "busbridge",
		Name:      "frames_total",
		Help:      "test counter",
	})
	require.NoError(t, r.Register("bridge", "frames_total", counter))
	counter.Inc()

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, 200, resp.StatusCode)
}
