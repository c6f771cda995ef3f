package health

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/busbridge/component"
)

type stubComponent struct {
	name    string
	healthy bool
}

func (s stubComponent) Meta() component.Metadata {
	return component.Metadata{Name: s.name, Type: "stub"}
}

func (s stubComponent) Health() component.HealthStatus {
	return component.HealthStatus{Healthy: s.healthy, LastCheck: time.Now()}
}

func TestSnapshotAggregates(t *testing.T) {
	m := NewMonitor()
	m.Register("a", stubComponent{name: "a", healthy: true})
	m.Register("b", stubComponent{name: "b", healthy: true})

	status := m.Snapshot()
	assert.True(t, status.Healthy)
	assert.Len(t, status.Components, 2)

	m.Register("c", stubComponent{name: "c", healthy: false})
	status = m.Snapshot()
	assert.False(t, status.Healthy)
}

func TestHandlerStatusCodes(t *testing.T) {
	m := NewMonitor()
	m.Register("a", stubComponent{name: "a", healthy: true})

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 200, resp.StatusCode)

	var status Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.True(t, status.Healthy)

	m.Register("b", stubComponent{name: "b", healthy: false})
	resp2, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, 503, resp2.StatusCode)
}
