package health

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/c360/busbridge/component"
)

// Status represents the health state of the system
type Status struct {
	Healthy    bool                               `json:"healthy"`
	Components map[string]component.HealthStatus `json:"components"`
	CheckedAt  time.Time                          `json:"checked_at"`
}

// Monitor tracks registered components and aggregates their health
type Monitor struct {
	mu         sync.RWMutex
	components map[string]component.Discoverable
}

// NewMonitor creates an empty health monitor
func NewMonitor() *Monitor {
	return &Monitor{
		components: make(map[string]component.Discoverable),
	}
}

// Register adds a component to the monitor under the given name. A later
// registration with the same name replaces the earlier one.
func (m *Monitor) Register(name string, c component.Discoverable) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.components[name] = c
}

// Snapshot collects the current health of every registered component. The
// system is healthy only when every component is.
func (m *Monitor) Snapshot() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status := Status{
		Healthy:    true,
		Components: make(map[string]component.HealthStatus, len(m.components)),
		CheckedAt:  time.Now(),
	}
	for name, c := range m.components {
		h := c.Health()
		status.Components[name] = h
		if !h.Healthy {
			status.Healthy = false
		}
	}
	return status
}

// Handler serves the aggregated status as JSON: 200 when healthy, 503
// otherwise.
func (m *Monitor) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		status := m.Snapshot()

		w.Header().Set("Content-Type", "application/json")
		if !status.Healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(status)
	})
}
