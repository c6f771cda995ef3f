package ws

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/busbridge/metric"
)

// Metrics holds Prometheus metrics for the WebSocket gateway
type Metrics struct {
	connectionsTotal    prometheus.Counter
	disconnectionsTotal prometheus.Counter
	clientsConnected    prometheus.Gauge
	framesReceived      prometheus.Counter
	bytesReceived       prometheus.Counter
	errorsTotal         *prometheus.CounterVec
}

// newMetrics creates and registers gateway metrics. A nil registry yields
// nil metrics (nil input = nil feature pattern).
func newMetrics(registry *metric.MetricsRegistry) (*Metrics, error) {
	if registry == nil {
		return nil, nil
	}

	m := &Metrics{
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "busbridge",
			Subsystem: "ws",
			Name:      "client_connections_total",
			Help:      "Total client connections accepted",
		}),

		disconnectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "busbridge",
			Subsystem: "ws",
			Name:      "client_disconnections_total",
			Help:      "Total client disconnections",
		}),

		clientsConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "busbridge",
			Subsystem: "ws",
			Name:      "clients_connected",
			Help:      "Number of currently connected clients",
		}),

		framesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "busbridge",
			Subsystem: "ws",
			Name:      "frames_received_total",
			Help:      "Total text frames received from clients",
		}),

		bytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "busbridge",
			Subsystem: "ws",
			Name:      "bytes_received_total",
			Help:      "Total bytes received from clients",
		}),

		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "busbridge",
			Subsystem: "ws",
			Name:      "errors_total",
			Help:      "Gateway errors",
		}, []string{"error_type"}),
	}

	registry.PrometheusRegistry().MustRegister(
		m.connectionsTotal,
		m.disconnectionsTotal,
		m.clientsConnected,
		m.framesReceived,
		m.bytesReceived,
		m.errorsTotal,
	)

	return m, nil
}
