package bridge

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/busbridge/metric"
)

// Metrics holds Prometheus metrics for the bridge core
type Metrics struct {
	registry *metric.MetricsRegistry

	framesTotal     *prometheus.CounterVec
	inboundDropped  *prometheus.CounterVec
	outboundDropped *prometheus.CounterVec
	denialsTotal    prometheus.Counter
	sessionsActive  prometheus.Gauge
	handlersActive  prometheus.Gauge
}

// newMetrics creates and registers bridge metrics. A nil registry yields nil
// metrics (nil input = nil feature pattern).
func newMetrics(registry *metric.MetricsRegistry) (*Metrics, error) {
	if registry == nil {
		return nil, nil
	}

	m := &Metrics{
		registry: registry,

		framesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "busbridge",
			Subsystem: "bridge",
			Name:      "frames_total",
			Help:      "Total client frames processed, by type",
		}, []string{"type"}),

		inboundDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "busbridge",
			Subsystem: "bridge",
			Name:      "inbound_dropped_total",
			Help:      "Inbound frames dropped, by reason",
		}, []string{"reason"}),

		outboundDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "busbridge",
			Subsystem: "bridge",
			Name:      "outbound_dropped_total",
			Help:      "Outbound bus deliveries dropped, by reason",
		}, []string{"reason"}),

		denialsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "busbridge",
			Subsystem: "bridge",
			Name:      "auth_denials_total",
			Help:      "Denial frames sent to clients",
		}),

		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "busbridge",
			Subsystem: "bridge",
			Name:      "sessions_active",
			Help:      "Currently open bridge sessions",
		}),

		handlersActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "busbridge",
			Subsystem: "bridge",
			Name:      "handlers_active",
			Help:      "Currently installed bus handlers across all sessions",
		}),
	}

	registry.PrometheusRegistry().MustRegister(
		m.framesTotal,
		m.inboundDropped,
		m.outboundDropped,
		m.denialsTotal,
		m.sessionsActive,
		m.handlersActive,
	)

	return m, nil
}

// bindSizeGauges exposes the auth cache and reply whitelist sizes as gauges
// evaluated at scrape time.
func (m *Metrics) bindSizeGauges(authCacheSize, replyWhitelistSize func() int) {
	m.registry.PrometheusRegistry().MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "busbridge",
			Subsystem: "bridge",
			Name:      "auth_cache_entries",
			Help:      "Cached session authorisations",
		}, func() float64 { return float64(authCacheSize()) }),

		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "busbridge",
			Subsystem: "bridge",
			Name:      "reply_whitelist_entries",
			Help:      "Whitelisted transient reply addresses",
		}, func() float64 { return float64(replyWhitelistSize()) }),
	)
}
