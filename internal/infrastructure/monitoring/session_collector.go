package monitoring

import (
	"rtsview/internal/core/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SessionCollector exports orchestrator activity as prometheus metrics.
type SessionCollector struct {
	// Counters
	transitionsTotal   *prometheus.CounterVec
	droppedEventsTotal *prometheus.CounterVec
	reconnectsTotal    prometheus.Counter
	projectionsTotal   *prometheus.CounterVec

	// Gauges
	visibleSources prometheus.Gauge
	viewerCount    prometheus.Gauge
}

// NewSessionCollector registers the session metrics with reg. A nil reg uses
// the default registerer.
func NewSessionCollector(reg prometheus.Registerer) *SessionCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &SessionCollector{
		transitionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rtsview_state_transitions_total",
			Help: "Subscription state machine transitions",
		}, []string{"from", "to"}),

		droppedEventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rtsview_dropped_events_total",
			Help: "Events ignored because they were unexpected in the current state",
		}, []string{"event", "state"}),

		reconnectsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "rtsview_reconnect_attempts_total",
			Help: "Reconnection attempts",
		}),

		projectionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rtsview_projections_total",
			Help: "Project and unproject requests sent to the transport",
		}, []string{"media", "action"}),

		visibleSources: factory.NewGauge(prometheus.GaugeOpts{
			Name: "rtsview_visible_sources",
			Help: "Sources currently visible to the viewer",
		}),

		viewerCount: factory.NewGauge(prometheus.GaugeOpts{
			Name: "rtsview_viewer_count",
			Help: "Viewer count last reported by the server",
		}),
	}
}

func (c *SessionCollector) RecordTransition(from, to string) {
	c.transitionsTotal.WithLabelValues(from, to).Inc()
}

func (c *SessionCollector) RecordDroppedEvent(event, state string) {
	c.droppedEventsTotal.WithLabelValues(event, state).Inc()
}

func (c *SessionCollector) RecordReconnectAttempt() {
	c.reconnectsTotal.Inc()
}

func (c *SessionCollector) RecordProjection(media domain.MediaType, project bool) {
	action := "unproject"
	if project {
		action = "project"
	}
	c.projectionsTotal.WithLabelValues(string(media), action).Inc()
}

func (c *SessionCollector) SetVisibleSources(n int) {
	c.visibleSources.Set(float64(n))
}

func (c *SessionCollector) SetViewerCount(n int) {
	c.viewerCount.Set(float64(n))
}
