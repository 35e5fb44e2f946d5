package monitoring

import (
	"time"

	"confsync/internal/core/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type PrometheusCollector struct {
	// Counters
	participantsConnected prometheus.Gauge
	conferencesActive     prometheus.Gauge
	connectionsTotal      prometheus.Counter
	notificationsSent     prometheus.Counter

	// Histograms
	updateDuration     prometheus.Histogram
	connectionDuration prometheus.Histogram

	// Per-object metrics
	syncUpdatesTotal  *prometheus.CounterVec
	syncSkippedTotal  *prometheus.CounterVec
	sceneChangesTotal *prometheus.CounterVec
}

func NewPrometheusCollector() *PrometheusCollector {
	return &PrometheusCollector{
		participantsConnected: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "confsync_participants_connected",
			Help: "Number of currently connected participants",
		}),

		conferencesActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "confsync_conferences_active",
			Help: "Number of conferences with at least one connection",
		}),

		connectionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "confsync_connections_total",
			Help: "Total number of websocket connections accepted",
		}),

		notificationsSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "confsync_notifications_sent_total",
			Help: "Total number of update envelopes delivered to participants",
		}),

		updateDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "confsync_update_duration_seconds",
			Help:    "Duration of synchronized object update cycles",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),

		connectionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "confsync_connection_duration_seconds",
			Help:    "Duration of participant websocket connections",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14),
		}),

		syncUpdatesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "confsync_sync_updates_total",
			Help: "Total number of committed synchronized object updates",
		}, []string{"kind"}),

		syncSkippedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "confsync_sync_updates_skipped_total",
			Help: "Total number of updates skipped because no participant was subscribed",
		}, []string{"kind"}),

		sceneChangesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "confsync_scene_changes_total",
			Help: "Total number of scene switches",
		}, []string{"scene_type"}),
	}
}

func (p *PrometheusCollector) RecordParticipantConnected() {
	p.participantsConnected.Inc()
	p.connectionsTotal.Inc()
}

func (p *PrometheusCollector) RecordParticipantDisconnected(connectedFor time.Duration) {
	p.participantsConnected.Dec()
	p.connectionDuration.Observe(connectedFor.Seconds())
}

func (p *PrometheusCollector) RecordConferenceOpened() {
	p.conferencesActive.Inc()
}

func (p *PrometheusCollector) RecordConferenceClosed() {
	p.conferencesActive.Dec()
}

func (p *PrometheusCollector) RecordUpdate(kind string, duration time.Duration) {
	p.syncUpdatesTotal.WithLabelValues(kind).Inc()
	p.updateDuration.Observe(duration.Seconds())
}

func (p *PrometheusCollector) RecordUpdateSkipped(kind string) {
	p.syncSkippedTotal.WithLabelValues(kind).Inc()
}

func (p *PrometheusCollector) RecordNotificationsSent(count int) {
	p.notificationsSent.Add(float64(count))
}

func (p *PrometheusCollector) RecordSceneChange(scene domain.Scene) {
	p.sceneChangesTotal.WithLabelValues(string(scene.Type)).Inc()
}
