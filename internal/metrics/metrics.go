// Package metrics exposes Prometheus instrumentation for the detection pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors updated by the frame pipeline and registry.
type Metrics struct {
	FramesProcessed  prometheus.Counter
	AlarmsTriggered  prometheus.Counter
	ClassifierErrors prometheus.Counter
	ActiveSessions   prometheus.Gauge
	FrameDuration    prometheus.Histogram

	registry *prometheus.Registry
}

// New creates and registers all pipeline metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		FramesProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "drowsyguard_frames_processed_total",
			Help: "Total frames analyzed across all sessions.",
		}),
		AlarmsTriggered: factory.NewCounter(prometheus.CounterOpts{
			Name: "drowsyguard_alarms_triggered_total",
			Help: "Total alarm events fired.",
		}),
		ClassifierErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "drowsyguard_classifier_errors_total",
			Help: "Frames where the model service failed and the neutral fallback was used.",
		}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "drowsyguard_active_sessions",
			Help: "Sessions currently registered as active.",
		}),
		FrameDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "drowsyguard_frame_duration_seconds",
			Help:    "End-to-end frame analysis latency.",
			Buckets: prometheus.DefBuckets,
		}),
		registry: reg,
	}
}

// Handler returns the /metrics HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
