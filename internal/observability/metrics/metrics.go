// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "speech_translation"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Session metrics
	SessionsTotal   prometheus.Counter
	SessionsActive  prometheus.Gauge
	SessionDuration prometheus.Histogram

	// Audio metrics
	FramesForwarded prometheus.Counter
	FramesDropped   *prometheus.CounterVec
	AudioBytesSent  prometheus.Counter

	// Event metrics
	EventsPublished *prometheus.CounterVec
	EventsDelivered prometheus.Counter
	EventsBuffered  prometheus.Gauge
	DeliveryErrors  prometheus.Counter

	// Upload metrics
	UploadChunks prometheus.Counter
	UploadMerges *prometheus.CounterVec

	// Engine metrics
	EngineErrors      *prometheus.CounterVec
	EngineStartErrors prometheus.Counter

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		SessionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of translation sessions created",
		}),
		SessionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of currently registered sessions",
		}),
		SessionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Duration of translation sessions in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}),

		FramesForwarded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_forwarded_total",
			Help:      "Total audio frames forwarded to the engine",
		}),
		FramesDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_dropped_total",
			Help:      "Total audio frames dropped before reaching the engine",
		}, []string{"reason"}),
		AudioBytesSent: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_sent_total",
			Help:      "Total audio bytes forwarded to the engine",
		}),

		EventsPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Total events published to session sinks",
		}, []string{"kind"}),
		EventsDelivered: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_delivered_total",
			Help:      "Total events delivered to attached subscribers",
		}),
		EventsBuffered: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "events_buffered",
			Help:      "Events currently buffered awaiting a subscriber",
		}),
		DeliveryErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_errors_total",
			Help:      "Total event delivery failures to subscribers",
		}),

		UploadChunks: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upload_chunks_total",
			Help:      "Total upload chunks received",
		}),
		UploadMerges: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upload_merges_total",
			Help:      "Total chunked upload merge attempts",
		}, []string{"result"}),

		EngineErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "engine_errors_total",
			Help:      "Total errors reported by the translation engine",
		}, []string{"provider"}),
		EngineStartErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "engine_start_errors_total",
			Help:      "Total engine start failures",
		}),

		KafkaPublishTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic"}),
		KafkaPublishErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic"}),
		KafkaPublishLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),
	}
}

// RecordSessionStart records a new session being registered.
func (m *Metrics) RecordSessionStart() {
	m.SessionsTotal.Inc()
	m.SessionsActive.Inc()
}

// RecordSessionEnd records a session being removed.
func (m *Metrics) RecordSessionEnd(durationSeconds float64) {
	m.SessionsActive.Dec()
	m.SessionDuration.Observe(durationSeconds)
}

// RecordFrameForwarded records a frame sent to the engine.
func (m *Metrics) RecordFrameForwarded(bytes int) {
	m.FramesForwarded.Inc()
	m.AudioBytesSent.Add(float64(bytes))
}

// RecordFrameDropped records a frame dropped before the engine.
func (m *Metrics) RecordFrameDropped(reason string) {
	m.FramesDropped.WithLabelValues(reason).Inc()
}

// RecordEventPublished records an event entering a session sink.
func (m *Metrics) RecordEventPublished(kind string) {
	m.EventsPublished.WithLabelValues(kind).Inc()
}

// RecordDelivery records the outcome of delivering one event.
func (m *Metrics) RecordDelivery(err error) {
	if err != nil {
		m.DeliveryErrors.Inc()
		return
	}
	m.EventsDelivered.Inc()
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic).Inc()
	}
}

// RecordUploadChunk records one upload chunk stored.
func (m *Metrics) RecordUploadChunk() {
	m.UploadChunks.Inc()
}

// RecordUploadMerge records a chunked upload merge attempt.
func (m *Metrics) RecordUploadMerge(err error) {
	if err != nil {
		m.UploadMerges.WithLabelValues("failure").Inc()
		return
	}
	m.UploadMerges.WithLabelValues("success").Inc()
}

// RecordEngineError records an asynchronous engine error.
func (m *Metrics) RecordEngineError(provider string) {
	m.EngineErrors.WithLabelValues(provider).Inc()
}
