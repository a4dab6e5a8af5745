// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "live_caption"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Recognizer health metrics
	Ticks            prometheus.Gauge
	Phase            prometheus.Gauge
	RecognizerCalls  *prometheus.CounterVec
	StartsRejected   *prometheus.CounterVec
	RecognizerEvents *prometheus.CounterVec

	// Transcript metrics
	LinesSettled     *prometheus.CounterVec
	QueueDepth       prometheus.Gauge
	ProcessOverruns  prometheus.Counter
	ProcessLatency   prometheus.Histogram
	MalformedUpdates prometheus.Counter
	LiveLines        prometheus.Gauge

	// Audio metrics
	AudioBytesSent prometheus.Counter

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec

	// gRPC metrics
	GRPCCalls   *prometheus.CounterVec
	GRPCLatency *prometheus.HistogramVec

	// Translation metrics
	TranslationRequests *prometheus.CounterVec
	TranslationErrors   *prometheus.CounterVec
	TranslationLatency  *prometheus.HistogramVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		Ticks: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "recognizer_ticks",
			Help:      "Pulses since the last meaningful recognizer event",
		}),
		Phase: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "recognizer_phase",
			Help:      "Escalation phase (0 healthy, 1 zombie, 2 panic, 3 recovery)",
		}),
		RecognizerCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recognizer_calls_total",
			Help:      "Total number of start, stop and abort calls issued to the recognizer",
		}, []string{"call", "result"}),
		StartsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recognizer_starts_rejected_total",
			Help:      "Total number of start requests rejected locally",
		}, []string{"reason"}),
		RecognizerEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recognizer_events_total",
			Help:      "Total number of recognizer events received",
		}, []string{"type"}),

		LinesSettled: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lines_settled_total",
			Help:      "Total number of lines moved to history",
		}, []string{"class"}),
		QueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "update_queue_depth",
			Help:      "Recognizer updates waiting to be merged",
		}),
		ProcessOverruns: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "process_overruns_total",
			Help:      "Total number of processing passes that ran out of time",
		}),
		ProcessLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "process_latency_seconds",
			Help:      "Duration of one processing pass in seconds",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
		}),
		MalformedUpdates: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "malformed_updates_total",
			Help:      "Total number of recognizer updates skipped as malformed",
		}),
		LiveLines: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_lines",
			Help:      "Lines currently in the live transcript",
		}),

		AudioBytesSent: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_sent_total",
			Help:      "Total audio bytes forwarded to the recognizer",
		}),

		KafkaPublishTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),

		GRPCCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grpc_calls_total",
			Help:      "Total number of gRPC calls by method and status code",
		}, []string{"method", "code"}),
		GRPCLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "grpc_call_duration_seconds",
			Help:      "Duration of gRPC calls and streams in seconds",
			Buckets:   []float64{0.001, 0.01, 0.1, 1, 10, 60, 300},
		}, []string{"method"}),

		TranslationRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "translation_requests_total",
			Help:      "Total number of translation requests",
		}, []string{"provider"}),
		TranslationErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "translation_errors_total",
			Help:      "Total number of failed translation requests",
		}, []string{"provider"}),
		TranslationLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "translation_latency_seconds",
			Help:      "Translation round trip in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}, []string{"provider"}),
	}
}

// RecordPulse records the tick counter and phase after a pulse.
func (m *Metrics) RecordPulse(ticks, phase int) {
	m.Ticks.Set(float64(ticks))
	m.Phase.Set(float64(phase))
}

// RecordRecognizerCall records a start, stop or abort call and its outcome.
func (m *Metrics) RecordRecognizerCall(call string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.RecognizerCalls.WithLabelValues(call, result).Inc()
}

// RecordStartRejected records a start rejected before reaching the recognizer.
func (m *Metrics) RecordStartRejected(reason string) {
	m.StartsRejected.WithLabelValues(reason).Inc()
}

// RecordEvent records a recognizer event by type.
func (m *Metrics) RecordEvent(eventType string) {
	m.RecognizerEvents.WithLabelValues(eventType).Inc()
}

// RecordSettled records one line moved to history.
func (m *Metrics) RecordSettled(class string) {
	m.LinesSettled.WithLabelValues(class).Inc()
}

// RecordProcess records one processing pass.
func (m *Metrics) RecordProcess(queued, live int, overrun bool, latencySeconds float64) {
	m.QueueDepth.Set(float64(queued))
	m.LiveLines.Set(float64(live))
	m.ProcessLatency.Observe(latencySeconds)
	if overrun {
		m.ProcessOverruns.Inc()
	}
}

// RecordMalformed records a skipped recognizer update.
func (m *Metrics) RecordMalformed() {
	m.MalformedUpdates.Inc()
}

// RecordAudioSent records audio bytes forwarded to the recognizer.
func (m *Metrics) RecordAudioSent(bytes int) {
	m.AudioBytesSent.Add(float64(bytes))
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}

// RecordGRPCCall records a finished gRPC call or stream.
func (m *Metrics) RecordGRPCCall(method, code string, durationSeconds float64) {
	m.GRPCCalls.WithLabelValues(method, code).Inc()
	m.GRPCLatency.WithLabelValues(method).Observe(durationSeconds)
}

// RecordTranslation records a translation round trip.
func (m *Metrics) RecordTranslation(provider string, err error, latencySeconds float64) {
	m.TranslationRequests.WithLabelValues(provider).Inc()
	m.TranslationLatency.WithLabelValues(provider).Observe(latencySeconds)
	if err != nil {
		m.TranslationErrors.WithLabelValues(provider).Inc()
	}
}
