package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the Riva transcriptor service
type Metrics struct {
	// Normalization metrics
	Normalizations        prometheus.Counter
	NormalizationFailures *prometheus.CounterVec
	NormalizationDuration prometheus.Histogram
	PassThroughs          prometheus.Counter
	InputBytes            prometheus.Histogram

	// Temp file lifecycle metrics
	TempFilesCreated      prometheus.Counter
	TempFilesReleased     prometheus.Counter
	TempFileReleaseErrors prometheus.Counter

	// Transcription metrics
	TranscriptionRequests  prometheus.Counter
	TranscriptionSuccesses prometheus.Counter
	TranscriptionFailures  prometheus.Counter
	TranscriptionDuration  prometheus.Histogram
	TranscriptionRetries   prometheus.Counter
	ActiveRequests         prometheus.Gauge

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		// Normalization metrics
		Normalizations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "transcriptor_normalizations_total",
			Help: "Total number of successful audio normalizations",
		}),
		NormalizationFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "transcriptor_normalization_failures_total",
			Help: "Total number of failed audio normalizations",
		}, []string{"reason"}),
		NormalizationDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "transcriptor_normalization_duration_seconds",
			Help:    "Time spent normalizing audio input",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		}),
		PassThroughs: promauto.NewCounter(prometheus.CounterOpts{
			Name: "transcriptor_normalization_passthroughs_total",
			Help: "Total number of inputs already in canonical format",
		}),
		InputBytes: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "transcriptor_input_size_bytes",
			Help:    "Size of accepted audio inputs in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 10), // 1KB to ~256MB
		}),

		// Temp file lifecycle metrics
		TempFilesCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "transcriptor_temp_files_created_total",
			Help: "Total number of temporary audio files created",
		}),
		TempFilesReleased: promauto.NewCounter(prometheus.CounterOpts{
			Name: "transcriptor_temp_files_released_total",
			Help: "Total number of temporary audio files removed",
		}),
		TempFileReleaseErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "transcriptor_temp_file_release_errors_total",
			Help: "Total number of temporary file removals that failed",
		}),

		// Transcription metrics
		TranscriptionRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "transcriptor_transcription_requests_total",
			Help: "Total number of transcription requests sent to the backend",
		}),
		TranscriptionSuccesses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "transcriptor_transcription_successes_total",
			Help: "Total number of successful transcription requests",
		}),
		TranscriptionFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "transcriptor_transcription_failures_total",
			Help: "Total number of failed transcription requests",
		}),
		TranscriptionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "transcriptor_transcription_duration_seconds",
			Help:    "Duration of transcription requests including retries",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~2 minutes
		}),
		TranscriptionRetries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "transcriptor_transcription_retries_total",
			Help: "Total number of transcription request retries",
		}),
		ActiveRequests: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "transcriptor_active_requests",
			Help: "Current number of in-flight pipeline requests",
		}),

		// HTTP API metrics
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "transcriptor_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "transcriptor_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "transcriptor_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordNormalization records a successful normalization
func (m *Metrics) RecordNormalization(durationSeconds float64, inputBytes int64, passThrough bool) {
	m.Normalizations.Inc()
	m.NormalizationDuration.Observe(durationSeconds)
	m.InputBytes.Observe(float64(inputBytes))
	if passThrough {
		m.PassThroughs.Inc()
	}
}

// RecordNormalizationFailure records a failed normalization by reason
func (m *Metrics) RecordNormalizationFailure(reason string) {
	m.NormalizationFailures.WithLabelValues(reason).Inc()
}

// RecordTempFileCreated increments the temp files created counter
func (m *Metrics) RecordTempFileCreated() {
	m.TempFilesCreated.Inc()
}

// RecordTempFileReleased increments the temp files released counter
func (m *Metrics) RecordTempFileReleased() {
	m.TempFilesReleased.Inc()
}

// RecordTempFileReleaseError increments the release errors counter
func (m *Metrics) RecordTempFileReleaseError() {
	m.TempFileReleaseErrors.Inc()
}

// RecordTranscriptionRequest increments the transcription requests counter
func (m *Metrics) RecordTranscriptionRequest() {
	m.TranscriptionRequests.Inc()
}

// RecordTranscriptionSuccess records a successful transcription
func (m *Metrics) RecordTranscriptionSuccess(durationSeconds float64) {
	m.TranscriptionSuccesses.Inc()
	m.TranscriptionDuration.Observe(durationSeconds)
}

// RecordTranscriptionFailure records a failed transcription
func (m *Metrics) RecordTranscriptionFailure(durationSeconds float64) {
	m.TranscriptionFailures.Inc()
	m.TranscriptionDuration.Observe(durationSeconds)
}

// RecordTranscriptionRetry increments the retry counter
func (m *Metrics) RecordTranscriptionRetry() {
	m.TranscriptionRetries.Inc()
}

// IncActiveRequests increments the in-flight request gauge
func (m *Metrics) IncActiveRequests() {
	m.ActiveRequests.Inc()
}

// DecActiveRequests decrements the in-flight request gauge
func (m *Metrics) DecActiveRequests() {
	m.ActiveRequests.Dec()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
