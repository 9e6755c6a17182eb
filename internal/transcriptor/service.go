package transcriptor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/peterableda/riva-amp/internal/audio"
	"github.com/peterableda/riva-amp/internal/config"
	"github.com/peterableda/riva-amp/internal/metrics"
	"github.com/peterableda/riva-amp/internal/transcription"
)

// Job is one piece of user audio to run through the pipeline.
type Job struct {
	Task           transcription.Task
	Input          audio.Input
	Language       string
	TargetLanguage string
	RequestID      string
}

// Result is the pipeline outcome returned to the API layer.
type Result struct {
	RequestID   string             `json:"request_id"`
	Task        transcription.Task `json:"task"`
	Text        string             `json:"text"`
	Language    string             `json:"language"`
	Duration    float64            `json:"duration"`
	PassThrough bool               `json:"pass_through"`
	Attempts    int                `json:"attempts"`
	Elapsed     float64            `json:"elapsed"`
}

// Stats represents pipeline statistics
type Stats struct {
	TotalJobs      uint64                     `json:"total_jobs"`
	SuccessfulJobs uint64                     `json:"successful_jobs"`
	FailedJobs     uint64                     `json:"failed_jobs"`
	PassThroughs   uint64                     `json:"pass_throughs"`
	SuccessRate    float64                    `json:"success_rate"`
	Client         *transcription.ClientStats `json:"client,omitempty"`
}

// Service runs the normalize-then-transcribe pipeline. A nil client puts
// the service in degraded mode: the process stays up and serves its UI and
// health endpoints, but every job fails with ErrConfiguration until the
// backend is configured and the service restarted.
type Service struct {
	config     *config.Config
	normalizer *audio.Normalizer
	client     *transcription.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics

	// Statistics
	totalJobs      uint64
	successfulJobs uint64
	failedJobs     uint64
	passThroughs   uint64

	mu sync.RWMutex
}

// NewService creates the pipeline service
func NewService(cfg *config.Config, normalizer *audio.Normalizer, client *transcription.Client, logger *slog.Logger, m *metrics.Metrics) *Service {
	return &Service{
		config:     cfg,
		normalizer: normalizer,
		client:     client,
		logger:     logger,
		metrics:    m,
	}
}

// Configured reports whether a transcription backend is available
func (s *Service) Configured() bool {
	return s.client != nil
}

// Endpoint returns the backend base URL, or empty in degraded mode
func (s *Service) Endpoint() string {
	if s.client == nil {
		return ""
	}
	return s.client.Endpoint()
}

// Process normalizes the job's audio and sends it to the backend. The
// configuration check runs before any file I/O so an unconfigured service
// answers immediately. Normalization artifacts are released on every exit
// path.
func (s *Service) Process(ctx context.Context, job Job) (*Result, error) {
	if s.client == nil {
		return nil, fmt.Errorf("%w: set RIVA_BASE_URL and restart", transcription.ErrConfiguration)
	}

	requestID := job.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}

	started := time.Now()
	s.begin()
	if s.metrics != nil {
		s.metrics.IncActiveRequests()
		defer s.metrics.DecActiveRequests()
	}

	inputBytes, _ := job.Input.Size()

	s.logger.Info("processing transcription job",
		slog.String("request_id", requestID),
		slog.String("task", string(job.Task)),
		slog.String("language", job.Language),
		slog.Int64("input_bytes", inputBytes),
	)

	normStart := time.Now()
	normalized, err := s.normalizer.Normalize(ctx, job.Input)
	if err != nil {
		s.finish(false, false)
		if s.metrics != nil {
			s.metrics.RecordNormalizationFailure(failureReason(err))
		}

		s.logger.Error("normalization failed",
			slog.String("request_id", requestID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	defer s.normalizer.Release(normalized.Path)

	normElapsed := time.Since(normStart)
	if s.metrics != nil {
		s.metrics.RecordNormalization(normElapsed.Seconds(), inputBytes, normalized.PassThrough)
	}

	s.logger.Debug("audio normalized",
		slog.String("request_id", requestID),
		slog.Bool("pass_through", normalized.PassThrough),
		slog.Float64("duration_seconds", normalized.Info.Duration),
		slog.Duration("normalize_elapsed", normElapsed),
	)

	response, err := s.client.Transcribe(ctx, &transcription.Request{
		Task:           job.Task,
		Audio:          normalized.Data,
		Filename:       requestID + ".wav",
		Language:       job.Language,
		TargetLanguage: job.TargetLanguage,
		RequestID:      requestID,
	})
	if err != nil {
		s.finish(false, normalized.PassThrough)

		s.logger.Error("transcription failed",
			slog.String("request_id", requestID),
			slog.String("task", string(job.Task)),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	s.finish(true, normalized.PassThrough)

	elapsed := time.Since(started)
	result := &Result{
		RequestID:   requestID,
		Task:        job.Task,
		Text:        response.Text,
		Language:    response.Language,
		Duration:    normalized.Info.Duration,
		PassThrough: normalized.PassThrough,
		Attempts:    response.Attempts,
		Elapsed:     elapsed.Seconds(),
	}
	if result.Language == "" {
		result.Language = s.resolveLanguage(job)
	}

	s.logger.Info("transcription job completed",
		slog.String("request_id", requestID),
		slog.String("task", string(job.Task)),
		slog.String("language", result.Language),
		slog.Int("text_length", len(result.Text)),
		slog.Int("attempts", result.Attempts),
		slog.Float64("audio_seconds", result.Duration),
		slog.Duration("elapsed", elapsed),
	)
	s.logger.Debug("transcription text",
		slog.String("request_id", requestID),
		slog.String("text", result.Text),
	)

	return result, nil
}

// BackendHealth probes the backend, or reports the missing configuration
func (s *Service) BackendHealth(ctx context.Context) error {
	if s.client == nil {
		return fmt.Errorf("%w: set RIVA_BASE_URL and restart", transcription.ErrConfiguration)
	}
	return s.client.HealthCheck(ctx)
}

// resolveLanguage mirrors what was actually sent to the backend
func (s *Service) resolveLanguage(job Job) string {
	if job.Task == transcription.TaskTranslate {
		if job.TargetLanguage != "" {
			return job.TargetLanguage
		}
		return s.config.Riva.TargetLanguage
	}
	if job.Language != "" {
		return job.Language
	}
	return s.config.Riva.DefaultLanguage
}

// failureReason maps a normalization error to a metrics label
func failureReason(err error) string {
	switch {
	case errors.Is(err, audio.ErrUnsupportedFormat):
		return "unsupported_format"
	case errors.Is(err, audio.ErrSizeLimitExceeded):
		return "size_limit"
	case errors.Is(err, audio.ErrDurationOutOfRange):
		return "duration"
	case errors.Is(err, audio.ErrConversion):
		return "conversion"
	default:
		return "other"
	}
}

// Statistics methods
func (s *Service) begin() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalJobs++
}

func (s *Service) finish(success, passThrough bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if success {
		s.successfulJobs++
	} else {
		s.failedJobs++
	}
	if passThrough {
		s.passThroughs++
	}
}

// GetStats returns current pipeline statistics
func (s *Service) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	successRate := float64(0)
	if s.totalJobs > 0 {
		successRate = float64(s.successfulJobs) / float64(s.totalJobs) * 100
	}

	stats := Stats{
		TotalJobs:      s.totalJobs,
		SuccessfulJobs: s.successfulJobs,
		FailedJobs:     s.failedJobs,
		PassThroughs:   s.passThroughs,
		SuccessRate:    successRate,
	}

	if s.client != nil {
		clientStats := s.client.GetStats()
		stats.Client = &clientStats
	}

	return stats
}

// Close releases the backend client, if one is configured
func (s *Service) Close() {
	if s.client != nil {
		s.client.Close()
	}
}
