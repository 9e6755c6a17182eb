package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/peterableda/riva-amp/internal/audio"
	"github.com/peterableda/riva-amp/internal/config"
	"github.com/peterableda/riva-amp/internal/metrics"
	"github.com/peterableda/riva-amp/internal/transcription"
	"github.com/peterableda/riva-amp/internal/transcriptor"
)

// HTTPServer serves the web UI, the transcription API, and the monitoring
// endpoints.
type HTTPServer struct {
	server  *http.Server
	logger  *slog.Logger
	config  *config.Config
	service *transcriptor.Service
	metrics *metrics.Metrics

	startTime time.Time
}

// NewHTTPServer creates the HTTP server with all routes registered
func NewHTTPServer(cfg config.HTTPConfig, logger *slog.Logger,
	appConfig *config.Config, service *transcriptor.Service, m *metrics.Metrics) *HTTPServer {

	h := &HTTPServer{
		logger:    logger,
		config:    appConfig,
		service:   service,
		metrics:   m,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)

	// Uploads plus backend retries can hold a request open for minutes.
	h.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
		Handler:      mux,
		ReadTimeout:  5 * time.Minute,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	// Transcription API
	mux.HandleFunc("/api/transcriptions", h.withMetrics("/api/transcriptions", h.handleTranscriptions))
	mux.HandleFunc("/api/translations", h.withMetrics("/api/translations", h.handleTranslations))
	mux.HandleFunc("/api/languages", h.withMetrics("/api/languages", h.handleLanguages))

	// API documentation
	mux.HandleFunc("/api", h.withMetrics("/api", h.handleAPIDoc))

	// Health check endpoints
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))
	mux.HandleFunc("/health/backend", h.withMetrics("/health/backend", h.handleBackendHealth))

	// Configuration endpoint
	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))

	// Statistics endpoint
	mux.HandleFunc("/stats", h.withMetrics("/stats", h.handleStats))

	// Prometheus metrics endpoint (no metrics needed for metrics endpoint)
	mux.Handle("/metrics", promhttp.Handler())

	// Root endpoint with the web UI
	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		// Create a response writer wrapper to capture status code
		ww := &responseWriter{ResponseWriter: w, statusCode: 200}

		// Call the original handler
		handler(ww, r)

		if h.metrics == nil {
			return
		}

		duration := time.Since(startTime).Seconds()
		statusCode := fmt.Sprintf("%d", ww.statusCode)

		h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP server...")

	return h.server.Shutdown(ctx)
}

// handleTranscriptions implements POST /api/transcriptions
func (h *HTTPServer) handleTranscriptions(w http.ResponseWriter, r *http.Request) {
	h.handleAudioTask(w, r, transcription.TaskTranscribe)
}

// handleTranslations implements POST /api/translations
func (h *HTTPServer) handleTranslations(w http.ResponseWriter, r *http.Request) {
	h.handleAudioTask(w, r, transcription.TaskTranslate)
}

// handleAudioTask accepts a multipart upload and runs it through the
// pipeline. The request size is capped at the configured upload limit plus
// headroom for the form framing.
func (h *HTTPServer) handleAudioTask(w http.ResponseWriter, r *http.Request, task transcription.Task) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.config.Audio.MaxFileSizeBytes()+1<<20)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("upload exceeds the %d MB limit", h.config.Audio.MaxFileSizeMB))
			return
		}
		h.writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "unable to read upload: "+err.Error())
		return
	}

	language := r.FormValue("language")
	if language != "" && !h.config.Riva.IsLanguageSupported(language) {
		h.writeError(w, http.StatusBadRequest,
			fmt.Sprintf("language %q is not supported, see /api/languages", language))
		return
	}

	result, err := h.service.Process(r.Context(), transcriptor.Job{
		Task:           task,
		Input:          audio.Input{Data: data, Filename: header.Filename},
		Language:       language,
		TargetLanguage: r.FormValue("target_language"),
	})
	if err != nil {
		h.writeError(w, statusForError(err), err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// handleLanguages implements GET /api/languages
func (h *HTTPServer) handleLanguages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	response := map[string]interface{}{
		"languages":          h.config.Riva.SupportedLanguages,
		"default":            h.config.Riva.DefaultLanguage,
		"translation_target": h.config.Riva.TargetLanguage,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleHealth implements the /health endpoint. The process is healthy as
// long as it answers; a missing backend downgrades the status to degraded
// without failing the check.
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	uptime := time.Since(h.startTime)
	stats := h.service.GetStats()

	status := "healthy"
	if !h.service.Configured() {
		status = "degraded"
	}

	health := map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().UTC(),
		"uptime":    uptime.String(),
		"service": map[string]interface{}{
			"name":    "riva-amp",
			"version": "1.0.0",
		},
		"components": map[string]interface{}{
			"pipeline": map[string]interface{}{
				"status":          "running",
				"total_jobs":      stats.TotalJobs,
				"successful_jobs": stats.SuccessfulJobs,
				"failed_jobs":     stats.FailedJobs,
				"success_rate":    stats.SuccessRate,
			},
			"backend": map[string]interface{}{
				"configured": h.service.Configured(),
				"endpoint":   h.service.Endpoint(),
			},
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health)
}

// handleBackendHealth implements the /health/backend endpoint by probing
// the Riva base URL
func (h *HTTPServer) handleBackendHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	if err := h.service.BackendHealth(ctx); err != nil {
		h.writeError(w, statusForError(err), err.Error())
		return
	}

	response := map[string]interface{}{
		"status":    "reachable",
		"endpoint":  h.service.Endpoint(),
		"timestamp": time.Now().UTC(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	// Return sanitized configuration (credential values are omitted)
	sanitizedConfig := map[string]interface{}{
		"http": map[string]interface{}{
			"port":    h.config.HTTP.Port,
			"address": h.config.HTTP.Address,
		},
		"riva": map[string]interface{}{
			"base_url":        h.config.Riva.BaseURL,
			"configured":      h.service.Configured(),
			"transcribe_path": h.config.Riva.TranscribePath,
			"translate_path":  h.config.Riva.TranslatePath,
			"timeout":         h.config.Riva.Timeout,
			"max_retries":     h.config.Riva.MaxRetries,
			"backoff_initial": h.config.Riva.BackoffInitial,
			"backoff_max":     h.config.Riva.BackoffMax,
		},
		"audio": map[string]interface{}{
			"max_file_size_mb":   h.config.Audio.MaxFileSizeMB,
			"min_duration":       h.config.Audio.MinDuration,
			"warn_duration":      h.config.Audio.WarnDuration,
			"target_sample_rate": h.config.Audio.TargetSampleRate,
			"target_channels":    h.config.Audio.TargetChannels,
			"target_bit_depth":   h.config.Audio.TargetBitDepth,
		},
		"languages": map[string]interface{}{
			"default":            h.config.Riva.DefaultLanguage,
			"translation_target": h.config.Riva.TargetLanguage,
			"supported":          h.config.Riva.SupportedLanguages,
		},
		"logging": map[string]interface{}{
			"level":  h.config.Logging.Level,
			"format": h.config.Logging.Format,
			"output": h.config.Logging.Output,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sanitizedConfig)
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	stats := map[string]interface{}{
		"uptime":    time.Since(h.startTime).String(),
		"timestamp": time.Now().UTC(),
		"pipeline":  h.service.GetStats(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// handleAPIDoc implements the /api endpoint with endpoint documentation
func (h *HTTPServer) handleAPIDoc(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	apiDoc := map[string]interface{}{
		"service": "Riva Audio Transcription Service",
		"version": "1.0.0",
		"endpoints": map[string]interface{}{
			"GET /":                    "Web UI",
			"POST /api/transcriptions": "Transcribe an uploaded audio file (multipart: file, language)",
			"POST /api/translations":   "Translate an uploaded audio file (multipart: file, language, target_language)",
			"GET /api/languages":       "List supported languages",
			"GET /health":              "Service health check",
			"GET /health/backend":      "Riva backend reachability check",
			"GET /config":              "Get sanitized service configuration",
			"GET /stats":               "Get pipeline statistics",
			"GET /metrics":             "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(apiDoc)
}

// handleRoot serves the embedded web UI
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexHTML)
}

// writeError sends a JSON error payload with the given status
func (h *HTTPServer) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error":  message,
		"status": status,
	})
}

// statusForError maps pipeline error kinds to HTTP status codes
func statusForError(err error) int {
	switch {
	case errors.Is(err, audio.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, audio.ErrSizeLimitExceeded):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, audio.ErrDurationOutOfRange):
		return http.StatusUnprocessableEntity
	case errors.Is(err, audio.ErrConversion):
		return http.StatusUnprocessableEntity
	case errors.Is(err, transcription.ErrConfiguration):
		return http.StatusServiceUnavailable
	case errors.Is(err, transcription.ErrCredentialUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, transcription.ErrBackendUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, transcription.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
