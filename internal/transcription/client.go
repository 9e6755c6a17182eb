package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/peterableda/riva-amp/internal/config"
	"github.com/peterableda/riva-amp/internal/metrics"
)

const userAgent = "riva-amp/1.0"

// Task selects which backend operation a request performs.
type Task string

const (
	// TaskTranscribe produces text in the language spoken in the audio.
	TaskTranscribe Task = "transcribe"
	// TaskTranslate produces text translated into the target language.
	TaskTranslate Task = "translate"
)

// requestState tracks a request through its lifecycle
type requestState int

const (
	statePreparing requestState = iota
	stateSending
	stateWaitingRetry
	stateSucceeded
	stateFailed
)

// String returns a human-readable state name
func (s requestState) String() string {
	switch s {
	case statePreparing:
		return "preparing"
	case stateSending:
		return "sending"
	case stateWaitingRetry:
		return "waiting_retry"
	case stateSucceeded:
		return "succeeded"
	case stateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Request is one transcription or translation job. Audio must already be
// normalized WAV; the client never inspects or converts it.
type Request struct {
	Task           Task
	Audio          []byte
	Filename       string
	Language       string
	TargetLanguage string
	RequestID      string
}

// validate rejects requests that could never succeed
func (r *Request) validate() error {
	switch r.Task {
	case TaskTranscribe, TaskTranslate:
	default:
		return fmt.Errorf("%w: unknown task %q", ErrInvalidRequest, r.Task)
	}

	if len(r.Audio) == 0 {
		return fmt.Errorf("%w: no audio payload", ErrInvalidRequest)
	}

	return nil
}

// Result is the parsed backend response.
type Result struct {
	RequestID string  `json:"request_id"`
	Task      Task    `json:"task"`
	Text      string  `json:"text"`
	Language  string  `json:"language,omitempty"`
	Duration  float64 `json:"duration,omitempty"`
	Attempts  int     `json:"attempts"`

	// Raw holds the full decoded response for callers that need fields
	// this client does not model.
	Raw map[string]any `json:"-"`
}

// ClientStats represents client statistics
type ClientStats struct {
	TotalRequests   uint64        `json:"total_requests"`
	SuccessRequests uint64        `json:"success_requests"`
	FailedRequests  uint64        `json:"failed_requests"`
	SuccessRate     float64       `json:"success_rate"`
	TotalRetries    uint64        `json:"total_retries"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
	ActiveRequests  int           `json:"active_requests"`
}

// Client sends audio to the Riva inference endpoints over HTTP. One
// instance serves concurrent requests.
type Client struct {
	config     config.RivaConfig
	baseURL    string
	tokens     TokenProvider
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics

	initialBackoff time.Duration
	maxBackoff     time.Duration

	// Statistics
	totalRequests   uint64
	successRequests uint64
	failedRequests  uint64
	totalRetries    uint64
	avgResponseTime time.Duration
	activeRequests  int

	mu sync.RWMutex
}

// NewClient creates a transcription client. The base URL is validated here
// so a misconfigured deployment fails before any request is accepted. A nil
// tokens argument derives the provider from the config: the token file when
// one is set, otherwise the static API key.
func NewClient(cfg config.RivaConfig, tokens TokenProvider, logger *slog.Logger, m *metrics.Metrics) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: base URL is not set", ErrConfiguration)
	}

	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base URL %q: %v", ErrConfiguration, cfg.BaseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: base URL %q must use http or https", ErrConfiguration, cfg.BaseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: base URL %q has no host", ErrConfiguration, cfg.BaseURL)
	}

	if tokens == nil {
		switch {
		case cfg.TokenFile != "":
			tokens = NewFileTokenProvider(cfg.TokenFile)
		case cfg.APIKey != "":
			tokens = StaticTokenProvider(cfg.APIKey)
		default:
			return nil, fmt.Errorf("%w: no credential source configured", ErrConfiguration)
		}
	}

	httpClient := &http.Client{
		Timeout: cfg.GetTimeoutDuration(),
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return &Client{
		config:         cfg,
		baseURL:        strings.TrimRight(u.String(), "/"),
		tokens:         tokens,
		httpClient:     httpClient,
		logger:         logger,
		metrics:        m,
		initialBackoff: cfg.GetBackoffInitialDuration(),
		maxBackoff:     cfg.GetBackoffMaxDuration(),
	}, nil
}

// Endpoint returns the validated backend base URL
func (c *Client) Endpoint() string {
	return c.baseURL
}

// Transcribe runs one request against the backend, retrying transient
// failures with exponential backoff. Requests the backend rejected as
// malformed and credential failures are returned immediately; everything
// else is retried until the attempt budget is spent, then reported as
// ErrBackendUnavailable.
func (c *Client) Transcribe(ctx context.Context, req *Request) (*Result, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: nil request", ErrInvalidRequest)
	}
	if err := req.validate(); err != nil {
		return nil, err
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	endpoint := c.endpointFor(req.Task)

	started := time.Now()
	c.begin()
	if c.metrics != nil {
		c.metrics.RecordTranscriptionRequest()
	}

	state := statePreparing
	c.logger.Debug("preparing transcription request",
		slog.String("request_id", req.RequestID),
		slog.String("task", string(req.Task)),
		slog.String("state", state.String()),
		slog.Int("audio_bytes", len(req.Audio)),
	)

	body, contentType, err := c.buildMultipart(req)
	if err != nil {
		c.finish(started, false)
		return nil, err
	}

	attempts := c.config.MaxRetries + 1
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			state = stateWaitingRetry
			delay := c.backoffDelay(attempt - 1)

			c.logger.Warn("transcription attempt failed, retrying",
				slog.String("request_id", req.RequestID),
				slog.Int("attempt", attempt-1),
				slog.Duration("delay", delay),
				slog.String("state", state.String()),
				slog.String("error", lastErr.Error()),
			)

			c.incrementTotalRetries()
			if c.metrics != nil {
				c.metrics.RecordTranscriptionRetry()
			}

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				c.finish(started, false)
				return nil, ctx.Err()
			}
		}

		state = stateSending
		c.logger.Debug("sending transcription request",
			slog.String("request_id", req.RequestID),
			slog.String("endpoint", endpoint),
			slog.Int("attempt", attempt),
			slog.String("state", state.String()),
		)

		result, err := c.doRequest(ctx, req, endpoint, body, contentType)
		if err == nil {
			state = stateSucceeded
			result.Attempts = attempt

			elapsed := time.Since(started)
			c.finish(started, true)
			if c.metrics != nil {
				c.metrics.RecordTranscriptionSuccess(elapsed.Seconds())
			}

			c.logger.Debug("transcription succeeded",
				slog.String("request_id", req.RequestID),
				slog.Int("attempts", attempt),
				slog.String("state", state.String()),
				slog.Duration("elapsed", elapsed),
			)

			return result, nil
		}

		lastErr = err

		// The caller gave up; report that, not the attempt failure.
		if ctx.Err() != nil {
			c.finish(started, false)
			return nil, ctx.Err()
		}

		if !isRetryable(err) {
			break
		}
	}

	state = stateFailed
	elapsed := time.Since(started)
	c.finish(started, false)
	if c.metrics != nil {
		c.metrics.RecordTranscriptionFailure(elapsed.Seconds())
	}

	c.logger.Error("transcription failed",
		slog.String("request_id", req.RequestID),
		slog.String("task", string(req.Task)),
		slog.String("state", state.String()),
		slog.String("error", lastErr.Error()),
	)

	if !isRetryable(lastErr) {
		return nil, lastErr
	}

	return nil, fmt.Errorf("%w: %d attempts exhausted: %v", ErrBackendUnavailable, attempts, lastErr)
}

// HealthCheck probes the backend base URL. Any HTTP response means the
// backend is reachable; only transport failures count as unhealthy.
func (c *Client) HealthCheck(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	httpReq.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	c.logger.Debug("backend reachable", slog.Int("status", resp.StatusCode))
	return nil
}

// endpointFor joins the base URL with the task's configured path
func (c *Client) endpointFor(task Task) string {
	if task == TaskTranslate {
		return c.baseURL + c.config.TranslatePath
	}
	return c.baseURL + c.config.TranscribePath
}

// backoffDelay returns the wait before the given retry, doubling from the
// configured initial delay up to the configured cap
func (c *Client) backoffDelay(retry int) time.Duration {
	delay := time.Duration(float64(c.initialBackoff) * math.Pow(2, float64(retry-1)))
	if delay > c.maxBackoff {
		delay = c.maxBackoff
	}
	return delay
}

// doRequest performs a single HTTP attempt. The bearer token is loaded
// fresh for every attempt so rotation during a retry sequence is honored.
func (c *Client) doRequest(ctx context.Context, req *Request, endpoint string, body []byte, contentType string) (*Result, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCredentialUnavailable, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("backend returned %d: %s", resp.StatusCode, summarize(respBody))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("%w: backend returned %d: %s", ErrInvalidRequest, resp.StatusCode, summarize(respBody))
	}

	return c.parseResult(req, respBody)
}

// buildMultipart assembles the form body once; each attempt replays the
// same bytes
func (c *Client) buildMultipart(req *Request) ([]byte, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	filename := req.Filename
	if filename == "" {
		filename = req.RequestID + ".wav"
	}

	fileWriter, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := fileWriter.Write(req.Audio); err != nil {
		return nil, "", fmt.Errorf("failed to write audio data: %w", err)
	}

	language := req.Language
	if language == "" {
		language = c.config.DefaultLanguage
	}
	if err := writer.WriteField("language", language); err != nil {
		return nil, "", fmt.Errorf("failed to write field language: %w", err)
	}

	if req.Task == TaskTranslate {
		target := req.TargetLanguage
		if target == "" {
			target = c.config.TargetLanguage
		}
		if err := writer.WriteField("target_language", target); err != nil {
			return nil, "", fmt.Errorf("failed to write field target_language: %w", err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	return buf.Bytes(), writer.FormDataContentType(), nil
}

// parseResult decodes the backend response. Different Riva deployments
// name the transcript field differently, so several keys are accepted.
func (c *Client) parseResult(req *Request, body []byte) (*Result, error) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse response JSON: %w", err)
	}

	text, found := textField(raw, req.Task)
	if !found {
		c.logger.Warn("response contained no transcript field",
			slog.String("request_id", req.RequestID),
		)
	}

	result := &Result{
		RequestID: req.RequestID,
		Task:      req.Task,
		Text:      text,
		Raw:       raw,
	}

	if lang, ok := raw["language"].(string); ok {
		result.Language = lang
	}
	if d, ok := raw["duration"].(float64); ok {
		result.Duration = d
	}

	return result, nil
}

// textField extracts the transcript, trying the task-appropriate keys in
// order of preference
func textField(raw map[string]any, task Task) (string, bool) {
	keys := []string{"text"}
	if task == TaskTranslate {
		keys = append(keys, "translation", "transcript")
	} else {
		keys = append(keys, "transcription", "transcript")
	}

	for _, key := range keys {
		if v, ok := raw[key].(string); ok {
			return v, true
		}
	}

	return "", false
}

// isRetryable reports whether another attempt could change the outcome
func isRetryable(err error) bool {
	if errors.Is(err, ErrInvalidRequest) || errors.Is(err, ErrCredentialUnavailable) {
		return false
	}
	return true
}

// summarize trims a response body to a single loggable line
func summarize(body []byte) string {
	s := strings.TrimSpace(string(body))
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	if s == "" {
		s = "(empty body)"
	}
	return s
}

// Statistics methods
func (c *Client) begin() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRequests++
	c.activeRequests++
}

func (c *Client) finish(started time.Time, success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.activeRequests--
	if success {
		c.successRequests++
	} else {
		c.failedRequests++
	}

	// Simple moving average
	responseTime := time.Since(started)
	if c.avgResponseTime == 0 {
		c.avgResponseTime = responseTime
	} else {
		c.avgResponseTime = (c.avgResponseTime + responseTime) / 2
	}
}

func (c *Client) incrementTotalRetries() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRetries++
}

// GetStats returns current client statistics
func (c *Client) GetStats() ClientStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	successRate := float64(0)
	if c.totalRequests > 0 {
		successRate = float64(c.successRequests) / float64(c.totalRequests) * 100
	}

	return ClientStats{
		TotalRequests:   c.totalRequests,
		SuccessRequests: c.successRequests,
		FailedRequests:  c.failedRequests,
		SuccessRate:     successRate,
		TotalRetries:    c.totalRetries,
		AvgResponseTime: c.avgResponseTime,
		ActiveRequests:  c.activeRequests,
	}
}

// Close releases idle connections held by the underlying transport
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}
