package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	HTTP    HTTPConfig    `yaml:"http"`
	Riva    RivaConfig    `yaml:"riva"`
	Audio   AudioConfig   `yaml:"audio"`
	Logging LoggingConfig `yaml:"logging"`
}

// HTTPConfig contains HTTP server configuration
type HTTPConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
}

// RivaConfig contains Riva backend client configuration
type RivaConfig struct {
	BaseURL            string   `yaml:"base_url"`
	TranscribePath     string   `yaml:"transcribe_path"`
	TranslatePath      string   `yaml:"translate_path"`
	TokenFile          string   `yaml:"token_file"`
	APIKey             string   `yaml:"api_key"`
	Timeout            int      `yaml:"timeout"` // seconds
	MaxRetries         int      `yaml:"max_retries"`
	BackoffInitial     float64  `yaml:"backoff_initial"` // seconds
	BackoffMax         float64  `yaml:"backoff_max"`     // seconds
	DefaultLanguage    string   `yaml:"default_language"`
	TargetLanguage     string   `yaml:"target_language"`
	SupportedLanguages []string `yaml:"supported_languages"`
}

// AudioConfig contains audio normalization parameters
type AudioConfig struct {
	MaxFileSizeMB    int     `yaml:"max_file_size_mb"`
	MinDuration      float64 `yaml:"min_duration"`  // seconds
	WarnDuration     float64 `yaml:"warn_duration"` // seconds
	TargetSampleRate int     `yaml:"target_sample_rate"`
	TargetChannels   int     `yaml:"target_channels"`
	TargetBitDepth   int     `yaml:"target_bit_depth"`
	FFmpegCommand    string  `yaml:"ffmpeg_command"`
	TempDir          string  `yaml:"temp_dir"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns the configuration used when no file or key overrides it.
// Defaults match what the Riva backend expects: 16 kHz mono 16-bit input,
// the CML JWT location, and the standard transcription endpoints.
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Port:    7860,
			Address: "0.0.0.0",
		},
		Riva: RivaConfig{
			TranscribePath:  "/audio/transcriptions",
			TranslatePath:   "/audio/translations",
			TokenFile:       "/tmp/jwt",
			Timeout:         60,
			MaxRetries:      2,
			BackoffInitial:  1.0,
			BackoffMax:      8.0,
			DefaultLanguage: "en-US",
			TargetLanguage:  "en",
			SupportedLanguages: []string{
				"en-US", "en-GB", "es-ES", "fr-FR", "de-DE",
				"it-IT", "pt-BR", "ja-JP", "ko-KR", "zh-CN",
			},
		},
		Audio: AudioConfig{
			MaxFileSizeMB:    100,
			MinDuration:      0.1,
			WarnDuration:     600,
			TargetSampleRate: 16000,
			TargetChannels:   1,
			TargetBitDepth:   16,
			FFmpegCommand:    "ffmpeg",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// Load reads the configuration file on top of the defaults and applies
// environment overrides. A missing file is not an error; the service runs
// on defaults plus environment in that case.
func Load(path string) (*Config, error) {
	config := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else {
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := config.applyEnv(); err != nil {
		return nil, err
	}

	// The backend client joins base_url with the endpoint paths.
	config.Riva.BaseURL = strings.TrimRight(config.Riva.BaseURL, "/")

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// applyEnv overlays the environment variables the CML platform sets
func (c *Config) applyEnv() error {
	if v := os.Getenv("RIVA_BASE_URL"); v != "" {
		c.Riva.BaseURL = v
	}

	if v := os.Getenv("CDSW_APP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid CDSW_APP_PORT %q: %w", v, err)
		}
		c.HTTP.Port = port
	}

	return nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Riva.Validate(); err != nil {
		return fmt.Errorf("riva config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Port < 1 || h.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", h.Port)
	}

	if h.Address == "" {
		return fmt.Errorf("address cannot be empty")
	}

	return nil
}

// Validate validates Riva client configuration. An empty base_url is allowed
// here: the service starts in degraded mode and reports the missing backend
// per request. URL well-formedness is the client's concern.
func (r *RivaConfig) Validate() error {
	if !strings.HasPrefix(r.TranscribePath, "/") {
		return fmt.Errorf("transcribe_path must start with '/', got %q", r.TranscribePath)
	}

	if !strings.HasPrefix(r.TranslatePath, "/") {
		return fmt.Errorf("translate_path must start with '/', got %q", r.TranslatePath)
	}

	if r.TokenFile == "" && r.APIKey == "" {
		return fmt.Errorf("either token_file or api_key must be set")
	}

	if r.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", r.Timeout)
	}

	if r.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", r.MaxRetries)
	}

	if r.BackoffInitial <= 0 {
		return fmt.Errorf("backoff_initial must be positive, got %f", r.BackoffInitial)
	}

	if r.BackoffMax < r.BackoffInitial {
		return fmt.Errorf("backoff_max (%f) must be at least backoff_initial (%f)",
			r.BackoffMax, r.BackoffInitial)
	}

	if r.DefaultLanguage == "" {
		return fmt.Errorf("default_language cannot be empty")
	}

	if r.TargetLanguage == "" {
		return fmt.Errorf("target_language cannot be empty")
	}

	if len(r.SupportedLanguages) == 0 {
		return fmt.Errorf("supported_languages cannot be empty")
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.MaxFileSizeMB < 1 {
		return fmt.Errorf("max_file_size_mb must be at least 1, got %d", a.MaxFileSizeMB)
	}

	if a.MinDuration <= 0 {
		return fmt.Errorf("min_duration must be positive, got %f", a.MinDuration)
	}

	if a.WarnDuration < a.MinDuration {
		return fmt.Errorf("warn_duration (%f) must be at least min_duration (%f)",
			a.WarnDuration, a.MinDuration)
	}

	if a.TargetSampleRate != 16000 {
		return fmt.Errorf("target_sample_rate must be 16000 Hz for Riva ASR, got %d", a.TargetSampleRate)
	}

	if a.TargetChannels != 1 {
		return fmt.Errorf("target_channels must be 1 (mono) for Riva ASR, got %d", a.TargetChannels)
	}

	if a.TargetBitDepth != 16 {
		return fmt.Errorf("target_bit_depth must be 16 for Riva ASR, got %d", a.TargetBitDepth)
	}

	if a.FFmpegCommand == "" {
		return fmt.Errorf("ffmpeg_command cannot be empty")
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	// Output accepts stdout, stderr, or a file path.
	return nil
}

// IsLanguageSupported reports whether the UI may offer the given code
func (r *RivaConfig) IsLanguageSupported(code string) bool {
	for _, lang := range r.SupportedLanguages {
		if lang == code {
			return true
		}
	}
	return false
}

// GetTimeoutDuration returns the per-request timeout as a time.Duration
func (r *RivaConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(r.Timeout) * time.Second
}

// GetBackoffInitialDuration returns the first retry delay as a time.Duration
func (r *RivaConfig) GetBackoffInitialDuration() time.Duration {
	return time.Duration(r.BackoffInitial * float64(time.Second))
}

// GetBackoffMaxDuration returns the retry delay cap as a time.Duration
func (r *RivaConfig) GetBackoffMaxDuration() time.Duration {
	return time.Duration(r.BackoffMax * float64(time.Second))
}

// MaxFileSizeBytes returns the upload size limit in bytes
func (a *AudioConfig) MaxFileSizeBytes() int64 {
	return int64(a.MaxFileSizeMB) * 1024 * 1024
}

// GetMinDuration returns the minimum accepted duration as a time.Duration
func (a *AudioConfig) GetMinDuration() time.Duration {
	return time.Duration(a.MinDuration * float64(time.Second))
}

// GetWarnDuration returns the long-input warning threshold as a time.Duration
func (a *AudioConfig) GetWarnDuration() time.Duration {
	return time.Duration(a.WarnDuration * float64(time.Second))
}
