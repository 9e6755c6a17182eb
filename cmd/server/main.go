package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/peterableda/riva-amp/internal/audio"
	"github.com/peterableda/riva-amp/internal/config"
	"github.com/peterableda/riva-amp/internal/metrics"
	"github.com/peterableda/riva-amp/internal/server"
	"github.com/peterableda/riva-amp/internal/transcription"
	"github.com/peterableda/riva-amp/internal/transcriptor"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "riva-amp"
	serviceVersion    = "1.0.0"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// .env is optional; real environment variables take precedence
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger based on configuration
	logger := initLogger(cfg.Logging)

	// Log service startup
	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	// Log configuration summary (without sensitive data)
	logger.Info("Configuration loaded",
		slog.Int("http_port", cfg.HTTP.Port),
		slog.String("bind_address", cfg.HTTP.Address),
		slog.String("riva_base_url", cfg.Riva.BaseURL),
		slog.Int("max_file_size_mb", cfg.Audio.MaxFileSizeMB),
		slog.Int("target_sample_rate", cfg.Audio.TargetSampleRate),
		slog.String("default_language", cfg.Riva.DefaultLanguage),
		slog.String("log_level", cfg.Logging.Level),
	)

	// Initialize Prometheus metrics
	appMetrics := metrics.NewMetrics()
	logger.Info("Prometheus metrics initialized")

	// Initialize the audio normalizer
	normalizer, err := audio.NewNormalizer(cfg.Audio, logger, appMetrics)
	if err != nil {
		logger.Error("Failed to create audio normalizer", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Initialize the Riva client. A missing base URL is not fatal: the
	// service starts degraded so the UI and health endpoints stay up.
	client, err := transcription.NewClient(cfg.Riva, nil, logger, appMetrics)
	if err != nil {
		if !errors.Is(err, transcription.ErrConfiguration) {
			logger.Error("Failed to create transcription client", slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Warn("Transcription backend not configured, starting degraded",
			slog.String("error", err.Error()),
			slog.String("hint", "set RIVA_BASE_URL and restart"),
		)
		client = nil
	} else {
		logger.Info("Transcription client initialized",
			slog.String("endpoint", client.Endpoint()),
			slog.Int("max_retries", cfg.Riva.MaxRetries),
			slog.Duration("timeout", cfg.Riva.GetTimeoutDuration()),
		)
	}

	// Initialize the pipeline service
	service := transcriptor.NewService(cfg, normalizer, client, logger, appMetrics)

	// Initialize the HTTP server
	httpServer := server.NewHTTPServer(cfg.HTTP, logger, cfg, service, appMetrics)
	logger.Info("HTTP server initialized",
		slog.String("address", fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)),
	)

	// Start HTTP server
	if err := httpServer.Start(); err != nil {
		logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...",
		slog.String("http_address", fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)),
	)

	// Wait for shutdown signal
	sig := <-sigChan
	logger.Info("Received shutdown signal", slog.String("signal", sig.String()))

	logger.Info("Starting graceful shutdown...")

	// Stop HTTP server first (stop accepting new requests)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
	}

	// Close the pipeline (drops idle backend connections)
	service.Close()

	// Get final statistics
	stats := service.GetStats()
	logger.Info("Final pipeline statistics",
		slog.Uint64("total_jobs", stats.TotalJobs),
		slog.Uint64("successful_jobs", stats.SuccessfulJobs),
		slog.Uint64("failed_jobs", stats.FailedJobs),
		slog.Float64("success_rate", stats.SuccessRate),
	)

	logger.Info("Service stopped")
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	// Parse log level
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo // default fallback
	}

	// Configure handler options
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug, // Add source info for debug level
	}

	// Determine output destination
	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// Assume it's a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	// Create handler based on format
	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	case "text", "":
		handler = slog.NewTextHandler(output, opts)
	default:
		// Default to text format
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
