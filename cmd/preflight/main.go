package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"time"

	"github.com/joho/godotenv"
	shellwords "github.com/mattn/go-shellwords"

	"github.com/peterableda/riva-amp/internal/audio"
	"github.com/peterableda/riva-amp/internal/config"
	"github.com/peterableda/riva-amp/internal/transcription"
)

// preflight validates the deployment environment before the service is
// started: configuration, credentials, ffmpeg, backend reachability, and a
// local normalization self-test. Exit code 0 means ready.

type reporter struct {
	failures int
}

func (r *reporter) ok(name, detail string) {
	fmt.Printf("  ok    %-22s %s\n", name, detail)
}

func (r *reporter) warn(name, detail string) {
	fmt.Printf("  warn  %-22s %s\n", name, detail)
}

func (r *reporter) fail(name string, err error) {
	r.failures++
	fmt.Printf("  FAIL  %-22s %v\n", name, err)
}

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to configuration file")
	flag.Parse()

	// .env is optional; real environment variables take precedence
	_ = godotenv.Load()

	fmt.Println("riva-amp preflight")
	fmt.Println()

	r := &reporter{}

	cfg, err := config.Load(*configPath)
	if err != nil {
		r.fail("configuration", err)
		fmt.Printf("\n1 check failed, skipping the rest\n")
		os.Exit(1)
	}
	r.ok("configuration", fmt.Sprintf("%s, listening on %s:%d", *configPath, cfg.HTTP.Address, cfg.HTTP.Port))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Component logs would drown the report
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	checkCredentials(ctx, r, cfg)
	checkFFmpeg(r, cfg)
	client := checkBackend(ctx, r, cfg, logger)
	checkNormalizer(ctx, r, cfg, logger)

	if client != nil {
		client.Close()
	}

	fmt.Println()
	if r.failures > 0 {
		fmt.Printf("%d check(s) failed\n", r.failures)
		os.Exit(1)
	}
	fmt.Println("all checks passed")
}

// checkCredentials resolves a bearer token the same way the client does:
// token file first, then the static API key
func checkCredentials(ctx context.Context, r *reporter, cfg *config.Config) {
	switch {
	case cfg.Riva.TokenFile != "":
		provider := transcription.NewFileTokenProvider(cfg.Riva.TokenFile)
		if _, err := provider.Token(ctx); err != nil {
			r.fail("credentials", err)
			return
		}
		r.ok("credentials", "token file "+cfg.Riva.TokenFile)
	case cfg.Riva.APIKey != "":
		r.ok("credentials", "static API key from configuration")
	default:
		r.fail("credentials", errors.New("no token file or API key configured"))
	}
}

// checkFFmpeg looks up the converter binary. Missing ffmpeg is a warning:
// canonical and native WAV uploads still work without it.
func checkFFmpeg(r *reporter, cfg *config.Config) {
	args, err := shellwords.Parse(cfg.Audio.FFmpegCommand)
	if err != nil || len(args) == 0 {
		r.fail("ffmpeg", fmt.Errorf("cannot parse ffmpeg_command %q: %v", cfg.Audio.FFmpegCommand, err))
		return
	}

	path, err := exec.LookPath(args[0])
	if err != nil {
		r.warn("ffmpeg", fmt.Sprintf("%q not found, compressed uploads (mp3, m4a, ...) will fail", args[0]))
		return
	}
	r.ok("ffmpeg", path)
}

// checkBackend builds the client and probes the Riva base URL
func checkBackend(ctx context.Context, r *reporter, cfg *config.Config, logger *slog.Logger) *transcription.Client {
	client, err := transcription.NewClient(cfg.Riva, nil, logger, nil)
	if err != nil {
		r.fail("riva endpoint", err)
		return nil
	}
	r.ok("riva endpoint", client.Endpoint())

	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := client.HealthCheck(probeCtx); err != nil {
		r.fail("backend reachability", err)
		return client
	}
	r.ok("backend reachability", "backend answered")
	return client
}

// checkNormalizer runs a synthetic half-second sine tone through the full
// normalization path, exercising the temp directory along the way
func checkNormalizer(ctx context.Context, r *reporter, cfg *config.Config, logger *slog.Logger) {
	normalizer, err := audio.NewNormalizer(cfg.Audio, logger, nil)
	if err != nil {
		r.fail("normalizer self-test", err)
		return
	}

	rate := cfg.Audio.TargetSampleRate
	samples := make([]int16, rate/2)
	for i := range samples {
		samples[i] = int16(0.3 * 32767 * math.Sin(2*math.Pi*440*float64(i)/float64(rate)))
	}

	tone, err := audio.EncodeWAV(samples, rate)
	if err != nil {
		r.fail("normalizer self-test", err)
		return
	}

	result, err := normalizer.Normalize(ctx, audio.Input{Data: tone, Filename: "preflight.wav"})
	if err != nil {
		r.fail("normalizer self-test", err)
		return
	}
	defer normalizer.Release(result.Path)

	if !result.Info.IsCanonical(rate) {
		r.fail("normalizer self-test", fmt.Errorf("output is not canonical: %+v", result.Info))
		return
	}

	dir := cfg.Audio.TempDir
	if dir == "" {
		dir = os.TempDir()
	}
	r.ok("normalizer self-test", fmt.Sprintf("%.2fs tone normalized in %s", result.Info.Duration, dir))
}
