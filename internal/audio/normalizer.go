package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	shellwords "github.com/mattn/go-shellwords"

	"github.com/peterableda/riva-amp/internal/config"
	"github.com/peterableda/riva-amp/internal/metrics"
)

// Input is one piece of audio to normalize: either in-memory bytes or a file
// on disk. Filename carries the declared name used for format detection;
// for path inputs it defaults to the path basename.
type Input struct {
	Path     string
	Data     []byte
	Filename string
}

// Size returns the input size in bytes without reading the content
func (in Input) Size() (int64, error) {
	if in.Data != nil {
		return int64(len(in.Data)), nil
	}

	fi, err := os.Stat(in.Path)
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

// name returns the best available filename for format detection
func (in Input) name() string {
	if in.Filename != "" {
		return in.Filename
	}
	return filepath.Base(in.Path)
}

// content loads the input bytes
func (in Input) content() ([]byte, error) {
	if in.Data != nil {
		return in.Data, nil
	}
	return os.ReadFile(in.Path)
}

// Result is normalized audio: a fresh temp file guaranteed to contain mono
// 16-bit PCM WAV at the target rate. The invocation that received it owns
// the file and removes it with Release. PassThrough marks inputs that were
// already canonical and were copied byte for byte.
type Result struct {
	Path        string
	Data        []byte
	Info        Info
	PassThrough bool
}

// Normalizer converts supported audio inputs to the canonical Riva format.
// It holds no per-request state; one instance serves concurrent requests.
type Normalizer struct {
	config     config.AudioConfig
	logger     *slog.Logger
	metrics    *metrics.Metrics
	ffmpegArgs []string
}

// NewNormalizer creates a normalizer. The configured ffmpeg command is
// parsed once here so a malformed command fails at startup, not per request.
func NewNormalizer(cfg config.AudioConfig, logger *slog.Logger, m *metrics.Metrics) (*Normalizer, error) {
	args, err := shellwords.Parse(cfg.FFmpegCommand)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ffmpeg command %q: %w", cfg.FFmpegCommand, err)
	}

	if len(args) == 0 {
		return nil, fmt.Errorf("ffmpeg command %q resolves to nothing", cfg.FFmpegCommand)
	}

	return &Normalizer{
		config:     cfg,
		logger:     logger,
		metrics:    m,
		ffmpegArgs: args,
	}, nil
}

// Normalize converts the input to mono 16-bit PCM WAV at the target sample
// rate, written to a unique temp file. The input is never modified. Inputs
// already in canonical form are copied through byte for byte.
func (n *Normalizer) Normalize(ctx context.Context, in Input) (*Result, error) {
	if in.Data == nil && in.Path == "" {
		return nil, fmt.Errorf("%w: no input provided", ErrConversion)
	}

	// The size gate runs before any decode work.
	size, err := in.Size()
	if err != nil {
		return nil, fmt.Errorf("%w: unable to stat input: %v", ErrConversion, err)
	}
	if size > n.config.MaxFileSizeBytes() {
		return nil, fmt.Errorf("%w: %d bytes over the %d MB limit",
			ErrSizeLimitExceeded, size, n.config.MaxFileSizeMB)
	}

	data, err := in.content()
	if err != nil {
		return nil, fmt.Errorf("%w: unable to read input: %v", ErrConversion, err)
	}

	format := DetectFormat(in.name(), data)
	if format == FormatUnknown {
		return nil, fmt.Errorf("%w: %q matches none of %v",
			ErrUnsupportedFormat, in.name(), SupportedFormats)
	}

	n.logger.Debug("normalizing audio input",
		slog.String("name", in.name()),
		slog.String("format", string(format)),
		slog.Int64("size_bytes", size),
	)

	if format == FormatWAV {
		if info, err := ProbeBytes(data); err == nil && info.IsCanonical(n.config.TargetSampleRate) {
			if err := n.checkDuration(in.name(), info.Duration); err != nil {
				return nil, err
			}
			return n.passThrough(data, info)
		}
	}

	var pcm []int16
	if format == FormatWAV {
		pcm, err = n.decodeNative(data)
		if err != nil {
			// Non-PCM or otherwise odd WAV variants go through ffmpeg like
			// the compressed formats do.
			n.logger.Debug("native WAV decode failed, using ffmpeg",
				slog.String("error", err.Error()),
			)
			pcm, err = n.decodeFFmpeg(ctx, in, data, format)
		}
	} else {
		pcm, err = n.decodeFFmpeg(ctx, in, data, format)
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}

	duration := float64(len(pcm)) / float64(n.config.TargetSampleRate)
	if err := n.checkDuration(in.name(), duration); err != nil {
		return nil, err
	}

	result, err := n.writeResult(pcm)
	if err != nil {
		return nil, err
	}

	n.logger.Debug("audio normalized",
		slog.String("name", in.name()),
		slog.String("format", string(format)),
		slog.String("path", result.Path),
		slog.Float64("duration_seconds", result.Info.Duration),
	)

	return result, nil
}

// checkDuration enforces the lower duration bound. Long inputs are only
// warned about; the backend decides what it can transcribe.
func (n *Normalizer) checkDuration(name string, seconds float64) error {
	if seconds < n.config.MinDuration {
		return fmt.Errorf("%w: %.3fs is below the %.1fs minimum",
			ErrDurationOutOfRange, seconds, n.config.MinDuration)
	}

	if seconds > n.config.WarnDuration {
		n.logger.Warn("audio input unusually long",
			slog.String("name", name),
			slog.Float64("duration_seconds", seconds),
		)
	}

	return nil
}

// Release removes normalization artifacts. Paths that are already gone are
// fine; removal failures are logged, never returned, so cleanup can run on
// every exit path without masking the request outcome.
func (n *Normalizer) Release(paths ...string) {
	for _, path := range paths {
		if path == "" {
			continue
		}

		err := os.Remove(path)
		switch {
		case err == nil:
			if n.metrics != nil {
				n.metrics.RecordTempFileReleased()
			}
			n.logger.Debug("temp file removed", slog.String("path", path))
		case os.IsNotExist(err):
			n.logger.Debug("temp file already gone", slog.String("path", path))
		default:
			if n.metrics != nil {
				n.metrics.RecordTempFileReleaseError()
			}
			n.logger.Warn("failed to remove temp file",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
		}
	}
}

// decodeNative decodes a PCM WAV in process and converts it to canonical
// mono 16-bit samples at the target rate
func (n *Normalizer) decodeNative(data []byte) ([]int16, error) {
	buf, err := decodeWAV(data)
	if err != nil {
		return nil, err
	}

	floats := samplesToFloat(buf)
	mono := downmixAverage(floats, buf.Format.NumChannels)
	resampled := resampleLinear(mono, buf.Format.SampleRate, n.config.TargetSampleRate)

	return quantizeInt16(resampled), nil
}

// decodeFFmpeg shells out to ffmpeg for formats the native decoder does not
// handle. ffmpeg emits raw s16le mono at the target rate on stdout.
func (n *Normalizer) decodeFFmpeg(ctx context.Context, in Input, data []byte, format Format) ([]int16, error) {
	inputPath := in.Path
	if inputPath == "" {
		// Stage in-memory input on disk; some demuxers need a seekable file.
		f, err := os.CreateTemp(n.config.TempDir, "riva_in_*."+string(format))
		if err != nil {
			return nil, fmt.Errorf("%w: unable to stage input: %v", ErrConversion, err)
		}
		if _, err := f.Write(data); err != nil {
			f.Close()
			os.Remove(f.Name())
			return nil, fmt.Errorf("%w: unable to stage input: %v", ErrConversion, err)
		}
		if err := f.Close(); err != nil {
			os.Remove(f.Name())
			return nil, fmt.Errorf("%w: unable to stage input: %v", ErrConversion, err)
		}
		inputPath = f.Name()
		defer os.Remove(inputPath)
	}

	args := append([]string{}, n.ffmpegArgs[1:]...)
	args = append(args,
		"-hide_banner",
		"-loglevel", "error",
		"-i", inputPath,
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ac", strconv.Itoa(n.config.TargetChannels),
		"-ar", strconv.Itoa(n.config.TargetSampleRate),
		"pipe:1",
	)

	cmd := exec.CommandContext(ctx, n.ffmpegArgs[0], args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	n.logger.Debug("running ffmpeg decode",
		slog.String("binary", n.ffmpegArgs[0]),
		slog.String("input", inputPath),
		slog.String("format", string(format)),
	)

	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		return nil, fmt.Errorf("%w: ffmpeg decode: %s", ErrConversion, detail)
	}

	raw := stdout.Bytes()
	if len(raw) < 2 {
		return nil, fmt.Errorf("%w: ffmpeg produced no audio", ErrConversion)
	}

	pcm := make([]int16, len(raw)/2)
	for i := range pcm {
		pcm[i] = int16(binary.LittleEndian.Uint16(raw[i*2:]))
	}

	return pcm, nil
}

// passThrough copies an already-canonical input into a fresh temp artifact
func (n *Normalizer) passThrough(data []byte, info *Info) (*Result, error) {
	path, err := n.writeTemp(data)
	if err != nil {
		return nil, err
	}

	n.logger.Debug("input already canonical, passed through",
		slog.String("path", path),
		slog.Float64("duration_seconds", info.Duration),
	)

	return &Result{Path: path, Data: data, Info: *info, PassThrough: true}, nil
}

// writeResult encodes canonical samples into a fresh temp WAV file
func (n *Normalizer) writeResult(pcm []int16) (*Result, error) {
	f, err := os.CreateTemp(n.config.TempDir, "riva_norm_*.wav")
	if err != nil {
		return nil, fmt.Errorf("%w: unable to create temp file: %v", ErrConversion, err)
	}

	if err := encodeWAV(f, pcm, n.config.TargetSampleRate); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("%w: %v", ErrConversion, err)
	}

	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return nil, fmt.Errorf("%w: unable to finalize temp file: %v", ErrConversion, err)
	}

	data, err := os.ReadFile(f.Name())
	if err != nil {
		os.Remove(f.Name())
		return nil, fmt.Errorf("%w: unable to read back temp file: %v", ErrConversion, err)
	}

	if n.metrics != nil {
		n.metrics.RecordTempFileCreated()
	}

	return &Result{
		Path: f.Name(),
		Data: data,
		Info: Info{
			SampleRate:    n.config.TargetSampleRate,
			Channels:      1,
			BitsPerSample: 16,
			Frames:        len(pcm),
			Duration:      float64(len(pcm)) / float64(n.config.TargetSampleRate),
			PCM:           true,
			DataBytes:     int64(len(pcm) * 2),
		},
	}, nil
}

// writeTemp stores raw bytes in a fresh temp file
func (n *Normalizer) writeTemp(data []byte) (string, error) {
	f, err := os.CreateTemp(n.config.TempDir, "riva_norm_*.wav")
	if err != nil {
		return "", fmt.Errorf("%w: unable to create temp file: %v", ErrConversion, err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("%w: unable to write temp file: %v", ErrConversion, err)
	}

	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("%w: unable to finalize temp file: %v", ErrConversion, err)
	}

	if n.metrics != nil {
		n.metrics.RecordTempFileCreated()
	}

	return f.Name(), nil
}
