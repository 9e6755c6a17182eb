package audio

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/peterableda/riva-amp/internal/config"
)

func newTestNormalizer(t *testing.T, mutate func(*config.AudioConfig)) *Normalizer {
	t.Helper()

	cfg := config.Default().Audio
	cfg.TempDir = t.TempDir()
	if mutate != nil {
		mutate(&cfg)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	n, err := NewNormalizer(cfg, logger, nil)
	if err != nil {
		t.Fatalf("Failed to create normalizer: %v", err)
	}
	return n
}

func TestNewNormalizerInvalidCommand(t *testing.T) {
	cfg := config.Default().Audio
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg.FFmpegCommand = `ffmpeg "unterminated`
	if _, err := NewNormalizer(cfg, logger, nil); err == nil {
		t.Errorf("Expected error for unparseable command but got none")
	}

	cfg.FFmpegCommand = "   "
	if _, err := NewNormalizer(cfg, logger, nil); err == nil {
		t.Errorf("Expected error for empty command but got none")
	}
}

func TestNormalizePassThrough(t *testing.T) {
	n := newTestNormalizer(t, nil)

	input := makeWAV(t, 1, 16000, 16, 16000, func(frame, ch int) int {
		return frame%200 - 100
	})

	result, err := n.Normalize(context.Background(), Input{Data: input, Filename: "canonical.wav"})
	if err != nil {
		t.Fatalf("Expected no error but got: %v", err)
	}

	if !result.PassThrough {
		t.Errorf("Expected pass-through for canonical input")
	}
	if !bytes.Equal(result.Data, input) {
		t.Errorf("Expected pass-through data to be byte-identical to input")
	}
	if !result.Info.IsCanonical(16000) {
		t.Errorf("Expected canonical info, got %+v", result.Info)
	}

	onDisk, err := os.ReadFile(result.Path)
	if err != nil {
		t.Fatalf("Expected result file on disk but got: %v", err)
	}
	if !bytes.Equal(onDisk, input) {
		t.Errorf("Expected result file to match input bytes")
	}

	n.Release(result.Path)
	if _, err := os.Stat(result.Path); !os.IsNotExist(err) {
		t.Errorf("Expected result file to be removed after Release")
	}
}

func TestNormalizePassThroughFromPath(t *testing.T) {
	n := newTestNormalizer(t, nil)

	input := makeWAV(t, 1, 16000, 16, 8000, nil)
	path := filepath.Join(t.TempDir(), "upload.wav")
	if err := os.WriteFile(path, input, 0o644); err != nil {
		t.Fatalf("Failed to write input file: %v", err)
	}

	result, err := n.Normalize(context.Background(), Input{Path: path})
	if err != nil {
		t.Fatalf("Expected no error but got: %v", err)
	}

	if !result.PassThrough {
		t.Errorf("Expected pass-through for canonical file input")
	}
	if result.Path == path {
		t.Errorf("Expected result in a fresh temp file, got the input path")
	}

	// Releasing the result must not touch the caller's input file.
	n.Release(result.Path)
	if _, err := os.Stat(path); err != nil {
		t.Errorf("Expected input file untouched, got: %v", err)
	}
}

func TestNormalizeResamplesStereoWAV(t *testing.T) {
	n := newTestNormalizer(t, nil)

	input := makeWAV(t, 2, 44100, 16, 22050, func(frame, ch int) int {
		return (frame%100)*20 - 1000
	})

	result, err := n.Normalize(context.Background(), Input{Data: input, Filename: "stereo.wav"})
	if err != nil {
		t.Fatalf("Expected no error but got: %v", err)
	}
	defer n.Release(result.Path)

	if result.PassThrough {
		t.Errorf("Expected conversion, got pass-through")
	}

	info, err := ProbeBytes(result.Data)
	if err != nil {
		t.Fatalf("Expected valid WAV output but got: %v", err)
	}
	if !info.IsCanonical(16000) {
		t.Errorf("Expected canonical output, got %+v", info)
	}
	if info.Frames != 8000 {
		t.Errorf("Expected 8000 frames after resampling, got %d", info.Frames)
	}
	if math.Abs(info.Duration-0.5) > 0.001 {
		t.Errorf("Expected duration 0.5, got %.3f", info.Duration)
	}
}

func TestNormalizeDownmixAveragesChannels(t *testing.T) {
	n := newTestNormalizer(t, nil)

	// Opposite-phase channels at the target rate cancel to silence.
	input := makeWAV(t, 2, 16000, 16, 3200, func(frame, ch int) int {
		if ch == 0 {
			return 1000
		}
		return -1000
	})

	result, err := n.Normalize(context.Background(), Input{Data: input, Filename: "opposed.wav"})
	if err != nil {
		t.Fatalf("Expected no error but got: %v", err)
	}
	defer n.Release(result.Path)

	buf, err := decodeWAV(result.Data)
	if err != nil {
		t.Fatalf("Failed to decode output: %v", err)
	}
	if len(buf.Data) != 3200 {
		t.Fatalf("Expected 3200 frames, got %d", len(buf.Data))
	}
	for i, v := range buf.Data {
		if v != 0 {
			t.Fatalf("Frame %d: expected 0 after downmix, got %d", i, v)
		}
	}
}

func TestNormalizeUnsupportedFormat(t *testing.T) {
	n := newTestNormalizer(t, nil)

	_, err := n.Normalize(context.Background(), Input{
		Data:     []byte("just some plain text, nothing audio about it"),
		Filename: "notes.txt",
	})
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("Expected ErrUnsupportedFormat, got: %v", err)
	}
}

func TestNormalizeSizeLimit(t *testing.T) {
	n := newTestNormalizer(t, func(cfg *config.AudioConfig) {
		cfg.MaxFileSizeMB = 1
	})

	oversized := make([]byte, 1<<20+1)
	_, err := n.Normalize(context.Background(), Input{Data: oversized, Filename: "big.wav"})
	if !errors.Is(err, ErrSizeLimitExceeded) {
		t.Errorf("Expected ErrSizeLimitExceeded, got: %v", err)
	}
}

func TestNormalizeTooShort(t *testing.T) {
	n := newTestNormalizer(t, nil)

	tests := []struct {
		name  string
		input []byte
	}{
		{
			// Canonical input is rejected on the pass-through path.
			name:  "canonical",
			input: makeWAV(t, 1, 16000, 16, 800, nil),
		},
		{
			// Non-canonical input is rejected after decoding.
			name:  "stereo 44.1kHz",
			input: makeWAV(t, 2, 44100, 16, 2205, nil),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := n.Normalize(context.Background(), Input{Data: tt.input, Filename: "short.wav"})
			if !errors.Is(err, ErrDurationOutOfRange) {
				t.Errorf("Expected ErrDurationOutOfRange, got: %v", err)
			}
		})
	}
}

func TestNormalizeCorruptInput(t *testing.T) {
	n := newTestNormalizer(t, nil)

	_, err := n.Normalize(context.Background(), Input{
		Data:     []byte("not RIFF data at all, just junk bytes pretending"),
		Filename: "broken.wav",
	})
	if !errors.Is(err, ErrConversion) {
		t.Errorf("Expected ErrConversion, got: %v", err)
	}
}

func TestNormalizeEmptyInput(t *testing.T) {
	n := newTestNormalizer(t, nil)

	_, err := n.Normalize(context.Background(), Input{})
	if !errors.Is(err, ErrConversion) {
		t.Errorf("Expected ErrConversion for empty input, got: %v", err)
	}
}

func TestNormalizeCanceledContext(t *testing.T) {
	n := newTestNormalizer(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// MP3 input forces the ffmpeg path, which must surface the
	// cancellation instead of a conversion error.
	_, err := n.Normalize(ctx, Input{
		Data:     []byte{0xFF, 0xFB, 0x90, 0x00, 0x00, 0x00, 0x00, 0x00},
		Filename: "clip.mp3",
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got: %v", err)
	}
}

func TestNormalizeUniqueArtifacts(t *testing.T) {
	n := newTestNormalizer(t, nil)

	input := makeWAV(t, 1, 16000, 16, 8000, nil)

	first, err := n.Normalize(context.Background(), Input{Data: input, Filename: "a.wav"})
	if err != nil {
		t.Fatalf("Expected no error but got: %v", err)
	}
	defer n.Release(first.Path)

	second, err := n.Normalize(context.Background(), Input{Data: input, Filename: "a.wav"})
	if err != nil {
		t.Fatalf("Expected no error but got: %v", err)
	}
	defer n.Release(second.Path)

	if first.Path == second.Path {
		t.Errorf("Expected distinct artifact paths, both were %s", first.Path)
	}
}

func TestReleaseTolerant(t *testing.T) {
	n := newTestNormalizer(t, nil)

	// None of these may panic or error.
	n.Release()
	n.Release("")
	n.Release(filepath.Join(t.TempDir(), "never-created.wav"))

	path := filepath.Join(t.TempDir(), "once.wav")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}
	n.Release(path)
	n.Release(path)

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("Expected file removed after Release")
	}
}

func TestNormalizeCompressedWithFFmpeg(t *testing.T) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not available")
	}

	n := newTestNormalizer(t, nil)

	dir := t.TempDir()
	wavPath := filepath.Join(dir, "source.wav")
	source := makeWAV(t, 2, 44100, 16, 22050, func(frame, ch int) int {
		return int(8000 * math.Sin(2*math.Pi*440*float64(frame)/44100))
	})
	if err := os.WriteFile(wavPath, source, 0o644); err != nil {
		t.Fatalf("Failed to write source WAV: %v", err)
	}

	mp3Path := filepath.Join(dir, "source.mp3")
	convert := exec.Command("ffmpeg", "-hide_banner", "-loglevel", "error", "-y", "-i", wavPath, mp3Path)
	if out, err := convert.CombinedOutput(); err != nil {
		t.Skipf("ffmpeg could not produce mp3 fixture: %v (%s)", err, out)
	}

	result, err := n.Normalize(context.Background(), Input{Path: mp3Path})
	if err != nil {
		t.Fatalf("Expected no error but got: %v", err)
	}
	defer n.Release(result.Path)

	if result.PassThrough {
		t.Errorf("Expected conversion for mp3 input")
	}
	if !result.Info.IsCanonical(16000) {
		t.Errorf("Expected canonical output, got %+v", result.Info)
	}
	// Codec padding shifts the duration slightly.
	if math.Abs(result.Info.Duration-0.5) > 0.2 {
		t.Errorf("Expected duration near 0.5, got %.3f", result.Info.Duration)
	}
}
