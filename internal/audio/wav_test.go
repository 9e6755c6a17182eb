package audio

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	goaudio "github.com/go-audio/audio"
)

// makeWAV builds a minimal PCM WAV file in memory. The sample callback
// supplies the value for each frame/channel pair at the declared bit depth.
func makeWAV(t *testing.T, channels, sampleRate, bitsPerSample, frames int, sample func(frame, ch int) int) []byte {
	t.Helper()

	bytesPerSample := bitsPerSample / 8
	dataSize := frames * channels * bytesPerSample

	buf := new(bytes.Buffer)
	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(buf, binary.LittleEndian, uint16(channels))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate*channels*bytesPerSample))
	binary.Write(buf, binary.LittleEndian, uint16(channels*bytesPerSample))
	binary.Write(buf, binary.LittleEndian, uint16(bitsPerSample))
	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(dataSize))

	for i := 0; i < frames; i++ {
		for ch := 0; ch < channels; ch++ {
			v := 0
			if sample != nil {
				v = sample(i, ch)
			}
			switch bitsPerSample {
			case 8:
				buf.WriteByte(byte(v))
			case 16:
				binary.Write(buf, binary.LittleEndian, int16(v))
			default:
				t.Fatalf("makeWAV does not support %d-bit samples", bitsPerSample)
			}
		}
	}

	return buf.Bytes()
}

func TestProbe(t *testing.T) {
	tests := []struct {
		name       string
		channels   int
		sampleRate int
		bits       int
		frames     int
	}{
		{
			name:       "canonical mono 16kHz",
			channels:   1,
			sampleRate: 16000,
			bits:       16,
			frames:     16000,
		},
		{
			name:       "stereo 44.1kHz",
			channels:   2,
			sampleRate: 44100,
			bits:       16,
			frames:     22050,
		},
		{
			name:       "8-bit mono",
			channels:   1,
			sampleRate: 8000,
			bits:       8,
			frames:     4000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := makeWAV(t, tt.channels, tt.sampleRate, tt.bits, tt.frames, nil)

			info, err := ProbeBytes(data)
			if err != nil {
				t.Fatalf("Expected no error but got: %v", err)
			}

			if info.Channels != tt.channels {
				t.Errorf("Expected %d channels, got %d", tt.channels, info.Channels)
			}
			if info.SampleRate != tt.sampleRate {
				t.Errorf("Expected sample rate %d, got %d", tt.sampleRate, info.SampleRate)
			}
			if info.BitsPerSample != tt.bits {
				t.Errorf("Expected %d bits per sample, got %d", tt.bits, info.BitsPerSample)
			}
			if info.Frames != tt.frames {
				t.Errorf("Expected %d frames, got %d", tt.frames, info.Frames)
			}
			if !info.PCM {
				t.Errorf("Expected PCM format")
			}

			wantDuration := float64(tt.frames) / float64(tt.sampleRate)
			if math.Abs(info.Duration-wantDuration) > 0.001 {
				t.Errorf("Expected duration %.3f, got %.3f", wantDuration, info.Duration)
			}
		})
	}
}

func TestProbeInvalidData(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty", data: nil},
		{name: "truncated header", data: []byte("RIFF")},
		{name: "not a wav", data: []byte("this is definitely not RIFF audio data at all")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ProbeBytes(tt.data); err == nil {
				t.Errorf("Expected error but got none")
			}
		})
	}
}

func TestInfoIsCanonical(t *testing.T) {
	tests := []struct {
		name string
		info Info
		want bool
	}{
		{
			name: "canonical",
			info: Info{SampleRate: 16000, Channels: 1, BitsPerSample: 16, PCM: true},
			want: true,
		},
		{
			name: "wrong sample rate",
			info: Info{SampleRate: 44100, Channels: 1, BitsPerSample: 16, PCM: true},
			want: false,
		},
		{
			name: "stereo",
			info: Info{SampleRate: 16000, Channels: 2, BitsPerSample: 16, PCM: true},
			want: false,
		},
		{
			name: "wrong bit depth",
			info: Info{SampleRate: 16000, Channels: 1, BitsPerSample: 24, PCM: true},
			want: false,
		},
		{
			name: "not pcm",
			info: Info{SampleRate: 16000, Channels: 1, BitsPerSample: 16, PCM: false},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.info.IsCanonical(16000); got != tt.want {
				t.Errorf("Expected IsCanonical=%v, got %v", tt.want, got)
			}
		})
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	samples := make([]int16, 1600)
	for i := range samples {
		samples[i] = int16(i%200 - 100)
	}

	path := filepath.Join(t.TempDir(), "roundtrip.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}

	if err := encodeWAV(f, samples, 16000); err != nil {
		t.Fatalf("Expected no encode error but got: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Failed to close file: %v", err)
	}

	info, err := ProbeFile(path)
	if err != nil {
		t.Fatalf("Expected no probe error but got: %v", err)
	}
	if !info.IsCanonical(16000) {
		t.Errorf("Expected canonical output, got %+v", info)
	}
	if info.Frames != len(samples) {
		t.Errorf("Expected %d frames, got %d", len(samples), info.Frames)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file: %v", err)
	}

	buf, err := decodeWAV(data)
	if err != nil {
		t.Fatalf("Expected no decode error but got: %v", err)
	}
	if len(buf.Data) != len(samples) {
		t.Fatalf("Expected %d samples, got %d", len(samples), len(buf.Data))
	}
	for i, want := range samples {
		if buf.Data[i] != int(want) {
			t.Fatalf("Sample %d: expected %d, got %d", i, want, buf.Data[i])
		}
	}
}

func TestEncodeWAVInMemory(t *testing.T) {
	samples := make([]int16, 800)
	for i := range samples {
		samples[i] = int16(i % 64)
	}

	data, err := EncodeWAV(samples, 16000)
	if err != nil {
		t.Fatalf("Expected no encode error but got: %v", err)
	}

	info, err := ProbeBytes(data)
	if err != nil {
		t.Fatalf("Expected no probe error but got: %v", err)
	}
	if !info.IsCanonical(16000) {
		t.Errorf("Expected canonical output, got %+v", info)
	}
	if info.Frames != len(samples) {
		t.Errorf("Expected %d frames, got %d", len(samples), info.Frames)
	}

	buf, err := decodeWAV(data)
	if err != nil {
		t.Fatalf("Expected no decode error but got: %v", err)
	}
	for i, want := range samples {
		if buf.Data[i] != int(want) {
			t.Fatalf("Sample %d: expected %d, got %d", i, want, buf.Data[i])
		}
	}

	if _, err := EncodeWAV(nil, 16000); err == nil {
		t.Errorf("Expected error for empty samples but got none")
	}
}

func TestEncodeWAVInvalidInput(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "invalid.wav"))
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	defer f.Close()

	if err := encodeWAV(f, nil, 16000); err == nil {
		t.Errorf("Expected error for empty samples but got none")
	}

	if err := encodeWAV(f, []int16{1, 2, 3}, 0); err == nil {
		t.Errorf("Expected error for zero sample rate but got none")
	}
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		data     []byte
		want     Format
	}{
		{name: "wav extension", filename: "speech.wav", want: FormatWAV},
		{name: "uppercase extension", filename: "SPEECH.MP3", want: FormatMP3},
		{name: "m4a extension", filename: "memo.m4a", want: FormatM4A},
		{name: "flac extension", filename: "track.flac", want: FormatFLAC},
		{name: "aac extension", filename: "clip.aac", want: FormatAAC},
		{name: "ogg extension", filename: "voice.ogg", want: FormatOGG},
		{name: "webm extension", filename: "recording.webm", want: FormatWebM},
		{name: "unsupported extension", filename: "notes.txt", data: []byte("plain text"), want: FormatUnknown},
		{
			name:     "wav sniffed without extension",
			filename: "upload",
			data:     append([]byte("RIFF\x24\x00\x00\x00WAVE"), make([]byte, 8)...),
			want:     FormatWAV,
		},
		{
			name:     "flac sniffed",
			filename: "blob",
			data:     []byte("fLaC\x00\x00\x00\x22"),
			want:     FormatFLAC,
		},
		{
			name:     "ogg sniffed",
			filename: "blob",
			data:     []byte("OggS\x00\x02"),
			want:     FormatOGG,
		},
		{
			name:     "webm sniffed",
			filename: "blob",
			data:     []byte{0x1A, 0x45, 0xDF, 0xA3, 0x9F, 0x42},
			want:     FormatWebM,
		},
		{
			name:     "m4a sniffed",
			filename: "blob",
			data:     []byte("\x00\x00\x00\x20ftypM4A \x00\x00\x00\x00"),
			want:     FormatM4A,
		},
		{
			name:     "mp3 id3 sniffed",
			filename: "blob",
			data:     []byte("ID3\x04\x00"),
			want:     FormatMP3,
		},
		{
			name:     "mp3 frame sync sniffed",
			filename: "blob",
			data:     []byte{0xFF, 0xFB, 0x90, 0x00},
			want:     FormatMP3,
		},
		{
			name:     "aac adts sniffed",
			filename: "blob",
			data:     []byte{0xFF, 0xF1, 0x50, 0x80},
			want:     FormatAAC,
		},
		{
			name:     "garbage",
			filename: "blob",
			data:     []byte{0x00, 0x01, 0x02, 0x03},
			want:     FormatUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectFormat(tt.filename, tt.data); got != tt.want {
				t.Errorf("Expected format %q, got %q", tt.want, got)
			}
		})
	}
}

func TestResampleLinear(t *testing.T) {
	t.Run("same rate returns input", func(t *testing.T) {
		in := []float64{0.1, 0.2, 0.3}
		out := resampleLinear(in, 16000, 16000)
		if len(out) != len(in) {
			t.Fatalf("Expected %d samples, got %d", len(in), len(out))
		}
	})

	t.Run("downsample halves length", func(t *testing.T) {
		in := make([]float64, 32000)
		out := resampleLinear(in, 32000, 16000)
		if len(out) != 16000 {
			t.Errorf("Expected 16000 samples, got %d", len(out))
		}
	})

	t.Run("upsample interpolates", func(t *testing.T) {
		out := resampleLinear([]float64{0, 1}, 2, 4)
		want := []float64{0, 0.5, 1, 1}
		if len(out) != len(want) {
			t.Fatalf("Expected %d samples, got %d", len(want), len(out))
		}
		for i := range want {
			if math.Abs(out[i]-want[i]) > 1e-9 {
				t.Errorf("Sample %d: expected %f, got %f", i, want[i], out[i])
			}
		}
	})

	t.Run("constant signal preserved", func(t *testing.T) {
		in := make([]float64, 4410)
		for i := range in {
			in[i] = 0.25
		}
		out := resampleLinear(in, 44100, 16000)
		for i, v := range out {
			if math.Abs(v-0.25) > 1e-9 {
				t.Fatalf("Sample %d: expected 0.25, got %f", i, v)
			}
		}
	})
}

func TestDownmixAverage(t *testing.T) {
	t.Run("mono unchanged", func(t *testing.T) {
		in := []float64{0.5, -0.5}
		out := downmixAverage(in, 1)
		if len(out) != 2 || out[0] != 0.5 || out[1] != -0.5 {
			t.Errorf("Expected mono input unchanged, got %v", out)
		}
	})

	t.Run("opposite channels cancel", func(t *testing.T) {
		in := []float64{0.5, -0.5, 0.25, -0.25}
		out := downmixAverage(in, 2)
		if len(out) != 2 {
			t.Fatalf("Expected 2 frames, got %d", len(out))
		}
		for i, v := range out {
			if math.Abs(v) > 1e-9 {
				t.Errorf("Frame %d: expected 0, got %f", i, v)
			}
		}
	})

	t.Run("equal channels preserved", func(t *testing.T) {
		in := []float64{0.3, 0.3, -0.7, -0.7}
		out := downmixAverage(in, 2)
		if math.Abs(out[0]-0.3) > 1e-9 || math.Abs(out[1]+0.7) > 1e-9 {
			t.Errorf("Expected [0.3 -0.7], got %v", out)
		}
	})
}

func TestQuantizeInt16(t *testing.T) {
	out := quantizeInt16([]float64{0, 0.5, 1.0, 2.0, -1.0, -2.0})

	want := []int16{0, 16384, 32767, 32767, -32767, -32767}
	for i, w := range want {
		if out[i] != w {
			t.Errorf("Sample %d: expected %d, got %d", i, w, out[i])
		}
	}
}

func TestSamplesToFloat(t *testing.T) {
	t.Run("16-bit scaling", func(t *testing.T) {
		buf := &goaudio.IntBuffer{
			Data:           []int{0, 16384, -32768},
			SourceBitDepth: 16,
		}
		out := samplesToFloat(buf)
		want := []float64{0, 0.5, -1.0}
		for i, w := range want {
			if math.Abs(out[i]-w) > 1e-9 {
				t.Errorf("Sample %d: expected %f, got %f", i, w, out[i])
			}
		}
	})

	t.Run("8-bit recentered", func(t *testing.T) {
		buf := &goaudio.IntBuffer{
			Data:           []int{0, 128, 255},
			SourceBitDepth: 8,
		}
		out := samplesToFloat(buf)
		if math.Abs(out[0]+1.0) > 1e-9 {
			t.Errorf("Expected -1.0 for byte 0, got %f", out[0])
		}
		if math.Abs(out[1]) > 1e-9 {
			t.Errorf("Expected 0 for byte 128, got %f", out[1])
		}
		if out[2] <= 0.99 {
			t.Errorf("Expected near 1.0 for byte 255, got %f", out[2])
		}
	})
}
