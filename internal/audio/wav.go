package audio

import (
	"bytes"
	"fmt"
	"io"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Info describes the PCM content of a WAV file
type Info struct {
	SampleRate    int     `json:"sample_rate"`
	Channels      int     `json:"channels"`
	BitsPerSample int     `json:"bits_per_sample"`
	Frames        int     `json:"frames"`
	Duration      float64 `json:"duration_seconds"`
	PCM           bool    `json:"pcm"`
	DataBytes     int64   `json:"data_size_bytes"`
}

// IsCanonical reports whether the audio already matches mono 16-bit PCM at
// the given sample rate, meaning normalization can pass it through unchanged.
func (i *Info) IsCanonical(sampleRate int) bool {
	return i.PCM && i.Channels == 1 && i.BitsPerSample == 16 && i.SampleRate == sampleRate
}

// Probe extracts WAV metadata without decoding the audio samples
func Probe(r io.ReadSeeker) (*Info, error) {
	d := wav.NewDecoder(r)
	d.ReadInfo()
	if err := d.Err(); err != nil {
		return nil, fmt.Errorf("failed to read WAV header: %w", err)
	}

	if d.NumChans == 0 || d.SampleRate == 0 || d.BitDepth == 0 {
		return nil, fmt.Errorf("invalid WAV header: channels=%d sample_rate=%d bit_depth=%d",
			d.NumChans, d.SampleRate, d.BitDepth)
	}

	if err := d.FwdToPCM(); err != nil {
		return nil, fmt.Errorf("WAV data chunk not found: %w", err)
	}

	dataBytes := d.PCMLen()
	bytesPerFrame := int64(d.NumChans) * int64(d.BitDepth) / 8

	var frames int64
	if bytesPerFrame > 0 {
		frames = dataBytes / bytesPerFrame
	}

	return &Info{
		SampleRate:    int(d.SampleRate),
		Channels:      int(d.NumChans),
		BitsPerSample: int(d.BitDepth),
		Frames:        int(frames),
		Duration:      float64(frames) / float64(d.SampleRate),
		PCM:           d.WavAudioFormat == 1,
		DataBytes:     dataBytes,
	}, nil
}

// ProbeBytes extracts WAV metadata from an in-memory file
func ProbeBytes(data []byte) (*Info, error) {
	return Probe(bytes.NewReader(data))
}

// ProbeFile extracts WAV metadata from a file on disk
func ProbeFile(path string) (*Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	return Probe(f)
}

// decodeWAV decodes a PCM WAV file into an interleaved sample buffer
func decodeWAV(data []byte) (*goaudio.IntBuffer, error) {
	d := wav.NewDecoder(bytes.NewReader(data))
	d.ReadInfo()
	if err := d.Err(); err != nil {
		return nil, fmt.Errorf("failed to read WAV header: %w", err)
	}

	if d.WavAudioFormat != 1 {
		return nil, fmt.Errorf("unsupported WAV encoding %d (PCM only)", d.WavAudioFormat)
	}

	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to decode WAV samples: %w", err)
	}

	if buf == nil || len(buf.Data) == 0 {
		return nil, fmt.Errorf("WAV file contains no audio data")
	}

	if buf.Format == nil || buf.Format.NumChannels < 1 || buf.Format.SampleRate < 1 {
		return nil, fmt.Errorf("WAV file has an invalid format description")
	}

	if buf.SourceBitDepth == 0 {
		buf.SourceBitDepth = int(d.BitDepth)
	}

	return buf, nil
}

// EncodeWAV renders mono 16-bit PCM samples as an in-memory WAV file
func EncodeWAV(samples []int16, sampleRate int) ([]byte, error) {
	var b seekBuffer
	if err := encodeWAV(&b, samples, sampleRate); err != nil {
		return nil, err
	}
	return b.buf, nil
}

// seekBuffer is an in-memory io.WriteSeeker. The WAV encoder seeks back
// over already-written bytes to patch the RIFF chunk sizes.
type seekBuffer struct {
	buf []byte
	pos int
}

func (b *seekBuffer) Write(p []byte) (int, error) {
	if end := b.pos + len(p); end > len(b.buf) {
		grown := make([]byte, end)
		copy(grown, b.buf)
		b.buf = grown
	}
	copy(b.buf[b.pos:], p)
	b.pos += len(p)
	return len(p), nil
}

func (b *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = int64(b.pos) + offset
	case io.SeekEnd:
		pos = int64(len(b.buf)) + offset
	default:
		return 0, fmt.Errorf("invalid seek whence %d", whence)
	}
	if pos < 0 {
		return 0, fmt.Errorf("seek before start of buffer: %d", pos)
	}
	b.pos = int(pos)
	return pos, nil
}

// encodeWAV writes mono 16-bit PCM samples as a WAV file. The writer must
// support seeking so the encoder can finalize the RIFF header sizes.
func encodeWAV(w io.WriteSeeker, samples []int16, sampleRate int) error {
	if len(samples) == 0 {
		return fmt.Errorf("cannot encode empty audio samples")
	}

	if sampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s)
	}

	enc := wav.NewEncoder(w, sampleRate, 16, 1, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}

	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("failed to write WAV data: %w", err)
	}

	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to finalize WAV file: %w", err)
	}

	return nil
}
