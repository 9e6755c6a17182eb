package audio

import (
	"bytes"
	"path/filepath"
	"strings"
)

// Format identifies a supported input container
type Format string

const (
	FormatUnknown Format = ""
	FormatWAV     Format = "wav"
	FormatMP3     Format = "mp3"
	FormatM4A     Format = "m4a"
	FormatFLAC    Format = "flac"
	FormatAAC     Format = "aac"
	FormatOGG     Format = "ogg"
	FormatWebM    Format = "webm"
)

// SupportedFormats lists the input containers the normalizer accepts
var SupportedFormats = []Format{
	FormatWAV, FormatMP3, FormatM4A, FormatFLAC, FormatAAC, FormatOGG, FormatWebM,
}

// DetectFormat resolves the input format from the declared filename, falling
// back to content sniffing when the extension is missing or unrecognized.
func DetectFormat(filename string, data []byte) Format {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	for _, f := range SupportedFormats {
		if string(f) == ext {
			return f
		}
	}

	return sniffFormat(data)
}

// sniffFormat identifies a container from its magic bytes
func sniffFormat(data []byte) Format {
	switch {
	case len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE")):
		return FormatWAV
	case len(data) >= 4 && bytes.Equal(data[0:4], []byte("fLaC")):
		return FormatFLAC
	case len(data) >= 4 && bytes.Equal(data[0:4], []byte("OggS")):
		return FormatOGG
	case len(data) >= 4 && bytes.Equal(data[0:4], []byte{0x1A, 0x45, 0xDF, 0xA3}):
		// EBML header, used by WebM (what browser recorders upload)
		return FormatWebM
	case len(data) >= 12 && bytes.Equal(data[4:8], []byte("ftyp")):
		return FormatM4A
	case len(data) >= 3 && bytes.Equal(data[0:3], []byte("ID3")):
		return FormatMP3
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xF6 == 0xF0:
		// ADTS sync word with layer bits zero
		return FormatAAC
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		// bare MPEG audio frame sync
		return FormatMP3
	default:
		return FormatUnknown
	}
}
