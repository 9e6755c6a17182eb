package audio

import (
	"math"

	goaudio "github.com/go-audio/audio"
)

// samplesToFloat converts decoded integer samples to float64 in [-1, 1],
// scaled by the source bit depth. 8-bit WAV audio is unsigned and is
// re-centered around zero.
func samplesToFloat(buf *goaudio.IntBuffer) []float64 {
	bitDepth := buf.SourceBitDepth
	if bitDepth == 0 {
		bitDepth = 16
	}

	out := make([]float64, len(buf.Data))

	if bitDepth == 8 {
		for i, s := range buf.Data {
			out[i] = (float64(s) - 128) / 128
		}
		return out
	}

	scale := float64(int64(1) << uint(bitDepth-1))
	for i, s := range buf.Data {
		out[i] = float64(s) / scale
	}
	return out
}

// downmixAverage folds interleaved multi-channel audio to mono by averaging
// the channels of each frame
func downmixAverage(samples []float64, channels int) []float64 {
	if channels <= 1 {
		return samples
	}

	frames := len(samples) / channels
	mono := make([]float64, frames)

	for i := 0; i < frames; i++ {
		var sum float64
		for ch := 0; ch < channels; ch++ {
			sum += samples[i*channels+ch]
		}
		mono[i] = sum / float64(channels)
	}

	return mono
}

// resampleLinear converts mono samples from srcRate to dstRate using linear
// interpolation. Only native WAV decodes pass through here; compressed
// formats are resampled by ffmpeg.
func resampleLinear(samples []float64, srcRate, dstRate int) []float64 {
	if srcRate == dstRate || len(samples) == 0 {
		return samples
	}

	outLen := int(math.Round(float64(len(samples)) * float64(dstRate) / float64(srcRate)))
	if outLen < 1 {
		outLen = 1
	}

	step := float64(srcRate) / float64(dstRate)
	out := make([]float64, outLen)

	for i := range out {
		pos := float64(i) * step
		j := int(pos)

		if j >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}

		frac := pos - float64(j)
		out[i] = samples[j]*(1-frac) + samples[j+1]*frac
	}

	return out
}

// quantizeInt16 clips samples to [-1, 1] and converts them to 16-bit PCM
func quantizeInt16(samples []float64) []int16 {
	out := make([]int16, len(samples))

	for i, s := range samples {
		if s > 1.0 {
			s = 1.0
		} else if s < -1.0 {
			s = -1.0
		}
		out[i] = int16(math.Round(s * 32767))
	}

	return out
}
