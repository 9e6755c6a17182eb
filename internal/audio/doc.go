// Package audio normalizes user-supplied audio to the canonical format the
// Riva backend requires: mono, 16-bit signed PCM, 16 kHz, WAV container.
// WAV input is decoded natively; compressed formats (and WAV variants the
// native decoder rejects) are decoded through an external ffmpeg process.
package audio
