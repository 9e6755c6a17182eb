// Package transcriptor coordinates the request pipeline: normalize the
// uploaded audio, send the canonical WAV to the Riva backend, and clean up
// the intermediate artifacts whatever the outcome.
package transcriptor
