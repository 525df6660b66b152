// Package stt defines the Provider interface for streaming Speech-to-Text
// backends.
//
// An STT provider wraps a real-time transcription service and exposes a
// uniform streaming interface over a multiplexed two-channel audio stream.
// The central abstraction is [Stream]: once opened, a stream accepts raw
// multiplexed PCM frames and asynchronously emits per-channel recognition
// results plus connection-wide voice-activity boundary events. Callers never
// poll; results are pushed on channels.
//
// Implementations must be safe for concurrent use. Audio input and result
// output channels are goroutine-safe by construction.
package stt

import (
	"context"
)

// StreamConfig describes the audio format and recognition settings for a new
// STT stream. All fields must be compatible with what the underlying provider
// supports.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz (e.g., 16000).
	SampleRate int

	// Channels is the number of interleaved channels in the multiplexed
	// stream. duplexscribe always sends 2 (channel 0 = local, 1 = remote).
	Channels int

	// Language is the BCP-47 language tag for recognition (e.g., "en-US").
	// An empty string lets the provider auto-detect, if supported.
	Language string

	// Model selects a provider-specific recognition model. An empty string
	// uses the provider default.
	Model string
}

// Stream represents an open STT streaming session. It is an interface so
// that test code can provide mock implementations without a live provider
// connection.
//
// Callers must call Close when the stream is no longer needed. Failing to do
// so may leak goroutines and network connections inside the provider.
// All methods must be safe for concurrent use.
type Stream interface {
	// SendAudio delivers one multiplexed PCM frame to the provider. The
	// frame must match the SampleRate and Channels agreed in StreamConfig.
	// Calling SendAudio after Close returns an error.
	SendAudio(frame []byte) error

	// Results returns a read-only channel that emits recognition results as
	// the provider produces them. Per-channel results arrive in order; no
	// ordering is guaranteed across channels. The channel is closed when
	// the stream ends.
	Results() <-chan Result

	// VAD returns a read-only channel that emits connection-wide voice
	// activity events. The channel is closed when the stream ends.
	VAD() <-chan VADEvent

	// Close terminates the stream, flushes pending audio, and releases all
	// associated resources. After Close returns, the Results and VAD
	// channels will be closed. Calling Close more than once is safe and
	// returns nil.
	Close() error
}

// Provider is the abstraction over any streaming STT backend.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// StartStream opens a new streaming transcription session with the
	// given audio format and recognition configuration. The returned Stream
	// is ready to accept audio immediately.
	//
	// Returns an error if the provider cannot establish the session (e.g.,
	// authentication failure, unsupported configuration, or ctx already
	// cancelled). The caller owns the Stream and must call Close when done.
	StartStream(ctx context.Context, cfg StreamConfig) (Stream, error)
}
