// Package audio defines the types and pipeline stages for dual-channel audio
// capture within duplexscribe.
//
// The pipeline treats two independent mono PCM streams — the local microphone
// and the remote/system audio — as concurrent producers. The stages in this
// package are:
//
//   - [CaptureSource] — the boundary to platform audio capture. Adapter
//     packages (audio/wav, audio/mock) implement it.
//   - [LevelMeter] — continuously updated per-source signal levels.
//   - [ShouldSuppress] — the echo/barge-in gate applied to local chunks.
//   - [Interleaver] — merges the two mono streams into one multiplexed
//     buffer on a fixed cadence.
//
// The stages are deliberately free of goroutines and locks of their own; the
// session controller serializes all calls into them.
package audio

import (
	"context"
)

// CaptureSource is the boundary to a platform audio capture implementation.
//
// A capture source produces [Chunk] values for both sources on its own
// schedule (tens of chunks per second) and keeps per-source signal levels
// up to date so the suppression gate can read them without buffering.
//
// Implementations must be safe for concurrent use.
type CaptureSource interface {
	// Start begins capture. Chunks become available on the Chunks channel
	// until Stop is called or the context is cancelled. Returns an error if
	// capture cannot begin; capture errors are fatal to the session.
	Start(ctx context.Context) error

	// Stop halts capture and closes the Chunks channel. Calling Stop more
	// than once is safe and returns nil.
	Stop() error

	// Chunks returns the channel on which captured audio is delivered.
	// Both sources' chunks arrive on the same channel, each ordered within
	// its source. The channel is closed when capture stops.
	Chunks() <-chan Chunk

	// LocalLevel returns the current smoothed signal level of the local
	// microphone in [0, 1].
	LocalLevel() float64

	// RemoteLevel returns the current smoothed signal level of the
	// remote/system stream in [0, 1].
	RemoteLevel() float64
}
