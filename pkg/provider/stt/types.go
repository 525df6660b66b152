package stt

import (
	"time"

	"github.com/tomlidgett1/duplexscribe/pkg/audio"
)

// Result represents a recognition result from an STT provider. Both interim
// (revisable) and final (settled) results use this type.
type Result struct {
	// Text is the transcribed speech content.
	Text string

	// Source identifies which channel of the multiplexed stream produced
	// this result (channel 0 = local, channel 1 = remote).
	Source audio.Source

	// Start is the offset of the first recognised word, relative to stream
	// start.
	Start time.Duration

	// End is the offset of the last recognised word, relative to stream
	// start.
	End time.Duration

	// Confidence is the provider's confidence score (0.0–1.0). May be zero
	// if the provider does not report confidence.
	Confidence float64

	// IsFinal marks a committed fragment of speech, no longer subject to
	// revision. Final fragments are not necessarily utterance-ending.
	IsFinal bool

	// IsBoundary marks that this fragment additionally closes the utterance
	// in progress: no more text is expected until the next speech begins.
	// Only meaningful when IsFinal is true.
	IsBoundary bool
}

// VADEventType enumerates connection-wide voice activity signals.
type VADEventType int

const (
	// SpeechStarted indicates speech was detected somewhere in the
	// multiplexed stream.
	SpeechStarted VADEventType = iota

	// SpeechEnded indicates silence was detected across the whole
	// multiplexed stream. It is not source-specific and conservatively
	// closes all open utterances.
	SpeechEnded
)

// String returns the human-readable name of the event type.
func (t VADEventType) String() string {
	switch t {
	case SpeechStarted:
		return "SPEECH_STARTED"
	case SpeechEnded:
		return "SPEECH_ENDED"
	default:
		return "UNKNOWN"
	}
}

// VADEvent is a connection-wide voice activity boundary signal emitted by
// the provider alongside recognition results.
type VADEvent struct {
	// Type is the activity transition detected.
	Type VADEventType

	// Timestamp is the offset of the transition, relative to stream start.
	// May be zero if the provider does not report it.
	Timestamp time.Duration
}
