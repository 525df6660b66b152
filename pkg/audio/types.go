package audio

import (
	"fmt"
	"time"
)

// Source identifies which physical stream a chunk or recognition result
// belongs to.
type Source int

const (
	// SourceLocal is the local microphone.
	SourceLocal Source = iota

	// SourceRemote is the remote/system audio stream (the other party's
	// audio as played through the machine).
	SourceRemote
)

// String returns the human-readable name of the source.
func (s Source) String() string {
	switch s {
	case SourceLocal:
		return "local"
	case SourceRemote:
		return "remote"
	default:
		return "unknown"
	}
}

// Chunk is a single buffer of raw PCM audio captured from one source.
// Chunks are the atomic unit of audio transport between the capture source
// and the pipeline.
type Chunk struct {
	// Source identifies which stream produced this chunk.
	Source Source

	// PCM is raw little-endian signed 16-bit mono audio at the pipeline's
	// configured sample rate.
	PCM []byte

	// Timestamp marks when this chunk was captured.
	Timestamp time.Time
}

// Format describes the fixed PCM audio format shared by both capture sources
// and the multiplexed stream sent to the transcription provider.
type Format struct {
	// SampleRate in Hz (e.g., 16000).
	SampleRate int

	// BitDepth in bits per sample. Only 16 is supported.
	BitDepth int

	// SourceChannels is the channel count of each capture source. Only mono
	// sources are supported.
	SourceChannels int

	// MuxChannels is the channel count of the multiplexed stream. Always 2:
	// channel 0 carries local audio, channel 1 carries remote audio.
	MuxChannels int
}

// DefaultFormat is the format used when the configuration does not override it.
var DefaultFormat = Format{
	SampleRate:     16000,
	BitDepth:       16,
	SourceChannels: 1,
	MuxChannels:    2,
}

// Validate reports whether f is a format the pipeline can process.
func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("audio: sample rate must be positive, got %d", f.SampleRate)
	}
	if f.BitDepth != 16 {
		return fmt.Errorf("audio: bit depth must be 16, got %d", f.BitDepth)
	}
	if f.SourceChannels != 1 {
		return fmt.Errorf("audio: source channels must be 1 (mono), got %d", f.SourceChannels)
	}
	if f.MuxChannels != 2 {
		return fmt.Errorf("audio: mux channels must be 2, got %d", f.MuxChannels)
	}
	return nil
}

// BytesPerSample returns the byte width of a single sample.
func (f Format) BytesPerSample() int {
	return f.BitDepth / 8
}

// SamplesPerCadence returns the number of mono samples each source
// contributes to one multiplexed frame at the given cadence.
func (f Format) SamplesPerCadence(cadence time.Duration) int {
	return int(int64(f.SampleRate) * int64(cadence) / int64(time.Second))
}
