// Package wav provides a file-backed [audio.CaptureSource] that replays two
// mono WAV recordings as the local and remote streams of a session.
//
// It exists for development and testing: a recorded meeting can be played
// through the full pipeline without live capture hardware. Chunks are emitted
// at the configured cadence with real-time pacing, and a [audio.LevelMeter]
// is fed per chunk so the suppression gate sees realistic levels.
package wav

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/tomlidgett1/duplexscribe/pkg/audio"
)

// header is the canonical 44-byte WAV header layout.
type header struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32
	AudioFormat   uint16 // 1 for PCM
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32
}

// Decode parses a 16-bit mono PCM WAV file and returns the raw sample bytes
// and sample rate.
func Decode(data []byte) ([]byte, int, error) {
	if len(data) < 44 {
		return nil, 0, fmt.Errorf("wav: data too short: need at least 44 bytes, got %d", len(data))
	}

	var h header
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &h); err != nil {
		return nil, 0, fmt.Errorf("wav: read header: %w", err)
	}

	if string(h.ChunkID[:]) != "RIFF" || string(h.Format[:]) != "WAVE" {
		return nil, 0, errors.New("wav: not a RIFF/WAVE file")
	}
	if string(h.Subchunk1ID[:]) != "fmt " || string(h.Subchunk2ID[:]) != "data" {
		return nil, 0, errors.New("wav: missing fmt or data chunk")
	}
	if h.AudioFormat != 1 {
		return nil, 0, fmt.Errorf("wav: unsupported audio format %d (only PCM)", h.AudioFormat)
	}
	if h.BitsPerSample != 16 {
		return nil, 0, fmt.Errorf("wav: unsupported bit depth %d (only 16-bit)", h.BitsPerSample)
	}
	if h.NumChannels != 1 {
		return nil, 0, fmt.Errorf("wav: unsupported channel count %d (only mono)", h.NumChannels)
	}

	n := int(h.Subchunk2Size)
	if n <= 0 || 44+n > len(data) {
		n = len(data) - 44
	}
	return data[44 : 44+n], int(h.SampleRate), nil
}

// Encode wraps raw 16-bit mono PCM bytes in a WAV header.
func Encode(pcm []byte, sampleRate int) ([]byte, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("wav: sample rate must be positive, got %d", sampleRate)
	}
	h := header{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     uint32(36 + len(pcm)),
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1,
		NumChannels:   1,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate) * 2,
		BlockAlign:    2,
		BitsPerSample: 16,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: uint32(len(pcm)),
	}
	buf := bytes.NewBuffer(make([]byte, 0, 44+len(pcm)))
	if err := binary.Write(buf, binary.LittleEndian, h); err != nil {
		return nil, fmt.Errorf("wav: write header: %w", err)
	}
	buf.Write(pcm)
	return buf.Bytes(), nil
}

// Option is a functional option for configuring a [CaptureSource].
type Option func(*CaptureSource)

// WithCadence sets the chunk emission cadence. Default: audio.DefaultCadence.
func WithCadence(d time.Duration) Option {
	return func(c *CaptureSource) {
		if d > 0 {
			c.cadence = d
		}
	}
}

// WithRealTime controls whether replay is paced to wall-clock time. When
// false, chunks are emitted as fast as the consumer accepts them, which is
// what tests want.
func WithRealTime(rt bool) Option {
	return func(c *CaptureSource) {
		c.realTime = rt
	}
}

// CaptureSource replays two mono WAV files as a dual-channel capture source.
// It implements [audio.CaptureSource].
type CaptureSource struct {
	format   audio.Format
	cadence  time.Duration
	realTime bool

	localPCM  []byte
	remotePCM []byte

	meter  *audio.LevelMeter
	chunks chan audio.Chunk

	stopOnce sync.Once
	stopped  chan struct{}
	wg       sync.WaitGroup
}

// New creates a capture source replaying localPath and remotePath. Both files
// must be 16-bit mono PCM WAV at format.SampleRate. Either path may be empty,
// in which case that side stays silent for the whole replay.
func New(format audio.Format, localPath, remotePath string, opts ...Option) (*CaptureSource, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}

	c := &CaptureSource{
		format:   format,
		cadence:  audio.DefaultCadence,
		realTime: true,
		meter:    audio.NewLevelMeter(0),
		chunks:   make(chan audio.Chunk, 64),
		stopped:  make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}

	var err error
	if c.localPCM, err = loadSide(localPath, format.SampleRate); err != nil {
		return nil, fmt.Errorf("wav: local: %w", err)
	}
	if c.remotePCM, err = loadSide(remotePath, format.SampleRate); err != nil {
		return nil, fmt.Errorf("wav: remote: %w", err)
	}
	if c.localPCM == nil && c.remotePCM == nil {
		return nil, errors.New("wav: at least one of local and remote paths is required")
	}
	return c, nil
}

func loadSide(path string, wantRate int) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	pcm, rate, err := Decode(data)
	if err != nil {
		return nil, err
	}
	if rate != wantRate {
		return nil, fmt.Errorf("sample rate %d does not match configured %d", rate, wantRate)
	}
	return pcm, nil
}

// Start begins replay in a background goroutine.
func (c *CaptureSource) Start(ctx context.Context) error {
	c.wg.Add(1)
	go c.replay(ctx)
	return nil
}

// Stop halts replay and waits for the chunk channel to close. Safe to call
// more than once and after replay has already ended naturally.
func (c *CaptureSource) Stop() error {
	c.stopOnce.Do(func() {
		close(c.stopped)
	})
	c.wg.Wait()
	return nil
}

// Chunks returns the channel on which replayed audio is delivered.
func (c *CaptureSource) Chunks() <-chan audio.Chunk { return c.chunks }

// LocalLevel returns the current smoothed local signal level.
func (c *CaptureSource) LocalLevel() float64 { return c.meter.Level(audio.SourceLocal) }

// RemoteLevel returns the current smoothed remote signal level.
func (c *CaptureSource) RemoteLevel() float64 { return c.meter.Level(audio.SourceRemote) }

// replay walks both PCM buffers in cadence-sized steps, emitting one chunk
// per source per step until both are exhausted or the source is stopped.
// The chunk channel closes when replay ends for any reason, signalling the
// natural end of the session to the consumer.
func (c *CaptureSource) replay(ctx context.Context) {
	defer c.wg.Done()
	defer close(c.chunks)

	step := c.format.SamplesPerCadence(c.cadence) * c.format.BytesPerSample()
	var ticker *time.Ticker
	if c.realTime {
		ticker = time.NewTicker(c.cadence)
		defer ticker.Stop()
	}

	for offset := 0; offset < len(c.localPCM) || offset < len(c.remotePCM); offset += step {
		if c.realTime {
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			case <-c.stopped:
				return
			}
		}

		now := time.Now()
		if chunk := slice(c.localPCM, offset, step); chunk != nil {
			c.meter.Update(audio.SourceLocal, chunk)
			if !c.deliver(ctx, audio.Chunk{Source: audio.SourceLocal, PCM: chunk, Timestamp: now}) {
				return
			}
		}
		if chunk := slice(c.remotePCM, offset, step); chunk != nil {
			c.meter.Update(audio.SourceRemote, chunk)
			if !c.deliver(ctx, audio.Chunk{Source: audio.SourceRemote, PCM: chunk, Timestamp: now}) {
				return
			}
		}
	}
}

func (c *CaptureSource) deliver(ctx context.Context, chunk audio.Chunk) bool {
	select {
	case c.chunks <- chunk:
		return true
	case <-ctx.Done():
		return false
	case <-c.stopped:
		return false
	}
}

// slice returns the step-sized window of pcm at offset, or nil when offset
// is past the end of the buffer.
func slice(pcm []byte, offset, step int) []byte {
	if offset >= len(pcm) {
		return nil
	}
	end := offset + step
	if end > len(pcm) {
		end = len(pcm)
	}
	return pcm[offset:end]
}

// Ensure CaptureSource implements audio.CaptureSource at compile time.
var _ audio.CaptureSource = (*CaptureSource)(nil)
