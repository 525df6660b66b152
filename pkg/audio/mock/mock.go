// Package mock provides an in-memory mock implementation of the
// [audio.CaptureSource] interface for use in unit tests.
//
// The mock is safe for concurrent use. Tests push chunks via Emit and set
// the level values the suppression gate will observe.
//
// Typical usage:
//
//	src := mock.NewCaptureSource()
//	src.SetLevels(0.3, 0.05)
//	_ = src.Start(ctx)
//	src.Emit(audio.Chunk{Source: audio.SourceLocal, PCM: pcm})
package mock

import (
	"context"
	"math"
	"sync"
	"sync/atomic"

	"github.com/tomlidgett1/duplexscribe/pkg/audio"
)

// CaptureSource is a mock implementation of audio.CaptureSource.
type CaptureSource struct {
	// StartErr, if non-nil, is returned by Start.
	StartErr error

	// StopErr, if non-nil, is returned by the first Stop call.
	StopErr error

	chunks chan audio.Chunk

	localLevel  atomic.Uint64 // math.Float64bits
	remoteLevel atomic.Uint64

	mu         sync.Mutex
	started    bool
	stopOnce   sync.Once
	StartCalls int
	StopCalls  int
}

// NewCaptureSource creates a mock capture source with a buffered chunk channel.
func NewCaptureSource() *CaptureSource {
	return &CaptureSource{
		chunks: make(chan audio.Chunk, 64),
	}
}

// Start records the call and returns StartErr.
func (c *CaptureSource) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.StartCalls++
	if c.StartErr != nil {
		return c.StartErr
	}
	c.started = true
	return nil
}

// Stop records the call, closes the chunk channel once, and returns StopErr.
func (c *CaptureSource) Stop() error {
	c.mu.Lock()
	c.StopCalls++
	err := c.StopErr
	c.mu.Unlock()
	c.stopOnce.Do(func() {
		close(c.chunks)
	})
	return err
}

// Chunks returns the mock's chunk channel.
func (c *CaptureSource) Chunks() <-chan audio.Chunk { return c.chunks }

// LocalLevel returns the level set via SetLevels.
func (c *CaptureSource) LocalLevel() float64 {
	return math.Float64frombits(c.localLevel.Load())
}

// RemoteLevel returns the level set via SetLevels.
func (c *CaptureSource) RemoteLevel() float64 {
	return math.Float64frombits(c.remoteLevel.Load())
}

// SetLevels sets the signal levels observed by the suppression gate.
func (c *CaptureSource) SetLevels(local, remote float64) {
	c.localLevel.Store(math.Float64bits(local))
	c.remoteLevel.Store(math.Float64bits(remote))
}

// Emit delivers a chunk to the consumer. It panics if called after Stop,
// mirroring a real capture source misusing a torn-down pipeline.
func (c *CaptureSource) Emit(chunk audio.Chunk) {
	c.chunks <- chunk
}

// Ensure CaptureSource implements audio.CaptureSource at compile time.
var _ audio.CaptureSource = (*CaptureSource)(nil)
