package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tomlidgett1/duplexscribe/internal/observe"
	"github.com/tomlidgett1/duplexscribe/pkg/provider/stt"
)

// DefaultBacklogLimit bounds how much audio is queued while the connection
// is being (re)established. Once exceeded, the oldest queued audio is
// dropped rather than growing the backlog without bound.
const DefaultBacklogLimit = 30 * time.Second

// ConnState is the lifecycle state of a [Conn].
type ConnState int

const (
	// StateDisconnected means no stream is open and none is being opened.
	StateDisconnected ConnState = iota

	// StateConnecting means the initial stream is being established.
	StateConnecting

	// StateConnected means audio is flowing to the provider.
	StateConnected

	// StateReconnecting means a stream is being re-established after a
	// previous one was lost or torn down.
	StateReconnecting
)

// String returns the human-readable name of the state.
func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// Conn is a stateful transcription connection wrapping an [stt.Provider]
// stream. It accepts multiplexed audio frames and asynchronously emits
// recognition results and voice-activity events on its own channels.
//
// Audio sent before the stream is established is queued up to a bounded
// backlog duration and flushed once connected; beyond the bound the oldest
// queued audio is discarded. Send is non-blocking and fire-and-forget: send
// failures are logged, never surfaced to the caller. Losing the stream
// mid-session degrades the pipeline to recording-without-transcription; the
// connection is retried only on the next explicit Connect.
//
// All methods are safe for concurrent use.
type Conn struct {
	provider   stt.Provider
	cfg        stt.StreamConfig
	maxBacklog int // bytes
	logger     *slog.Logger
	metrics    *observe.Metrics

	mu           sync.Mutex
	state        ConnState
	stream       stt.Stream
	backlog      [][]byte
	backlogBytes int
	everOpened   bool

	results chan stt.Result
	vad     chan stt.VADEvent

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// ConnConfig configures a [Conn].
type ConnConfig struct {
	// Provider opens the underlying STT stream.
	Provider stt.Provider

	// Stream is the recognition configuration passed to the provider.
	Stream stt.StreamConfig

	// BacklogLimit bounds queued audio by duration while disconnected.
	// Defaults to 30s if zero.
	BacklogLimit time.Duration

	// BytesPerSecond is the data rate of the multiplexed stream, used to
	// convert BacklogLimit into a byte bound. Required.
	BytesPerSecond int

	// Logger receives connection lifecycle and send-failure logs. A nil
	// logger selects slog.Default.
	Logger *slog.Logger

	// Metrics receives connection telemetry. May be nil.
	Metrics *observe.Metrics
}

// NewConn creates a connection in the disconnected state. No network
// activity happens until Connect is called.
func NewConn(cfg ConnConfig) *Conn {
	limit := cfg.BacklogLimit
	if limit <= 0 {
		limit = DefaultBacklogLimit
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Conn{
		provider:   cfg.Provider,
		cfg:        cfg.Stream,
		maxBacklog: int(limit.Seconds() * float64(cfg.BytesPerSecond)),
		logger:     logger,
		metrics:    cfg.Metrics,
		results:    make(chan stt.Result, 64),
		vad:        make(chan stt.VADEvent, 16),
		done:       make(chan struct{}),
	}
}

// State returns the current connection state.
func (c *Conn) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected reports whether audio is currently flowing to the provider.
func (c *Conn) IsConnected() bool {
	return c.State() == StateConnected
}

// Results returns the channel of recognition results. It stays open for the
// lifetime of the Conn, across stream loss, and is closed by Disconnect.
func (c *Conn) Results() <-chan stt.Result { return c.results }

// VAD returns the channel of voice-activity events. It stays open for the
// lifetime of the Conn and is closed by Disconnect.
func (c *Conn) VAD() <-chan stt.VADEvent { return c.vad }

// Connect establishes the provider stream. It blocks on network I/O and may
// be called from its own goroutine; audio sent meanwhile is queued up to the
// backlog bound and flushed once the stream is up.
//
// Calling Connect while a stream is open or being opened returns an error.
func (c *Conn) Connect(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateConnecting, StateReconnecting:
		c.mu.Unlock()
		return fmt.Errorf("session: connect already in progress")
	case StateConnected:
		c.mu.Unlock()
		return fmt.Errorf("session: already connected")
	}
	if c.everOpened {
		c.state = StateReconnecting
	} else {
		c.state = StateConnecting
	}
	c.mu.Unlock()

	stream, err := c.provider.StartStream(ctx, c.cfg)
	if err != nil {
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()
		return fmt.Errorf("session: connect: %w", err)
	}

	c.mu.Lock()
	select {
	case <-c.done:
		// Disconnect raced the dial; tear the fresh stream down.
		c.mu.Unlock()
		_ = stream.Close()
		return fmt.Errorf("session: connection closed during connect")
	default:
	}
	c.stream = stream
	c.state = StateConnected
	c.everOpened = true
	queued := c.backlog
	c.backlog = nil
	c.backlogBytes = 0
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.ConnectionsActive.Add(context.Background(), 1)
	}
	c.logger.Info("transcription connected", "queued_frames", len(queued))

	// Flush the backlog in order before any new audio.
	for _, frame := range queued {
		if err := stream.SendAudio(frame); err != nil {
			c.logger.Warn("backlog flush send failed", "err", err)
			break
		}
	}

	c.wg.Add(2)
	go c.forwardResults(stream)
	go c.forwardVAD(stream)

	return nil
}

// Send delivers one multiplexed frame. It never blocks and never returns an
// error: while connecting the frame is queued (bounded, drop-oldest), while
// connected a send failure is logged, and while disconnected the frame is
// dropped — the session keeps recording without live transcription.
func (c *Conn) Send(frame []byte) {
	c.mu.Lock()
	switch c.state {
	case StateConnected:
		stream := c.stream
		c.mu.Unlock()
		if err := stream.SendAudio(frame); err != nil {
			c.logger.Warn("send audio failed", "err", err)
			if c.metrics != nil {
				c.metrics.SendErrors.Add(context.Background(), 1)
			}
		}

	case StateConnecting, StateReconnecting:
		cp := make([]byte, len(frame))
		copy(cp, frame)
		c.backlog = append(c.backlog, cp)
		c.backlogBytes += len(cp)
		var dropped int
		for c.backlogBytes > c.maxBacklog && len(c.backlog) > 1 {
			dropped += len(c.backlog[0])
			c.backlogBytes -= len(c.backlog[0])
			c.backlog = c.backlog[1:]
		}
		c.mu.Unlock()
		if dropped > 0 {
			c.logger.Debug("backlog overflow, dropped oldest audio", "bytes", dropped)
			if c.metrics != nil {
				c.metrics.BacklogDropped.Add(context.Background(), int64(dropped))
			}
		}

	default:
		c.mu.Unlock()
	}
}

// Disconnect tears down the stream, discards any queued backlog, and closes
// the Results and VAD channels. Safe to call more than once.
func (c *Conn) Disconnect() error {
	c.stopOnce.Do(func() {
		close(c.done)

		c.mu.Lock()
		stream := c.stream
		wasConnected := c.state == StateConnected
		c.stream = nil
		c.state = StateDisconnected
		c.backlog = nil
		c.backlogBytes = 0
		c.mu.Unlock()

		if stream != nil {
			_ = stream.Close()
		}
		c.wg.Wait()
		close(c.results)
		close(c.vad)

		if wasConnected && c.metrics != nil {
			c.metrics.ConnectionsActive.Add(context.Background(), -1)
		}
	})
	return nil
}

// forwardResults pipes stream results onto the Conn-owned channel. When the
// stream's channel closes mid-session, the connection degrades.
func (c *Conn) forwardResults(stream stt.Stream) {
	defer c.wg.Done()
	for r := range stream.Results() {
		select {
		case c.results <- r:
		case <-c.done:
			return
		}
	}
	c.streamLost(stream)
}

// forwardVAD pipes stream VAD events onto the Conn-owned channel.
func (c *Conn) forwardVAD(stream stt.Stream) {
	defer c.wg.Done()
	for e := range stream.VAD() {
		select {
		case c.vad <- e:
		case <-c.done:
			return
		}
	}
}

// streamLost transitions connected → disconnected when the provider stream
// dies underneath us. The session continues recording; transcription resumes
// only on the next explicit Connect.
func (c *Conn) streamLost(stream stt.Stream) {
	select {
	case <-c.done:
		return
	default:
	}

	c.mu.Lock()
	if c.state != StateConnected || c.stream != stream {
		c.mu.Unlock()
		return
	}
	c.stream = nil
	c.state = StateDisconnected
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.ConnectionsActive.Add(context.Background(), -1)
	}
	c.logger.Warn("transcription connection lost; continuing without live transcription")
}
