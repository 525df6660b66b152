// Package session implements the duplexscribe recording pipeline: gating and
// interleaving of the two capture streams, the managed transcription
// connection, and the assembly and reconciliation of recognition results
// into a live transcript.
//
// All pipeline state is owned by a single event-loop goroutine inside
// [Controller.Run]. The interleaver, assembler, and reconciler are not
// thread-safe on their own and rely on that serialization; the capture
// source and the connection communicate with the loop over channels only,
// which makes the data-flow graph explicit in the wiring below.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/tomlidgett1/duplexscribe/internal/observe"
	"github.com/tomlidgett1/duplexscribe/pkg/audio"
	"github.com/tomlidgett1/duplexscribe/pkg/provider/stt"
)

// Config holds the per-deployment pipeline settings.
type Config struct {
	// Format is the shared PCM format of both sources and the mux.
	Format audio.Format

	// Cadence is the multiplexed frame emission interval. Defaults to
	// audio.DefaultCadence if zero.
	Cadence time.Duration

	// BacklogLimit bounds audio queued while the connection is being
	// established. Defaults to 30s if zero.
	BacklogLimit time.Duration

	// Language and Model are passed through to the STT provider.
	Language string
	Model    string

	// PriorityWindow and HoldWindow tune the interim reconciler. Zero
	// selects the defaults.
	PriorityWindow time.Duration
	HoldWindow     time.Duration

	// Gate is the suppression gate tuning. The zero value selects the
	// package defaults.
	Gate audio.Gate
}

// Controller owns one recording session end to end. Create one per session
// with [New], run it with [Controller.Run], and discard it afterwards — no
// session state outlives the controller.
type Controller struct {
	cfg     Config
	capture audio.CaptureSource
	conn    *Conn
	sink    Sink
	logger  *slog.Logger
	metrics *observe.Metrics

	st          *state
	interleaver *audio.Interleaver
	assembler   *Assembler
	reconciler  *Reconciler
}

// New wires a session pipeline from its collaborators. All collaborators
// are injected at construction; none may be nil except metrics and logger.
func New(cfg Config, capture audio.CaptureSource, provider stt.Provider, sink Sink, metrics *observe.Metrics, logger *slog.Logger, reconcilerOpts ...ReconcilerOption) (*Controller, error) {
	if err := cfg.Format.Validate(); err != nil {
		return nil, err
	}
	if capture == nil || provider == nil || sink == nil {
		return nil, fmt.Errorf("session: capture, provider, and sink are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Cadence <= 0 {
		cfg.Cadence = audio.DefaultCadence
	}
	if cfg.Gate == (audio.Gate{}) {
		cfg.Gate = audio.NewGate(0, 0, 0)
	}

	opts := make([]ReconcilerOption, 0, 3)
	if cfg.PriorityWindow > 0 {
		opts = append(opts, WithPriorityWindow(cfg.PriorityWindow))
	}
	if cfg.HoldWindow > 0 {
		opts = append(opts, WithHoldWindow(cfg.HoldWindow))
	}
	opts = append(opts, reconcilerOpts...)

	st := newState()

	bytesPerSecond := cfg.Format.SampleRate * cfg.Format.MuxChannels * cfg.Format.BytesPerSample()
	conn := NewConn(ConnConfig{
		Provider: provider,
		Stream: stt.StreamConfig{
			SampleRate: cfg.Format.SampleRate,
			Channels:   cfg.Format.MuxChannels,
			Language:   cfg.Language,
			Model:      cfg.Model,
		},
		BacklogLimit:   cfg.BacklogLimit,
		BytesPerSecond: bytesPerSecond,
		Logger:         logger,
		Metrics:        metrics,
	})

	c := &Controller{
		cfg:        cfg,
		capture:    capture,
		conn:       conn,
		sink:       sink,
		logger:     logger,
		metrics:    metrics,
		st:         st,
		assembler:  NewAssembler(st, sink, metrics, logger),
		reconciler: NewReconciler(st, sink, metrics, logger, opts...),
	}
	c.interleaver = audio.NewInterleaver(cfg.Format, cfg.Cadence, c.onFrame)
	return c, nil
}

// ConnState reports the current transcription connection state. Safe to
// call from other goroutines, e.g. readiness probes.
func (c *Controller) ConnState() ConnState {
	return c.conn.State()
}

// onFrame forwards one completed multiplexed frame to the connection.
func (c *Controller) onFrame(frame []byte) {
	if c.metrics != nil {
		c.metrics.FramesInterleaved.Add(context.Background(), 1)
	}
	c.conn.Send(frame)
}

// Run executes the session until ctx is cancelled or the capture source
// ends. It returns the capture start error if recording could not begin;
// connection failures merely degrade the session to recording without live
// transcription.
//
// On exit, teardown is ordered so that no audio arrives at a half-torn-down
// pipeline and no buffered speech is lost: capture stops first, pending
// buffers are flushed synchronously, the connection is disconnected, and
// all in-memory state is cleared.
func (c *Controller) Run(ctx context.Context) error {
	c.sink.Clear()
	c.st.reset()
	c.interleaver.Start()

	if err := c.capture.Start(ctx); err != nil {
		c.interleaver.Stop()
		return fmt.Errorf("session: start capture: %w", err)
	}
	c.logger.Info("session started",
		"sample_rate", c.cfg.Format.SampleRate,
		"cadence", c.cfg.Cadence,
	)

	// Connect is the only operation that awaits external I/O, so it runs
	// off the event loop; audio sent meanwhile lands in the backlog.
	go func() {
		if err := c.conn.Connect(ctx); err != nil {
			c.logger.Warn("transcription unavailable, recording continues", "err", err)
		}
	}()

	chunks := c.capture.Chunks()
	var runErr error

loop:
	for {
		select {
		case <-ctx.Done():
			runErr = ctx.Err()
			break loop

		case chunk, ok := <-chunks:
			if !ok {
				// Capture source ended (e.g. replay finished).
				break loop
			}
			c.handleChunk(chunk)

		case r, ok := <-c.conn.Results():
			if !ok {
				break loop
			}
			c.handleResult(r)

		case e, ok := <-c.conn.VAD():
			if !ok {
				break loop
			}
			c.handleVAD(e)
		}
	}

	c.shutdown()
	return runErr
}

// handleChunk gates local audio and feeds the interleaver. Suppressed
// chunks are dropped outright; there is no replay path for denied audio.
func (c *Controller) handleChunk(chunk audio.Chunk) {
	switch chunk.Source {
	case audio.SourceLocal:
		if c.cfg.Gate.ShouldSuppress(c.capture.LocalLevel(), c.capture.RemoteLevel()) {
			if c.metrics != nil {
				c.metrics.ChunksSuppressed.Add(context.Background(), 1)
			}
			return
		}
		c.interleaver.AppendLocal(chunk.PCM)
	case audio.SourceRemote:
		c.interleaver.AppendRemote(chunk.PCM)
	}
}

// handleResult routes a recognition result to the assembler or reconciler.
func (c *Controller) handleResult(r stt.Result) {
	if c.metrics != nil {
		c.metrics.ResultsReceived.Add(context.Background(), 1,
			metric.WithAttributes(
				attribute.String("source", r.Source.String()),
				attribute.Bool("final", r.IsFinal),
			))
	}
	if r.IsFinal {
		c.assembler.AddFinal(r)
		// The final cleared this source's interim; re-evaluate the display.
		c.reconciler.Refresh()
		return
	}
	c.reconciler.HandleInterim(r)
}

// handleVAD applies connection-wide voice activity boundaries. SpeechEnded
// is not source-specific, so it conservatively closes both sources' open
// utterances.
func (c *Controller) handleVAD(e stt.VADEvent) {
	switch e.Type {
	case stt.SpeechEnded:
		c.assembler.FlushAll()
		c.reconciler.Refresh()
	case stt.SpeechStarted:
		c.logger.Debug("speech started", "at", e.Timestamp)
	}
}

// shutdown tears the session down in order: capture, flush, disconnect,
// clear. The flush completes before any connection resource is released.
func (c *Controller) shutdown() {
	if err := c.capture.Stop(); err != nil {
		c.logger.Warn("stop capture", "err", err)
	}

	// Forward audio already captured before the stop, then discard any
	// partial frame: it cannot be decoded downstream.
	for chunk := range c.capture.Chunks() {
		c.handleChunk(chunk)
	}
	c.interleaver.Stop()

	// Commit results the provider already delivered, then flush whatever
	// speech is still buffered so none of it is silently lost.
	c.drainResults()
	c.assembler.FlushAll()

	if err := c.conn.Disconnect(); err != nil {
		c.logger.Warn("disconnect", "err", err)
	}

	c.sink.UpdateInterim(nil)
	c.st.reset()
	c.logger.Info("session stopped")
}

// drainResults consumes all immediately available recognition results
// without blocking on the provider.
func (c *Controller) drainResults() {
	for {
		select {
		case r, ok := <-c.conn.Results():
			if !ok {
				return
			}
			c.handleResult(r)
		default:
			return
		}
	}
}
