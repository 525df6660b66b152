package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tomlidgett1/duplexscribe/pkg/audio"
	audiomock "github.com/tomlidgett1/duplexscribe/pkg/audio/mock"
	"github.com/tomlidgett1/duplexscribe/pkg/provider/stt"
	sttmock "github.com/tomlidgett1/duplexscribe/pkg/provider/stt/mock"
)

// cadencePCM is one 10ms cadence of audio at 16kHz: 160 samples.
func cadencePCM() []byte {
	return make([]byte, 320)
}

type controllerFixture struct {
	capture *audiomock.CaptureSource
	stream  *sttmock.Stream
	sink    *recordSink
	ctrl    *Controller
	done    chan error
}

func newControllerFixture(t *testing.T) *controllerFixture {
	t.Helper()

	f := &controllerFixture{
		capture: audiomock.NewCaptureSource(),
		stream: &sttmock.Stream{
			ResultsCh: make(chan stt.Result, 16),
			VADCh:     make(chan stt.VADEvent, 16),
		},
		sink: &recordSink{},
		done: make(chan error, 1),
	}

	ctrl, err := New(Config{
		Format:  audio.DefaultFormat,
		Cadence: 10 * time.Millisecond,
	}, f.capture, &sttmock.Provider{Stream: f.stream}, f.sink, nil, quietLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	f.ctrl = ctrl
	return f
}

// run starts the session and waits for the connection to come up so tests
// can feed audio without racing the dial.
func (f *controllerFixture) run(t *testing.T, ctx context.Context) {
	t.Helper()
	go func() { f.done <- f.ctrl.Run(ctx) }()
	waitFor(t, func() bool { return f.ctrl.ConnState() == StateConnected }, "never connected")
}

// stopAndWait ends the session via the capture source and returns Run's error.
func (f *controllerFixture) stopAndWait(t *testing.T) error {
	t.Helper()
	_ = f.capture.Stop()
	select {
	case err := <-f.done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after capture stop")
		return nil
	}
}

func TestController_EndToEndUtterance(t *testing.T) {
	t.Parallel()

	f := newControllerFixture(t)
	f.capture.SetLevels(0.5, 0)
	f.run(t, context.Background())

	// One cadence of remote audio becomes one multiplexed frame.
	f.capture.Emit(audio.Chunk{Source: audio.SourceRemote, PCM: cadencePCM()})
	waitFor(t, func() bool { return f.stream.SendAudioCallCount() >= 1 }, "frame never sent")

	// An interim surfaces as the live preview.
	f.stream.ResultsCh <- stt.Result{Text: "hello th", Source: audio.SourceRemote}
	waitFor(t, func() bool {
		p, ok := f.sink.LastInterim()
		return ok && p != nil && p.Text == "hello th"
	}, "interim preview never displayed")

	// The closing final commits the utterance.
	f.stream.ResultsCh <- stt.Result{
		Text: "hello there", Source: audio.SourceRemote,
		Start: 0, End: 2 * time.Second, Confidence: 0.9,
		IsFinal: true, IsBoundary: true,
	}
	waitFor(t, func() bool { return f.sink.FinalCount() == 1 }, "utterance never committed")

	if err := f.stopAndWait(t); err != nil {
		t.Fatalf("Run: %v", err)
	}

	finals := f.sink.Finals()
	if finals[0].Text != "hello there" {
		t.Errorf("utterance = %q, want %q", finals[0].Text, "hello there")
	}
	if finals[0].Source != audio.SourceRemote {
		t.Errorf("source = %v, want remote", finals[0].Source)
	}
	if f.stream.CloseCallCount == 0 {
		t.Error("stream must be closed on session stop")
	}
	if p, ok := f.sink.LastInterim(); !ok || p != nil {
		t.Error("display must be cleared after session stop")
	}
}

func TestController_SuppressesGatedLocalAudio(t *testing.T) {
	t.Parallel()

	f := newControllerFixture(t)
	f.run(t, context.Background())

	// Quiet local voice while the remote is talking: the gate drops the
	// local chunk, so the frame triggered by the remote chunk carries
	// silence on channel 0.
	f.capture.SetLevels(0.10, 0.20)
	localPCM := cadencePCM()
	for i := 0; i < len(localPCM); i += 2 {
		localPCM[i] = 7
	}
	f.capture.Emit(audio.Chunk{Source: audio.SourceLocal, PCM: localPCM})
	f.capture.Emit(audio.Chunk{Source: audio.SourceRemote, PCM: cadencePCM()})
	waitFor(t, func() bool { return f.stream.SendAudioCallCount() >= 1 }, "frame never sent")

	frame := f.stream.SendAudioCalls[0].Frame
	for i := 0; i < len(frame); i += 4 {
		if frame[i] != 0 || frame[i+1] != 0 {
			t.Fatalf("channel 0 byte pair at %d = [%d %d], want silence for the suppressed chunk", i, frame[i], frame[i+1])
		}
	}
	if err := f.stopAndWait(t); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestController_SpeechEndedFlushesPendingBuffers(t *testing.T) {
	t.Parallel()

	f := newControllerFixture(t)
	f.run(t, context.Background())

	// Finals without a boundary accumulate.
	f.stream.ResultsCh <- stt.Result{Text: "see you", Source: audio.SourceLocal, IsFinal: true}
	f.stream.ResultsCh <- stt.Result{Text: "tomorrow", Source: audio.SourceLocal, IsFinal: true}
	f.stream.VADCh <- stt.VADEvent{Type: stt.SpeechEnded}

	waitFor(t, func() bool { return f.sink.FinalCount() == 1 }, "speech end never flushed")

	if got := f.sink.Finals()[0].Text; got != "see you tomorrow" {
		t.Errorf("utterance = %q, want %q", got, "see you tomorrow")
	}
	if err := f.stopAndWait(t); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestController_StopFlushesBufferedSpeech(t *testing.T) {
	t.Parallel()

	f := newControllerFixture(t)
	f.run(t, context.Background())

	f.stream.ResultsCh <- stt.Result{Text: "unfinished thought", Source: audio.SourceLocal, IsFinal: true}
	// A follow-up interim shows the buffered final in its preview, which
	// confirms the final was processed before we stop.
	f.stream.ResultsCh <- stt.Result{Text: "still going", Source: audio.SourceLocal}
	waitFor(t, func() bool {
		p, ok := f.sink.LastInterim()
		return ok && p != nil && p.Text == "unfinished thought still going"
	}, "final never buffered")

	if err := f.stopAndWait(t); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if f.sink.FinalCount() != 1 {
		t.Fatal("buffered speech must be flushed on stop, not dropped")
	}
	if got := f.sink.Finals()[0].Text; got != "unfinished thought" {
		t.Errorf("utterance = %q, want %q: the interim is provisional and must not be committed", got, "unfinished thought")
	}
}

func TestController_CaptureStartFailureIsFatal(t *testing.T) {
	t.Parallel()

	capture := audiomock.NewCaptureSource()
	capture.StartErr = errors.New("no audio device")

	ctrl, err := New(Config{Format: audio.DefaultFormat},
		capture, &sttmock.Provider{}, &recordSink{}, nil, quietLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := ctrl.Run(context.Background()); err == nil {
		t.Fatal("Run must fail when capture cannot start")
	}
}

func TestController_ConnectFailureDegradesToRecording(t *testing.T) {
	t.Parallel()

	capture := audiomock.NewCaptureSource()
	sink := &recordSink{}
	ctrl, err := New(Config{Format: audio.DefaultFormat, Cadence: 10 * time.Millisecond},
		capture, &sttmock.Provider{StartStreamErr: errors.New("dial refused")}, sink, nil, quietLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- ctrl.Run(context.Background()) }()

	// The session keeps accepting audio with no transcription connection.
	capture.Emit(audio.Chunk{Source: audio.SourceLocal, PCM: cadencePCM()})
	_ = capture.Stop()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
}

func TestController_RequiresCollaborators(t *testing.T) {
	t.Parallel()

	_, err := New(Config{Format: audio.DefaultFormat}, nil, &sttmock.Provider{}, &recordSink{}, nil, quietLogger())
	if err == nil {
		t.Error("nil capture must be rejected")
	}
	_, err = New(Config{Format: audio.DefaultFormat}, audiomock.NewCaptureSource(), nil, &recordSink{}, nil, quietLogger())
	if err == nil {
		t.Error("nil provider must be rejected")
	}
	_, err = New(Config{Format: audio.DefaultFormat}, audiomock.NewCaptureSource(), &sttmock.Provider{}, nil, nil, quietLogger())
	if err == nil {
		t.Error("nil sink must be rejected")
	}
}
