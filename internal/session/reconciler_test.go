package session

import (
	"testing"
	"time"

	"github.com/tomlidgett1/duplexscribe/pkg/audio"
	"github.com/tomlidgett1/duplexscribe/pkg/provider/stt"
)

func newTestReconciler(opts ...ReconcilerOption) (*Reconciler, *state, *recordSink, *fakeClock) {
	st := newState()
	sink := &recordSink{}
	clock := newFakeClock()
	opts = append([]ReconcilerOption{WithClock(clock.Now)}, opts...)
	return NewReconciler(st, sink, nil, quietLogger(), opts...), st, sink, clock
}

func interimResult(source audio.Source, text string) stt.Result {
	return stt.Result{Text: text, Source: source}
}

func TestReconciler_DiscardsLocalEchoOfRemoteInterim(t *testing.T) {
	t.Parallel()

	r, st, sink, _ := newTestReconciler()
	r.HandleInterim(interimResult(audio.SourceRemote, "how are you doing today"))
	before := sink.InterimCount()

	// The microphone picked the same words back up from the speakers.
	r.HandleInterim(interimResult(audio.SourceLocal, "how are you doing today"))

	if _, ok := st.interims[audio.SourceLocal]; ok {
		t.Error("echoed local interim must be discarded, not stored")
	}
	if sink.InterimCount() != before {
		t.Error("echoed local interim must not change the display")
	}
}

func TestReconciler_DiscardsLocalEchoOfRecentRemoteFinal(t *testing.T) {
	t.Parallel()

	r, st, _, _ := newTestReconciler()
	st.pending[audio.SourceRemote] = []stt.Result{
		{Text: "let's sync tomorrow morning okay", Source: audio.SourceRemote, IsFinal: true},
	}

	r.HandleInterim(interimResult(audio.SourceLocal, "let's sync tomorrow morning"))

	if _, ok := st.interims[audio.SourceLocal]; ok {
		t.Error("local interim echoing a recent remote final must be discarded")
	}
}

func TestReconciler_UnrelatedLocalSpeechIsNotEcho(t *testing.T) {
	t.Parallel()

	r, st, _, _ := newTestReconciler()
	r.HandleInterim(interimResult(audio.SourceRemote, "no thanks"))
	r.HandleInterim(interimResult(audio.SourceLocal, "yes"))

	if _, ok := st.interims[audio.SourceLocal]; !ok {
		t.Error("unrelated local speech must be kept")
	}
}

func TestReconciler_PartialOverlapBelowThresholdIsKept(t *testing.T) {
	t.Parallel()

	r, st, _, _ := newTestReconciler()
	r.HandleInterim(interimResult(audio.SourceRemote, "the deployment failed last night"))
	// Shares two of five words; below the large-set threshold.
	r.HandleInterim(interimResult(audio.SourceLocal, "the night shift can look into it later"))

	if _, ok := st.interims[audio.SourceLocal]; !ok {
		t.Error("partially overlapping local speech must be kept")
	}
}

func TestReconciler_PreviewIncludesPendingFinals(t *testing.T) {
	t.Parallel()

	r, st, sink, _ := newTestReconciler()
	st.pending[audio.SourceLocal] = []stt.Result{
		{Text: "we should", Source: audio.SourceLocal, IsFinal: true},
	}

	r.HandleInterim(interimResult(audio.SourceLocal, "ship it"))

	p, ok := sink.LastInterim()
	if !ok || p == nil {
		t.Fatal("expected a preview update")
	}
	if p.Text != "we should ship it" {
		t.Errorf("preview = %q, want %q", p.Text, "we should ship it")
	}
	if p.Source != audio.SourceLocal {
		t.Errorf("preview source = %v, want local", p.Source)
	}
}

func TestReconciler_FreshRemoteOutranksLocal(t *testing.T) {
	t.Parallel()

	r, _, sink, clock := newTestReconciler()
	r.HandleInterim(interimResult(audio.SourceRemote, "remote words"))
	clock.Advance(400 * time.Millisecond)
	r.HandleInterim(interimResult(audio.SourceLocal, "local words"))

	p, ok := sink.LastInterim()
	if !ok || p == nil {
		t.Fatal("expected a preview")
	}
	if p.Source != audio.SourceRemote {
		t.Errorf("displayed source = %v, want remote within the priority window", p.Source)
	}
}

func TestReconciler_StaleRemoteYieldsToLocal(t *testing.T) {
	t.Parallel()

	r, _, sink, clock := newTestReconciler()
	r.HandleInterim(interimResult(audio.SourceRemote, "remote words"))
	clock.Advance(2 * time.Second)
	r.HandleInterim(interimResult(audio.SourceLocal, "local words"))

	p, ok := sink.LastInterim()
	if !ok || p == nil {
		t.Fatal("expected a preview")
	}
	if p.Source != audio.SourceLocal {
		t.Errorf("displayed source = %v, want local once the remote preview went stale", p.Source)
	}
}

func TestReconciler_StaleRemoteShownWhenNoLocal(t *testing.T) {
	t.Parallel()

	r, _, sink, clock := newTestReconciler()
	r.HandleInterim(interimResult(audio.SourceRemote, "remote words"))
	clock.Advance(2 * time.Second)
	r.Refresh()

	p, ok := sink.LastInterim()
	if !ok || p == nil {
		t.Fatal("expected the stale remote preview to stay displayed")
	}
	if p.Source != audio.SourceRemote {
		t.Errorf("displayed source = %v, want remote", p.Source)
	}
}

func TestReconciler_HoldsPreviousDuringMicroGap(t *testing.T) {
	t.Parallel()

	r, st, sink, clock := newTestReconciler()
	asm := NewAssembler(st, sink, nil, quietLogger())

	r.HandleInterim(interimResult(audio.SourceLocal, "hello there"))

	// A boundary final consumes the interim; no live preview remains.
	asm.AddFinal(stt.Result{
		Text: "hello there", Source: audio.SourceLocal,
		IsFinal: true, IsBoundary: true,
	})
	clock.Advance(800 * time.Millisecond)
	r.Refresh()

	p, ok := sink.LastInterim()
	if !ok || p == nil {
		t.Fatal("preview must be held during a micro-gap, not cleared")
	}
	if p.Text != "hello there" {
		t.Errorf("held preview = %q, want %q", p.Text, "hello there")
	}
}

func TestReconciler_ClearsAfterHoldWindow(t *testing.T) {
	t.Parallel()

	r, st, sink, clock := newTestReconciler()
	asm := NewAssembler(st, sink, nil, quietLogger())

	r.HandleInterim(interimResult(audio.SourceLocal, "hello there"))
	asm.AddFinal(stt.Result{
		Text: "hello there", Source: audio.SourceLocal,
		IsFinal: true, IsBoundary: true,
	})
	clock.Advance(1500 * time.Millisecond)
	r.Refresh()

	p, ok := sink.LastInterim()
	if !ok {
		t.Fatal("expected preview updates")
	}
	if p != nil {
		t.Errorf("preview = %q, want cleared after the hold window", p.Text)
	}
}

func TestReconciler_NoDuplicatePushForUnchangedPreview(t *testing.T) {
	t.Parallel()

	r, _, sink, _ := newTestReconciler()
	r.HandleInterim(interimResult(audio.SourceRemote, "steady text"))
	count := sink.InterimCount()

	r.Refresh()
	r.Refresh()

	if sink.InterimCount() != count {
		t.Errorf("unchanged preview pushed %d extra updates", sink.InterimCount()-count)
	}
}

func TestReconciler_CustomWindows(t *testing.T) {
	t.Parallel()

	r, _, sink, clock := newTestReconciler(WithPriorityWindow(100 * time.Millisecond))
	r.HandleInterim(interimResult(audio.SourceRemote, "remote words"))
	clock.Advance(200 * time.Millisecond)
	r.HandleInterim(interimResult(audio.SourceLocal, "local words"))

	p, ok := sink.LastInterim()
	if !ok || p == nil {
		t.Fatal("expected a preview")
	}
	if p.Source != audio.SourceLocal {
		t.Errorf("displayed source = %v, want local with a 100ms priority window", p.Source)
	}
}
