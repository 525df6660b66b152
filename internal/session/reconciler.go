package session

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/tomlidgett1/duplexscribe/internal/observe"
	"github.com/tomlidgett1/duplexscribe/pkg/audio"
	"github.com/tomlidgett1/duplexscribe/pkg/provider/stt"
)

// Reconciliation tuning constants.
const (
	// DefaultPriorityWindow is how long a fresh remote preview outranks a
	// local one. Remote speech is surfaced promptly because in a two-party
	// recording it is less likely to be an erroneous trigger.
	DefaultPriorityWindow = 1200 * time.Millisecond

	// DefaultHoldWindow is how long the previously displayed preview is
	// kept during a micro-gap with no live previews, preventing flicker.
	DefaultHoldWindow = 1000 * time.Millisecond

	// echoFinalLookback is how many of the most recent buffered remote
	// final fragments a local interim is checked against for echo.
	echoFinalLookback = 3

	// echoSmallSetThreshold and echoLargeSetThreshold are the word-overlap
	// ratios at which a local interim is declared an echo of remote speech,
	// for small (≤ echoSmallSetSize words) and larger texts respectively.
	echoSmallSetSize      = 4
	echoSmallSetThreshold = 0.8
	echoLargeSetThreshold = 0.6
)

// Reconciler merges the two sources' latest non-final previews into the
// single displayed live line.
//
// Incoming local interims that substantially overlap recent remote speech
// are discarded as microphone echo. Surviving interims are stored per source
// and the display is re-evaluated with remote-priority and hold-window rules
// so the preview does not flicker between speakers.
//
// Reconciler is not safe for concurrent use; the session controller
// serializes all calls into it.
type Reconciler struct {
	st      *state
	sink    Sink
	metrics *observe.Metrics
	logger  *slog.Logger

	priorityWindow time.Duration
	holdWindow     time.Duration

	// now is the clock, injectable for tests.
	now func() time.Time
}

// ReconcilerOption configures a [Reconciler] during construction.
type ReconcilerOption func(*Reconciler)

// WithPriorityWindow overrides the remote-priority window.
func WithPriorityWindow(d time.Duration) ReconcilerOption {
	return func(r *Reconciler) {
		if d > 0 {
			r.priorityWindow = d
		}
	}
}

// WithHoldWindow overrides the display hold window.
func WithHoldWindow(d time.Duration) ReconcilerOption {
	return func(r *Reconciler) {
		if d > 0 {
			r.holdWindow = d
		}
	}
}

// WithClock injects a clock for tests.
func WithClock(now func() time.Time) ReconcilerOption {
	return func(r *Reconciler) {
		if now != nil {
			r.now = now
		}
	}
}

// NewReconciler creates a reconciler operating on the given session state.
func NewReconciler(st *state, sink Sink, metrics *observe.Metrics, logger *slog.Logger, opts ...ReconcilerOption) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Reconciler{
		st:             st,
		sink:           sink,
		metrics:        metrics,
		logger:         logger,
		priorityWindow: DefaultPriorityWindow,
		holdWindow:     DefaultHoldWindow,
		now:            time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// HandleInterim consumes one non-final recognition result and re-evaluates
// the displayed preview.
func (r *Reconciler) HandleInterim(result stt.Result) {
	if result.Source == audio.SourceLocal && r.isRemoteEcho(result.Text) {
		r.logger.Debug("discarding local interim as remote echo", "chars", len(result.Text))
		if r.metrics != nil {
			r.metrics.EchoesDiscarded.Add(context.Background(), 1)
		}
		return
	}

	// The stored preview shows everything said so far in the open
	// utterance: the still-pending final fragments plus the new interim.
	parts := make([]string, 0, len(r.st.pending[result.Source])+1)
	for _, f := range r.st.pending[result.Source] {
		parts = append(parts, f.Text)
	}
	parts = append(parts, result.Text)
	text := strings.Join(strings.Fields(strings.Join(parts, " ")), " ")

	r.st.interims[result.Source] = interim{text: text, updated: r.now()}
	r.Refresh()
}

// Refresh re-evaluates which preview to display. Call it whenever any
// preview changes, including after finals clear a source's interim.
func (r *Reconciler) Refresh() {
	now := r.now()
	remote, hasRemote := r.st.interims[audio.SourceRemote]
	local, hasLocal := r.st.interims[audio.SourceLocal]

	var candidate *Preview
	switch {
	case hasRemote && now.Sub(remote.updated) <= r.priorityWindow:
		candidate = &Preview{Text: remote.text, Source: audio.SourceRemote, UpdatedAt: remote.updated}
	case hasLocal:
		candidate = &Preview{Text: local.text, Source: audio.SourceLocal, UpdatedAt: local.updated}
	case hasRemote:
		candidate = &Preview{Text: remote.text, Source: audio.SourceRemote, UpdatedAt: remote.updated}
	}

	if candidate == nil {
		if r.st.displayed != nil && now.Sub(r.st.displayedAt) <= r.holdWindow {
			// Micro-gap: keep the previous preview on screen unchanged.
			return
		}
		if r.st.displayed != nil {
			r.st.displayed = nil
			r.st.displayedAt = time.Time{}
			r.sink.UpdateInterim(nil)
		}
		return
	}

	changed := r.st.displayed == nil ||
		r.st.displayed.Text != candidate.Text ||
		r.st.displayed.Source != candidate.Source
	r.st.displayed = candidate
	r.st.displayedAt = now

	if changed {
		if r.metrics != nil {
			r.metrics.InterimUpdates.Add(context.Background(), 1,
				metric.WithAttributes(attribute.String("source", candidate.Source.String())))
		}
		r.sink.UpdateInterim(candidate)
	}
}

// isRemoteEcho reports whether a local interim text substantially overlaps
// the remote interim preview or any of the recently buffered remote final
// fragments, indicating the microphone re-picked-up remote speech.
func (r *Reconciler) isRemoteEcho(text string) bool {
	if remote, ok := r.st.interims[audio.SourceRemote]; ok && wordOverlap(text, remote.text) {
		return true
	}
	for _, f := range r.st.recentFinals(audio.SourceRemote, echoFinalLookback) {
		if wordOverlap(text, f.Text) {
			return true
		}
	}
	return false
}

// wordOverlap implements the echo heuristic: normalise both texts, tokenize
// into word sets, and compare the intersection size against the smaller set.
func wordOverlap(a, b string) bool {
	setA := wordSet(a)
	setB := wordSet(b)

	minSize := len(setA)
	if len(setB) < minSize {
		minSize = len(setB)
	}
	if minSize == 0 {
		return false
	}

	overlap := 0
	for w := range setA {
		if _, ok := setB[w]; ok {
			overlap++
		}
	}

	threshold := echoLargeSetThreshold
	if minSize <= echoSmallSetSize {
		threshold = echoSmallSetThreshold
	}
	return float64(overlap)/float64(minSize) >= threshold
}

// wordSet lowercases text, strips non-alphanumeric runes, and returns the
// set of remaining words.
func wordSet(text string) map[string]struct{} {
	normalised := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			return unicode.ToLower(r)
		case unicode.IsSpace(r):
			return ' '
		default:
			return -1
		}
	}, text)

	set := make(map[string]struct{})
	for _, w := range strings.Fields(normalised) {
		set[w] = struct{}{}
	}
	return set
}
