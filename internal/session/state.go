package session

import (
	"time"

	"github.com/tomlidgett1/duplexscribe/pkg/audio"
	"github.com/tomlidgett1/duplexscribe/pkg/provider/stt"
)

// Utterance is one committed span of speech from one source, bounded by a
// boundary event. It is the unit handed to the [Sink].
type Utterance struct {
	// Text is the finalized utterance text with whitespace normalised.
	Text string

	// Source identifies the speaker's stream.
	Source audio.Source

	// Start is the offset of the first fragment, relative to stream start.
	Start time.Duration

	// End is the offset of the last fragment, relative to stream start.
	// Always ≥ Start.
	End time.Duration

	// Confidence is the arithmetic mean of the fragment confidences.
	Confidence float64
}

// Preview is the single reconciled live line shown while speech is still in
// progress. At most one preview is displayed at any time.
type Preview struct {
	// Text is the provisional display text.
	Text string

	// Source identifies whose speech the preview reflects.
	Source audio.Source

	// UpdatedAt is when the underlying interim result last changed.
	UpdatedAt time.Time
}

// interim is one source's latest non-final result, superseded whenever a
// newer interim or final result arrives for that source.
type interim struct {
	text    string
	updated time.Time
}

// state holds all mutable pipeline state for one recording session: the
// per-source pending final fragments, the per-source interim previews, and
// the currently displayed preview.
//
// state is exclusively owned by the session controller's event loop and is
// deliberately free of locks; the assembler and reconciler mutate it only
// from within that single serialized context. No state survives across
// sessions — reset clears everything.
type state struct {
	// pending buffers final fragments per source until a boundary arrives.
	// Flushes are all-or-nothing.
	pending map[audio.Source][]stt.Result

	// interims holds the latest non-final preview per source.
	interims map[audio.Source]interim

	// displayed is the preview currently shown, or nil. displayedAt is when
	// it was last pushed to the sink, used for the hold window.
	displayed   *Preview
	displayedAt time.Time

	// lastEnd tracks the last committed end time per source, enforcing
	// non-decreasing utterance ordering.
	lastEnd map[audio.Source]time.Duration
}

func newState() *state {
	return &state{
		pending:  make(map[audio.Source][]stt.Result),
		interims: make(map[audio.Source]interim),
		lastEnd:  make(map[audio.Source]time.Duration),
	}
}

// reset clears all buffered speech, previews, and ordering watermarks.
func (s *state) reset() {
	s.pending = make(map[audio.Source][]stt.Result)
	s.interims = make(map[audio.Source]interim)
	s.displayed = nil
	s.displayedAt = time.Time{}
	s.lastEnd = make(map[audio.Source]time.Duration)
}

// recentFinals returns up to n of the most recent pending final fragments
// for source, newest last.
func (s *state) recentFinals(source audio.Source, n int) []stt.Result {
	buf := s.pending[source]
	if len(buf) <= n {
		return buf
	}
	return buf[len(buf)-n:]
}
