package session

import (
	"context"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/tomlidgett1/duplexscribe/internal/observe"
	"github.com/tomlidgett1/duplexscribe/pkg/audio"
	"github.com/tomlidgett1/duplexscribe/pkg/provider/stt"
)

// Assembler buffers per-source final recognition fragments until a boundary
// arrives, then combines them into one committed utterance and hands it to
// the sink.
//
// A boundary is either per-source (a final result with IsBoundary set) or
// connection-wide (a SpeechEnded voice-activity event, which conservatively
// closes both sources' open utterances). Flushes are all-or-nothing: a
// partial flush never occurs.
//
// Assembler is not safe for concurrent use; the session controller
// serializes all calls into it.
type Assembler struct {
	st      *state
	sink    Sink
	metrics *observe.Metrics
	logger  *slog.Logger
}

// NewAssembler creates an assembler operating on the given session state.
func NewAssembler(st *state, sink Sink, metrics *observe.Metrics, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{st: st, sink: sink, metrics: metrics, logger: logger}
}

// AddFinal consumes one final recognition result: it supersedes the source's
// interim preview, appends the fragment to the source's pending buffer, and
// flushes immediately when the fragment closes the utterance.
func (a *Assembler) AddFinal(r stt.Result) {
	// A final fragment renders the interim preview for this source stale.
	delete(a.st.interims, r.Source)

	a.st.pending[r.Source] = append(a.st.pending[r.Source], r)

	if r.IsBoundary {
		a.Flush(r.Source)
	}
}

// Flush combines source's pending fragments into one committed utterance and
// clears the buffer. Flushing an empty buffer is a no-op.
func (a *Assembler) Flush(source audio.Source) {
	buf := a.st.pending[source]
	if len(buf) == 0 {
		return
	}
	delete(a.st.pending, source)

	parts := make([]string, 0, len(buf))
	var confidence float64
	for _, r := range buf {
		parts = append(parts, r.Text)
		confidence += r.Confidence
	}
	confidence /= float64(len(buf))

	// Join with single spaces, collapse whitespace runs, trim the ends.
	text := strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
	if text == "" {
		a.logger.Debug("discarding flush with no text", "source", source.String(), "fragments", len(buf))
		return
	}

	start := buf[0].Start
	end := buf[len(buf)-1].End
	if end < start {
		end = start
	}
	// Per-source utterances are emitted in non-decreasing time order.
	if prev := a.st.lastEnd[source]; start < prev {
		start = prev
		if end < start {
			end = start
		}
	}
	a.st.lastEnd[source] = end

	u := Utterance{
		Text:       text,
		Source:     source,
		Start:      start,
		End:        end,
		Confidence: confidence,
	}

	a.logger.Debug("utterance committed",
		"source", source.String(),
		"fragments", len(buf),
		"chars", len(text),
	)
	if a.metrics != nil {
		a.metrics.UtterancesCommitted.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("source", source.String())))
		a.metrics.UtteranceDuration.Record(context.Background(), (end - start).Seconds())
	}

	a.sink.AddFinal(u)
}

// FlushAll flushes both sources' pending buffers. Used for the connection-
// wide SpeechEnded signal and for session stop, where no buffered speech may
// be silently lost.
func (a *Assembler) FlushAll() {
	a.Flush(audio.SourceLocal)
	a.Flush(audio.SourceRemote)
}
