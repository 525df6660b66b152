package session

import (
	"log/slog"
)

// Sink receives committed utterances and live preview updates from the
// pipeline. It is the only external-facing mutation boundary of a session
// and must tolerate being called from within the controller's serialized
// event loop — implementations should return quickly and must not call back
// into the session.
type Sink interface {
	// AddFinal delivers one committed utterance. Utterances for the same
	// source arrive in non-decreasing time order.
	AddFinal(u Utterance)

	// UpdateInterim replaces the displayed live preview. A nil preview
	// clears the display.
	UpdateInterim(p *Preview)

	// Clear resets the sink's session-scoped state. Called when a session
	// starts.
	Clear()
}

// LogSink is a Sink that writes utterances and previews to the structured
// log. Useful as a default sink and for headless operation.
type LogSink struct {
	Logger *slog.Logger
}

// NewLogSink creates a LogSink. A nil logger selects slog.Default.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{Logger: logger}
}

// AddFinal logs the committed utterance.
func (s *LogSink) AddFinal(u Utterance) {
	s.Logger.Info("utterance",
		"source", u.Source.String(),
		"text", u.Text,
		"start", u.Start,
		"end", u.End,
		"confidence", u.Confidence,
	)
}

// UpdateInterim logs the preview change at debug level.
func (s *LogSink) UpdateInterim(p *Preview) {
	if p == nil {
		s.Logger.Debug("interim cleared")
		return
	}
	s.Logger.Debug("interim", "source", p.Source.String(), "text", p.Text)
}

// Clear is a no-op for the log sink.
func (s *LogSink) Clear() {}

// Ensure LogSink implements Sink at compile time.
var _ Sink = (*LogSink)(nil)
