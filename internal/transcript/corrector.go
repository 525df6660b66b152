// Package transcript applies vocabulary correction to transcription output.
//
// Streaming recognisers routinely mangle proper nouns and project jargon
// ("cube control" for "kubectl", "post grass" for "Postgres"). A [Corrector]
// aligns transcribed words with a fixed vocabulary list using phonetic
// matching, and a [CorrectingSink] applies the corrector transparently in
// front of any [session.Sink].
package transcript

import (
	"strings"

	"github.com/tomlidgett1/duplexscribe/internal/session"
	"github.com/tomlidgett1/duplexscribe/internal/transcript/phonetic"
)

// Correction records a single word or phrase replacement.
type Correction struct {
	Original  string
	Corrected string
	Score     float64
}

// Corrector rewrites transcript text so that words phonetically matching a
// vocabulary term are replaced by that term. It is read-only after
// construction and safe for concurrent use.
type Corrector struct {
	matcher  *phonetic.Matcher
	terms    []string
	maxWords int
}

// NewCorrector returns a [Corrector] over the given vocabulary terms.
// A nil or empty term list yields a corrector that passes text through
// unchanged.
func NewCorrector(terms []string, opts ...phonetic.Option) *Corrector {
	maxWords := 1
	for _, t := range terms {
		if n := len(strings.Fields(t)); n > maxWords {
			maxWords = n
		}
	}
	return &Corrector{
		matcher:  phonetic.New(opts...),
		terms:    terms,
		maxWords: maxWords,
	}
}

// Correct returns text with vocabulary corrections applied, plus the list of
// replacements made. At each token position the longest matching n-gram
// window wins, so multi-word terms take precedence over partial single-word
// matches.
func (c *Corrector) Correct(text string) (string, []Correction) {
	if len(c.terms) == 0 {
		return text, nil
	}
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return text, nil
	}

	var (
		output      []string
		corrections []Correction
	)

	i := 0
	for i < len(tokens) {
		maxN := min(c.maxWords, len(tokens)-i)

		matched := false
		for n := maxN; n >= 1; n-- {
			window := strings.Join(tokens[i:i+n], " ")
			term, score, ok := c.matcher.Match(window, c.terms)
			if !ok {
				continue
			}
			output = append(output, strings.Fields(term)...)
			if !strings.EqualFold(window, term) {
				corrections = append(corrections, Correction{
					Original:  window,
					Corrected: term,
					Score:     score,
				})
			}
			i += n
			matched = true
			break
		}

		if !matched {
			output = append(output, tokens[i])
			i++
		}
	}

	return strings.Join(output, " "), corrections
}

// CorrectingSink decorates a [session.Sink], correcting utterance and
// preview text before forwarding. Clear passes through untouched.
type CorrectingSink struct {
	inner     session.Sink
	corrector *Corrector
}

var _ session.Sink = (*CorrectingSink)(nil)

// NewCorrectingSink wraps inner so that all text delivered through it is
// vocabulary-corrected by c.
func NewCorrectingSink(inner session.Sink, c *Corrector) *CorrectingSink {
	return &CorrectingSink{inner: inner, corrector: c}
}

// AddFinal corrects the utterance text and forwards it to the inner sink.
func (s *CorrectingSink) AddFinal(u session.Utterance) {
	u.Text, _ = s.corrector.Correct(u.Text)
	s.inner.AddFinal(u)
}

// UpdateInterim corrects the preview text and forwards it to the inner sink.
// A nil preview (display cleared) is forwarded as-is.
func (s *CorrectingSink) UpdateInterim(p *session.Preview) {
	if p != nil {
		corrected := *p
		corrected.Text, _ = s.corrector.Correct(p.Text)
		p = &corrected
	}
	s.inner.UpdateInterim(p)
}

// Clear forwards to the inner sink.
func (s *CorrectingSink) Clear() {
	s.inner.Clear()
}
