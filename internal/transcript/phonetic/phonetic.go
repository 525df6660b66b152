// Package phonetic matches transcribed words against a known vocabulary using
// Double Metaphone phonetic encoding combined with Jaro-Winkler string
// similarity.
//
// Matching proceeds in two stages:
//
//  1. Phonetic candidate filtering: Double Metaphone codes are computed for
//     each word in the input and for each vocabulary term. A term whose codes
//     overlap the input's codes becomes a phonetic candidate.
//
//  2. Jaro-Winkler ranking: among phonetic candidates, the term with the
//     highest Jaro-Winkler similarity (case-insensitive) wins, provided its
//     score reaches the phonetic threshold. When no phonetic candidate
//     exists, a fallback pass tests pure Jaro-Winkler similarity against all
//     terms using a stricter fuzzy threshold.
//
// Multi-word terms (e.g., "Kubernetes Operator") are supported: phonetic
// codes are computed per token, and ranking compares the full strings as
// well as their space-stripped concatenations.
package phonetic

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score required for a
// phonetically-matched term to be accepted. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score required when no
// phonetic match is found and the matcher falls back to pure string
// similarity. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.fuzzyThreshold = threshold
	}
}

// Matcher aligns transcribed words with vocabulary terms. It is read-only
// after construction and safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a new [Matcher] configured with the supplied options.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Match attempts to find the vocabulary term most phonetically similar to
// word. word may be a single word or a space-separated phrase.
//
// When matched is false, corrected equals word unchanged and score is 0.
func (m *Matcher) Match(word string, terms []string) (corrected string, score float64, matched bool) {
	if len(terms) == 0 || strings.TrimSpace(word) == "" {
		return word, 0, false
	}

	wordLower := strings.ToLower(strings.TrimSpace(word))
	wordTokens := strings.Fields(wordLower)
	inputCodes := codesForTokens(wordTokens)

	var (
		bestTerm     string
		bestScore    float64
		bestPhonetic bool
	)

	for _, term := range terms {
		termLower := strings.ToLower(strings.TrimSpace(term))
		if termLower == "" {
			continue
		}
		termTokens := strings.Fields(termLower)
		// A shorter input can never cover a longer term; without this
		// guard a bare "request" would claim "pull request".
		if len(termTokens) > len(wordTokens) {
			continue
		}

		phoneticHit := codesOverlap(inputCodes, codesForTokens(termTokens))
		jw := bestJaroWinkler(wordTokens, termTokens, wordLower, termLower)

		switch {
		case phoneticHit && jw >= m.phoneticThreshold:
			if !bestPhonetic || jw > bestScore {
				bestTerm, bestScore, bestPhonetic = term, jw, true
			}
		case !phoneticHit && !bestPhonetic:
			if jw >= m.fuzzyThreshold && jw > bestScore {
				bestTerm, bestScore = term, jw
			}
		}
	}

	if bestTerm != "" {
		return bestTerm, bestScore, true
	}
	return word, 0, false
}

// codesForTokens returns the union of all Double Metaphone codes for the
// given tokens. Empty codes are excluded.
func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		primary, secondary := matchr.DoubleMetaphone(t)
		if primary != "" {
			codes[primary] = struct{}{}
		}
		if secondary != "" {
			codes[secondary] = struct{}{}
		}
	}
	return codes
}

// codesOverlap reports whether the two code sets share at least one code.
func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// bestJaroWinkler computes the highest Jaro-Winkler similarity between the
// input and the term. The whole input must resemble the whole term; a single
// shared token is not enough to claim a multi-word term. The space-stripped
// concatenations are compared only when the token counts differ, which is
// the split-word/joined-word misrecognition case.
func bestJaroWinkler(inputTokens, termTokens []string, inputFull, termFull string) float64 {
	score := matchr.JaroWinkler(inputFull, termFull, false)

	if len(inputTokens) != len(termTokens) {
		if s := matchr.JaroWinkler(strings.Join(inputTokens, ""), strings.Join(termTokens, ""), false); s > score {
			score = s
		}
	}
	return score
}
