// Package keyword detects which of the requested practice keywords a learner
// actually used, by scanning the transcript with Double Metaphone phonetic
// encoding plus Jaro-Winkler similarity. Transcripts come back from the
// grading backend with spelling already cleaned up, but spoken keywords are
// often inflected or slightly misheard, so exact substring matching would
// undercount.
//
// The result is purely informational: it never alters the predicted level.
package keyword

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const defaultThreshold = 0.88

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithThreshold sets the minimum Jaro-Winkler score required for a
// phonetically-aligned transcript token to count as a keyword use.
// Default: 0.88.
func WithThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.threshold = threshold
	}
}

// Matcher reports keyword coverage of a transcript. It is read-only after
// construction and safe for concurrent use.
type Matcher struct {
	threshold float64
}

// New returns a new [Matcher] configured with the supplied options.
func New(opts ...Option) *Matcher {
	m := &Matcher{threshold: defaultThreshold}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Covered returns the subset of keywords detected in transcript, in the
// order they were requested. Multi-word keywords match when every word of
// the keyword is found.
func (m *Matcher) Covered(transcript string, keywords []string) []string {
	if transcript == "" || len(keywords) == 0 {
		return nil
	}

	tokens := tokenize(transcript)
	tokenCodes := make([]map[string]struct{}, len(tokens))
	for i, t := range tokens {
		tokenCodes[i] = codesFor(t)
	}

	var covered []string
	for _, kw := range keywords {
		kwTokens := tokenize(kw)
		if len(kwTokens) == 0 {
			continue
		}
		allFound := true
		for _, kt := range kwTokens {
			if !m.tokenPresent(kt, tokens, tokenCodes) {
				allFound = false
				break
			}
		}
		if allFound {
			covered = append(covered, kw)
		}
	}
	return covered
}

// phoneticThreshold is the relaxed similarity bar applied when a transcript
// token already shares a Double Metaphone code with the keyword token.
const phoneticThreshold = 0.72

// tokenPresent reports whether any transcript token matches kt. Tokens that
// share a phonetic code with kt are accepted at a relaxed similarity bar;
// otherwise pure Jaro-Winkler similarity must clear the configured threshold.
func (m *Matcher) tokenPresent(kt string, tokens []string, tokenCodes []map[string]struct{}) bool {
	ktCodes := codesFor(kt)
	for i, t := range tokens {
		if t == kt {
			return true
		}
		score := matchr.JaroWinkler(kt, t, false)
		if codesOverlap(ktCodes, tokenCodes[i]) && score >= phoneticThreshold {
			return true
		}
		if score >= m.threshold {
			return true
		}
	}
	return false
}

// tokenize lowercases s and splits it into words, stripping surrounding
// punctuation from each.
func tokenize(s string) []string {
	fields := strings.Fields(strings.ToLower(s))
	out := fields[:0]
	for _, f := range fields {
		f = strings.Trim(f, ".,!?;:\"'()[]")
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

// codesFor returns the Double Metaphone codes for one token. Empty codes are
// excluded.
func codesFor(token string) map[string]struct{} {
	codes := make(map[string]struct{}, 2)
	p, s := matchr.DoubleMetaphone(token)
	if p != "" {
		codes[p] = struct{}{}
	}
	if s != "" {
		codes[s] = struct{}{}
	}
	return codes
}

// codesOverlap returns true if the two code sets share at least one code.
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
