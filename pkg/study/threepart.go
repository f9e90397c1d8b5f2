package study

import (
	"fmt"
	"strings"
)

// PartDelimiter is the reserved sequence that joins the three logical parts
// of a model answer (intro, body, conclusion) into the single text field
// persisted at the log-store boundary. Downstream consumers either split on
// it to recover structure or substitute spaces to obtain plain text.
const PartDelimiter = "|||"

// ThreePart is the in-memory representation of a structured model answer or
// translation. It is only ever flattened to a delimited string when crossing
// the log-store boundary; ParseThreePart is the exact inverse of Join.
type ThreePart struct {
	Intro      string
	Body       string
	Conclusion string
}

// Join serializes the three parts into a single delimiter-joined string for
// storage.
func (t ThreePart) Join() string {
	return t.Intro + PartDelimiter + t.Body + PartDelimiter + t.Conclusion
}

// Flatten returns the answer as context-free plain text: delimiters are
// replaced with spaces and all whitespace runs are collapsed to single
// spaces. The result is used as the speech-cache key and for plain playback,
// so two display contexts with the same underlying text flatten identically.
func (t ThreePart) Flatten() string {
	return CollapseWhitespace(strings.ReplaceAll(t.Join(), PartDelimiter, " "))
}

// IsZero reports whether all three parts are empty.
func (t ThreePart) IsZero() bool {
	return t.Intro == "" && t.Body == "" && t.Conclusion == ""
}

// ParseThreePart recovers a ThreePart from its Join serialization. The input
// must contain exactly two delimiter occurrences; anything else is a
// malformed stored value.
func ParseThreePart(s string) (ThreePart, error) {
	parts := strings.Split(s, PartDelimiter)
	if len(parts) != 3 {
		return ThreePart{}, fmt.Errorf("study: malformed three-part text: %d parts, want 3", len(parts))
	}
	return ThreePart{Intro: parts[0], Body: parts[1], Conclusion: parts[2]}, nil
}

// CollapseWhitespace trims s and collapses every run of whitespace to a
// single space.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
