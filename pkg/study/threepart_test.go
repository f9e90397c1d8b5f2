package study

import (
	"strings"
	"testing"
)

func TestThreePart_JoinParseRoundTrip(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   ThreePart
	}{
		{
			name: "typical answer",
			in: ThreePart{
				Intro:      "I usually go jogging in the morning.",
				Body:       "Last week I ran along the river with a friend.",
				Conclusion: "Overall, running keeps me energised.",
			},
		},
		{
			name: "empty parts",
			in:   ThreePart{},
		},
		{
			name: "part with internal punctuation",
			in: ThreePart{
				Intro:      "Well... let me think.",
				Body:       "It was great! Really.",
				Conclusion: "That's all?",
			},
		},
		{
			name: "multiline body",
			in: ThreePart{
				Intro:      "First,",
				Body:       "line one\nline two",
				Conclusion: "done",
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseThreePart(tc.in.Join())
			if err != nil {
				t.Fatalf("ParseThreePart: unexpected error: %v", err)
			}
			if got != tc.in {
				t.Errorf("round trip mismatch:\n got: %+v\nwant: %+v", got, tc.in)
			}
		})
	}
}

func TestParseThreePart_Malformed(t *testing.T) {
	t.Parallel()

	for _, s := range []string{
		"no delimiter at all",
		"one" + PartDelimiter + "two",
		"a" + PartDelimiter + "b" + PartDelimiter + "c" + PartDelimiter + "d",
	} {
		if _, err := ParseThreePart(s); err == nil {
			t.Errorf("ParseThreePart(%q): want error, got nil", s)
		}
	}
}

func TestThreePart_Flatten(t *testing.T) {
	t.Parallel()

	tp := ThreePart{
		Intro:      "  I usually   go jogging. ",
		Body:       "Last week\nI ran.",
		Conclusion: "Overall it helps.",
	}
	got := tp.Flatten()
	want := "I usually go jogging. Last week I ran. Overall it helps."
	if got != want {
		t.Errorf("Flatten: got %q, want %q", got, want)
	}
	if strings.Contains(got, PartDelimiter) {
		t.Errorf("Flatten output still contains delimiter: %q", got)
	}
}

func TestLevel_Ordering(t *testing.T) {
	t.Parallel()

	if !LevelIH.Above(LevelIM) {
		t.Error("IH should rank above IM")
	}
	if LevelNL.Above(LevelAL) {
		t.Error("NL should not rank above AL")
	}
	if Level("XX").Above(LevelNL) {
		t.Error("unknown level should not rank above any valid level")
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"NL", "NM", "NH", "IL", "IM", "IH", "AL"} {
		l, err := ParseLevel(s)
		if err != nil {
			t.Errorf("ParseLevel(%q): unexpected error: %v", s, err)
		}
		if string(l) != s {
			t.Errorf("ParseLevel(%q): got %q", s, l)
		}
	}
	if _, err := ParseLevel("IM2"); err == nil {
		t.Error("ParseLevel(\"IM2\"): want error, got nil")
	}
}

func TestStyleDirection_IsValid(t *testing.T) {
	t.Parallel()

	for _, s := range []StyleDirection{StyleDefault, StyleEasy, StyleNative, StyleStoryteller} {
		if !s.IsValid() {
			t.Errorf("StyleDirection(%q).IsValid() = false, want true", s)
		}
	}
	if StyleDirection("FANCY").IsValid() {
		t.Error("StyleDirection(\"FANCY\").IsValid() = true, want false")
	}
}
