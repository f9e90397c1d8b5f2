package keyword

import (
	"reflect"
	"testing"
)

func TestCovered_ExactWords(t *testing.T) {
	t.Parallel()

	m := New()
	got := m.Covered("I usually go jogging in the morning.", []string{"jogging", "morning", "beach"})
	want := []string{"jogging", "morning"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Covered = %v, want %v", got, want)
	}
}

func TestCovered_PhoneticVariant(t *testing.T) {
	t.Parallel()

	m := New()
	// "joging" is a near-phonetic rendering of "jogging".
	got := m.Covered("I love joging every day", []string{"jogging"})
	if len(got) != 1 {
		t.Errorf("expected phonetic match for jogging, got %v", got)
	}
}

func TestCovered_MultiWordKeyword(t *testing.T) {
	t.Parallel()

	m := New()
	got := m.Covered("we went to the swimming pool together", []string{"swimming pool"})
	if len(got) != 1 || got[0] != "swimming pool" {
		t.Errorf("Covered = %v, want [swimming pool]", got)
	}

	got = m.Covered("we went swimming in the lake", []string{"swimming pool"})
	if len(got) != 0 {
		t.Errorf("partial multi-word keyword should not count, got %v", got)
	}
}

func TestCovered_IgnoresPunctuationAndCase(t *testing.T) {
	t.Parallel()

	m := New()
	got := m.Covered("Well, JOGGING! That's my hobby.", []string{"jogging", "hobby"})
	want := []string{"jogging", "hobby"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Covered = %v, want %v", got, want)
	}
}

func TestCovered_Empty(t *testing.T) {
	t.Parallel()

	m := New()
	if got := m.Covered("", []string{"a"}); got != nil {
		t.Errorf("empty transcript: got %v", got)
	}
	if got := m.Covered("some words", nil); got != nil {
		t.Errorf("no keywords: got %v", got)
	}
}

func TestCovered_UnrelatedWordsDoNotMatch(t *testing.T) {
	t.Parallel()

	m := New()
	if got := m.Covered("the weather was terrible yesterday", []string{"jogging"}); len(got) != 0 {
		t.Errorf("unrelated transcript should not match, got %v", got)
	}
}
