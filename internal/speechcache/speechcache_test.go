package speechcache

import (
	"testing"

	"github.com/opicoach/opicoach/pkg/study"
)

func TestNormalizeKey(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "hello world", "hello world"},
		{"delimited", "intro" + study.PartDelimiter + "body" + study.PartDelimiter + "end", "intro body end"},
		{"messy whitespace", "  a \n b\t\tc  ", "a b c"},
		{"delimiter plus whitespace", "a " + study.PartDelimiter + "  b", "a b"},
		{"empty", "", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := NormalizeKey(tc.in); got != tc.want {
				t.Errorf("NormalizeKey(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestNormalizeKey_ContextIndependence(t *testing.T) {
	t.Parallel()

	// A live result (structured) and a history row (joined) must share a key.
	tp := study.ThreePart{Intro: "I usually run.", Body: "Last week too.", Conclusion: "It helps."}
	if NormalizeKey(tp.Join()) != NormalizeKey(tp.Flatten()) {
		t.Error("joined and flattened forms should normalize to the same key")
	}
}

func TestCache_GetPut(t *testing.T) {
	t.Parallel()

	c := New()
	if _, ok := c.Get("k"); ok {
		t.Fatal("unexpected hit on empty cache")
	}

	c.Put("k", []byte{1, 2, 3})
	got, ok := c.Get("k")
	if !ok {
		t.Fatal("expected hit after Put")
	}
	if len(got) != 3 || got[0] != 1 {
		t.Errorf("unexpected audio: %v", got)
	}

	// Replacement keeps one entry.
	c.Put("k", []byte{9})
	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1", c.Len())
	}
	got, _ = c.Get("k")
	if len(got) != 1 || got[0] != 9 {
		t.Errorf("replacement not visible: %v", got)
	}
}

func TestCache_IgnoresEmpty(t *testing.T) {
	t.Parallel()

	c := New()
	c.Put("", []byte{1})
	c.Put("k", nil)
	if c.Len() != 0 {
		t.Errorf("Len = %d, want 0", c.Len())
	}
}

func TestCache_LRUEviction(t *testing.T) {
	t.Parallel()

	c := New(WithMaxEntries(2))
	c.Put("a", []byte{1})
	c.Put("b", []byte{2})

	// Touch a so b is the least recently used.
	c.Get("a")
	c.Put("c", []byte{3})

	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Error("a should have survived")
	}
	if _, ok := c.Get("c"); !ok {
		t.Error("c should be present")
	}
}

func TestCache_SetMaxEntries(t *testing.T) {
	t.Parallel()

	c := New()
	c.Put("a", []byte{1})
	c.Put("b", []byte{2})
	c.Put("c", []byte{3})

	// Touch c so a is the oldest entry.
	c.Get("c")
	c.SetMaxEntries(2)

	if c.Len() != 2 {
		t.Fatalf("Len after shrink = %d, want 2", c.Len())
	}
	if _, ok := c.Get("a"); ok {
		t.Error("a should have been evicted by the shrink")
	}
	if _, ok := c.Get("c"); !ok {
		t.Error("c should have survived the shrink")
	}

	// Loosening the bound keeps existing entries and admits new ones.
	c.SetMaxEntries(3)
	c.Put("d", []byte{4})
	if c.Len() != 3 {
		t.Errorf("Len after grow = %d, want 3", c.Len())
	}
}

func TestCache_Clear(t *testing.T) {
	t.Parallel()

	c := New()
	c.Put("a", []byte{1})
	c.Put("b", []byte{2})
	c.Clear()
	if c.Len() != 0 {
		t.Errorf("Len after Clear = %d, want 0", c.Len())
	}
	if _, ok := c.Get("a"); ok {
		t.Error("unexpected hit after Clear")
	}
}
