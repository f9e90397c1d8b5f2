package openai

import (
	"errors"
	"testing"

	"github.com/opicoach/opicoach/pkg/provider/grader"
	"github.com/opicoach/opicoach/pkg/study"
)

const validResponse = `{
  "transcript": "I usually go jogging in the morning.",
  "level": "IH",
  "feedback": "Good pacing, watch verb tenses.",
  "correction": {"intro": "I usually...", "body": "Last week...", "conclusion": "Overall..."},
  "translation": {"intro": "A", "body": "B", "conclusion": "C"}
}`

func TestParseResult_Valid(t *testing.T) {
	t.Parallel()

	result, err := parseResult(validResponse)
	if err != nil {
		t.Fatalf("parseResult: %v", err)
	}
	if result.Level != study.LevelIH {
		t.Errorf("level: got %q, want IH", result.Level)
	}
	if result.Transcript != "I usually go jogging in the morning." {
		t.Errorf("unexpected transcript: %q", result.Transcript)
	}
	want := study.ThreePart{Intro: "I usually...", Body: "Last week...", Conclusion: "Overall..."}
	if result.Correction != want {
		t.Errorf("correction: got %+v, want %+v", result.Correction, want)
	}
}

func TestParseResult_CodeFenced(t *testing.T) {
	t.Parallel()

	result, err := parseResult("```json\n" + validResponse + "\n```")
	if err != nil {
		t.Fatalf("parseResult: %v", err)
	}
	if result.Level != study.LevelIH {
		t.Errorf("level: got %q, want IH", result.Level)
	}
}

func TestParseResult_NonConforming(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		content string
	}{
		{"not json", "sorry, I cannot grade this"},
		{"missing transcript", `{"level":"IM","correction":{"intro":"a","body":"b","conclusion":"c"}}`},
		{"unknown level", `{"transcript":"t","level":"B2","correction":{"intro":"a","body":"b","conclusion":"c"}}`},
		{"missing correction", `{"transcript":"t","level":"IM"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := parseResult(tc.content)
			if err == nil {
				t.Fatal("want error, got nil")
			}
			if !errors.Is(err, grader.ErrNonConforming) {
				t.Errorf("error should wrap ErrNonConforming, got: %v", err)
			}
		})
	}
}

func TestStyleInstructions_CoverAllNonDefaultStyles(t *testing.T) {
	t.Parallel()

	for _, s := range []study.StyleDirection{study.StyleEasy, study.StyleNative, study.StyleStoryteller} {
		if _, ok := styleInstructions[s]; !ok {
			t.Errorf("no instruction for style %q", s)
		}
	}
	if _, ok := styleInstructions[study.StyleDefault]; ok {
		t.Error("default style should not add an instruction")
	}
}

func TestAudioFormat(t *testing.T) {
	t.Parallel()

	if got := audioFormat("audio/wav"); got != "wav" {
		t.Errorf("audio/wav: got %q", got)
	}
	if got := audioFormat("audio/mpeg"); got != "mp3" {
		t.Errorf("audio/mpeg: got %q", got)
	}
	if got := audioFormat(""); got != "wav" {
		t.Errorf("empty: got %q, want wav default", got)
	}
}
