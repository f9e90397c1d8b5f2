package config_test

import (
	"errors"
	"testing"

	"github.com/opicoach/opicoach/internal/config"
	"github.com/opicoach/opicoach/pkg/provider/grader"
	gradermock "github.com/opicoach/opicoach/pkg/provider/grader/mock"
	"github.com/opicoach/opicoach/pkg/provider/speech"
	speechmock "github.com/opicoach/opicoach/pkg/provider/speech/mock"
)

func TestLogLevel_IsValid(t *testing.T) {
	t.Parallel()

	for _, l := range []config.LogLevel{config.LogDebug, config.LogInfo, config.LogWarn, config.LogError} {
		if !l.IsValid() {
			t.Errorf("%q should be valid", l)
		}
	}
	for _, l := range []config.LogLevel{"", "trace", "INFO"} {
		if l.IsValid() {
			t.Errorf("%q should be invalid", l)
		}
	}
}

func TestProviderEntry_Options(t *testing.T) {
	t.Parallel()

	e := config.ProviderEntry{Options: map[string]any{
		"voice":  "abc",
		"wpm":    170,
		"nested": map[string]any{"x": 1},
	}}

	if got := e.StringOption("voice", "def"); got != "abc" {
		t.Errorf("StringOption(voice) = %q", got)
	}
	if got := e.StringOption("missing", "def"); got != "def" {
		t.Errorf("StringOption(missing) = %q", got)
	}
	if got := e.StringOption("wpm", "def"); got != "def" {
		t.Errorf("StringOption on int = %q, want default", got)
	}
	if got := e.IntOption("wpm", 0); got != 170 {
		t.Errorf("IntOption(wpm) = %d", got)
	}
	if got := e.IntOption("voice", 7); got != 7 {
		t.Errorf("IntOption on string = %d, want default", got)
	}
}

func TestRegistry_RegisterAndCreate(t *testing.T) {
	t.Parallel()

	r := config.NewRegistry()
	r.RegisterGrader("mock", func(e config.ProviderEntry) (grader.Provider, error) {
		return &gradermock.Provider{}, nil
	})
	r.RegisterSpeech("mock", func(e config.ProviderEntry) (speech.Synthesizer, error) {
		return &speechmock.Synthesizer{}, nil
	})

	if _, err := r.CreateGrader(config.ProviderEntry{Name: "mock"}); err != nil {
		t.Errorf("CreateGrader: %v", err)
	}
	if _, err := r.CreateSpeech(config.ProviderEntry{Name: "mock"}); err != nil {
		t.Errorf("CreateSpeech: %v", err)
	}
}

func TestRegistry_UnregisteredName(t *testing.T) {
	t.Parallel()

	r := config.NewRegistry()
	_, err := r.CreateGrader(config.ProviderEntry{Name: "nope"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("err = %v, want ErrProviderNotRegistered", err)
	}
	_, err = r.CreateSink(config.ProviderEntry{Name: "nope"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("err = %v, want ErrProviderNotRegistered", err)
	}
}

func TestRegistry_Overwrite(t *testing.T) {
	t.Parallel()

	r := config.NewRegistry()
	first := &gradermock.Provider{}
	second := &gradermock.Provider{}
	r.RegisterGrader("mock", func(e config.ProviderEntry) (grader.Provider, error) {
		return first, nil
	})
	r.RegisterGrader("mock", func(e config.ProviderEntry) (grader.Provider, error) {
		return second, nil
	})

	p, err := r.CreateGrader(config.ProviderEntry{Name: "mock"})
	if err != nil {
		t.Fatalf("CreateGrader: %v", err)
	}
	if p != second {
		t.Error("later registration did not overwrite earlier one")
	}
}
