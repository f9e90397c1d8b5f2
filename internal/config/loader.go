package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"grader":    {"openai"},
	"speech":    {"elevenlabs", "openai"},
	"local_tts": {"espeak"},
	"capture":   {"wsgateway"},
	"sink":      {"wavdir"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and
// [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("grader", cfg.Providers.Grader.Name)
	validateProviderName("speech", cfg.Providers.Speech.Name)
	validateProviderName("local_tts", cfg.Providers.LocalTTS.Name)
	validateProviderName("capture", cfg.Providers.Capture.Name)
	validateProviderName("sink", cfg.Providers.Sink.Name)

	// Provider availability warnings
	if cfg.Providers.Grader.Name == "" {
		slog.Warn("no grading provider configured; recordings cannot be analyzed")
	}
	if cfg.Providers.Speech.Name == "" {
		slog.Warn("no speech provider configured; model answers will have no audio")
	}
	if cfg.Playback.LocalQuestions && cfg.Providers.LocalTTS.Name == "" {
		errs = append(errs, errors.New("playback.local_questions requires providers.local_tts"))
	}

	// Storage
	if cfg.Storage.PostgresDSN == "" {
		slog.Warn("storage.postgres_dsn is empty; study sessions will not be persisted")
	}
	sup := cfg.Storage.Supabase
	if (sup.URL != "" || sup.ServiceRoleKey != "" || sup.Bucket != "") &&
		(sup.URL == "" || sup.ServiceRoleKey == "" || sup.Bucket == "") {
		errs = append(errs, errors.New("storage.supabase requires url, service_role_key, and bucket together"))
	}

	// Timeouts
	for _, t := range []struct {
		name  string
		value int64
	}{
		{"capture_acquire", int64(cfg.Timeouts.CaptureAcquire)},
		{"grading", int64(cfg.Timeouts.Grading)},
		{"synthesis", int64(cfg.Timeouts.Synthesis)},
		{"asset_io", int64(cfg.Timeouts.AssetIO)},
	} {
		if t.value < 0 {
			errs = append(errs, fmt.Errorf("timeouts.%s must not be negative", t.name))
		}
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
