// Command opicoach is the main entry point for the study-session server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opicoach/opicoach/internal/app"
	"github.com/opicoach/opicoach/internal/config"
	"github.com/opicoach/opicoach/internal/observe"
	"github.com/opicoach/opicoach/pkg/audio"
	"github.com/opicoach/opicoach/pkg/audio/capture"
	"github.com/opicoach/opicoach/pkg/audio/capture/wsgateway"
	"github.com/opicoach/opicoach/pkg/audio/wavsink"
	"github.com/opicoach/opicoach/pkg/provider/grader"
	graderopenai "github.com/opicoach/opicoach/pkg/provider/grader/openai"
	"github.com/opicoach/opicoach/pkg/provider/localtts"
	"github.com/opicoach/opicoach/pkg/provider/localtts/espeak"
	"github.com/opicoach/opicoach/pkg/provider/speech"
	"github.com/opicoach/opicoach/pkg/provider/speech/elevenlabs"
	speechopenai "github.com/opicoach/opicoach/pkg/provider/speech/openai"
)

// version is set via -ldflags at build time.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "opicoach: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "opicoach: %v\n", err)
		}
		return 1
	}

	logger, logLevel := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("opicoach starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "opicoach",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownMetrics(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	application, err := app.New(ctx, cfg, providers)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// Hot reload: log level, playback settings, and the cache bound apply
	// live; everything else needs a restart.
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		d := config.Diff(old, new)
		if d.LogLevelChanged {
			logLevel.Set(slogLevel(d.NewLogLevel))
			slog.Info("log level reloaded", "level", d.NewLogLevel)
		}
		application.ApplyReload(d)
	})
	if err != nil {
		slog.Warn("config hot reload disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	slog.Info("server ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the appropriate
// provider from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterGrader("openai", func(entry config.ProviderEntry) (grader.Provider, error) {
		var opts []graderopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, graderopenai.WithBaseURL(entry.BaseURL))
		}
		return graderopenai.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterSpeech("elevenlabs", func(entry config.ProviderEntry) (speech.Synthesizer, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if voice := entry.StringOption("voice", ""); voice != "" {
			opts = append(opts, elevenlabs.WithDefaultVoice(voice))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	reg.RegisterSpeech("openai", func(entry config.ProviderEntry) (speech.Synthesizer, error) {
		var opts []speechopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, speechopenai.WithBaseURL(entry.BaseURL))
		}
		voice := entry.StringOption("voice", "alloy")
		return speechopenai.New(entry.APIKey, entry.Model, voice, opts...)
	})

	reg.RegisterLocalTTS("espeak", func(entry config.ProviderEntry) (localtts.Engine, error) {
		var opts []espeak.Option
		if bin := entry.StringOption("binary", ""); bin != "" {
			opts = append(opts, espeak.WithBinary(bin))
		}
		if voice := entry.StringOption("voice", ""); voice != "" {
			opts = append(opts, espeak.WithVoice(voice))
		}
		if wpm := entry.IntOption("words_per_minute", 0); wpm > 0 {
			opts = append(opts, espeak.WithWordsPerMinute(wpm))
		}
		return espeak.New(opts...), nil
	})

	reg.RegisterCapture("wsgateway", func(entry config.ProviderEntry) (capture.Device, error) {
		url := entry.StringOption("url", "")
		token := entry.StringOption("token", "")
		var opts []wsgateway.Option
		if n := entry.IntOption("chunk_buffer", 0); n > 0 {
			opts = append(opts, wsgateway.WithChunkBuffer(n))
		}
		return wsgateway.New(url, token, opts...)
	})

	reg.RegisterSink("wavdir", func(entry config.ProviderEntry) (audio.Sink, error) {
		dir := entry.StringOption("dir", "out")
		var opts []wavsink.Option
		if rate := entry.IntOption("sample_rate", 0); rate > 0 {
			opts = append(opts, wavsink.WithSampleRate(rate))
		}
		return wavsink.New(dir, opts...)
	})
}

// buildProviders instantiates all providers named in cfg using the registry
// and returns them in an [app.Providers] struct for the application to consume.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	if name := cfg.Providers.Grader.Name; name != "" {
		p, err := reg.CreateGrader(cfg.Providers.Grader)
		if err != nil {
			return nil, fmt.Errorf("create grader provider %q: %w", name, err)
		}
		ps.Grader = p
		slog.Info("provider created", "kind", "grader", "name", name)
	}

	if name := cfg.Providers.Speech.Name; name != "" {
		p, err := reg.CreateSpeech(cfg.Providers.Speech)
		if err != nil {
			return nil, fmt.Errorf("create speech provider %q: %w", name, err)
		}
		ps.Speech = p
		slog.Info("provider created", "kind", "speech", "name", name)
	}

	if name := cfg.Providers.LocalTTS.Name; name != "" {
		p, err := reg.CreateLocalTTS(cfg.Providers.LocalTTS)
		if err != nil {
			return nil, fmt.Errorf("create local tts provider %q: %w", name, err)
		}
		ps.LocalTTS = p
		slog.Info("provider created", "kind", "local_tts", "name", name)
	}

	if name := cfg.Providers.Capture.Name; name != "" {
		p, err := reg.CreateCapture(cfg.Providers.Capture)
		if err != nil {
			return nil, fmt.Errorf("create capture device %q: %w", name, err)
		}
		ps.Capture = p
		slog.Info("provider created", "kind", "capture", "name", name)
	}

	if name := cfg.Providers.Sink.Name; name != "" {
		p, err := reg.CreateSink(cfg.Providers.Sink)
		if err != nil {
			return nil, fmt.Errorf("create audio sink %q: %w", name, err)
		}
		ps.Sink = p
		slog.Info("provider created", "kind", "sink", "name", name)
	}

	return ps, nil
}

// newLogger builds the process logger on a LevelVar so hot reload can adjust
// the level without replacing the handler.
func newLogger(level config.LogLevel) (*slog.Logger, *slog.LevelVar) {
	lvl := new(slog.LevelVar)
	lvl.Set(slogLevel(level))
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})), lvl
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
