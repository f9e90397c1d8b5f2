// Package app wires all subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves the HTTP observability endpoints until the context
// is cancelled, and Shutdown tears everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithSessionLog, WithBlobStore, etc.). When an option is not provided,
// New creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opicoach/opicoach/internal/config"
	"github.com/opicoach/opicoach/internal/grading"
	"github.com/opicoach/opicoach/internal/health"
	"github.com/opicoach/opicoach/internal/observe"
	"github.com/opicoach/opicoach/internal/playback"
	"github.com/opicoach/opicoach/internal/recording"
	"github.com/opicoach/opicoach/internal/session"
	"github.com/opicoach/opicoach/internal/speechcache"
	"github.com/opicoach/opicoach/internal/synthesis"
	"github.com/opicoach/opicoach/pkg/audio"
	"github.com/opicoach/opicoach/pkg/audio/capture"
	"github.com/opicoach/opicoach/pkg/provider/grader"
	"github.com/opicoach/opicoach/pkg/provider/localtts"
	"github.com/opicoach/opicoach/pkg/provider/speech"
	"github.com/opicoach/opicoach/pkg/store/blob"
	"github.com/opicoach/opicoach/pkg/store/blob/supabase"
	"github.com/opicoach/opicoach/pkg/store/sessionlog"
	"github.com/opicoach/opicoach/pkg/store/sessionlog/postgres"
)

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main.go via the config registry.
type Providers struct {
	Grader   grader.Provider
	Speech   speech.Synthesizer
	LocalTTS localtts.Engine
	Capture  capture.Device
	Sink     audio.Sink
}

// App owns all subsystem lifetimes and serves the observability endpoints.
type App struct {
	cfg       *config.Config
	providers *Providers

	// Subsystems, initialised in New, torn down in Shutdown.
	log      sessionlog.Store
	blobs    blob.Store
	cache    *speechcache.Cache
	metrics  *observe.Metrics
	grader   *grading.Client
	synth    *synthesis.Runner
	player   *playback.Controller
	recorder *recording.Controller
	sessions *session.Orchestrator

	narrate  func(string)
	observer func(playback.Status)

	srv *http.Server

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithSessionLog injects a session log store instead of connecting to
// PostgreSQL from config.
func WithSessionLog(s sessionlog.Store) Option {
	return func(a *App) { a.log = s }
}

// WithBlobStore injects a blob store instead of creating a Supabase client
// from config.
func WithBlobStore(s blob.Store) Option {
	return func(a *App) { a.blobs = s }
}

// WithMetrics injects a metrics set instead of using the process default.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithNarrator sets the user-facing progress callback passed to the session
// orchestrator.
func WithNarrator(fn func(string)) Option {
	return func(a *App) { a.narrate = fn }
}

// WithPlaybackObserver sets the playback status callback.
func WithPlaybackObserver(fn func(playback.Status)) Option {
	return func(a *App) { a.observer = fn }
}

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry). Use Option functions
// to inject test doubles for any subsystem.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}

	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	if err := a.initStores(ctx); err != nil {
		return nil, fmt.Errorf("app: init stores: %w", err)
	}

	if err := a.initPipeline(); err != nil {
		return nil, fmt.Errorf("app: init pipeline: %w", err)
	}

	if err := a.sessions.ReconcileProgress(ctx); err != nil {
		return nil, fmt.Errorf("app: reconcile progress: %w", err)
	}

	a.initHTTP()

	return a, nil
}

// initStores connects the session log and blob store, or uses injected mocks.
func (a *App) initStores(ctx context.Context) error {
	if a.log == nil {
		dsn := a.cfg.Storage.PostgresDSN
		if dsn == "" {
			return errors.New("storage.postgres_dsn is required when no session log is injected")
		}
		store, err := postgres.NewStore(ctx, dsn)
		if err != nil {
			return err
		}
		a.log = store
		a.closers = append(a.closers, func() error {
			store.Close()
			return nil
		})
	}

	if a.blobs == nil {
		store, err := supabase.New(supabase.Config{
			URL:            a.cfg.Storage.Supabase.URL,
			ServiceRoleKey: a.cfg.Storage.Supabase.ServiceRoleKey,
			Bucket:         a.cfg.Storage.Supabase.Bucket,
		})
		if err != nil {
			return err
		}
		a.blobs = store
	}

	return nil
}

// initPipeline builds the record → grade → synthesize → play chain from the
// configured providers.
func (a *App) initPipeline() error {
	if a.providers.Grader == nil {
		return errors.New("a grader provider is required")
	}
	if a.providers.Speech == nil {
		return errors.New("a speech provider is required")
	}
	if a.providers.Capture == nil {
		return errors.New("a capture device is required")
	}
	if a.providers.Sink == nil {
		return errors.New("an audio sink is required")
	}

	var cacheOpts []speechcache.Option
	if a.cfg.Cache.MaxEntries > 0 {
		cacheOpts = append(cacheOpts, speechcache.WithMaxEntries(a.cfg.Cache.MaxEntries))
	}
	a.cache = speechcache.New(cacheOpts...)
	a.closers = append(a.closers, func() error {
		a.cache.Clear()
		return nil
	})

	gradingOpts := []grading.Option{grading.WithMetrics(a.metrics)}
	if a.cfg.Timeouts.Grading > 0 {
		gradingOpts = append(gradingOpts, grading.WithTimeout(a.cfg.Timeouts.Grading))
	}
	a.grader = grading.NewClient(a.providers.Grader, gradingOpts...)

	synthOpts := []synthesis.Option{
		synthesis.WithVoice(a.cfg.Playback.Voice),
		synthesis.WithMetrics(a.metrics),
	}
	if a.cfg.Timeouts.Synthesis > 0 {
		synthOpts = append(synthOpts, synthesis.WithTimeout(a.cfg.Timeouts.Synthesis))
	}
	a.synth = synthesis.NewRunner(a.providers.Speech, a.cache, a.blobs, a.log, synthOpts...)

	playOpts := []playback.Option{
		playback.WithVoice(a.cfg.Playback.Voice),
		playback.WithMetrics(a.metrics),
	}
	if a.cfg.Timeouts.AssetIO > 0 {
		playOpts = append(playOpts, playback.WithFetchTimeout(a.cfg.Timeouts.AssetIO))
	}
	if a.cfg.Playback.LocalQuestions && a.providers.LocalTTS != nil {
		playOpts = append(playOpts, playback.WithLocalEngine(a.providers.LocalTTS))
	}
	if a.observer != nil {
		playOpts = append(playOpts, playback.WithObserver(a.observer))
	}
	a.player = playback.NewController(a.providers.Sink, a.providers.Speech, a.cache, a.blobs, a.synth, playOpts...)
	a.closers = append(a.closers, func() error {
		a.player.Stop()
		return nil
	})

	var recOpts []recording.Option
	if a.cfg.Timeouts.CaptureAcquire > 0 {
		recOpts = append(recOpts, recording.WithAcquireTimeout(a.cfg.Timeouts.CaptureAcquire))
	}
	a.recorder = recording.NewController(a.providers.Capture, recOpts...)

	sessOpts := []session.Option{session.WithMetrics(a.metrics)}
	if a.narrate != nil {
		sessOpts = append(sessOpts, session.WithNarrator(a.narrate))
	}
	a.sessions = session.NewOrchestrator(a.grader, a.blobs, a.log, a.synth, sessOpts...)

	return nil
}

// initHTTP builds the observability server: Prometheus metrics plus the
// liveness and readiness probes, wrapped in the request-metrics middleware.
func (a *App) initHTTP() {
	checkers := []health.Checker{{
		Name:  "session_log",
		Check: a.checkSessionLog,
	}}

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	health.New(checkers...).Register(mux)

	addr := a.cfg.Server.ListenAddr
	if addr == "" {
		addr = ":8080"
	}
	a.srv = &http.Server{
		Addr:              addr,
		Handler:           observe.Middleware(a.metrics)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// checkSessionLog probes the session log connection when the store supports
// it. Injected stores without a Ping method always report healthy.
func (a *App) checkSessionLog(ctx context.Context) error {
	p, ok := a.log.(interface{ Ping(context.Context) error })
	if !ok {
		return nil
	}
	return p.Ping(ctx)
}

// ApplyReload applies the hot-reloadable parts of a config change: the
// synthesis voice, question routing, and the cache bound. Provider and
// storage changes require a restart and are not part of [config.ConfigDiff].
func (a *App) ApplyReload(d config.ConfigDiff) {
	if d.PlaybackChanged {
		a.synth.SetVoice(d.NewPlayback.Voice)
		a.player.SetVoice(d.NewPlayback.Voice)
		var engine localtts.Engine
		if d.NewPlayback.LocalQuestions {
			engine = a.providers.LocalTTS
		}
		a.player.SetLocalEngine(engine)
		slog.Info("playback settings reloaded",
			"voice", d.NewPlayback.Voice,
			"local_questions", d.NewPlayback.LocalQuestions)
	}
	if d.CacheChanged {
		a.cache.SetMaxEntries(d.NewCache.MaxEntries)
		slog.Info("cache bound reloaded", "max_entries", d.NewCache.MaxEntries)
	}
}

// Handler returns the HTTP handler serving metrics and health endpoints.
// Exposed for tests.
func (a *App) Handler() http.Handler { return a.srv.Handler }

// Recorder returns the recording controller.
func (a *App) Recorder() *recording.Controller { return a.recorder }

// Player returns the playback controller.
func (a *App) Player() *playback.Controller { return a.player }

// Sessions returns the session orchestrator.
func (a *App) Sessions() *session.Orchestrator { return a.sessions }

// Run serves the HTTP endpoints and blocks until ctx is cancelled or the
// server fails. On cancellation the server is drained before Run returns.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.srv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = a.srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	slog.Info("app running", "addr", a.srv.Addr)

	select {
	case err := <-errCh:
		return fmt.Errorf("app: serve: %w", err)
	case <-ctx.Done():
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.srv.Shutdown(drainCtx); err != nil {
		slog.Warn("server drain error", "err", err)
	}

	return ctx.Err()
}

// Shutdown tears down all subsystems in order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
