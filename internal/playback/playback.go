// Package playback resolves play requests to exactly one currently sounding
// source. A request is satisfied from, in order: the speech cache, a
// synthesis job already in flight for the same text, a remote asset, or
// on-demand synthesis. Spoken questions short-circuit to the on-device
// engine. Repeating the active playback id stops it (toggle-to-stop).
//
// All resolution branches publish to a single status observer so the UI can
// show "loading" and "now playing at id X" without tracking sources itself.
// Errors terminate the attempt, reset the status to idle, and are logged,
// never retried.
package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/opicoach/opicoach/internal/observe"
	"github.com/opicoach/opicoach/internal/speechcache"
	"github.com/opicoach/opicoach/internal/synthesis"
	"github.com/opicoach/opicoach/pkg/audio"
	"github.com/opicoach/opicoach/pkg/provider/localtts"
	"github.com/opicoach/opicoach/pkg/provider/speech"
	"github.com/opicoach/opicoach/pkg/store/blob"
)

// ErrNothingToPlay is returned when a request carries neither text nor a
// remote asset reference.
var ErrNothingToPlay = errors.New("playback: nothing to play")

const (
	defaultWaitTimeout  = 90 * time.Second
	defaultFetchTimeout = 30 * time.Second
)

// State is the externally visible playback state.
type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StatePlaying State = "playing"
)

// Status is published to the observer on every state change. PlaybackID is
// empty in the idle state.
type Status struct {
	State      State
	PlaybackID string
}

// Request describes one play attempt.
type Request struct {
	// Text is the content to sound. May be empty when RemoteAssetRef is set.
	Text string

	// PlaybackID identifies the UI element requesting playback. Requesting
	// the id that is already sounding stops it.
	PlaybackID string

	// RemoteAssetRef, if set, points at stored audio for this content.
	RemoteAssetRef blob.Ref

	// IsQuestion routes the request to the on-device engine when one is
	// configured. Questions never touch the cache.
	IsQuestion bool

	// IsModelAsset marks RemoteAssetRef as bare decode-only samples rather
	// than a WAV container.
	IsModelAsset bool
}

// SynthesisWatcher exposes the in-flight marker of the background synthesis
// runner.
type SynthesisWatcher interface {
	InFlight() (synthesis.Marker, bool)
}

// Option is a functional option for configuring a [Controller].
type Option func(*Controller)

// WithLocalEngine enables on-device question playback.
func WithLocalEngine(e localtts.Engine) Option {
	return func(c *Controller) {
		c.local = e
	}
}

// WithObserver registers the status callback. Called synchronously on every
// state change; keep it cheap.
func WithObserver(fn func(Status)) Option {
	return func(c *Controller) {
		c.observer = fn
	}
}

// WithWaitTimeout bounds how long a request waits for an in-flight synthesis
// job before falling back to its own resolution. Default: 90s.
func WithWaitTimeout(d time.Duration) Option {
	return func(c *Controller) {
		c.waitTimeout = d
	}
}

// WithFetchTimeout bounds remote asset fetches and on-demand synthesis
// calls. Default: 30s.
func WithFetchTimeout(d time.Duration) Option {
	return func(c *Controller) {
		c.fetchTimeout = d
	}
}

// WithVoice sets the on-demand synthesis voice.
func WithVoice(voice string) Option {
	return func(c *Controller) {
		c.voice = voice
	}
}

// WithLogger sets the logger used for failure reporting.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = l
	}
}

// WithMetrics sets the metrics instance. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

// source is one sounding playback. stop is idempotent.
type source struct {
	id   string
	stop func()
}

// Controller enforces at most one sounding source system-wide.
// Safe for concurrent use.
type Controller struct {
	sink    audio.Sink
	synth   speech.Synthesizer
	cache   *speechcache.Cache
	blobs   blob.Store
	jobs    SynthesisWatcher
	local   localtts.Engine
	logger  *slog.Logger
	metrics *observe.Metrics

	observer     func(Status)
	waitTimeout  time.Duration
	fetchTimeout time.Duration
	voice        string

	group singleflight.Group

	mu     sync.Mutex
	active *source
}

// NewController creates a playback controller. jobs may be nil when no
// background synthesis runner exists (then the in-flight wait is skipped).
func NewController(sink audio.Sink, synth speech.Synthesizer, cache *speechcache.Cache, blobs blob.Store, jobs SynthesisWatcher, opts ...Option) *Controller {
	c := &Controller{
		sink:         sink,
		synth:        synth,
		cache:        cache,
		blobs:        blobs,
		jobs:         jobs,
		logger:       slog.Default(),
		waitTimeout:  defaultWaitTimeout,
		fetchTimeout: defaultFetchTimeout,
	}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	return c
}

// SetVoice changes the on-demand synthesis voice for subsequent requests.
// Used by config hot reload.
func (c *Controller) SetVoice(voice string) {
	c.mu.Lock()
	c.voice = voice
	c.mu.Unlock()
}

// SetLocalEngine swaps the on-device question engine. Pass nil to route
// questions to the regular resolution chain instead. Used by config hot
// reload.
func (c *Controller) SetLocalEngine(e localtts.Engine) {
	c.mu.Lock()
	c.local = e
	c.mu.Unlock()
}

func (c *Controller) localEngine() localtts.Engine {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.local
}

func (c *Controller) voiceNow() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.voice
}

// Play resolves and starts one playback. It returns once the source is
// sounding (or the request toggled the active source off); the audio itself
// finishes asynchronously.
func (c *Controller) Play(ctx context.Context, req Request) error {
	if c.toggleOff(req.PlaybackID) {
		return nil
	}
	c.Stop()

	if req.IsQuestion {
		if engine := c.localEngine(); engine != nil {
			return c.playLocal(ctx, req, engine)
		}
	}

	text := strings.TrimSpace(req.Text)
	if text == "" && req.RemoteAssetRef == "" {
		c.setIdle()
		return ErrNothingToPlay
	}

	c.publish(Status{State: StateLoading, PlaybackID: req.PlaybackID})

	pcm, sourceKind, err := c.resolve(ctx, text, req)
	if err != nil {
		c.setIdle()
		c.logger.Error("playback resolution failed",
			"playback_id", req.PlaybackID,
			"error", err)
		return err
	}

	clip, err := c.toClip(pcm, sourceKind)
	if err != nil {
		c.setIdle()
		c.logger.Error("playback decode failed",
			"playback_id", req.PlaybackID,
			"error", err)
		return err
	}

	c.metrics.RecordPlaybackStart(ctx, sourceKind)
	c.startSink(req.PlaybackID, clip)
	return nil
}

// Stop stops the active source, if any, and publishes idle.
func (c *Controller) Stop() {
	c.mu.Lock()
	src := c.active
	c.active = nil
	c.mu.Unlock()

	if src == nil {
		return
	}
	src.stop()
	c.publish(Status{State: StateIdle})
}

// Active returns the id of the currently sounding source, or "" when idle.
func (c *Controller) Active() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return ""
	}
	return c.active.id
}

// toggleOff stops the active source when the request repeats its id.
func (c *Controller) toggleOff(playbackID string) bool {
	c.mu.Lock()
	match := c.active != nil && c.active.id == playbackID
	c.mu.Unlock()
	if match {
		c.Stop()
	}
	return match
}

// playLocal routes a spoken question to the on-device engine. Fire and
// forget: completion is not reported, so the source stays registered until
// toggled, replaced, or stopped.
func (c *Controller) playLocal(ctx context.Context, req Request, engine localtts.Engine) error {
	if strings.TrimSpace(req.Text) == "" {
		c.setIdle()
		return ErrNothingToPlay
	}
	if err := engine.Speak(ctx, req.Text); err != nil {
		c.setIdle()
		c.logger.Error("local speech failed",
			"playback_id", req.PlaybackID,
			"error", err)
		return fmt.Errorf("playback: local speech: %w", err)
	}

	c.register(&source{id: req.PlaybackID, stop: engine.Stop})
	c.metrics.RecordPlaybackStart(ctx, "local")
	c.publish(Status{State: StatePlaying, PlaybackID: req.PlaybackID})
	return nil
}

// resolve produces raw audio bytes plus the source kind used for metrics:
// "cache", "asset", "raw", or "on_demand".
func (c *Controller) resolve(ctx context.Context, text string, req Request) ([]byte, string, error) {
	key := speechcache.NormalizeKey(text)

	if key != "" {
		if pcm, ok := c.cache.Get(key); ok {
			c.metrics.RecordCacheLookup(ctx, true)
			return pcm, "cache", nil
		}
		c.metrics.RecordCacheLookup(ctx, false)

		// A job already synthesizing this text will seed the cache; wait on
		// its marker instead of racing it with a second backend call.
		if req.RemoteAssetRef == "" && c.jobs != nil {
			if marker, ok := c.jobs.InFlight(); ok && marker.Key == key {
				if pcm, ok := c.awaitJob(ctx, marker); ok {
					return pcm, "cache", nil
				}
				// Job failed or timed out; fall through to own resolution.
			}
		}
	}

	if req.RemoteAssetRef != "" {
		fetchCtx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
		defer cancel()
		data, err := c.blobs.Fetch(fetchCtx, req.RemoteAssetRef)
		if err != nil {
			return nil, "", fmt.Errorf("playback: fetch asset: %w", err)
		}
		if req.IsModelAsset {
			return data, "asset", nil
		}
		return data, "raw", nil
	}

	if key == "" {
		return nil, "", ErrNothingToPlay
	}
	pcm, err := c.synthesizeOnDemand(ctx, key, text)
	if err != nil {
		return nil, "", err
	}
	return pcm, "on_demand", nil
}

// awaitJob waits for an in-flight synthesis job to finish, bounded by the
// wait timeout, then re-checks the cache. The bool reports a usable result.
func (c *Controller) awaitJob(ctx context.Context, marker synthesis.Marker) ([]byte, bool) {
	select {
	case <-marker.Done:
	case <-time.After(c.waitTimeout):
		return nil, false
	case <-ctx.Done():
		return nil, false
	}
	pcm, ok := c.cache.Get(marker.Key)
	if ok {
		c.metrics.RecordCacheLookup(ctx, true)
	}
	return pcm, ok
}

// synthesizeOnDemand calls the synthesis backend and seeds the cache.
// Concurrent requests for the same key share one backend call.
func (c *Controller) synthesizeOnDemand(ctx context.Context, key, text string) ([]byte, error) {
	v, err, _ := c.group.Do(key, func() (any, error) {
		callCtx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
		defer cancel()
		pcm, err := c.synth.Synthesize(callCtx, text, c.voiceNow())
		if err != nil {
			return nil, err
		}
		c.cache.Put(key, pcm)
		return pcm, nil
	})
	if err != nil {
		return nil, fmt.Errorf("playback: on-demand synthesis: %w", err)
	}
	return v.([]byte), nil
}

// toClip converts resolved bytes to a playable clip in the sink's format.
// Cache entries, model assets, and on-demand results are bare samples at the
// backend rate; everything else goes through the WAV decoder.
func (c *Controller) toClip(pcm []byte, sourceKind string) (audio.Clip, error) {
	var clip audio.Clip
	switch sourceKind {
	case "raw":
		decoded, err := audio.DecodeWAV(pcm)
		if err != nil {
			return audio.Clip{}, fmt.Errorf("playback: decode asset: %w", err)
		}
		clip = decoded
	default:
		f := c.synth.Format()
		clip = audio.Clip{PCM: pcm, SampleRate: f.SampleRate, Channels: f.Channels}
	}

	if clip.Channels == 2 {
		clip.PCM = audio.StereoToMono(clip.PCM)
		clip.Channels = 1
	}
	target := c.sink.Format()
	clip.PCM = audio.ResampleMono16(clip.PCM, clip.SampleRate, target.SampleRate)
	clip.SampleRate = target.SampleRate
	return clip, nil
}

// startSink registers the source and renders the clip on its own goroutine.
func (c *Controller) startSink(playbackID string, clip audio.Clip) {
	playCtx, cancel := context.WithCancel(context.Background())
	src := &source{id: playbackID, stop: cancel}
	c.register(src)
	c.publish(Status{State: StatePlaying, PlaybackID: playbackID})

	go func() {
		err := c.sink.Play(playCtx, clip)
		if err != nil && playCtx.Err() == nil {
			c.logger.Error("sink playback failed",
				"playback_id", playbackID,
				"error", err)
		}
		cancel()
		c.clear(src)
	}()
}

// register installs src as the single active source. A resolution can
// suspend for seconds, so another source may have started sounding in the
// meantime; the swap stops it before src takes over.
func (c *Controller) register(src *source) {
	c.mu.Lock()
	prev := c.active
	c.active = src
	c.mu.Unlock()
	if prev != nil {
		prev.stop()
	}
}

// clear removes src if it is still the active source and publishes idle.
// A source that was already replaced must not disturb its successor.
func (c *Controller) clear(src *source) {
	c.mu.Lock()
	if c.active != src {
		c.mu.Unlock()
		return
	}
	c.active = nil
	c.mu.Unlock()
	c.publish(Status{State: StateIdle})
}

// setIdle publishes the idle status without touching the active source.
func (c *Controller) setIdle() {
	c.publish(Status{State: StateIdle})
}

// publish forwards a status change to the observer, if any.
func (c *Controller) publish(s Status) {
	if c.observer != nil {
		c.observer(s)
	}
}
