// Package synthesis runs the background job that turns a freshly graded
// model answer into audio. One job per study session: synthesize, seed the
// speech cache, upload the asset, and link it on the persisted session.
//
// The runner owns a global single-slot in-flight marker. At most one grading
// flow is active per user interaction, so the slot is per-process rather than
// per-key; playback consults it to avoid racing a second synthesis for audio
// that is already on the way. Failures are logged and leave the model-audio
// link unset. There is no retry path; the session stays valid without audio.
package synthesis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/opicoach/opicoach/internal/observe"
	"github.com/opicoach/opicoach/internal/speechcache"
	"github.com/opicoach/opicoach/pkg/provider/speech"
	"github.com/opicoach/opicoach/pkg/store/blob"
	"github.com/opicoach/opicoach/pkg/store/sessionlog"
	"github.com/opicoach/opicoach/pkg/study"
)

// ErrJobInFlight is returned by Run when another job already holds the
// in-flight marker. The second attempt is rejected, not queued.
var ErrJobInFlight = errors.New("synthesis: job already in flight")

const defaultTimeout = 2 * time.Minute

// Marker describes the job currently holding the in-flight slot.
type Marker struct {
	// SessionID identifies the study session being synthesized.
	SessionID string

	// Key is the speech-cache key the job will populate on success.
	Key string

	// Done is closed when the job releases the slot, successfully or not.
	Done <-chan struct{}
}

// Option is a functional option for configuring a [Runner].
type Option func(*Runner)

// WithTimeout bounds one complete job (synthesis, upload, log update).
// Default: 2m.
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) {
		r.timeout = d
	}
}

// WithVoice sets the synthesis voice. Empty uses the backend default.
func WithVoice(voice string) Option {
	return func(r *Runner) {
		r.voice = voice
	}
}

// WithLogger sets the logger used for failure reporting.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = l
	}
}

// WithMetrics sets the metrics instance. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Runner) {
		r.metrics = m
	}
}

// Runner executes synthesis jobs. Safe for concurrent use; concurrent Run
// calls beyond the first are rejected with [ErrJobInFlight].
type Runner struct {
	synth   speech.Synthesizer
	cache   *speechcache.Cache
	blobs   blob.Store
	log     sessionlog.Store
	logger  *slog.Logger
	metrics *observe.Metrics
	timeout time.Duration
	voice   string

	mu       sync.Mutex
	inflight *Marker
	done     chan struct{}
}

// NewRunner creates a Runner wired to the given backend, cache, and stores.
func NewRunner(synth speech.Synthesizer, cache *speechcache.Cache, blobs blob.Store, log sessionlog.Store, opts ...Option) *Runner {
	r := &Runner{
		synth:   synth,
		cache:   cache,
		blobs:   blobs,
		log:     log,
		logger:  slog.Default(),
		timeout: defaultTimeout,
	}
	for _, o := range opts {
		o(r)
	}
	if r.metrics == nil {
		r.metrics = observe.DefaultMetrics()
	}
	return r
}

// SetVoice changes the synthesis voice. Applies to jobs started after the
// call; used by config hot reload.
func (r *Runner) SetVoice(voice string) {
	r.mu.Lock()
	r.voice = voice
	r.mu.Unlock()
}

func (r *Runner) voiceNow() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.voice
}

// InFlight returns the marker of the currently running job. The bool reports
// whether a job holds the slot.
func (r *Runner) InFlight() (Marker, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inflight == nil {
		return Marker{}, false
	}
	return *r.inflight, true
}

// Run executes one synthesis job for sess to completion. It claims the
// in-flight slot, synthesizes the flattened model answer, seeds the speech
// cache, uploads the audio, and links it on the persisted session. The slot
// is released on every exit path, including timeouts.
//
// Run is meant to be called on its own goroutine after the session has been
// appended to the log; the caller does not await it.
func (r *Runner) Run(ctx context.Context, sess study.StudySession) error {
	text := sess.Correction.Flatten()
	if text == "" {
		return fmt.Errorf("synthesis: session %s has no model answer", sess.ID)
	}
	key := speechcache.NormalizeKey(text)

	if err := r.claim(sess.ID, key); err != nil {
		return err
	}
	defer r.release()

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	r.metrics.SynthesisInFlight.Add(ctx, 1)
	defer r.metrics.SynthesisInFlight.Add(ctx, -1)

	pcm, err := r.synth.Synthesize(ctx, text, r.voiceNow())
	if err != nil {
		r.metrics.RecordSynthesisFailure(ctx, "backend")
		r.logger.Error("synthesis backend call failed",
			"session_id", sess.ID,
			"error", err)
		return fmt.Errorf("synthesis: backend: %w", err)
	}

	r.cache.Put(key, pcm)

	ref, err := r.blobs.Upload(ctx, modelAssetName(sess.ID), "audio/pcm", pcm)
	if err != nil {
		r.metrics.RecordSynthesisFailure(ctx, "upload")
		r.logger.Error("model audio upload failed",
			"session_id", sess.ID,
			"error", err)
		return fmt.Errorf("synthesis: upload: %w", err)
	}

	if err := r.log.SetModelAudio(ctx, sess.ID, string(ref)); err != nil {
		r.metrics.RecordSynthesisFailure(ctx, "log_update")
		r.logger.Error("model audio link update failed",
			"session_id", sess.ID,
			"ref", string(ref),
			"error", err)
		return fmt.Errorf("synthesis: log update: %w", err)
	}

	r.metrics.SynthesisDuration.Record(ctx, time.Since(start).Seconds())
	r.logger.Info("model audio synthesized",
		"session_id", sess.ID,
		"ref", string(ref),
		"bytes", len(pcm))
	return nil
}

// claim takes the single in-flight slot or reports it busy.
func (r *Runner) claim(sessionID, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inflight != nil {
		return fmt.Errorf("%w: session %s", ErrJobInFlight, r.inflight.SessionID)
	}
	r.done = make(chan struct{})
	r.inflight = &Marker{SessionID: sessionID, Key: key, Done: r.done}
	return nil
}

// release frees the slot and wakes any playback waiting on the marker.
func (r *Runner) release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	close(r.done)
	r.inflight = nil
	r.done = nil
}

// modelAssetName is the blob name of a session's synthesized model answer.
func modelAssetName(sessionID string) string {
	return "model/" + sessionID + ".pcm"
}
