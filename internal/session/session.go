// Package session sequences one practice attempt end to end: upload the
// finalized recording, grade it, persist the study session, update the
// unit's progress aggregate, and kick off background model-audio synthesis.
//
// At most one analysis runs at a time. A second attempt while busy is
// rejected, not queued; the learner finishes or discards the current one
// first. Every failure returns the orchestrator to a stable idle state.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opicoach/opicoach/internal/grading"
	"github.com/opicoach/opicoach/internal/observe"
	"github.com/opicoach/opicoach/internal/synthesis"
	"github.com/opicoach/opicoach/pkg/audio"
	"github.com/opicoach/opicoach/pkg/provider/grader"
	"github.com/opicoach/opicoach/pkg/store/blob"
	"github.com/opicoach/opicoach/pkg/store/sessionlog"
	"github.com/opicoach/opicoach/pkg/study"
)

var (
	// ErrAnalysisInFlight is returned when an analysis is already running.
	ErrAnalysisInFlight = errors.New("session: analysis already in progress")

	// ErrUnknownSession is returned by Delete for an id with no log row.
	ErrUnknownSession = errors.New("session: unknown session")
)

// AnalyzeRequest carries one finalized recording plus its practice context.
type AnalyzeRequest struct {
	// Clip is the finalized recording.
	Clip audio.Clip

	// UnitID references the curriculum unit being practiced.
	UnitID string

	// Question is the practice question text as presented.
	Question string

	// Keywords are the free-text keywords the learner was asked to use.
	Keywords []string

	// Style selects the model-answer rewrite policy.
	Style study.StyleDirection
}

// Option is a functional option for configuring an [Orchestrator].
type Option func(*Orchestrator)

// WithNarrator registers a progress callback. Messages are user-facing
// one-liners ("uploading your answer"); called synchronously.
func WithNarrator(fn func(string)) Option {
	return func(o *Orchestrator) {
		o.narrate = fn
	}
}

// WithLogger sets the logger used for failure reporting.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = l
	}
}

// WithMetrics sets the metrics instance. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// Orchestrator drives the grade-and-persist flow. Safe for concurrent use;
// concurrent Analyze calls beyond the first are rejected.
type Orchestrator struct {
	grader  *grading.Client
	blobs   blob.Store
	log     sessionlog.Store
	synth   *synthesis.Runner
	logger  *slog.Logger
	metrics *observe.Metrics
	narrate func(string)

	mu   sync.Mutex
	busy bool
}

// NewOrchestrator creates an orchestrator wired to the given collaborators.
func NewOrchestrator(g *grading.Client, blobs blob.Store, log sessionlog.Store, synth *synthesis.Runner, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		grader: g,
		blobs:  blobs,
		log:    log,
		synth:  synth,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.metrics == nil {
		o.metrics = observe.DefaultMetrics()
	}
	return o
}

// Analyze grades one finalized recording and persists the result. On success
// the returned session is already appended to the log with an empty
// model-audio link; a background synthesis job fills the link in later and
// is not awaited.
func (o *Orchestrator) Analyze(ctx context.Context, req AnalyzeRequest) (*study.StudySession, error) {
	if !o.acquire() {
		return nil, ErrAnalysisInFlight
	}
	defer o.releaseBusy()

	o.metrics.ActiveAnalyses.Add(ctx, 1)
	defer o.metrics.ActiveAnalyses.Add(ctx, -1)
	o.metrics.RecordingDuration.Record(ctx, req.Clip.Duration().Seconds())

	id := uuid.NewString()

	o.say("uploading your answer")
	wav := audio.EncodeWAV(req.Clip.PCM, req.Clip.SampleRate, req.Clip.Channels)
	rawRef, err := o.blobs.Upload(ctx, rawAssetName(id), "audio/wav", wav)
	if err != nil {
		o.metrics.RecordGradingFailure(ctx, "upload")
		o.fail(id, "recording upload failed", err)
		return nil, fmt.Errorf("session: upload recording: %w", err)
	}

	o.say("analyzing your answer")
	result, err := o.grader.Grade(ctx, grader.Request{
		Audio:    wav,
		MIMEType: "audio/wav",
		Question: req.Question,
		Keywords: req.Keywords,
		Style:    req.Style,
	})
	if err != nil {
		o.fail(id, "grading failed", err)
		return nil, fmt.Errorf("session: grade: %w", err)
	}

	sess := study.StudySession{
		ID:              id,
		CreatedAt:       time.Now().UTC(),
		UnitID:          req.UnitID,
		Question:        req.Question,
		Keywords:        req.Keywords,
		Transcript:      result.Transcript,
		RawAudioRef:     string(rawRef),
		Level:           result.Level,
		Correction:      result.Correction,
		Translation:     result.Translation,
		Feedback:        result.Feedback,
		MatchedKeywords: result.MatchedKeywords,
	}

	if err := o.log.Append(ctx, sess); err != nil {
		o.fail(id, "persisting session failed", err)
		return nil, fmt.Errorf("session: append: %w", err)
	}

	if err := o.updateProgress(ctx, req.UnitID, sess.Level, sess.CreatedAt); err != nil {
		// The session row exists; a stale aggregate is recoverable.
		o.logger.Warn("unit progress update failed",
			"session_id", id,
			"unit_id", req.UnitID,
			"error", err)
	}

	// Model-audio synthesis runs detached from the request lifecycle; its
	// failures are silent and leave the session valid without audio.
	go func() {
		_ = o.synth.Run(context.WithoutCancel(ctx), sess)
	}()

	o.say("analysis complete")
	o.logger.Info("study session recorded",
		"session_id", id,
		"unit_id", req.UnitID,
		"level", string(sess.Level))
	return &sess, nil
}

// Delete removes a study session: both audio assets best-effort, then the
// log row. Emptying a unit's history resets the unit's progress aggregate.
func (o *Orchestrator) Delete(ctx context.Context, sessionID string) error {
	sess, ok, err := o.log.Find(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("session: find %s: %w", sessionID, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSession, sessionID)
	}

	// Asset deletions are independent of each other and never block the row
	// deletion.
	for _, ref := range []string{sess.RawAudioRef, sess.ModelAudioRef} {
		if ref == "" {
			continue
		}
		if err := o.blobs.Delete(ctx, blob.Ref(ref)); err != nil {
			o.logger.Warn("audio asset deletion failed",
				"session_id", sessionID,
				"ref", ref,
				"error", err)
		}
	}

	deleted, err := o.log.Delete(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("session: delete %s: %w", sessionID, err)
	}
	if !deleted {
		return nil
	}

	remaining, err := o.log.ListByUnit(ctx, sess.UnitID)
	if err != nil {
		return fmt.Errorf("session: list unit %s: %w", sess.UnitID, err)
	}
	if len(remaining) == 0 {
		if err := o.log.ResetUnitProgress(ctx, sess.UnitID); err != nil {
			return fmt.Errorf("session: reset unit %s: %w", sess.UnitID, err)
		}
	}
	return nil
}

// History returns every study session, newest first.
func (o *Orchestrator) History(ctx context.Context) ([]study.StudySession, error) {
	return o.log.ListAll(ctx)
}

// UnitHistory returns a unit's study sessions, newest first.
func (o *Orchestrator) UnitHistory(ctx context.Context, unitID string) ([]study.StudySession, error) {
	return o.log.ListByUnit(ctx, unitID)
}

// Progress returns a unit's progress aggregate. The bool reports whether one
// has been recorded.
func (o *Orchestrator) Progress(ctx context.Context, unitID string) (study.UnitProgress, bool, error) {
	return o.log.UnitProgress(ctx, unitID)
}

// ReconcileProgress rebuilds the unit-progress aggregates from the session
// log. Run at startup so every unit with history carries its best grade and
// latest practice time even if rows were written by another process.
func (o *Orchestrator) ReconcileProgress(ctx context.Context) error {
	sessions, err := o.log.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("session: reconcile: %w", err)
	}

	type unitState struct {
		best   study.Level
		latest time.Time
	}
	units := make(map[string]unitState)
	for _, sess := range sessions {
		st := units[sess.UnitID]
		if sess.Level.Above(st.best) {
			st.best = sess.Level
		}
		if sess.CreatedAt.After(st.latest) {
			st.latest = sess.CreatedAt
		}
		units[sess.UnitID] = st
	}

	for unitID, st := range units {
		err := o.log.PutUnitProgress(ctx, study.UnitProgress{
			UnitID:        unitID,
			Completed:     true,
			Grade:         string(st.best),
			LastPracticed: st.latest,
		})
		if err != nil {
			return fmt.Errorf("session: reconcile unit %s: %w", unitID, err)
		}
	}
	return nil
}

// Busy reports whether an analysis is currently running.
func (o *Orchestrator) Busy() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.busy
}

// updateProgress records the unit as completed, keeping the best grade
// achieved so far.
func (o *Orchestrator) updateProgress(ctx context.Context, unitID string, level study.Level, practicedAt time.Time) error {
	grade := level
	if existing, ok, err := o.log.UnitProgress(ctx, unitID); err != nil {
		return err
	} else if ok {
		if prev, parseErr := study.ParseLevel(existing.Grade); parseErr == nil && prev.Above(level) {
			grade = prev
		}
	}
	return o.log.PutUnitProgress(ctx, study.UnitProgress{
		UnitID:        unitID,
		Completed:     true,
		Grade:         string(grade),
		LastPracticed: practicedAt,
	})
}

func (o *Orchestrator) acquire() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.busy {
		return false
	}
	o.busy = true
	return true
}

func (o *Orchestrator) releaseBusy() {
	o.mu.Lock()
	o.busy = false
	o.mu.Unlock()
}

// fail narrates a single user-facing notice and logs the underlying error.
func (o *Orchestrator) fail(sessionID, notice string, err error) {
	o.say(notice)
	o.logger.Error(notice,
		"session_id", sessionID,
		"error", err)
}

func (o *Orchestrator) say(msg string) {
	if o.narrate != nil {
		o.narrate(msg)
	}
}

// rawAssetName is the blob name of a session's uploaded learner recording.
func rawAssetName(sessionID string) string {
	return "raw/" + sessionID + ".wav"
}
