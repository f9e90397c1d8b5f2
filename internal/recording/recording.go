// Package recording owns the capture state machine. A controller moves
// through Idle → Recording → {Paused ⇄ Recording} → Finalizing and ends in
// Completed (a finished clip handed to the caller) or Cancelled (everything
// discarded). Only one recording session exists at a time.
package recording

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/opicoach/opicoach/pkg/audio"
	"github.com/opicoach/opicoach/pkg/audio/capture"
)

// ErrPermissionDenied signals that the capture device refused access. It is
// the capture sentinel re-exported so callers need not import the device
// package.
var ErrPermissionDenied = capture.ErrPermissionDenied

var (
	// ErrCancelled is returned by Stop when the session was marked
	// cancelled before finalization. No clip is emitted.
	ErrCancelled = errors.New("recording: session cancelled")

	// ErrSessionActive is returned by Start while a session already exists.
	ErrSessionActive = errors.New("recording: a session is already active")

	// ErrNoSession is returned by Stop when no session exists.
	ErrNoSession = errors.New("recording: no active session")
)

// State is a phase of the recording state machine.
type State string

const (
	StateIdle       State = "idle"
	StateRecording  State = "recording"
	StatePaused     State = "paused"
	StateFinalizing State = "finalizing"
)

// Decoder turns one encoded capture chunk into PCM bytes.
type Decoder interface {
	Decode(chunk []byte) ([]byte, error)
}

// Option is a functional option for configuring the Controller.
type Option func(*Controller)

// WithDecoderFactory overrides how the finalizer obtains its chunk decoder.
// Defaults to a fresh Opus decoder per finalization.
func WithDecoderFactory(f func() (Decoder, error)) Option {
	return func(c *Controller) {
		c.newDecoder = f
	}
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithAcquireTimeout bounds device acquisition. Defaults to 5s.
func WithAcquireTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.acquireTimeout = d
		}
	}
}

// Controller drives one capture device through the recording state machine.
// All methods are safe for concurrent use.
type Controller struct {
	device         capture.Device
	logger         *slog.Logger
	acquireTimeout time.Duration
	newDecoder     func() (Decoder, error)

	mu        sync.Mutex
	state     State
	sess      *session
	startedAt time.Time
}

// session is the transient per-recording state. It is destroyed when
// finalized into a clip or discarded on cancellation.
type session struct {
	stream    capture.Stream
	chunks    [][]byte
	seen      int // all chunks observed, including ones dropped while paused
	cancelled bool
	collected chan struct{}
}

// NewController creates a Controller in the Idle state.
func NewController(device capture.Device, opts ...Option) *Controller {
	c := &Controller{
		device:         device,
		logger:         slog.Default(),
		acquireTimeout: 5 * time.Second,
		state:          StateIdle,
		newDecoder: func() (Decoder, error) {
			return audio.NewOpusDecoder()
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// State returns the current phase.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// StartedAt returns when the current session began recording, or the zero
// time when idle.
func (c *Controller) StartedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startedAt
}

// Start acquires the capture device and begins accumulating chunks. It fails
// with ErrSessionActive if a session exists, and with ErrPermissionDenied
// (wrapped) when the device refuses access; in both cases the controller
// stays or returns to Idle.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrSessionActive
	}
	c.state = StateFinalizing // reserve the slot while acquiring
	c.mu.Unlock()

	acquireCtx, cancel := context.WithTimeout(ctx, c.acquireTimeout)
	defer cancel()

	stream, err := c.device.Acquire(acquireCtx)
	if err != nil {
		c.mu.Lock()
		c.state = StateIdle
		c.mu.Unlock()
		return fmt.Errorf("recording: acquire device: %w", err)
	}

	s := &session{
		stream:    stream,
		collected: make(chan struct{}),
	}

	c.mu.Lock()
	c.sess = s
	c.state = StateRecording
	c.startedAt = time.Now()
	c.mu.Unlock()

	go c.collect(s)

	c.logger.Info("recording started")
	return nil
}

// collect accumulates chunks in arrival order until the stream's channel
// closes. Chunks arriving while paused are dropped.
func (c *Controller) collect(s *session) {
	defer close(s.collected)
	for chunk := range s.stream.Chunks() {
		c.mu.Lock()
		s.seen++
		if c.sess == s && c.state == StateRecording {
			s.chunks = append(s.chunks, chunk)
		}
		c.mu.Unlock()
	}
}

// Pause suspends chunk accumulation. Only valid while Recording; a no-op
// from any other state.
func (c *Controller) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateRecording {
		c.state = StatePaused
	}
}

// Resume continues chunk accumulation. Only valid while Paused; a no-op from
// any other state.
func (c *Controller) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StatePaused {
		c.state = StateRecording
	}
}

// Cancel marks the current session cancelled. The session still has to be
// finalized with Stop, which will discard everything. A no-op when idle.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess != nil {
		c.sess.cancelled = true
	}
}

// Stop finalizes the session. A cancelled session releases the device,
// discards all accumulated data, and returns ErrCancelled; otherwise the
// accumulated Opus chunks are decoded and concatenated into one mono clip.
// Either way the controller returns to Idle.
func (c *Controller) Stop(ctx context.Context) (audio.Clip, error) {
	c.mu.Lock()
	if c.sess == nil {
		c.mu.Unlock()
		return audio.Clip{}, ErrNoSession
	}
	s := c.sess
	c.state = StateFinalizing
	c.mu.Unlock()

	// Closing the stream ends the collector; wait for the tail chunks.
	closeErr := s.stream.Close()
	select {
	case <-s.collected:
	case <-ctx.Done():
	}

	c.mu.Lock()
	cancelled := s.cancelled
	chunks := s.chunks
	c.sess = nil
	c.state = StateIdle
	c.startedAt = time.Time{}
	c.mu.Unlock()

	if cancelled {
		c.logger.Info("recording cancelled", "chunks_discarded", len(chunks))
		return audio.Clip{}, ErrCancelled
	}
	if closeErr != nil {
		c.logger.Warn("capture stream close failed", "error", closeErr)
	}

	clip, err := c.decodeChunks(chunks)
	if err != nil {
		return audio.Clip{}, err
	}
	c.logger.Info("recording finalized",
		"chunks", len(chunks),
		"duration", clip.Duration())
	return clip, nil
}

// decodeChunks decodes ordered Opus packets and concatenates the PCM.
// Individual corrupt packets are skipped; a recording with no decodable
// audio at all is an error.
func (c *Controller) decodeChunks(chunks [][]byte) (audio.Clip, error) {
	if len(chunks) == 0 {
		return audio.Clip{}, errors.New("recording: no audio captured")
	}

	dec, err := c.newDecoder()
	if err != nil {
		return audio.Clip{}, fmt.Errorf("recording: %w", err)
	}

	var pcm []byte
	skipped := 0
	for _, chunk := range chunks {
		frame, err := dec.Decode(chunk)
		if err != nil {
			skipped++
			continue
		}
		pcm = append(pcm, frame...)
	}
	if skipped > 0 {
		c.logger.Warn("skipped undecodable capture chunks", "count", skipped)
	}
	if len(pcm) == 0 {
		return audio.Clip{}, errors.New("recording: no decodable audio captured")
	}

	return audio.Clip{
		PCM:        pcm,
		SampleRate: audio.OpusSampleRate,
		Channels:   audio.OpusChannels,
	}, nil
}
