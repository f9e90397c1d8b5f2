// Package espeak implements localtts.Engine by shelling out to the espeak-ng
// binary (or any compatible command). Output quality is deliberately low; it
// exists so question playback never needs a network round trip.
package espeak

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"sync"

	"github.com/opicoach/opicoach/pkg/provider/localtts"
)

const defaultBinary = "espeak-ng"

// Option is a functional option for configuring the Engine.
type Option func(*Engine)

// WithBinary overrides the synthesizer binary name or path.
func WithBinary(path string) Option {
	return func(e *Engine) {
		e.binary = path
	}
}

// WithVoice sets the espeak voice identifier (e.g. "en-us").
func WithVoice(voice string) Option {
	return func(e *Engine) {
		e.voice = voice
	}
}

// WithWordsPerMinute sets the speaking rate. espeak's default is 175.
func WithWordsPerMinute(wpm int) Option {
	return func(e *Engine) {
		if wpm > 0 {
			e.wpm = wpm
		}
	}
}

// Engine implements localtts.Engine over an external espeak process.
type Engine struct {
	binary string
	voice  string
	wpm    int

	mu      sync.Mutex
	current *exec.Cmd
	cancel  context.CancelFunc
}

var _ localtts.Engine = (*Engine)(nil)

// New creates an Engine. The binary is resolved lazily at first Speak so
// construction never fails on machines without a synthesizer installed.
func New(opts ...Option) *Engine {
	e := &Engine{binary: defaultBinary}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Speak implements localtts.Engine. The utterance plays in a child process;
// a previous utterance still running is stopped first.
func (e *Engine) Speak(ctx context.Context, text string) error {
	if text == "" {
		return errors.New("espeak: text must not be empty")
	}

	e.Stop()

	args := []string{}
	if e.voice != "" {
		args = append(args, "-v", e.voice)
	}
	if e.wpm > 0 {
		args = append(args, "-s", strconv.Itoa(e.wpm))
	}
	args = append(args, text)

	procCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	cmd := exec.CommandContext(procCtx, e.binary, args...)
	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("espeak: start %s: %w", e.binary, err)
	}

	e.mu.Lock()
	e.current = cmd
	e.cancel = cancel
	e.mu.Unlock()

	go func() {
		_ = cmd.Wait()
		e.mu.Lock()
		if e.current == cmd {
			e.current = nil
			e.cancel = nil
		}
		e.mu.Unlock()
		cancel()
	}()

	return nil
}

// Stop implements localtts.Engine.
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel := e.cancel
	e.current = nil
	e.cancel = nil
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}
