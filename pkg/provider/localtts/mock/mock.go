// Package mock provides a test double for the localtts.Engine interface.
package mock

import (
	"context"
	"sync"

	"github.com/opicoach/opicoach/pkg/provider/localtts"
)

// SpeakCall records a single invocation of Speak.
type SpeakCall struct {
	// Ctx is the context passed to Speak.
	Ctx context.Context
	// Text is the text passed to Speak.
	Text string
}

// Engine is a mock implementation of localtts.Engine.
type Engine struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// SpeakErr, if non-nil, is returned from Speak.
	SpeakErr error

	// --- Call records ---

	// SpeakCalls records every call to Speak in order.
	SpeakCalls []SpeakCall

	// StopCalls counts invocations of Stop.
	StopCalls int
}

// Speak records the call and returns SpeakErr.
func (e *Engine) Speak(ctx context.Context, text string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.SpeakCalls = append(e.SpeakCalls, SpeakCall{Ctx: ctx, Text: text})
	return e.SpeakErr
}

// Stop records the call.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.StopCalls++
}

// Reset clears all recorded calls. Thread-safe.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.SpeakCalls = nil
	e.StopCalls = 0
}

// Ensure Engine implements localtts.Engine at compile time.
var _ localtts.Engine = (*Engine)(nil)
