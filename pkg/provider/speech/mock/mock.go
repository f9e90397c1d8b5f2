// Package mock provides a test double for the speech.Synthesizer interface.
//
// Use Synthesizer to return fixture PCM and to count backend calls when
// verifying cache and dedup behaviour.
package mock

import (
	"context"
	"sync"

	"github.com/opicoach/opicoach/pkg/audio"
	"github.com/opicoach/opicoach/pkg/provider/speech"
)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	// Ctx is the context passed to Synthesize.
	Ctx context.Context
	// Text is the text passed to Synthesize.
	Text string
	// Voice is the voice passed to Synthesize.
	Voice string
}

// Synthesizer is a mock implementation of speech.Synthesizer.
type Synthesizer struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// PCM is returned by Synthesize when Err is nil. Defaults to a small
	// non-empty buffer so callers never see empty audio by accident.
	PCM []byte

	// Err, if non-nil, is returned from Synthesize.
	Err error

	// SampleRate is reported by Format. Defaults to 24000.
	SampleRate int

	// Delay, if set, blocks each Synthesize call until released or the
	// context is cancelled. Use it to hold a synthesis in flight.
	Delay chan struct{}

	// --- Call records ---

	// SynthesizeCalls records every call to Synthesize in order.
	SynthesizeCalls []SynthesizeCall
}

// Synthesize records the call and returns the configured response.
func (s *Synthesizer) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	s.mu.Lock()
	s.SynthesizeCalls = append(s.SynthesizeCalls, SynthesizeCall{Ctx: ctx, Text: text, Voice: voice})
	pcm, err, delay := s.PCM, s.Err, s.Delay
	s.mu.Unlock()

	if delay != nil {
		select {
		case <-delay:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if pcm == nil {
		pcm = []byte{1, 0, 2, 0, 3, 0, 4, 0}
	}
	return pcm, nil
}

// Format implements speech.Synthesizer.
func (s *Synthesizer) Format() audio.Format {
	s.mu.Lock()
	defer s.mu.Unlock()
	rate := s.SampleRate
	if rate == 0 {
		rate = 24000
	}
	return audio.Format{SampleRate: rate, Channels: 1}
}

// CallCount returns the number of Synthesize invocations. Thread-safe.
func (s *Synthesizer) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.SynthesizeCalls)
}

// Reset clears all recorded calls. Thread-safe.
func (s *Synthesizer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SynthesizeCalls = nil
}

// Ensure Synthesizer implements speech.Synthesizer at compile time.
var _ speech.Synthesizer = (*Synthesizer)(nil)
