// Package mock provides a test double for the audio.Sink interface.
//
// Use Sink to capture played clips and, via Block, to hold a playback open
// while asserting mutual-exclusion behaviour.
package mock

import (
	"context"
	"sync"

	"github.com/opicoach/opicoach/pkg/audio"
)

// Sink is a mock implementation of audio.Sink.
type Sink struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// SampleRate is reported by Format. Defaults to 48000.
	SampleRate int

	// PlayErr, if non-nil, is returned from Play.
	PlayErr error

	// Block, if set, makes each Play call wait until released or the
	// context is cancelled. Use it to hold a playback open.
	Block chan struct{}

	// --- Call records ---

	// PlayCalls records every clip passed to Play in order.
	PlayCalls []audio.Clip

	// CloseCalls counts invocations of Close.
	CloseCalls int

	// sounding tracks Play calls that have not yet returned.
	sounding int
}

// Format implements audio.Sink.
func (s *Sink) Format() audio.Format {
	s.mu.Lock()
	defer s.mu.Unlock()
	rate := s.SampleRate
	if rate == 0 {
		rate = 48000
	}
	return audio.Format{SampleRate: rate, Channels: 1}
}

// Play records the clip and returns the configured response.
func (s *Sink) Play(ctx context.Context, clip audio.Clip) error {
	s.mu.Lock()
	s.PlayCalls = append(s.PlayCalls, clip)
	s.sounding++
	block, err := s.Block, s.PlayErr
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.sounding--
		s.mu.Unlock()
	}()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// Close records the call.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCalls++
	return nil
}

// Sounding returns the number of Play calls currently in progress.
// Thread-safe.
func (s *Sink) Sounding() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sounding
}

// CallCount returns the number of Play invocations. Thread-safe.
func (s *Sink) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.PlayCalls)
}

// Reset clears all recorded calls. Thread-safe.
func (s *Sink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PlayCalls = nil
	s.CloseCalls = 0
}

// Ensure Sink implements audio.Sink at compile time.
var _ audio.Sink = (*Sink)(nil)
