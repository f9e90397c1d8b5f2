// Package mock provides a test double for the capture.Device interface.
//
// Use Device to feed scripted audio chunks to a recording controller and to
// verify acquire/close behaviour.
//
// Example:
//
//	d := &mock.Device{Chunks: [][]byte{[]byte("c1"), []byte("c2")}}
//	stream, _ := d.Acquire(ctx)
//	for chunk := range stream.Chunks() { ... }
package mock

import (
	"context"
	"sync"

	"github.com/opicoach/opicoach/pkg/audio/capture"
)

// AcquireCall records a single invocation of Acquire.
type AcquireCall struct {
	// Ctx is the context passed to Acquire.
	Ctx context.Context
}

// Device is a mock implementation of capture.Device.
type Device struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Chunks is the sequence of chunks each acquired stream emits before its
	// channel closes.
	Chunks [][]byte

	// AcquireErr, if non-nil, is returned from Acquire instead of a stream.
	AcquireErr error

	// HoldOpen, if true, keeps each stream's channel open after emitting
	// Chunks until Close is called. Use this to test explicit stop paths.
	HoldOpen bool

	// --- Call records ---

	// AcquireCalls records every call to Acquire in order.
	AcquireCalls []AcquireCall

	// Streams records every stream handed out, in order.
	Streams []*Stream
}

// Acquire records the call and, if AcquireErr is nil, returns a stream that
// emits Chunks.
func (d *Device) Acquire(ctx context.Context) (capture.Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.AcquireCalls = append(d.AcquireCalls, AcquireCall{Ctx: ctx})
	if d.AcquireErr != nil {
		return nil, d.AcquireErr
	}

	s := &Stream{ch: make(chan []byte, len(d.Chunks)+1), holdOpen: d.HoldOpen}
	for _, c := range d.Chunks {
		s.ch <- c
	}
	if !d.HoldOpen {
		close(s.ch)
		s.closed = true
	}
	d.Streams = append(d.Streams, s)
	return s, nil
}

// Reset clears all recorded calls and streams. Thread-safe.
func (d *Device) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.AcquireCalls = nil
	d.Streams = nil
}

// Stream is the capture.Stream handed out by Device.
type Stream struct {
	mu       sync.Mutex
	ch       chan []byte
	holdOpen bool
	closed   bool

	// CloseCalls counts invocations of Close.
	CloseCalls int
}

// Chunks returns the scripted chunk channel.
func (s *Stream) Chunks() <-chan []byte {
	return s.ch
}

// Emit pushes an additional chunk onto an open stream. Only valid with
// HoldOpen before Close.
func (s *Stream) Emit(chunk []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.ch <- chunk
}

// Close records the call and closes the chunk channel if still open.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCalls++
	if !s.closed {
		close(s.ch)
		s.closed = true
	}
	return nil
}

// Closed reports whether the stream has been closed.
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Ensure mock types satisfy the capture interfaces at compile time.
var (
	_ capture.Device = (*Device)(nil)
	_ capture.Stream = (*Stream)(nil)
)
