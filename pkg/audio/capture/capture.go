// Package capture defines the audio input device boundary. A Device yields a
// Stream of ordered, encoded audio chunks; the recording controller owns the
// stream lifecycle and never touches the transport directly.
//
// Implementations live in subpackages (wsgateway for the websocket capture
// gateway, mock for tests).
package capture

import (
	"context"
	"errors"
)

// ErrPermissionDenied is returned by Acquire when the input device exists but
// access to it was refused. Callers treat this as a user-visible condition,
// not a transient fault.
var ErrPermissionDenied = errors.New("capture: permission denied")

// Device acquires an audio input stream.
type Device interface {
	// Acquire opens the input device and starts delivering chunks. The
	// returned stream is exclusive; a second Acquire before Close is
	// implementation-defined and callers must not rely on it.
	Acquire(ctx context.Context) (Stream, error)
}

// Stream is one live capture session.
type Stream interface {
	// Chunks returns the channel of ordered encoded audio chunks. The
	// channel is closed when the device stops delivering, whether by Close
	// or by transport failure.
	Chunks() <-chan []byte

	// Close releases the input device and stops chunk delivery.
	Close() error
}
