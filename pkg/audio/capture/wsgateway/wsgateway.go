// Package wsgateway implements capture.Device over a websocket capture
// gateway. The gateway runs next to the actual microphone (a browser or a
// companion process) and relays ordered Opus packets as binary frames; text
// frames carry JSON control messages.
package wsgateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/coder/websocket"

	"github.com/opicoach/opicoach/pkg/audio/capture"
)

// Option is a functional option for configuring the Device.
type Option func(*Device)

// WithChunkBuffer sets the capacity of the chunk channel. Defaults to 256.
func WithChunkBuffer(n int) Option {
	return func(d *Device) {
		if n > 0 {
			d.chunkBuffer = n
		}
	}
}

// Device implements capture.Device backed by a websocket capture gateway.
type Device struct {
	url         string
	token       string
	chunkBuffer int
}

var _ capture.Device = (*Device)(nil)

// New creates a Device for the gateway at url. url must be non-empty; token
// is sent as a bearer credential and may be empty for unauthenticated
// gateways.
func New(url, token string, opts ...Option) (*Device, error) {
	if url == "" {
		return nil, errors.New("wsgateway: url must not be empty")
	}
	d := &Device{
		url:         url,
		token:       token,
		chunkBuffer: 256,
	}
	for _, o := range opts {
		o(d)
	}
	return d, nil
}

// controlMessage is a JSON text frame exchanged with the gateway.
type controlMessage struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}

// Acquire dials the gateway and starts the capture stream. A 401/403 during
// the handshake, or a "permission_denied" control message before the first
// audio frame, maps to capture.ErrPermissionDenied.
func (d *Device) Acquire(ctx context.Context) (capture.Stream, error) {
	var opts *websocket.DialOptions
	if d.token != "" {
		opts = &websocket.DialOptions{
			HTTPHeader: http.Header{"Authorization": []string{"Bearer " + d.token}},
		}
	}

	conn, resp, err := websocket.Dial(ctx, d.url, opts)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("wsgateway: dial %s: %w", d.url, capture.ErrPermissionDenied)
		}
		return nil, fmt.Errorf("wsgateway: dial %s: %w", d.url, err)
	}

	start, _ := json.Marshal(controlMessage{Type: "start"})
	if err := conn.Write(ctx, websocket.MessageText, start); err != nil {
		conn.Close(websocket.StatusInternalError, "failed to send start")
		return nil, fmt.Errorf("wsgateway: send start: %w", err)
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	s := &stream{
		conn:   conn,
		chunks: make(chan []byte, d.chunkBuffer),
		cancel: cancel,
	}
	go s.readLoop(streamCtx)
	return s, nil
}

// stream is one live gateway connection.
type stream struct {
	conn   *websocket.Conn
	chunks chan []byte
	cancel context.CancelFunc
}

var _ capture.Stream = (*stream)(nil)

func (s *stream) Chunks() <-chan []byte {
	return s.chunks
}

// readLoop relays binary frames into the chunk channel until the connection
// drops or the stream is closed. Control frames signalling an error end the
// stream; everything else is ignored.
func (s *stream) readLoop(ctx context.Context) {
	defer close(s.chunks)
	for {
		typ, data, err := s.conn.Read(ctx)
		if err != nil {
			return
		}
		switch typ {
		case websocket.MessageBinary:
			select {
			case s.chunks <- data:
			case <-ctx.Done():
				return
			}
		case websocket.MessageText:
			var msg controlMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			if msg.Type == "error" || msg.Type == "permission_denied" {
				return
			}
		}
	}
}

// Close sends a stop control message, tears down the connection, and stops
// chunk delivery. Safe to call more than once.
func (s *stream) Close() error {
	s.cancel()
	stop, _ := json.Marshal(controlMessage{Type: "stop"})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_ = s.conn.Write(ctx, websocket.MessageText, stop)
	return s.conn.Close(websocket.StatusNormalClosure, "done")
}
