package recording

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/opicoach/opicoach/pkg/audio/capture"
	capmock "github.com/opicoach/opicoach/pkg/audio/capture/mock"
)

// passthroughDecoder returns chunks unchanged so tests can assert on the
// finalized PCM without real Opus data.
type passthroughDecoder struct{}

func (passthroughDecoder) Decode(chunk []byte) ([]byte, error) { return chunk, nil }

func newTestController(d *capmock.Device) *Controller {
	return NewController(d, WithDecoderFactory(func() (Decoder, error) {
		return passthroughDecoder{}, nil
	}))
}

func TestController_RecordAndStop(t *testing.T) {
	t.Parallel()

	device := &capmock.Device{Chunks: [][]byte{{1, 1}, {2, 2}, {3, 3}}}
	c := newTestController(device)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := c.State(); got != StateRecording {
		t.Fatalf("state after Start = %q, want recording", got)
	}

	clip, err := c.Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if want := []byte{1, 1, 2, 2, 3, 3}; string(clip.PCM) != string(want) {
		t.Errorf("clip PCM = %v, want %v", clip.PCM, want)
	}
	if got := c.State(); got != StateIdle {
		t.Errorf("state after Stop = %q, want idle", got)
	}
	if device.Streams[0].CloseCalls == 0 {
		t.Error("stream should be closed on Stop")
	}
}

func TestController_CancelDiscardsEverything(t *testing.T) {
	t.Parallel()

	device := &capmock.Device{Chunks: [][]byte{{1}, {2}}}
	c := newTestController(device)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	c.Cancel()

	clip, err := c.Stop(context.Background())
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("Stop after Cancel: err = %v, want ErrCancelled", err)
	}
	if len(clip.PCM) != 0 {
		t.Error("cancelled session must never emit a clip")
	}
	if !device.Streams[0].Closed() {
		t.Error("device stream must be released on cancellation")
	}
	if got := c.State(); got != StateIdle {
		t.Errorf("state after cancelled Stop = %q, want idle", got)
	}
}

func TestController_SecondStartRejected(t *testing.T) {
	t.Parallel()

	device := &capmock.Device{HoldOpen: true}
	c := newTestController(device)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := c.Start(context.Background()); !errors.Is(err, ErrSessionActive) {
		t.Errorf("second Start: err = %v, want ErrSessionActive", err)
	}
	if _, err := c.Stop(context.Background()); err == nil {
		// No chunks were captured; error is fine, just must return to idle.
		t.Log("stop of empty session succeeded unexpectedly")
	}
	if got := c.State(); got != StateIdle {
		t.Errorf("state = %q, want idle", got)
	}
}

func TestController_PermissionDenied(t *testing.T) {
	t.Parallel()

	device := &capmock.Device{AcquireErr: capture.ErrPermissionDenied}
	c := newTestController(device)

	err := c.Start(context.Background())
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("Start: err = %v, want ErrPermissionDenied", err)
	}
	if got := c.State(); got != StateIdle {
		t.Errorf("state after denied Start = %q, want idle", got)
	}

	// The controller must be usable again.
	device.AcquireErr = nil
	device.Chunks = [][]byte{{7}}
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start after recovery: %v", err)
	}
	if _, err := c.Stop(context.Background()); err != nil {
		t.Fatalf("Stop after recovery: %v", err)
	}
}

func TestController_PauseDropsChunks(t *testing.T) {
	t.Parallel()

	device := &capmock.Device{HoldOpen: true}
	c := newTestController(device)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	stream := device.Streams[0]

	stream.Emit([]byte{1})
	waitForSeen(t, c, 1)

	c.Pause()
	if got := c.State(); got != StatePaused {
		t.Fatalf("state after Pause = %q, want paused", got)
	}
	stream.Emit([]byte{2})
	waitForSeen(t, c, 2)

	c.Resume()
	stream.Emit([]byte{3})
	waitForSeen(t, c, 3)

	clip, err := c.Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if want := []byte{1, 3}; string(clip.PCM) != string(want) {
		t.Errorf("clip PCM = %v, want %v (paused chunk dropped)", clip.PCM, want)
	}
}

func TestController_PauseResumeNoOpWhenIdle(t *testing.T) {
	t.Parallel()

	c := newTestController(&capmock.Device{})
	c.Pause()
	c.Resume()
	c.Cancel()
	if got := c.State(); got != StateIdle {
		t.Errorf("state = %q, want idle", got)
	}
	if _, err := c.Stop(context.Background()); !errors.Is(err, ErrNoSession) {
		t.Errorf("Stop when idle: err = %v, want ErrNoSession", err)
	}
}

// waitForSeen blocks until the collector has observed n chunks, counting
// ones dropped while paused. The collector runs on its own goroutine, so
// emission is asynchronous.
func waitForSeen(t *testing.T, c *Controller, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		got := 0
		if c.sess != nil {
			got = c.sess.seen
		}
		c.mu.Unlock()
		if got >= n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d observed chunks", n)
}
