package synthesis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/opicoach/opicoach/internal/speechcache"
	speechmock "github.com/opicoach/opicoach/pkg/provider/speech/mock"
	blobmock "github.com/opicoach/opicoach/pkg/store/blob/mock"
	logmock "github.com/opicoach/opicoach/pkg/store/sessionlog/mock"
	"github.com/opicoach/opicoach/pkg/study"
)

func fixtureSession() study.StudySession {
	return study.StudySession{
		ID:     "sess-1",
		UnitID: "unit-3",
		Level:  study.LevelIM,
		Correction: study.ThreePart{
			Intro:      "I love staying active.",
			Body:       "Almost every morning I jog in the park.",
			Conclusion: "It keeps me energized.",
		},
	}
}

func TestRunner_Run(t *testing.T) {
	t.Parallel()

	synth := &speechmock.Synthesizer{PCM: []byte{9, 0, 8, 0}}
	cache := speechcache.New()
	blobs := &blobmock.Store{}
	log := &logmock.Store{}
	sess := fixtureSession()
	if err := log.Append(context.Background(), sess); err != nil {
		t.Fatalf("Append: %v", err)
	}

	r := NewRunner(synth, cache, blobs, log)
	if err := r.Run(context.Background(), sess); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Backend called once with the flattened model answer.
	if synth.CallCount() != 1 {
		t.Fatalf("synthesize calls = %d, want 1", synth.CallCount())
	}
	if got, want := synth.SynthesizeCalls[0].Text, sess.Correction.Flatten(); got != want {
		t.Errorf("synthesized text = %q, want %q", got, want)
	}

	// Cache seeded under the normalized key.
	key := speechcache.NormalizeKey(sess.Correction.Flatten())
	if pcm, ok := cache.Get(key); !ok || len(pcm) == 0 {
		t.Error("cache was not seeded with the synthesized audio")
	}

	// Asset uploaded and linked on the persisted session.
	if len(blobs.UploadCalls) != 1 {
		t.Fatalf("upload calls = %d, want 1", len(blobs.UploadCalls))
	}
	stored, ok, err := log.Find(context.Background(), sess.ID)
	if err != nil || !ok {
		t.Fatalf("Find: ok=%v err=%v", ok, err)
	}
	if stored.ModelAudioRef == "" {
		t.Error("model audio link was not set")
	}

	// Slot is free again.
	if _, held := r.InFlight(); held {
		t.Error("in-flight marker still held after completion")
	}
}

func TestRunner_Run_SecondJobRejected(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	synth := &speechmock.Synthesizer{Delay: release}
	r := NewRunner(synth, speechcache.New(), &blobmock.Store{}, &logmock.Store{})

	sess := fixtureSession()
	var wg sync.WaitGroup
	wg.Add(1)
	firstErr := make(chan error, 1)
	go func() {
		defer wg.Done()
		firstErr <- r.Run(context.Background(), sess)
	}()

	// Wait until the first job holds the slot.
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, held := r.InFlight(); held {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("first job never claimed the slot")
		}
		time.Sleep(time.Millisecond)
	}

	second := fixtureSession()
	second.ID = "sess-2"
	if err := r.Run(context.Background(), second); !errors.Is(err, ErrJobInFlight) {
		t.Errorf("second Run err = %v, want ErrJobInFlight", err)
	}

	close(release)
	wg.Wait()
	if err := <-firstErr; err == nil {
		// First job fails at SetModelAudio since the mock log has no row,
		// which is fine; the marker behaviour is what is under test.
		_ = err
	}
}

func TestRunner_Run_MarkerReleasedOnBackendFailure(t *testing.T) {
	t.Parallel()

	synth := &speechmock.Synthesizer{Err: errors.New("tts down")}
	blobs := &blobmock.Store{}
	log := &logmock.Store{}
	r := NewRunner(synth, speechcache.New(), blobs, log)

	err := r.Run(context.Background(), fixtureSession())
	if err == nil {
		t.Fatal("Run succeeded, want backend error")
	}

	if _, held := r.InFlight(); held {
		t.Error("in-flight marker still held after failure")
	}
	if len(blobs.UploadCalls) != 0 {
		t.Error("upload attempted after backend failure")
	}
	if len(log.ModelAudioUpdates) != 0 {
		t.Error("model audio link updated after backend failure")
	}
}

func TestRunner_Run_MarkerReleasedOnTimeout(t *testing.T) {
	t.Parallel()

	synth := &speechmock.Synthesizer{Delay: make(chan struct{})}
	r := NewRunner(synth, speechcache.New(), &blobmock.Store{}, &logmock.Store{},
		WithTimeout(10*time.Millisecond))

	err := r.Run(context.Background(), fixtureSession())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	if _, held := r.InFlight(); held {
		t.Error("in-flight marker still held after timeout")
	}
}

func TestRunner_Run_UploadFailureLeavesLinkUnset(t *testing.T) {
	t.Parallel()

	blobs := &blobmock.Store{UploadErr: errors.New("storage down")}
	log := &logmock.Store{}
	cache := speechcache.New()
	sess := fixtureSession()
	if err := log.Append(context.Background(), sess); err != nil {
		t.Fatalf("Append: %v", err)
	}

	r := NewRunner(&speechmock.Synthesizer{}, cache, blobs, log)
	if err := r.Run(context.Background(), sess); err == nil {
		t.Fatal("Run succeeded, want upload error")
	}

	stored, _, _ := log.Find(context.Background(), sess.ID)
	if stored.ModelAudioRef != "" {
		t.Error("model audio link set despite upload failure")
	}
	// The cache still carries the synthesized audio for local playback.
	if cache.Len() != 1 {
		t.Errorf("cache entries = %d, want 1", cache.Len())
	}
}

func TestRunner_Run_EmptyModelAnswer(t *testing.T) {
	t.Parallel()

	synth := &speechmock.Synthesizer{}
	r := NewRunner(synth, speechcache.New(), &blobmock.Store{}, &logmock.Store{})

	sess := fixtureSession()
	sess.Correction = study.ThreePart{}
	if err := r.Run(context.Background(), sess); err == nil {
		t.Fatal("Run succeeded with empty model answer")
	}
	if synth.CallCount() != 0 {
		t.Error("backend called for empty model answer")
	}
}

func TestRunner_InFlight_MarkerFields(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	synth := &speechmock.Synthesizer{Delay: release}
	r := NewRunner(synth, speechcache.New(), &blobmock.Store{}, &logmock.Store{})

	sess := fixtureSession()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = r.Run(context.Background(), sess)
	}()

	deadline := time.Now().Add(2 * time.Second)
	var m Marker
	for {
		var held bool
		if m, held = r.InFlight(); held {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("job never claimed the slot")
		}
		time.Sleep(time.Millisecond)
	}

	if m.SessionID != sess.ID {
		t.Errorf("marker session = %q, want %q", m.SessionID, sess.ID)
	}
	if want := speechcache.NormalizeKey(sess.Correction.Flatten()); m.Key != want {
		t.Errorf("marker key = %q, want %q", m.Key, want)
	}

	close(release)
	select {
	case <-m.Done:
	case <-time.After(2 * time.Second):
		t.Fatal("marker done channel never closed")
	}
	<-done
}
