package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/opicoach/opicoach/pkg/audio"
	"github.com/opicoach/opicoach/pkg/audio/capture"
	"github.com/opicoach/opicoach/pkg/provider/grader"
	"github.com/opicoach/opicoach/pkg/provider/localtts"
	"github.com/opicoach/opicoach/pkg/provider/speech"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// provider type. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	grader   map[string]func(ProviderEntry) (grader.Provider, error)
	speech   map[string]func(ProviderEntry) (speech.Synthesizer, error)
	localTTS map[string]func(ProviderEntry) (localtts.Engine, error)
	capture  map[string]func(ProviderEntry) (capture.Device, error)
	sink     map[string]func(ProviderEntry) (audio.Sink, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		grader:   make(map[string]func(ProviderEntry) (grader.Provider, error)),
		speech:   make(map[string]func(ProviderEntry) (speech.Synthesizer, error)),
		localTTS: make(map[string]func(ProviderEntry) (localtts.Engine, error)),
		capture:  make(map[string]func(ProviderEntry) (capture.Device, error)),
		sink:     make(map[string]func(ProviderEntry) (audio.Sink, error)),
	}
}

// RegisterGrader registers a grading provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterGrader(name string, factory func(ProviderEntry) (grader.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.grader[name] = factory
}

// RegisterSpeech registers a speech-synthesis provider factory under name.
func (r *Registry) RegisterSpeech(name string, factory func(ProviderEntry) (speech.Synthesizer, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.speech[name] = factory
}

// RegisterLocalTTS registers an on-device synthesizer factory under name.
func (r *Registry) RegisterLocalTTS(name string, factory func(ProviderEntry) (localtts.Engine, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.localTTS[name] = factory
}

// RegisterCapture registers a capture device factory under name.
func (r *Registry) RegisterCapture(name string, factory func(ProviderEntry) (capture.Device, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.capture[name] = factory
}

// RegisterSink registers a playback sink factory under name.
func (r *Registry) RegisterSink(name string, factory func(ProviderEntry) (audio.Sink, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sink[name] = factory
}

// CreateGrader instantiates a grading provider using the factory registered
// under entry.Name. Returns [ErrProviderNotRegistered] if no factory has
// been registered for that name.
func (r *Registry) CreateGrader(entry ProviderEntry) (grader.Provider, error) {
	r.mu.RLock()
	factory, ok := r.grader[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: grader/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateSpeech instantiates a speech-synthesis provider using the factory
// registered under entry.Name.
func (r *Registry) CreateSpeech(entry ProviderEntry) (speech.Synthesizer, error) {
	r.mu.RLock()
	factory, ok := r.speech[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: speech/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateLocalTTS instantiates an on-device synthesizer using the factory
// registered under entry.Name.
func (r *Registry) CreateLocalTTS(entry ProviderEntry) (localtts.Engine, error) {
	r.mu.RLock()
	factory, ok := r.localTTS[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: local_tts/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateCapture instantiates a capture device using the factory registered
// under entry.Name.
func (r *Registry) CreateCapture(entry ProviderEntry) (capture.Device, error) {
	r.mu.RLock()
	factory, ok := r.capture[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: capture/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateSink instantiates a playback sink using the factory registered under
// entry.Name.
func (r *Registry) CreateSink(entry ProviderEntry) (audio.Sink, error) {
	r.mu.RLock()
	factory, ok := r.sink[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: sink/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}
