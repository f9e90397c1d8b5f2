// Package wavsink implements an audio.Sink that renders each clip to a
// timestamped WAV file in a directory. It is the default output for headless
// deployments where no sound device exists; clients pick the files up from
// disk or a mounted volume.
package wavsink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/opicoach/opicoach/pkg/audio"
)

const defaultSampleRate = 48000

// Option is a functional option for configuring a [Sink].
type Option func(*Sink)

// WithSampleRate sets the PCM rate clips are expected in. Default: 48000.
func WithSampleRate(rate int) Option {
	return func(s *Sink) {
		if rate > 0 {
			s.sampleRate = rate
		}
	}
}

// Sink writes clips as WAV files. Safe for concurrent use.
type Sink struct {
	dir        string
	sampleRate int
	seq        atomic.Uint64
}

// New creates a Sink writing into dir, creating it if needed.
func New(dir string, opts ...Option) (*Sink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("wavsink: create dir %q: %w", dir, err)
	}
	s := &Sink{dir: dir, sampleRate: defaultSampleRate}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Format implements audio.Sink.
func (s *Sink) Format() audio.Format {
	return audio.Format{SampleRate: s.sampleRate, Channels: 1}
}

// Play writes the clip to a new WAV file. It returns as soon as the file is
// on disk; there is no real-time pacing to cancel mid-clip.
func (s *Sink) Play(ctx context.Context, clip audio.Clip) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	n := s.seq.Add(1)
	name := fmt.Sprintf("%s-%04d.wav", time.Now().UTC().Format("20060102T150405"), n)
	path := filepath.Join(s.dir, name)

	data := audio.EncodeWAV(clip.PCM, clip.SampleRate, clip.Channels)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("wavsink: write %q: %w", path, err)
	}
	return nil
}

// Close implements audio.Sink.
func (s *Sink) Close() error {
	return nil
}

// Ensure Sink implements audio.Sink at compile time.
var _ audio.Sink = (*Sink)(nil)
