package audio

import "context"

// Sink renders PCM to an output device. Implementations live in subpackages
// and mock; the playback controller is the only writer and guarantees at
// most one Play call is active at a time.
type Sink interface {
	// Format returns the PCM format the sink expects. Callers resample and
	// downmix clips to this format before Play.
	Format() Format

	// Play renders the clip to completion. It blocks until the clip has
	// finished or ctx is cancelled; cancellation stops output promptly and
	// returns ctx.Err().
	Play(ctx context.Context, clip Clip) error

	// Close releases the output device.
	Close() error
}
