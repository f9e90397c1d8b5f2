// Package speech defines the generative speech-synthesis backend interface.
// Implementations return raw little-endian 16-bit mono PCM at a fixed sample
// rate; any non-2xx response or malformed payload is a hard failure with no
// retry.
package speech

import (
	"context"

	"github.com/opicoach/opicoach/pkg/audio"
)

// Synthesizer converts text into raw PCM audio.
type Synthesizer interface {
	// Synthesize renders text with the given voice and returns raw mono
	// little-endian int16 samples at Format().SampleRate. voice may be empty
	// to use the implementation's default.
	Synthesize(ctx context.Context, text, voice string) ([]byte, error)

	// Format returns the fixed output format of Synthesize results.
	Format() audio.Format
}
