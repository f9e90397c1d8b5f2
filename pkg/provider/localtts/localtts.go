// Package localtts defines the on-device speech synthesizer used for
// low-fidelity question playback. Utterances are fire-and-forget with no
// structured result and no cache interaction.
package localtts

import "context"

// Engine speaks text through an on-device synthesizer.
type Engine interface {
	// Speak starts an utterance. It returns once the utterance has started;
	// completion is not reported. A second Speak cancels the first.
	Speak(ctx context.Context, text string) error

	// Stop cancels any in-progress utterance. Safe to call when idle.
	Stop()
}
