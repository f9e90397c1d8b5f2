// Package grader defines the generative grading backend interface. A single
// call uploads the recorded answer and returns the transcript, an objective
// proficiency grade, coaching feedback, and a stylized three-part model
// answer with translation.
//
// Style independence contract: the StyleDirection on a Request may change
// only the phrasing of the correction and its translation. Transcript, level,
// and feedback must be computed as if no style were set. This is enforced by
// the instruction text sent to the backend, not by code; tests exercise it
// with response fixtures.
package grader

import (
	"context"
	"errors"

	"github.com/opicoach/opicoach/pkg/study"
)

// ErrNonConforming marks a backend response that could not be parsed into a
// complete Result. Callers treat it as a terminal failure for the attempt.
var ErrNonConforming = errors.New("grader: non-conforming response")

// Request is one combined grading + rewrite request.
type Request struct {
	// Audio is the finalized recording.
	Audio []byte

	// MIMEType describes Audio (e.g. "audio/wav").
	MIMEType string

	// Question is the practice question the learner answered.
	Question string

	// Keywords are the free-text keywords the learner was asked to use.
	Keywords []string

	// Style selects the rewrite policy for the model answer.
	Style study.StyleDirection
}

// Result is the parsed structured response. All fields are required except
// Feedback; a response missing any required field fails with ErrNonConforming.
type Result struct {
	Transcript  string
	Level       study.Level
	Feedback    string
	Correction  study.ThreePart
	Translation study.ThreePart
}

// Provider is a generative grading backend.
type Provider interface {
	// Grade issues one combined objective-grading + stylized-rewrite call.
	// There is no retry; any failure is terminal for the attempt.
	Grade(ctx context.Context, req Request) (*Result, error)
}
