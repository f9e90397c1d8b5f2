// Package sessionlog defines the structured log store boundary for study
// sessions and per-unit progress. The pipeline treats this store as the
// source of truth: a session exists once Append returns, and the background
// synthesis job later fills in the model-audio link via SetModelAudio.
package sessionlog

import (
	"context"

	"github.com/opicoach/opicoach/pkg/study"
)

// Store is a row-oriented log of study sessions plus unit progress
// aggregates. All methods are safe for concurrent use.
type Store interface {
	// Append persists a new session. The session's ID must be unique.
	Append(ctx context.Context, s study.StudySession) error

	// Find returns the session with the given id. The bool reports whether
	// it exists; a missing row is not an error.
	Find(ctx context.Context, id string) (study.StudySession, bool, error)

	// SetModelAudio updates the model-audio link of an existing session in
	// place. Updating a missing session is an error.
	SetModelAudio(ctx context.Context, id string, ref string) error

	// Delete removes the session row. The bool reports whether a row was
	// actually deleted.
	Delete(ctx context.Context, id string) (bool, error)

	// ListByUnit returns all sessions for a unit, newest first.
	ListByUnit(ctx context.Context, unitID string) ([]study.StudySession, error)

	// ListAll returns every session, newest first.
	ListAll(ctx context.Context) ([]study.StudySession, error)

	// UnitProgress returns the progress aggregate for a unit. The bool
	// reports whether one has been recorded.
	UnitProgress(ctx context.Context, unitID string) (study.UnitProgress, bool, error)

	// PutUnitProgress inserts or replaces a unit's progress aggregate.
	PutUnitProgress(ctx context.Context, p study.UnitProgress) error

	// ResetUnitProgress marks a unit incomplete with the placeholder grade
	// and a cleared last-practiced timestamp.
	ResetUnitProgress(ctx context.Context, unitID string) error
}
