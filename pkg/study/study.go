// Package study defines the shared domain types of the Opicoach pipeline.
//
// These types form the lingua franca between the recording, grading,
// synthesis, and playback subsystems and the external stores. Each subsystem
// defines its own working types, but cross-cutting data structures live here
// to avoid circular imports.
package study

import (
	"fmt"
	"time"
)

// Level is a discrete speaking-proficiency grade drawn from a fixed ordered
// scale (novice low through advanced low).
type Level string

const (
	LevelNL Level = "NL"
	LevelNM Level = "NM"
	LevelNH Level = "NH"
	LevelIL Level = "IL"
	LevelIM Level = "IM"
	LevelIH Level = "IH"
	LevelAL Level = "AL"
)

// levelOrder lists all levels from lowest to highest proficiency.
var levelOrder = []Level{LevelNL, LevelNM, LevelNH, LevelIL, LevelIM, LevelIH, LevelAL}

// IsValid reports whether l is a recognised proficiency level.
func (l Level) IsValid() bool {
	for _, v := range levelOrder {
		if l == v {
			return true
		}
	}
	return false
}

// Index returns the position of l on the ordered scale (0 = lowest).
// Returns -1 for an unrecognised level.
func (l Level) Index() int {
	for i, v := range levelOrder {
		if l == v {
			return i
		}
	}
	return -1
}

// Above reports whether l is a strictly higher grade than other.
// Unrecognised levels compare below every valid level.
func (l Level) Above(other Level) bool {
	return l.Index() > other.Index()
}

// ParseLevel converts a backend-reported grade string into a Level.
// Returns an error for values outside the fixed scale.
func ParseLevel(s string) (Level, error) {
	l := Level(s)
	if !l.IsValid() {
		return "", fmt.Errorf("study: unknown proficiency level %q", s)
	}
	return l, nil
}

// StyleDirection selects one of the mutually exclusive rewrite policies
// attached to a grading request. It affects only how the model answer is
// phrased — never the objective grade; that independence is enforced by the
// instruction text sent to the backend (see the grader provider docs).
type StyleDirection string

const (
	// StyleDefault applies no special rewrite policy.
	StyleDefault StyleDirection = ""

	// StyleEasy rewrites using simple vocabulary and short sentences.
	StyleEasy StyleDirection = "EASY"

	// StyleNative rewrites in idiomatic, natural-sounding phrasing.
	StyleNative StyleDirection = "NATIVE"

	// StyleStoryteller rewrites as a vivid first-person narrative.
	StyleStoryteller StyleDirection = "STORYTELLER"
)

// IsValid reports whether s is a recognised style direction.
func (s StyleDirection) IsValid() bool {
	switch s {
	case StyleDefault, StyleEasy, StyleNative, StyleStoryteller:
		return true
	}
	return false
}

// StudySession is one graded practice attempt tied to a single recorded
// answer. It is immutable once created except for ModelAudioRef, which the
// background synthesis job fills in asynchronously after the row has been
// persisted.
type StudySession struct {
	// ID uniquely identifies the session. Generated at recording completion.
	ID string

	// CreatedAt is when the recording was finalized.
	CreatedAt time.Time

	// UnitID references the curriculum unit / question this attempt answers.
	UnitID string

	// Question is the practice question text as presented to the learner.
	Question string

	// Keywords are the free-text keywords the learner was asked to use.
	Keywords []string

	// Transcript is the verbatim transcript reported by the grading backend.
	Transcript string

	// RawAudioRef links the uploaded raw recording in the blob store.
	RawAudioRef string

	// Level is the predicted proficiency grade.
	Level Level

	// Correction is the rewritten model answer.
	Correction ThreePart

	// Translation is the model answer translated for the learner.
	Translation ThreePart

	// Feedback is free-text coaching feedback from the backend.
	Feedback string

	// MatchedKeywords is the subset of Keywords detected in the transcript.
	MatchedKeywords []string

	// ModelAudioRef links the synthesized model-answer audio in the blob
	// store. Empty until the synthesis job completes successfully; a failed
	// job leaves it empty and is never retried automatically.
	ModelAudioRef string
}

// UnitProgress is the persisted per-unit aggregate updated after each
// successful analysis and reset when deletion empties a unit's history.
type UnitProgress struct {
	UnitID string

	// Completed is true once the unit has at least one graded session.
	Completed bool

	// Grade is the best level achieved for the unit, or "-" when reset.
	Grade string

	// LastPracticed is the timestamp of the most recent session, or zero
	// when reset.
	LastPracticed time.Time
}

// ResetUnitGrade is the placeholder grade of a unit with no remaining history.
const ResetUnitGrade = "-"
