// Package mock provides an in-memory test double for the sessionlog.Store
// interface.
package mock

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/opicoach/opicoach/pkg/store/sessionlog"
	"github.com/opicoach/opicoach/pkg/study"
)

// Store is a mock implementation of sessionlog.Store holding rows in memory.
type Store struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// AppendErr, if non-nil, is returned from Append.
	AppendErr error

	// SetModelAudioErr, if non-nil, is returned from SetModelAudio.
	SetModelAudioErr error

	// DeleteErr, if non-nil, is returned from Delete.
	DeleteErr error

	// --- Call records ---

	// Appended records every session passed to Append in order.
	Appended []study.StudySession

	// ModelAudioUpdates records (id, ref) pairs passed to SetModelAudio.
	ModelAudioUpdates []ModelAudioUpdate

	// Deleted records ids passed to Delete in order.
	Deleted []string

	// ResetUnits records unit ids passed to ResetUnitProgress in order.
	ResetUnits []string

	sessions map[string]study.StudySession
	progress map[string]study.UnitProgress
}

// ModelAudioUpdate is one recorded SetModelAudio call.
type ModelAudioUpdate struct {
	ID  string
	Ref string
}

// Append implements sessionlog.Store.
func (s *Store) Append(ctx context.Context, sess study.StudySession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Appended = append(s.Appended, sess)
	if s.AppendErr != nil {
		return s.AppendErr
	}
	if s.sessions == nil {
		s.sessions = make(map[string]study.StudySession)
	}
	s.sessions[sess.ID] = sess
	return nil
}

// Find implements sessionlog.Store.
func (s *Store) Find(ctx context.Context, id string) (study.StudySession, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	return sess, ok, nil
}

// SetModelAudio implements sessionlog.Store.
func (s *Store) SetModelAudio(ctx context.Context, id string, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ModelAudioUpdates = append(s.ModelAudioUpdates, ModelAudioUpdate{ID: id, Ref: ref})
	if s.SetModelAudioErr != nil {
		return s.SetModelAudioErr
	}
	sess, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("mock: no session %q", id)
	}
	sess.ModelAudioRef = ref
	s.sessions[id] = sess
	return nil
}

// Delete implements sessionlog.Store.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Deleted = append(s.Deleted, id)
	if s.DeleteErr != nil {
		return false, s.DeleteErr
	}
	_, ok := s.sessions[id]
	delete(s.sessions, id)
	return ok, nil
}

// ListByUnit implements sessionlog.Store.
func (s *Store) ListByUnit(ctx context.Context, unitID string) ([]study.StudySession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []study.StudySession
	for _, sess := range s.sessions {
		if sess.UnitID == unitID {
			out = append(out, sess)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

// ListAll implements sessionlog.Store.
func (s *Store) ListAll(ctx context.Context) ([]study.StudySession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]study.StudySession, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	sortNewestFirst(out)
	return out, nil
}

// UnitProgress implements sessionlog.Store.
func (s *Store) UnitProgress(ctx context.Context, unitID string) (study.UnitProgress, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.progress[unitID]
	return p, ok, nil
}

// PutUnitProgress implements sessionlog.Store.
func (s *Store) PutUnitProgress(ctx context.Context, p study.UnitProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.progress == nil {
		s.progress = make(map[string]study.UnitProgress)
	}
	s.progress[p.UnitID] = p
	return nil
}

// ResetUnitProgress implements sessionlog.Store.
func (s *Store) ResetUnitProgress(ctx context.Context, unitID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ResetUnits = append(s.ResetUnits, unitID)
	if s.progress == nil {
		s.progress = make(map[string]study.UnitProgress)
	}
	s.progress[unitID] = study.UnitProgress{
		UnitID: unitID,
		Grade:  study.ResetUnitGrade,
	}
	return nil
}

// Reset clears rows and recorded calls. Thread-safe.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Appended = nil
	s.ModelAudioUpdates = nil
	s.Deleted = nil
	s.ResetUnits = nil
	s.sessions = nil
	s.progress = nil
}

func sortNewestFirst(sessions []study.StudySession) {
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})
}

// Ensure Store implements sessionlog.Store at compile time.
var _ sessionlog.Store = (*Store)(nil)
