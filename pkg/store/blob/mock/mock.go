// Package mock provides an in-memory test double for the blob.Store
// interface with call records for upload, fetch, and delete.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/opicoach/opicoach/pkg/store/blob"
)

// UploadCall records a single invocation of Upload.
type UploadCall struct {
	Name        string
	ContentType string
	Data        []byte
}

// Store is a mock implementation of blob.Store holding assets in memory.
type Store struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// UploadErr, if non-nil, is returned from Upload.
	UploadErr error

	// FetchErr, if non-nil, is returned from Fetch.
	FetchErr error

	// DeleteErr, if non-nil, is returned from Delete.
	DeleteErr error

	// --- Call records ---

	// UploadCalls records every call to Upload in order.
	UploadCalls []UploadCall

	// FetchCalls records the refs passed to Fetch in order.
	FetchCalls []blob.Ref

	// DeleteCalls records the refs passed to Delete in order.
	DeleteCalls []blob.Ref

	assets map[blob.Ref][]byte
}

// Upload records the call and stores the asset under its name.
func (s *Store) Upload(ctx context.Context, name, contentType string, data []byte) (blob.Ref, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	s.UploadCalls = append(s.UploadCalls, UploadCall{Name: name, ContentType: contentType, Data: cp})
	if s.UploadErr != nil {
		return "", s.UploadErr
	}
	if s.assets == nil {
		s.assets = make(map[blob.Ref][]byte)
	}
	ref := blob.Ref(name)
	s.assets[ref] = cp
	return ref, nil
}

// Fetch records the call and returns the stored asset bytes.
func (s *Store) Fetch(ctx context.Context, ref blob.Ref) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.FetchCalls = append(s.FetchCalls, ref)
	if s.FetchErr != nil {
		return nil, s.FetchErr
	}
	data, ok := s.assets[ref]
	if !ok {
		return nil, fmt.Errorf("mock: no asset %q", ref)
	}
	return data, nil
}

// Delete records the call and removes the asset if present.
func (s *Store) Delete(ctx context.Context, ref blob.Ref) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.DeleteCalls = append(s.DeleteCalls, ref)
	if s.DeleteErr != nil {
		return s.DeleteErr
	}
	delete(s.assets, ref)
	return nil
}

// Put seeds an asset without recording a call.
func (s *Store) Put(ref blob.Ref, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.assets == nil {
		s.assets = make(map[blob.Ref][]byte)
	}
	s.assets[ref] = data
}

// Has reports whether an asset exists.
func (s *Store) Has(ref blob.Ref) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.assets[ref]
	return ok
}

// Reset clears assets and recorded calls. Thread-safe.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.UploadCalls = nil
	s.FetchCalls = nil
	s.DeleteCalls = nil
	s.assets = nil
}

// Ensure Store implements blob.Store at compile time.
var _ blob.Store = (*Store)(nil)
