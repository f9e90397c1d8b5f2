// Package blob defines the binary asset store boundary. Raw learner
// recordings and synthesized model-answer audio are uploaded as named assets
// and addressed later by the returned reference.
package blob

import "context"

// Ref is a stable reference to a stored asset, valid across processes.
type Ref string

// Store is an authenticated folder-oriented asset store.
type Store interface {
	// Upload stores data under name and returns a stable reference.
	Upload(ctx context.Context, name, contentType string, data []byte) (Ref, error)

	// Fetch returns the bytes of a previously uploaded asset.
	Fetch(ctx context.Context, ref Ref) ([]byte, error)

	// Delete removes the asset. Deleting a missing asset is not an error.
	Delete(ctx context.Context, ref Ref) error
}
