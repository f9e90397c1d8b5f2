// Package supabase implements blob.Store on a Supabase storage bucket. Asset
// references are the object paths within the configured bucket.
package supabase

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	storage_go "github.com/supabase-community/storage-go"
	"github.com/supabase-community/supabase-go"

	"github.com/opicoach/opicoach/pkg/store/blob"
)

// Config holds the connection settings for the storage bucket.
type Config struct {
	URL            string
	ServiceRoleKey string
	Bucket         string
}

// Store implements blob.Store backed by Supabase storage.
type Store struct {
	client *supabase.Client
	bucket string
}

var _ blob.Store = (*Store)(nil)

// New creates a Store for the configured bucket.
func New(cfg Config) (*Store, error) {
	if cfg.URL == "" || cfg.ServiceRoleKey == "" {
		return nil, errors.New("supabase: url and service role key must not be empty")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("supabase: bucket must not be empty")
	}

	client, err := supabase.NewClient(cfg.URL, cfg.ServiceRoleKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("supabase: create client: %w", err)
	}
	return &Store{client: client, bucket: cfg.Bucket}, nil
}

// Upload implements blob.Store. The object path doubles as the reference.
func (s *Store) Upload(ctx context.Context, name, contentType string, data []byte) (blob.Ref, error) {
	opts := storage_go.FileOptions{}
	if contentType != "" {
		opts.ContentType = &contentType
	}
	if _, err := s.client.Storage.UploadFile(s.bucket, name, bytes.NewReader(data), opts); err != nil {
		return "", fmt.Errorf("supabase: upload %s: %w", name, err)
	}
	return blob.Ref(name), nil
}

// Fetch implements blob.Store.
func (s *Store) Fetch(ctx context.Context, ref blob.Ref) ([]byte, error) {
	data, err := s.client.Storage.DownloadFile(s.bucket, string(ref))
	if err != nil {
		return nil, fmt.Errorf("supabase: fetch %s: %w", ref, err)
	}
	return data, nil
}

// Delete implements blob.Store.
func (s *Store) Delete(ctx context.Context, ref blob.Ref) error {
	if _, err := s.client.Storage.RemoveFile(s.bucket, []string{string(ref)}); err != nil {
		return fmt.Errorf("supabase: delete %s: %w", ref, err)
	}
	return nil
}
