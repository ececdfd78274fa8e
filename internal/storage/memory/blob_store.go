// Package memory stores blob content in-memory for development and tests.
package memory

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// BlobStore keeps appended and uploaded objects in a map.
type BlobStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewBlobStore creates a new in-memory blob store.
func NewBlobStore() *BlobStore {
	return &BlobStore{data: make(map[string][]byte)}
}

// AppendObject appends the chunk to the object's accumulated bytes.
func (s *BlobStore) AppendObject(_ context.Context, path string, chunk []byte, _ int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[path] = append(s.data[path], chunk...)
	return nil
}

// PutObject replaces the object's content and returns a pseudo URI.
func (s *BlobStore) PutObject(_ context.Context, path string, _ string, r io.Reader, _ int64) (string, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read object content: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[path] = append([]byte(nil), content...)
	return fmt.Sprintf("memory://%s", path), nil
}

// Object returns a copy of the stored bytes for path.
func (s *BlobStore) Object(path string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	content, ok := s.data[path]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), content...), true
}
