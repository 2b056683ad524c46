// Package memory stores objects in-memory for development and tests.
package memory

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/JakeFAU/legal-ingest-crawler/internal/crawler"
)

// ObjectStore keeps objects keyed by bucket and key. It serves memory://
// locations and stands in for a bucket in tests.
type ObjectStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewObjectStore creates a new in-memory object store.
func NewObjectStore() *ObjectStore {
	return &ObjectStore{data: make(map[string][]byte)}
}

func objectID(bucket, key string) string {
	return bucket + "/" + key
}

// Download copies the stored object into w.
func (s *ObjectStore) Download(_ context.Context, bucket, key string, w io.Writer) error {
	s.mu.RLock()
	data, ok := s.data[objectID(bucket, key)]
	s.mu.RUnlock()
	if !ok {
		return crawler.NewError(crawler.KindNotFound, "download", objectID(bucket, key), fmt.Errorf("no such object"))
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("copy object: %w", err)
	}
	return nil
}

// Upload stores a copy of everything read from r.
func (s *ObjectStore) Upload(_ context.Context, bucket, key string, r io.Reader) error {
	byteData, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read data from reader: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[objectID(bucket, key)] = byteData
	return nil
}

// Exists reports whether the object is present.
func (s *ObjectStore) Exists(_ context.Context, bucket, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.data[objectID(bucket, key)]
	return ok, nil
}

// Object returns a copy of a stored object.
func (s *ObjectStore) Object(bucket, key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[objectID(bucket, key)]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), data...), true
}

// Keys lists every stored bucket/key pair in sorted order.
func (s *ObjectStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
