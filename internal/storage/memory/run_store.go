package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/JakeFAU/legal-ingest-crawler/internal/crawler"
)

// RunStore keeps run statistics in memory for development and tests.
type RunStore struct {
	mu   sync.RWMutex
	last int64
	runs map[int64]crawler.RunStats
}

var _ crawler.RunStore = (*RunStore)(nil)

// NewRunStore constructs a RunStore.
func NewRunStore() *RunStore {
	return &RunStore{runs: make(map[int64]crawler.RunStats)}
}

// NextRunNumber returns one more than the highest recorded run number.
func (s *RunStore) NextRunNumber(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last + 1, nil
}

// RecordRun stores stats under its run number.
func (s *RunStore) RecordRun(_ context.Context, stats crawler.RunStats) error {
	if stats.RunNumber < 1 {
		return errors.New("run number must be positive")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[stats.RunNumber]; exists {
		return errors.New("run already recorded")
	}
	s.runs[stats.RunNumber] = stats
	if stats.RunNumber > s.last {
		s.last = stats.RunNumber
	}
	return nil
}

// Run fetches a recorded run.
func (s *RunStore) Run(runNumber int64) (crawler.RunStats, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats, ok := s.runs[runNumber]
	return stats, ok
}

// DocumentStore keeps the latest ParsedObject per file URL.
type DocumentStore struct {
	mu   sync.RWMutex
	docs map[string]crawler.ParsedObject
}

var _ crawler.DocumentStore = (*DocumentStore)(nil)

// NewDocumentStore constructs a DocumentStore.
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{docs: make(map[string]crawler.ParsedObject)}
}

// UpsertDocument replaces any document stored under the same file URL.
func (s *DocumentStore) UpsertDocument(_ context.Context, obj crawler.ParsedObject) error {
	if obj.FileURL == "" {
		return errors.New("file url is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[obj.FileURL] = obj
	return nil
}

// Documents returns a copy of every stored document.
func (s *DocumentStore) Documents() []crawler.ParsedObject {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]crawler.ParsedObject, 0, len(s.docs))
	for _, doc := range s.docs {
		out = append(out, doc)
	}
	return out
}
