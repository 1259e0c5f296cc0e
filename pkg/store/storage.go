// Package store persists extraction results and hands them back by job ID.
package store

import (
	"context"
	"errors"
	"sync"

	"github.com/graphmill/graphmill/pkg/common"
)

// ErrNotFound is returned when no result exists for the requested job.
var ErrNotFound = errors.New("result not found")

// ResultKey identifies where a result came from: the scraping session, the
// content item within it, and the job that produced it.
type ResultKey struct {
	SessionID string
	ContentID string
	JobID     string
}

// ResultStore defines the interface for persisting and retrieving extraction
// results. Results are write-once; PutResult for an existing job ID replaces
// the stored value.
type ResultStore interface {
	PutResult(ctx context.Context, key ResultKey, result *common.ProcessingResult) error
	GetResult(ctx context.Context, jobID string) (*common.ProcessingResult, error)
}

// MemoryStore keeps results in process memory. It is the default store when
// no database is configured and the store of choice in tests; results do not
// survive a restart.
//
// A MemoryStore should be created using NewMemoryStore.
type MemoryStore struct {
	mu      sync.RWMutex
	results map[string]*common.ProcessingResult
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		results: make(map[string]*common.ProcessingResult),
	}
}

// PutResult stores the result under the key's job ID.
func (s *MemoryStore) PutResult(_ context.Context, key ResultKey, result *common.ProcessingResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.results[key.JobID] = result
	return nil
}

// GetResult returns the stored result for the job, or ErrNotFound.
func (s *MemoryStore) GetResult(_ context.Context, jobID string) (*common.ProcessingResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result, ok := s.results[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	return result, nil
}
