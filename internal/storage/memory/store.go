// Package memory provides an in-memory permalink store for development
// and testing.
package memory

import (
	"context"
	"sync"

	"github.com/probekit/recipecrawl/internal/discovery"
)

// PermalinkStore keeps discovered permalinks per run in memory.
type PermalinkStore struct {
	mu      sync.RWMutex
	records map[string][]discovery.PermalinkRecord
}

// NewPermalinkStore constructs a PermalinkStore.
func NewPermalinkStore() *PermalinkStore {
	return &PermalinkStore{
		records: make(map[string][]discovery.PermalinkRecord),
	}
}

// SavePermalink appends a record for its run.
func (s *PermalinkStore) SavePermalink(_ context.Context, rec discovery.PermalinkRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.RunID] = append(s.records[rec.RunID], rec)
	return nil
}

// ListPermalinks returns the records stored for a run.
func (s *PermalinkStore) ListPermalinks(_ context.Context, runID string) ([]discovery.PermalinkRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]discovery.PermalinkRecord, len(s.records[runID]))
	copy(out, s.records[runID])
	return out, nil
}
