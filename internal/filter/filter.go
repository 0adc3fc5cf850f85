// Package filter provides SkipFilter implementations used to exclude
// identifiers from probing: already-discovered IDs, denylists, and
// caller-supplied predicates.
package filter

import (
	"sync"

	"github.com/probekit/recipecrawl/internal/discovery"
)

// Func adapts a plain function to discovery.SkipFilter.
type Func func(uri string, id int64) bool

// ShouldSkip implements discovery.SkipFilter.
func (f Func) ShouldSkip(uri string, id int64) bool {
	return f(uri, id)
}

// Seen skips identifiers it has been told about. Safe for concurrent use
// by probe workers while other code keeps marking new IDs.
type Seen struct {
	mu  sync.RWMutex
	ids map[int64]struct{}
}

// NewSeen builds a Seen filter preloaded with the given identifiers.
func NewSeen(ids ...int64) *Seen {
	s := &Seen{ids: make(map[int64]struct{}, len(ids))}
	for _, id := range ids {
		s.ids[id] = struct{}{}
	}
	return s
}

// Mark records an identifier so later probes skip it.
func (s *Seen) Mark(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids[id] = struct{}{}
}

// Len reports how many identifiers are marked.
func (s *Seen) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ids)
}

// ShouldSkip implements discovery.SkipFilter.
func (s *Seen) ShouldSkip(_ string, id int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ids[id]
	return ok
}

// Any combines filters; an identifier is skipped if any filter says so.
// Nil entries are ignored.
func Any(filters ...discovery.SkipFilter) discovery.SkipFilter {
	kept := make([]discovery.SkipFilter, 0, len(filters))
	for _, f := range filters {
		if f != nil {
			kept = append(kept, f)
		}
	}
	return Func(func(uri string, id int64) bool {
		for _, f := range kept {
			if f.ShouldSkip(uri, id) {
				return true
			}
		}
		return false
	})
}
