// Package runs tracks crawl run lifecycle records for the API and CLI.
package runs

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/probekit/recipecrawl/internal/discovery"
)

// Status is the lifecycle state persisted for a run record.
type Status string

// Run status values.
const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusStopped   Status = "stopped"
	StatusCanceled  Status = "canceled"
	StatusFailed    Status = "failed"
)

// Terminal reports whether the status ends a run.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusStopped, StatusCanceled, StatusFailed:
		return true
	default:
		return false
	}
}

// Params captures the caller-facing knobs for one run.
type Params struct {
	Site           string `json:"site"`
	LowerID        int64  `json:"lower_id"`
	UpperID        int64  `json:"upper_id"`
	Concurrency    int    `json:"concurrency"`
	WatchCode      int    `json:"watch_code"`
	MaxConsecutive int    `json:"max_consecutive"`
	// SkipIDs are identifiers excluded from probing, e.g. already
	// discovered in a previous run.
	SkipIDs []int64 `json:"skip_ids,omitempty"`
}

// Record is the metadata kept for each crawl run.
type Record struct {
	ID        string          `json:"id"`
	Status    Status          `json:"status"`
	Params    Params          `json:"params"`
	Submitted time.Time       `json:"submitted_at"`
	Started   *time.Time      `json:"started_at,omitempty"`
	Finished  *time.Time      `json:"finished_at,omitempty"`
	ErrorText string          `json:"error_text,omitempty"`
	Stats     discovery.Stats `json:"stats"`
	// Report is the end-of-crawl status code frequency summary.
	Report string `json:"report,omitempty"`
}

// ErrNotFound is returned when a run ID is unknown.
var ErrNotFound = errors.New("run not found")

// Registry is an in-memory run store. Safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	runs  map[string]Record
	clock discovery.Clock
}

// NewRegistry builds a Registry using the given clock.
func NewRegistry(clock discovery.Clock) *Registry {
	return &Registry{
		runs:  make(map[string]Record),
		clock: clock,
	}
}

// Create stores a new record in queued status.
func (r *Registry) Create(id string, params Params) (Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.runs[id]; exists {
		return Record{}, errors.New("run already exists")
	}
	rec := Record{
		ID:        id,
		Status:    StatusQueued,
		Params:    params,
		Submitted: r.clock.Now(),
	}
	r.runs[id] = rec
	return rec, nil
}

// MarkRunning transitions a record to running and stamps the start time.
func (r *Registry) MarkRunning(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.runs[id]
	if !ok {
		return ErrNotFound
	}
	rec.Status = StatusRunning
	if rec.Started == nil {
		now := r.clock.Now()
		rec.Started = &now
	}
	r.runs[id] = rec
	return nil
}

// UpdateStats refreshes the live counters on a record.
func (r *Registry) UpdateStats(id string, stats discovery.Stats) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.runs[id]
	if !ok {
		return ErrNotFound
	}
	rec.Stats = stats
	r.runs[id] = rec
	return nil
}

// Complete transitions a record to a terminal status with its final
// counters and frequency report.
func (r *Registry) Complete(id string, status Status, errText, report string, stats discovery.Stats) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.runs[id]
	if !ok {
		return ErrNotFound
	}
	rec.Status = status
	rec.ErrorText = errText
	rec.Report = report
	rec.Stats = stats
	now := r.clock.Now()
	rec.Finished = &now
	r.runs[id] = rec
	return nil
}

// Get fetches one record.
func (r *Registry) Get(id string) (Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.runs[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

// List returns all records, newest submission first.
func (r *Registry) List() []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Record, 0, len(r.runs))
	for _, rec := range r.runs {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Submitted.After(out[j].Submitted)
	})
	return out
}
