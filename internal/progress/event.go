// Package progress defines the event stream emitted while crawl runs
// execute, and a hub that batches those events out to pluggable sinks.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/probekit/recipecrawl/internal/discovery"
)

// Stage denotes the milestone an Event represents.
type Stage string

// Supported progress stages.
const (
	StageRunStart    Stage = "RUN_START"
	StageRunProgress Stage = "RUN_PROGRESS"
	StageRunDone     Stage = "RUN_DONE"
)

// Event captures a snapshot of one run's progress.
type Event struct {
	// RunID identifies the crawl run.
	RunID string
	// Site is the profile label the run probes.
	Site string
	// Stage denotes which lifecycle milestone occurred.
	Stage Stage
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stats carries the run counters at emission time.
	Stats discovery.Stats
	// Status is the terminal status, set only on RUN_DONE.
	Status string
	// Note lets emitters attach low-volume debug context.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == "" {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunProgress:
	case StageRunDone:
		if e.Status == "" {
			return errors.New("run done requires status")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	return nil
}
