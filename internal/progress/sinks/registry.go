package sinks

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/probekit/recipecrawl/internal/progress"
	"github.com/probekit/recipecrawl/internal/runs"
)

// RegistrySink applies progress snapshots to the run registry so API reads
// see live counters while a crawl executes. Batches collapse to the latest
// snapshot per run before writing.
type RegistrySink struct {
	registry *runs.Registry
	logger   *zap.Logger
}

// NewRegistrySink constructs a RegistrySink.
func NewRegistrySink(registry *runs.Registry, logger *zap.Logger) *RegistrySink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RegistrySink{registry: registry, logger: logger}
}

// Consume writes the last snapshot per run to the registry. Terminal events
// are skipped; the dispatcher records final stats itself.
func (s *RegistrySink) Consume(_ context.Context, batch []progress.Event) error {
	if s == nil || s.registry == nil {
		return nil
	}
	latest := make(map[string]progress.Event)
	for _, evt := range batch {
		if evt.Stage == progress.StageRunDone {
			continue
		}
		latest[evt.RunID] = evt
	}
	for runID, evt := range latest {
		if err := s.registry.UpdateStats(runID, evt.Stats); err != nil {
			if errors.Is(err, runs.ErrNotFound) {
				continue
			}
			s.logger.Warn("update run stats failed", zap.String("run_id", runID), zap.Error(err))
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *RegistrySink) Close(context.Context) error {
	return nil
}
