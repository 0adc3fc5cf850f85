// Package sinks contains the built-in progress sink implementations.
package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/probekit/recipecrawl/internal/progress"
)

// LogSink emits structured logs for progress streams. Useful during
// development or audits where a durable store is unavailable.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch using structured fields.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.logger.Info("progress event",
			zap.String("run_id", evt.RunID),
			zap.String("site", evt.Site),
			zap.String("stage", string(evt.Stage)),
			zap.Int64("probed", evt.Stats.Probed),
			zap.Int64("skipped", evt.Stats.Skipped),
			zap.Int64("discovered", evt.Stats.Discovered),
			zap.String("status", evt.Status),
			zap.String("note", evt.Note),
		)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
