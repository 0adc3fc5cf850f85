package progress

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/probekit/recipecrawl/internal/discovery"
)

type captureSink struct {
	mu      sync.Mutex
	batches [][]Event
	closed  bool
}

func (s *captureSink) Consume(_ context.Context, batch []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, append([]Event(nil), batch...))
	return nil
}

func (s *captureSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *captureSink) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.batches {
		n += len(b)
	}
	return n
}

func validEvent(runID string, stage Stage) Event {
	evt := Event{
		RunID: runID,
		Site:  "allrecipes",
		Stage: stage,
		TS:    time.Now().UTC(),
		Stats: discovery.Stats{Probed: 10, Discovered: 2},
	}
	if stage == StageRunDone {
		evt.Status = "succeeded"
	}
	return evt
}

func TestHubFlushesOnBatchSize(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	hub := NewHub(Config{MaxBatchEvents: 3, MaxBatchWait: time.Hour}, sink)
	defer hub.Close(context.Background()) //nolint:errcheck

	for range 3 {
		hub.Emit(validEvent("run-1", StageRunProgress))
	}

	require.Eventually(t, func() bool { return sink.total() == 3 }, 2*time.Second, 5*time.Millisecond)
}

func TestHubFlushesOnTimer(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	hub := NewHub(Config{MaxBatchEvents: 100, MaxBatchWait: 20 * time.Millisecond}, sink)
	defer hub.Close(context.Background()) //nolint:errcheck

	hub.Emit(validEvent("run-1", StageRunStart))

	require.Eventually(t, func() bool { return sink.total() == 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestHubCloseDrainsAndClosesSinks(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	hub := NewHub(Config{MaxBatchEvents: 100, MaxBatchWait: time.Hour}, sink)

	for range 5 {
		hub.Emit(validEvent("run-1", StageRunProgress))
	}
	require.NoError(t, hub.Close(context.Background()))

	require.Equal(t, 5, sink.total())
	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.True(t, sink.closed)
}

func TestHubDropsInvalidEvents(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	hub := NewHub(Config{}, sink)

	hub.Emit(Event{})
	hub.Emit(validEvent("", StageRunProgress))
	hub.Emit(Event{RunID: "r", Stage: StageRunDone, TS: time.Now()})

	require.NoError(t, hub.Close(context.Background()))
	require.Zero(t, sink.total())
}

func TestHubEmitAfterCloseIsNoop(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	hub := NewHub(Config{}, sink)
	require.NoError(t, hub.Close(context.Background()))

	hub.Emit(validEvent("run-1", StageRunProgress))
	require.Zero(t, sink.total())
}
