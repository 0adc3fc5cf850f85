package discovery

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stubProber serves a fixed existence map: listed identifiers 301 to a
// synthetic permalink, everything else returns 404.
type stubProber struct {
	exists map[int64]bool
	calls  atomic.Int64

	mu       sync.Mutex
	probedID map[int64]int

	panicOn int64
}

func newStubProber(existing ...int64) *stubProber {
	s := &stubProber{
		exists:   make(map[int64]bool, len(existing)),
		probedID: make(map[int64]int),
		panicOn:  -1,
	}
	for _, id := range existing {
		s.exists[id] = true
	}
	return s
}

func (s *stubProber) Probe(_ context.Context, id int64) Outcome {
	s.calls.Add(1)
	s.mu.Lock()
	s.probedID[id]++
	s.mu.Unlock()

	if id == s.panicOn {
		panic("stub prober exploded")
	}
	if s.exists[id] {
		return Outcome{
			ID:         id,
			StatusCode: 301,
			Permalink: &Permalink{
				ID:     id,
				Scheme: "https",
				Host:   "www.example.com",
				Path:   fmt.Sprintf("/recipe/%d/stub-slug/", id),
			},
		}
	}
	return Outcome{ID: id, StatusCode: 404}
}

func (s *stubProber) probeCount(id int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.probedID[id]
}

func stubURI(id int64) string {
	return fmt.Sprintf("https://www.example.com/recipe/%d/", id)
}

func drainIDs(t *testing.T, run *Run) []int64 {
	t.Helper()
	var ids []int64
	for p := range run.Results() {
		ids = append(ids, p.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func TestEngineDiscoverFindsSparseIDs(t *testing.T) {
	t.Parallel()

	prober := newStubProber(5, 9, 12)
	engine, err := NewEngine(prober, stubURI, zap.NewNop())
	require.NoError(t, err)

	run, err := engine.Discover(context.Background(), Request{
		Site:           "stub",
		LowerID:        1,
		UpperID:        20,
		Concurrency:    4,
		WatchCode:      404,
		MaxConsecutive: 250,
	})
	require.NoError(t, err)

	require.Equal(t, []int64{5, 9, 12}, drainIDs(t, run))
	<-run.Done()

	require.False(t, run.StoppedByStreak())
	require.Equal(t, RunStateDone, run.State())
	require.Equal(t, map[int]int{404: 17}, run.Frequencies())
	require.Equal(t, int64(20), run.Stats().Probed)
}

func TestEngineResolvedPermalinkShape(t *testing.T) {
	t.Parallel()

	prober := newStubProber(7)
	engine, err := NewEngine(prober, stubURI, zap.NewNop())
	require.NoError(t, err)

	run, err := engine.Discover(context.Background(), Request{
		Site:           "stub",
		LowerID:        7,
		UpperID:        7,
		Concurrency:    1,
		WatchCode:      404,
		MaxConsecutive: 1,
	})
	require.NoError(t, err)

	p, ok := <-run.Results()
	require.True(t, ok)
	require.Equal(t, "https://www.example.com/recipe/7/stub-slug/", p.String())
	require.Equal(t, "www.example.com", p.URL().Host)
	<-run.Done()
}

func TestEngineStopsAfterConsecutiveAbsences(t *testing.T) {
	t.Parallel()

	// Gaps between existing IDs stay below the threshold until after 12,
	// where a run of exactly three absences (13, 14, 15) must end the
	// crawl before the range is exhausted.
	prober := newStubProber(2, 4, 6, 8, 10, 12)
	engine, err := NewEngine(prober, stubURI, zap.NewNop())
	require.NoError(t, err)

	run, err := engine.Discover(context.Background(), Request{
		Site:           "stub",
		LowerID:        1,
		UpperID:        20,
		Concurrency:    1,
		WatchCode:      404,
		MaxConsecutive: 3,
	})
	require.NoError(t, err)

	ids := drainIDs(t, run)
	<-run.Done()

	require.Equal(t, []int64{2, 4, 6, 8, 10, 12}, ids)
	require.True(t, run.StoppedByStreak())
	require.Equal(t, int64(15), run.Stats().Probed)
	require.Zero(t, prober.probeCount(16))
	require.Equal(t, map[int]int{404: 9}, run.Frequencies())
}

func TestEngineSkipFilterPreventsProbe(t *testing.T) {
	t.Parallel()

	prober := newStubProber(3, 7)
	engine, err := NewEngine(prober, stubURI, zap.NewNop())
	require.NoError(t, err)

	skipEven := skipFunc(func(_ string, id int64) bool { return id%2 == 0 })

	run, err := engine.Discover(context.Background(), Request{
		Site:           "stub",
		LowerID:        1,
		UpperID:        10,
		Concurrency:    2,
		WatchCode:      404,
		MaxConsecutive: 250,
		Filter:         skipEven,
	})
	require.NoError(t, err)

	require.Equal(t, []int64{3, 7}, drainIDs(t, run))
	<-run.Done()

	for id := int64(2); id <= 10; id += 2 {
		require.Zero(t, prober.probeCount(id), "filtered id %d reached the prober", id)
	}
	stats := run.Stats()
	require.Equal(t, int64(5), stats.Probed)
	require.Equal(t, int64(5), stats.Skipped)
	// Skipped identifiers never touch the monitor.
	require.Equal(t, map[int]int{404: 3}, run.Frequencies())
}

func TestEngineNoProbesAfterCompletion(t *testing.T) {
	t.Parallel()

	prober := newStubProber(5)
	engine, err := NewEngine(prober, stubURI, zap.NewNop())
	require.NoError(t, err)

	run, err := engine.Discover(context.Background(), Request{
		Site:           "stub",
		LowerID:        1,
		UpperID:        30,
		Concurrency:    8,
		WatchCode:      404,
		MaxConsecutive: 250,
	})
	require.NoError(t, err)

	drainIDs(t, run)
	<-run.Done()

	settled := prober.calls.Load()
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, settled, prober.calls.Load())
}

func TestEngineSameResultsAcrossConcurrency(t *testing.T) {
	t.Parallel()

	var want []int64
	for id := int64(2); id <= 40; id += 2 {
		want = append(want, id)
	}

	for _, concurrency := range []int{1, 8, 64} {
		prober := newStubProber(want...)
		engine, err := NewEngine(prober, stubURI, zap.NewNop())
		require.NoError(t, err)

		run, err := engine.Discover(context.Background(), Request{
			Site:           "stub",
			LowerID:        1,
			UpperID:        40,
			Concurrency:    concurrency,
			WatchCode:      404,
			MaxConsecutive: 250,
		})
		require.NoError(t, err)

		require.Equal(t, want, drainIDs(t, run), "concurrency %d", concurrency)
		<-run.Done()
		require.Equal(t, map[int]int{404: 20}, run.Frequencies(), "concurrency %d", concurrency)
	}
}

func TestEngineValidationFailsBeforeProbing(t *testing.T) {
	t.Parallel()

	prober := newStubProber()
	engine, err := NewEngine(prober, stubURI, zap.NewNop())
	require.NoError(t, err)

	cases := []Request{
		{LowerID: 1, UpperID: 10, Concurrency: 0, WatchCode: 404, MaxConsecutive: 5},
		{LowerID: 1, UpperID: 10, Concurrency: 4, WatchCode: 404, MaxConsecutive: 0},
		{LowerID: 10, UpperID: 1, Concurrency: 4, WatchCode: 404, MaxConsecutive: 5},
	}
	for _, req := range cases {
		_, err := engine.Discover(context.Background(), req)
		require.Error(t, err)
	}
	require.Zero(t, prober.calls.Load())
}

func TestEngineProberPanicCountsAsSentinelAbsence(t *testing.T) {
	t.Parallel()

	prober := newStubProber(5)
	prober.panicOn = 3
	engine, err := NewEngine(prober, stubURI, zap.NewNop())
	require.NoError(t, err)

	run, err := engine.Discover(context.Background(), Request{
		Site:           "stub",
		LowerID:        1,
		UpperID:        5,
		Concurrency:    1,
		WatchCode:      404,
		MaxConsecutive: 250,
	})
	require.NoError(t, err)

	require.Equal(t, []int64{5}, drainIDs(t, run))
	<-run.Done()

	freq := run.Frequencies()
	require.Equal(t, 1, freq[DefaultSentinelCode])
	require.Equal(t, 3, freq[404])
}

func TestEngineCancelAbandonsRunAndJoinsWorkers(t *testing.T) {
	t.Parallel()

	prober := newStubProber()
	engine, err := NewEngine(prober, stubURI, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	run, err := engine.Discover(ctx, Request{
		Site:           "stub",
		LowerID:        1,
		UpperID:        1 << 40,
		Concurrency:    4,
		WatchCode:      404,
		MaxConsecutive: 1 << 30,
	})
	require.NoError(t, err)

	cancel()
	<-run.Done()

	settled := prober.calls.Load()
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, settled, prober.calls.Load())
	require.False(t, run.StoppedByStreak())
}

// skipFunc adapts a func to SkipFilter without importing the filter
// package (discovery must not depend on it).
type skipFunc func(uri string, id int64) bool

func (f skipFunc) ShouldSkip(uri string, id int64) bool {
	return f(uri, id)
}
