package runs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/probekit/recipecrawl/internal/discovery"
)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time {
	return c.now
}

func TestRegistryLifecycle(t *testing.T) {
	t.Parallel()

	clock := fixedClock{now: time.Unix(1700000000, 0).UTC()}
	reg := NewRegistry(clock)

	params := Params{Site: "allrecipes", LowerID: 1, UpperID: 100, Concurrency: 4, WatchCode: 404, MaxConsecutive: 250}
	rec, err := reg.Create("run-1", params)
	require.NoError(t, err)
	require.Equal(t, StatusQueued, rec.Status)
	require.Equal(t, clock.now, rec.Submitted)

	_, err = reg.Create("run-1", params)
	require.Error(t, err)

	require.NoError(t, reg.MarkRunning("run-1"))
	rec, err = reg.Get("run-1")
	require.NoError(t, err)
	require.Equal(t, StatusRunning, rec.Status)
	require.NotNil(t, rec.Started)

	stats := discovery.Stats{Probed: 42, Discovered: 3}
	require.NoError(t, reg.UpdateStats("run-1", stats))

	require.NoError(t, reg.Complete("run-1", StatusStopped, "", "404=39, 301=3", stats))
	rec, err = reg.Get("run-1")
	require.NoError(t, err)
	require.Equal(t, StatusStopped, rec.Status)
	require.True(t, rec.Status.Terminal())
	require.NotNil(t, rec.Finished)
	require.Equal(t, "404=39, 301=3", rec.Report)
}

func TestRegistryUnknownRun(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(fixedClock{now: time.Now()})

	_, err := reg.Get("missing")
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, reg.MarkRunning("missing"), ErrNotFound)
	require.ErrorIs(t, reg.Complete("missing", StatusFailed, "boom", "", discovery.Stats{}), ErrNotFound)
}

func TestRegistryListNewestFirst(t *testing.T) {
	t.Parallel()

	base := time.Unix(1700000000, 0).UTC()
	reg := NewRegistry(fixedClock{now: base})
	_, err := reg.Create("older", Params{Site: "allrecipes"})
	require.NoError(t, err)

	reg.clock = fixedClock{now: base.Add(time.Minute)}
	_, err = reg.Create("newer", Params{Site: "allrecipes"})
	require.NoError(t, err)

	list := reg.List()
	require.Len(t, list, 2)
	require.Equal(t, "newer", list[0].ID)
	require.Equal(t, "older", list[1].ID)
}
