package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWaitUnlimitedNeverBlocks(t *testing.T) {
	t.Parallel()

	l := New(Config{})
	start := time.Now()
	for range 100 {
		require.NoError(t, l.Wait(context.Background(), "https://www.allrecipes.com/recipe/1/"))
	}
	require.Less(t, time.Since(start), time.Second)
}

func TestWaitThrottlesPerHost(t *testing.T) {
	t.Parallel()

	l := New(Config{RPS: 20, Burst: 1})
	start := time.Now()
	for range 4 {
		require.NoError(t, l.Wait(context.Background(), "https://www.allrecipes.com/recipe/1/"))
	}
	// Burst 1 at 20 rps means three refills, roughly 150ms.
	require.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

func TestWaitHostsAreIndependent(t *testing.T) {
	t.Parallel()

	l := New(Config{RPS: 5, Burst: 1})
	require.NoError(t, l.Wait(context.Background(), "https://a.example.com/x"))
	start := time.Now()
	require.NoError(t, l.Wait(context.Background(), "https://b.example.com/x"))
	require.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestWaitHonorsContext(t *testing.T) {
	t.Parallel()

	l := New(Config{RPS: 0.1, Burst: 1})
	require.NoError(t, l.Wait(context.Background(), "https://a.example.com/x"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.Error(t, l.Wait(ctx, "https://a.example.com/x"))
}
