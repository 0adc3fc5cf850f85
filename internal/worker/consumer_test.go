package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/probekit/recipecrawl/internal/discovery"
	"github.com/probekit/recipecrawl/internal/publisher/memory"
	"github.com/probekit/recipecrawl/internal/scrape"
	"github.com/probekit/recipecrawl/internal/site"
	storememory "github.com/probekit/recipecrawl/internal/storage/memory"
)

type fixedClock struct{ at time.Time }

func (c fixedClock) Now() time.Time { return c.at }

type stubScraper struct {
	fail map[int64]bool
}

func (s *stubScraper) Extract(_ context.Context, _ string, url string) (*scrape.Result, error) {
	return &scrape.Result{
		Recipe: scrape.Recipe{Title: "Recipe at " + url},
		HTML:   []byte("<html>" + url + "</html>"),
	}, nil
}

type failingScraper struct{}

func (failingScraper) Extract(_ context.Context, _ string, _ string) (*scrape.Result, error) {
	return &scrape.Result{HTML: []byte("<html>404ish</html>")}, errors.New("no recipe json-ld found")
}

type stubBlob struct {
	uris map[string]string
}

func (b *stubBlob) PutObject(_ context.Context, path, _ string, _ []byte) (string, error) {
	if b.uris == nil {
		b.uris = make(map[string]string)
	}
	uri := "file:///tmp/" + path
	b.uris[path] = uri
	return uri, nil
}

type failingStore struct{}

func (failingStore) SavePermalink(context.Context, discovery.PermalinkRecord) error {
	return errors.New("db down")
}

func (failingStore) ListPermalinks(context.Context, string) ([]discovery.PermalinkRecord, error) {
	return nil, nil
}

func feed(permalinks ...discovery.Permalink) <-chan discovery.Permalink {
	ch := make(chan discovery.Permalink, len(permalinks))
	for _, p := range permalinks {
		ch <- p
	}
	close(ch)
	return ch
}

func TestDrainPersistsScrapesAndPublishes(t *testing.T) {
	t.Parallel()

	profile := site.AllRecipes()
	store := storememory.NewPermalinkStore()
	pub := memory.New()
	blob := &stubBlob{}
	clock := fixedClock{at: time.Unix(1700000000, 0).UTC()}

	consumer := NewConsumer(profile, store, clock, zap.NewNop(), Config{},
		WithScraper(&stubScraper{}),
		WithBlobStore(blob),
		WithPublisher(pub),
	)

	results := feed(
		discovery.Permalink{ID: 6663, Scheme: "https", Host: "www.allrecipes.com", Path: "/recipe/6663/biscuits/"},
		discovery.Permalink{ID: 6664, Scheme: "https", Host: "www.allrecipes.com", Path: "/recipe/6664/gravy/"},
	)

	stats, err := consumer.Drain(context.Background(), "run-1", results)
	require.NoError(t, err)
	require.Equal(t, int64(2), stats.Persisted)
	require.Equal(t, int64(2), stats.Scraped)
	require.Zero(t, stats.Failed)

	recs, err := store.ListPermalinks(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.Equal(t, int64(6663), recs[0].ResourceID)
	require.Equal(t, profile.ExistsCode, recs[0].StatusCode)
	require.Equal(t, clock.at, recs[0].DiscoveredAt)

	events := pub.Events()
	require.Len(t, events, 2)
	first, ok := events[0].Payload.(Event)
	require.True(t, ok)
	require.Equal(t, "run-1", first.RunID)
	require.Equal(t, "file:///tmp/runs/run-1/6663.html", first.BlobURI)
	require.Len(t, first.PageDigest, 64)
	require.NotNil(t, first.Recipe)
	require.Contains(t, blob.uris, "runs/run-1/6663.html")
}

func TestDrainScrapeFailureStillPersists(t *testing.T) {
	t.Parallel()

	profile := site.AllRecipes()
	store := storememory.NewPermalinkStore()
	blob := &stubBlob{}
	consumer := NewConsumer(profile, store, fixedClock{at: time.Now()}, zap.NewNop(), Config{},
		WithScraper(failingScraper{}),
		WithBlobStore(blob),
	)

	results := feed(discovery.Permalink{ID: 7, Scheme: "https", Host: "www.allrecipes.com", Path: "/recipe/7/"})
	stats, err := consumer.Drain(context.Background(), "run-1", results)
	require.NoError(t, err)
	require.Equal(t, int64(1), stats.Persisted)
	require.Zero(t, stats.Scraped)
	require.Zero(t, stats.Failed)

	// The snapshot of the unparseable page is still uploaded.
	require.Contains(t, blob.uris, "runs/run-1/7.html")

	recs, err := store.ListPermalinks(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, recs, 1)
}

func TestDrainStoreFailureCountsAndContinues(t *testing.T) {
	t.Parallel()

	consumer := NewConsumer(site.AllRecipes(), failingStore{}, fixedClock{at: time.Now()}, zap.NewNop(), Config{})

	results := feed(
		discovery.Permalink{ID: 1, Scheme: "https", Host: "h", Path: "/recipe/1/"},
		discovery.Permalink{ID: 2, Scheme: "https", Host: "h", Path: "/recipe/2/"},
	)
	stats, err := consumer.Drain(context.Background(), "run-1", results)
	require.NoError(t, err)
	require.Zero(t, stats.Persisted)
	require.Equal(t, int64(2), stats.Failed)
}

func TestDrainStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	consumer := NewConsumer(site.AllRecipes(), storememory.NewPermalinkStore(), fixedClock{at: time.Now()}, zap.NewNop(), Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := make(chan discovery.Permalink) // never closed
	_, err := consumer.Drain(ctx, "run-1", results)
	require.ErrorIs(t, err, context.Canceled)
}
