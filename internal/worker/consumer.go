// Package worker consumes discovered permalinks and runs the persistence
// pipeline: scrape the page, snapshot it to blob storage, record the
// permalink, and publish a discovery event.
package worker

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/probekit/recipecrawl/internal/discovery"
	"github.com/probekit/recipecrawl/internal/hash/sha256"
	"github.com/probekit/recipecrawl/internal/scrape"
	"github.com/probekit/recipecrawl/internal/site"
)

// DefaultTopic is the event topic permalink discoveries publish to.
const DefaultTopic = "permalinks.discovered"

// Scraper extracts recipe structure from a permalink page.
type Scraper interface {
	Extract(ctx context.Context, site, url string) (*scrape.Result, error)
}

// Event is the payload published for each persisted permalink.
type Event struct {
	RunID      string         `json:"run_id"`
	Site       string         `json:"site"`
	ResourceID int64          `json:"resource_id"`
	URL        string         `json:"url"`
	BlobURI    string         `json:"blob_uri,omitempty"`
	PageDigest string         `json:"page_digest,omitempty"`
	Recipe     *scrape.Recipe `json:"recipe,omitempty"`
}

// Config controls Consumer behavior.
type Config struct {
	Topic       string
	ContentType string
}

// Consumer drains a run's result stream. Failures on individual permalinks
// are logged and counted but never abort the drain; only context
// cancellation stops it early.
type Consumer struct {
	profile site.Profile
	scraper Scraper
	store   discovery.PermalinkStore
	blob    discovery.BlobStore
	pub     discovery.Publisher
	hasher  *sha256.Hasher
	clock   discovery.Clock
	cfg     Config
	logger  *zap.Logger
}

// Option mutates Consumer construction.
type Option func(*Consumer)

// WithScraper attaches a page scraper. Without one, permalinks are persisted
// without recipe structure or snapshots.
func WithScraper(s Scraper) Option {
	return func(c *Consumer) { c.scraper = s }
}

// WithBlobStore attaches snapshot storage.
func WithBlobStore(b discovery.BlobStore) Option {
	return func(c *Consumer) { c.blob = b }
}

// WithPublisher attaches an event publisher.
func WithPublisher(p discovery.Publisher) Option {
	return func(c *Consumer) { c.pub = p }
}

// NewConsumer builds a Consumer. Store, clock, and logger are required for
// correct operation; scraper, blob store, and publisher are optional stages.
func NewConsumer(profile site.Profile, store discovery.PermalinkStore, clock discovery.Clock, logger *zap.Logger, cfg Config, opts ...Option) *Consumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	if cfg.ContentType == "" {
		cfg.ContentType = "text/html"
	}
	c := &Consumer{
		profile: profile,
		store:   store,
		hasher:  sha256.New(),
		clock:   clock,
		cfg:     cfg,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Stats counts pipeline outcomes for one drain.
type Stats struct {
	Persisted int64
	Scraped   int64
	Failed    int64
}

// Drain consumes permalinks from results until the channel closes or ctx is
// canceled. It returns the pipeline stats and ctx.Err if canceled.
func (c *Consumer) Drain(ctx context.Context, runID string, results <-chan discovery.Permalink) (Stats, error) {
	var stats Stats
	for {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case p, ok := <-results:
			if !ok {
				return stats, nil
			}
			if err := c.handle(ctx, runID, p, &stats); err != nil {
				stats.Failed++
				c.logger.Warn("permalink pipeline failed",
					zap.String("run_id", runID),
					zap.Int64("resource_id", p.ID),
					zap.Error(err),
				)
			}
		}
	}
}

func (c *Consumer) handle(ctx context.Context, runID string, p discovery.Permalink, stats *Stats) error {
	url := p.String()
	event := Event{
		RunID:      runID,
		Site:       c.profile.Name,
		ResourceID: p.ID,
		URL:        url,
	}

	if c.scraper != nil {
		result, err := c.scraper.Extract(ctx, c.profile.Name, url)
		if err != nil {
			// A permalink that fails to scrape is still a permalink.
			c.logger.Debug("scrape failed",
				zap.String("url", url),
				zap.Error(err),
			)
		} else {
			event.Recipe = &result.Recipe
			stats.Scraped++
		}
		if result != nil && len(result.HTML) > 0 {
			event.PageDigest = c.hasher.Sum(result.HTML)
			if c.blob != nil {
				path := fmt.Sprintf("runs/%s/%d.html", runID, p.ID)
				uri, putErr := c.blob.PutObject(ctx, path, c.cfg.ContentType, result.HTML)
				if putErr != nil {
					c.logger.Warn("snapshot upload failed",
						zap.String("url", url),
						zap.Error(putErr),
					)
				} else {
					event.BlobURI = uri
				}
			}
		}
	}

	rec := discovery.PermalinkRecord{
		RunID:        runID,
		Site:         c.profile.Name,
		ResourceID:   p.ID,
		URL:          url,
		StatusCode:   c.profile.ExistsCode,
		DiscoveredAt: c.clock.Now(),
	}
	if err := c.store.SavePermalink(ctx, rec); err != nil {
		return fmt.Errorf("save permalink: %w", err)
	}
	stats.Persisted++

	if c.pub != nil {
		if _, err := c.pub.Publish(ctx, c.cfg.Topic, event); err != nil {
			return fmt.Errorf("publish event: %w", err)
		}
	}
	return nil
}
