package scrape

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Extractor fetches permalink pages and extracts recipe structure from the
// embedded JSON-LD payload.
type Extractor struct {
	cfg           Config
	wrappers      *WrapperRegistry
	baseCollector *colly.Collector
	logger        *zap.Logger
}

// NewExtractor builds an Extractor. A nil wrapper registry gets the built-in
// site wrappers.
func NewExtractor(cfg Config, wrappers *WrapperRegistry, logger *zap.Logger) *Extractor {
	if wrappers == nil {
		wrappers = NewWrapperRegistry()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	return &Extractor{
		cfg:           cfg,
		wrappers:      wrappers,
		baseCollector: c,
		logger:        logger,
	}
}

// Extract fetches the page at url and parses its recipe payload. Pages
// without a schema.org Recipe node return an error alongside the snapshot,
// so callers can still persist the raw page.
func (e *Extractor) Extract(ctx context.Context, site, url string) (*Result, error) {
	result := &Result{}
	var (
		parsed   bool
		parseErr error
		fetchErr error
	)

	collector := e.baseCollector.Clone()
	if e.cfg.UserAgent != "" {
		collector.UserAgent = e.cfg.UserAgent
	}
	collector.SetRequestTimeout(e.cfg.Timeout)

	collector.OnResponse(func(resp *colly.Response) {
		result.StatusCode = resp.StatusCode
		result.HTML = resp.Body
	})
	collector.OnHTML(`script[type="application/ld+json"]`, func(el *colly.HTMLElement) {
		if parsed {
			return
		}
		recipe, node, err := parseRecipeJSONLD([]byte(el.Text))
		if err != nil {
			parseErr = err
			return
		}
		e.wrappers.Apply(site, node, &recipe)
		if recipe.CanonicalURL == "" {
			recipe.CanonicalURL = el.Request.URL.String()
		}
		result.Recipe = recipe
		parsed = true
		parseErr = nil
	})
	collector.OnError(func(resp *colly.Response, err error) {
		if resp != nil {
			result.StatusCode = resp.StatusCode
			result.HTML = resp.Body
		}
		fetchErr = err
	})

	if err := e.visit(ctx, collector, url); err != nil && fetchErr == nil && result.StatusCode == 0 {
		return nil, err
	}
	if fetchErr != nil {
		return result, fmt.Errorf("fetch %s: %w", url, fetchErr)
	}
	if result.StatusCode != http.StatusOK {
		return result, fmt.Errorf("fetch %s: unexpected status %d", url, result.StatusCode)
	}
	if !parsed {
		if parseErr != nil {
			return result, fmt.Errorf("parse %s: %w", url, parseErr)
		}
		return result, fmt.Errorf("parse %s: no recipe json-ld found", url)
	}

	e.logger.Debug("extracted recipe",
		zap.String("site", site),
		zap.String("url", url),
		zap.String("title", result.Recipe.Title),
	)
	return result, nil
}

// visit runs the collector, abandoning the wait when ctx is canceled. The
// collector goroutine finishes its request in the background.
func (e *Extractor) visit(ctx context.Context, collector *colly.Collector, url string) error {
	done := make(chan error, 1)
	go func() {
		err := collector.Visit(url)
		collector.Wait()
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("visit %s: %w", url, err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
