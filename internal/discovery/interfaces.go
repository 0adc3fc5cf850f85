package discovery

import (
	"context"
	"time"
)

// Prober performs the lightweight existence check for one identifier.
// Implementations must be safe for concurrent use, must not panic on
// transport failure, and must translate such failures into an
// absence-classified Outcome carrying a sentinel status code so that a
// network blip stays visible in the frequency report without masquerading
// as the real "not found" signal.
type Prober interface {
	Probe(ctx context.Context, id int64) Outcome
}

// SkipFilter lets callers exclude identifiers before a network probe is
// issued. A skipped identifier never reaches the Prober and never affects
// streak accounting. Implementations must be safe for concurrent use.
type SkipFilter interface {
	ShouldSkip(uri string, id int64) bool
}

// URIBuilder renders the candidate URI for an identifier; it is handed to
// the SkipFilter alongside the raw identifier.
type URIBuilder func(id int64) string

// PermalinkStore persists discovered permalinks.
type PermalinkStore interface {
	SavePermalink(ctx context.Context, rec PermalinkRecord) error
	ListPermalinks(ctx context.Context, runID string) ([]PermalinkRecord, error)
}

// Publisher announces discovered permalinks to downstream pipelines.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// BlobStore writes raw page snapshots and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
