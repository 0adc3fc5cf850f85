package discovery

import (
	"fmt"
	"net/url"
	"time"
)

// Permalink is the canonical, stable URL of a discovered resource,
// resolved from the redirect information of a successful probe.
type Permalink struct {
	// ID is the numeric identifier that resolved to this permalink.
	ID int64
	// Scheme and Host are taken from the probed candidate URI.
	Scheme string
	Host   string
	// Path is supplied by the redirect target of the existence probe.
	Path string
}

// String renders the permalink as an absolute URL.
func (p Permalink) String() string {
	return fmt.Sprintf("%s://%s%s", p.Scheme, p.Host, p.Path)
}

// URL converts the permalink into a net/url value.
func (p Permalink) URL() *url.URL {
	return &url.URL{Scheme: p.Scheme, Host: p.Host, Path: p.Path}
}

// Outcome is the result of probing one identifier. Permalink is non-nil
// if and only if the site-specific existence predicate held and a usable
// redirect target was present; every other outcome counts as absent,
// whatever its status code.
type Outcome struct {
	ID         int64
	StatusCode int
	Permalink  *Permalink
}

// Exists reports whether the probed identifier resolved to a permalink.
func (o Outcome) Exists() bool {
	return o.Permalink != nil
}

// PermalinkRecord is persisted for each discovered permalink.
type PermalinkRecord struct {
	RunID        string    `json:"run_id"`
	Site         string    `json:"site"`
	ResourceID   int64     `json:"resource_id"`
	URL          string    `json:"url"`
	StatusCode   int       `json:"status_code"`
	DiscoveredAt time.Time `json:"discovered_at"`
}

// Stats summarizes one crawl run.
type Stats struct {
	Probed     int64 `json:"probed"`
	Skipped    int64 `json:"skipped"`
	Discovered int64 `json:"discovered"`
}
