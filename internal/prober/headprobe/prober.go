// Package headprobe implements the existence check with HEAD requests:
// redirects are not followed, the permalink is resolved from the Location
// header, and the body is never fetched.
package headprobe

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/probekit/recipecrawl/internal/discovery"
	"github.com/probekit/recipecrawl/internal/policy/ratelimit"
	"github.com/probekit/recipecrawl/internal/site"
)

// Config controls probe behavior.
type Config struct {
	// Timeout bounds each HEAD request. Defaults to 10s.
	Timeout time.Duration
	// QPS throttles probes across all workers; <= 0 disables throttling.
	QPS float64
	// Burst is the limiter burst size when QPS is set.
	Burst int
	// SentinelCode replaces the status code on transport failure so it
	// stays distinguishable from a real "not found" in the frequency
	// report. Defaults to discovery.DefaultSentinelCode.
	SentinelCode int
	// UserAgent is sent with each probe when non-empty.
	UserAgent string
}

// Prober issues HEAD probes against one site profile. Safe for concurrent
// use by the full worker pool.
type Prober struct {
	profile  site.Profile
	client   *http.Client
	limiter  *ratelimit.Limiter
	sentinel int
	agent    string
	logger   *zap.Logger
}

// New builds a Prober for the given profile.
func New(profile site.Profile, cfg Config, logger *zap.Logger) *Prober {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.SentinelCode <= 0 {
		cfg.SentinelCode = discovery.DefaultSentinelCode
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	limiter := ratelimit.New(ratelimit.Config{RPS: cfg.QPS, Burst: cfg.Burst})
	return &Prober{
		profile: profile,
		client: &http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		limiter:  limiter,
		sentinel: cfg.SentinelCode,
		agent:    cfg.UserAgent,
		logger:   logger,
	}
}

// CandidateURI satisfies discovery.URIBuilder.
func (p *Prober) CandidateURI(id int64) string {
	return p.profile.CandidateURI(id)
}

// Probe implements discovery.Prober. Transport failures never propagate:
// they come back as an absent Outcome under the sentinel code.
func (p *Prober) Probe(ctx context.Context, id int64) discovery.Outcome {
	uri := p.profile.CandidateURI(id)

	if err := p.limiter.Wait(ctx, uri); err != nil {
		return discovery.Outcome{ID: id, StatusCode: p.sentinel}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, uri, nil)
	if err != nil {
		p.logger.Error("build probe request", zap.Int64("id", id), zap.Error(err))
		return discovery.Outcome{ID: id, StatusCode: p.sentinel}
	}
	if p.agent != "" {
		req.Header.Set("User-Agent", p.agent)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Debug("probe transport failure",
			zap.Int64("id", id),
			zap.String("uri", uri),
			zap.Error(err),
		)
		return discovery.Outcome{ID: id, StatusCode: p.sentinel}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != p.profile.ExistsCode {
		return discovery.Outcome{ID: id, StatusCode: resp.StatusCode}
	}

	permalink, ok := p.resolvePermalink(id, uri, resp.Header.Get("Location"))
	if !ok {
		// Exists-classified reply with no usable redirect target: treat
		// as absent rather than emit a permalink we cannot construct.
		return discovery.Outcome{ID: id, StatusCode: resp.StatusCode}
	}
	return discovery.Outcome{ID: id, StatusCode: resp.StatusCode, Permalink: &permalink}
}

// resolvePermalink combines the scheme and host of the probed URI with the
// path carried by the redirect target. The redirect body is never fetched.
func (p *Prober) resolvePermalink(id int64, probed, location string) (discovery.Permalink, bool) {
	if strings.TrimSpace(location) == "" {
		return discovery.Permalink{}, false
	}
	base, err := url.Parse(probed)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return discovery.Permalink{}, false
	}
	target, err := url.Parse(location)
	if err != nil || target.Path == "" {
		return discovery.Permalink{}, false
	}
	return discovery.Permalink{
		ID:     id,
		Scheme: base.Scheme,
		Host:   base.Host,
		Path:   target.Path,
	}, true
}
