// Package site defines per-site crawl profiles: how candidate URIs are
// built from numeric identifiers and which status codes signal existence
// and absence for that site.
package site

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Profile captures everything site-specific about sparse-ID discovery.
type Profile struct {
	// Name is the registry key and the label used in logs and metrics.
	Name string `mapstructure:"name"`
	// URIFormat is a printf template with exactly one %d verb for the
	// numeric identifier.
	URIFormat string `mapstructure:"uri_format"`
	// ExistsCode marks an identifier as existing (allrecipes 301s to the
	// canonical permalink; anything else means absent).
	ExistsCode int `mapstructure:"exists_code"`
	// WatchCode is the absence status tracked for streaks.
	WatchCode int `mapstructure:"watch_code"`
	// LowerID and UpperID are the default probe range. UpperID is
	// deliberate headroom past the last known valid identifier.
	LowerID int64 `mapstructure:"lower_id"`
	UpperID int64 `mapstructure:"upper_id"`
}

// CandidateURI renders the probe URI for an identifier.
func (p Profile) CandidateURI(id int64) string {
	return fmt.Sprintf(p.URIFormat, id)
}

// Validate rejects profiles that cannot drive a crawl.
func (p Profile) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("profile name is required")
	}
	if strings.Count(p.URIFormat, "%d") != 1 {
		return fmt.Errorf("profile %q: uri_format needs exactly one %%d verb", p.Name)
	}
	if p.ExistsCode <= 0 {
		return fmt.Errorf("profile %q: exists_code must be > 0", p.Name)
	}
	if p.WatchCode <= 0 {
		return fmt.Errorf("profile %q: watch_code must be > 0", p.Name)
	}
	if p.LowerID > p.UpperID {
		return fmt.Errorf("profile %q: lower_id %d exceeds upper_id %d", p.Name, p.LowerID, p.UpperID)
	}
	return nil
}

// AllRecipes returns the built-in allrecipes.com profile. Existing recipes
// 301-redirect the bare numeric URI to the slugged permalink; missing ones
// return 404. The ID range is sparse and the upper bound is headroom.
func AllRecipes() Profile {
	return Profile{
		Name:       "allrecipes",
		URIFormat:  "https://www.allrecipes.com/recipe/%d/",
		ExistsCode: 301,
		WatchCode:  404,
		LowerID:    6663,
		UpperID:    300000,
	}
}

// Registry holds known profiles by name. Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	profiles map[string]Profile
}

// NewRegistry returns a Registry seeded with the built-in profiles.
func NewRegistry() *Registry {
	r := &Registry{profiles: make(map[string]Profile)}
	r.profiles[AllRecipes().Name] = AllRecipes()
	return r
}

// Register adds or replaces a profile after validating it.
func (r *Registry) Register(p Profile) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("register profile: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[p.Name] = p
	return nil
}

// ErrUnknownSite is returned when a profile name is not registered.
var ErrUnknownSite = errors.New("unknown site profile")

// Lookup fetches a profile by name.
func (r *Registry) Lookup(name string) (Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %q", ErrUnknownSite, name)
	}
	return p, nil
}

// Names lists the registered profile names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.profiles))
	for name := range r.profiles {
		names = append(names, name)
	}
	return names
}
