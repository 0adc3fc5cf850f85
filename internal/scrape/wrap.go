package scrape

import (
	"sort"
	"sync"
)

// Wrapper adjusts a parsed recipe after JSON-LD extraction. Wrappers receive
// the raw Recipe node so they can recover fields the standard mapping missed
// or rendered in a non-standard shape.
type Wrapper func(node map[string]any, r *Recipe)

// WrapperRegistry holds named per-site wrappers, applied in registration
// order after every extraction for that site.
type WrapperRegistry struct {
	mu       sync.RWMutex
	wrappers map[string][]namedWrapper
}

type namedWrapper struct {
	name string
	fn   Wrapper
}

// NewWrapperRegistry returns a registry pre-seeded with the built-in site
// wrappers.
func NewWrapperRegistry() *WrapperRegistry {
	reg := &WrapperRegistry{wrappers: make(map[string][]namedWrapper)}
	reg.Register("allrecipes", "author-list", allrecipesAuthorList)
	return reg
}

// Register appends a wrapper for the site. Wrappers with a duplicate name
// replace the earlier registration in place.
func (w *WrapperRegistry) Register(site, name string, fn Wrapper) {
	if fn == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, existing := range w.wrappers[site] {
		if existing.name == name {
			w.wrappers[site][i].fn = fn
			return
		}
	}
	w.wrappers[site] = append(w.wrappers[site], namedWrapper{name: name, fn: fn})
}

// Apply runs the site's wrappers over the recipe in registration order.
func (w *WrapperRegistry) Apply(site string, node map[string]any, r *Recipe) {
	w.mu.RLock()
	chain := make([]namedWrapper, len(w.wrappers[site]))
	copy(chain, w.wrappers[site])
	w.mu.RUnlock()

	for _, wrapper := range chain {
		wrapper.fn(node, r)
	}
}

// Names returns the registered wrapper names for a site, sorted.
func (w *WrapperRegistry) Names(site string) []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]string, 0, len(w.wrappers[site]))
	for _, wrapper := range w.wrappers[site] {
		out = append(out, wrapper.name)
	}
	sort.Strings(out)
	return out
}

// allrecipesAuthorList recovers the author when the site renders the
// schema.org author property as a single-element list of Person objects.
func allrecipesAuthorList(node map[string]any, r *Recipe) {
	if r.Author != "" {
		return
	}
	list, ok := node["author"].([]any)
	if !ok || len(list) != 1 {
		return
	}
	person, ok := list[0].(map[string]any)
	if !ok {
		return
	}
	if name, ok := person["name"].(string); ok {
		r.Author = NormalizeString(name)
	}
}
