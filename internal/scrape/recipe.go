// Package scrape extracts structured recipe data from discovered permalink
// pages. Extraction reads the schema.org Recipe JSON-LD payload embedded in
// the page, with per-site wrappers patching up non-standard markup.
package scrape

// Recipe holds the structured fields extracted from a recipe page.
type Recipe struct {
	Title            string   `json:"title"`
	Author           string   `json:"author,omitempty"`
	Image            string   `json:"image,omitempty"`
	CanonicalURL     string   `json:"canonical_url,omitempty"`
	Language         string   `json:"language,omitempty"`
	TotalTimeMinutes int      `json:"total_time_minutes,omitempty"`
	Yields           string   `json:"yields,omitempty"`
	Ingredients      []string `json:"ingredients,omitempty"`
	Instructions     []string `json:"instructions,omitempty"`
	Rating           float64  `json:"rating,omitempty"`
}

// Result pairs a parsed recipe with the raw page snapshot it came from.
type Result struct {
	Recipe     Recipe
	HTML       []byte
	StatusCode int
}
