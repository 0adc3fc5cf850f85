package scrape

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// findRecipeNode walks a decoded JSON-LD document and returns the first
// schema.org Recipe object. Documents may be a single object, an array of
// objects, or a node carrying an @graph list.
func findRecipeNode(doc any) (map[string]any, bool) {
	switch v := doc.(type) {
	case map[string]any:
		if isRecipeType(v["@type"]) {
			return v, true
		}
		if graph, ok := v["@graph"]; ok {
			return findRecipeNode(graph)
		}
	case []any:
		for _, item := range v {
			if node, ok := findRecipeNode(item); ok {
				return node, ok
			}
		}
	}
	return nil, false
}

func isRecipeType(t any) bool {
	switch v := t.(type) {
	case string:
		return v == "Recipe"
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && s == "Recipe" {
				return true
			}
		}
	}
	return false
}

// parseRecipeJSONLD decodes a JSON-LD script payload and maps the first
// Recipe node onto a Recipe. The raw node is returned alongside so site
// wrappers can read non-standard fields.
func parseRecipeJSONLD(payload []byte) (Recipe, map[string]any, error) {
	var doc any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return Recipe{}, nil, fmt.Errorf("decode json-ld: %w", err)
	}
	node, ok := findRecipeNode(doc)
	if !ok {
		return Recipe{}, nil, fmt.Errorf("no recipe node in json-ld")
	}

	r := Recipe{
		Title:        NormalizeString(stringField(node["name"])),
		Author:       personName(node["author"]),
		Image:        imageURL(node["image"]),
		CanonicalURL: stringField(node["mainEntityOfPage"]),
		Language:     stringField(node["inLanguage"]),
		Yields:       Yields(stringField(node["recipeYield"])),
		Ingredients:  stringList(node["recipeIngredient"]),
		Instructions: instructionList(node["recipeInstructions"]),
	}
	if tt := stringField(node["totalTime"]); tt != "" {
		r.TotalTimeMinutes = Minutes(tt)
	}
	if agg, ok := node["aggregateRating"].(map[string]any); ok {
		r.Rating = floatField(agg["ratingValue"])
	}
	return r, node, nil
}

func stringField(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case map[string]any:
		if id, ok := t["@id"].(string); ok {
			return id
		}
	case []any:
		if len(t) > 0 {
			return stringField(t[0])
		}
	}
	return ""
}

func floatField(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case string:
		f, _ := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f
	}
	return 0
}

// personName maps the standard single-value author property. Sites that
// render author as a list are handled by per-site wrappers.
func personName(v any) string {
	switch t := v.(type) {
	case string:
		return NormalizeString(t)
	case map[string]any:
		return NormalizeString(stringField(t["name"]))
	}
	return ""
}

func imageURL(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case map[string]any:
		return stringField(t["url"])
	case []any:
		if len(t) > 0 {
			return imageURL(t[0])
		}
	}
	return ""
}

func stringList(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, NormalizeString(s))
		}
	}
	return out
}

// instructionList flattens recipeInstructions, which may hold plain strings,
// HowToStep objects, or HowToSection groups of steps.
func instructionList(v any) []string {
	items, ok := v.([]any)
	if !ok {
		if s, isStr := v.(string); isStr {
			return []string{NormalizeString(s)}
		}
		return nil
	}
	var out []string
	for _, item := range items {
		switch t := item.(type) {
		case string:
			out = append(out, NormalizeString(t))
		case map[string]any:
			if steps, ok := t["itemListElement"]; ok {
				out = append(out, instructionList(steps)...)
				continue
			}
			if text := stringField(t["text"]); text != "" {
				out = append(out, NormalizeString(text))
			}
		}
	}
	return out
}
