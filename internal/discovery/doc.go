// Package discovery implements the adaptive sparse-ID crawl engine: a
// bounded worker pool that probes a numeric identifier range for existing
// resources, resolves hits to canonical permalinks, and decides when the
// absence tail is long enough that probing further is no longer worthwhile.
package discovery
