// Package catalog fetches and normalises the built-in bang catalogs published
// by third-party providers.
package catalog

import "sort"

// Provider identifiers.
const (
	Kagi       = "kagi"
	DuckDuckGo = "duckduckgo"
	None       = "none"

	DefaultProvider = Kagi
)

// Source is one attempt in a provider's fallback chain. Every URL of a source
// is fetched and the results are concatenated; the source fails if any of
// them fails.
type Source struct {
	URLs []string
}

// Provider describes where a catalog lives and how its relative URLs resolve.
type Provider struct {
	ID string
	// Origin is prefixed to origin-relative target URLs.
	Origin  string
	Sources []Source
}

// Registry maps provider identifiers to their descriptions.
type Registry map[string]Provider

// DefaultRegistry returns the known providers.
func DefaultRegistry() Registry {
	return Registry{
		Kagi: {
			ID:     Kagi,
			Origin: "https://kagi.com",
			Sources: []Source{
				{URLs: []string{
					"https://raw.githubusercontent.com/kagisearch/bangs/main/data/bangs.json",
					"https://raw.githubusercontent.com/kagisearch/bangs/main/data/kagi_bangs.json",
				}},
				{URLs: []string{
					"https://cdn.jsdelivr.net/gh/kagisearch/bangs@main/data/bangs.json",
					"https://cdn.jsdelivr.net/gh/kagisearch/bangs@main/data/kagi_bangs.json",
				}},
			},
		},
		DuckDuckGo: {
			ID:      DuckDuckGo,
			Origin:  "https://duckduckgo.com",
			Sources: []Source{{URLs: []string{"https://duckduckgo.com/bang.js"}}},
		},
		None: {ID: None},
	}
}

// Known reports whether id names a registered provider.
func (r Registry) Known(id string) bool {
	_, ok := r[id]
	return ok
}

// IDs returns the registered identifiers in sorted order.
func (r Registry) IDs() []string {
	ids := make([]string, 0, len(r))
	for id := range r {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
