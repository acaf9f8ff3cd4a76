package settings

import (
	"github.com/starford/bangd/internal/models"
	"github.com/starford/bangd/internal/parser"
	"github.com/starford/bangd/internal/session"
)

// DefaultEntries flattens a catalog into token entries. Later definitions
// of a token replace earlier ones.
func DefaultEntries(defs []models.BangDefinition) map[string]session.Entry {
	out := make(map[string]session.Entry, len(defs))
	for _, d := range defs {
		out[d.Token] = session.Entry{Name: d.Name, Targets: d.Targets, Default: true}
	}
	return out
}

// Build merges built-in entries with the durable state. A custom bang
// replaces only the built-in entry with the exact same token; aliases of
// that built-in keep their own entries.
func Build(st State, defaults map[string]session.Entry, provider string) *session.Snapshot {
	snap := &session.Snapshot{
		Symbol:   st.Symbol,
		Provider: provider,
		Bangs:    make(map[string]session.Entry, len(defaults)+len(st.Bangs)),
		Inactive: make(map[string]bool, len(st.Inactive)),
	}
	if snap.Symbol == "" {
		snap.Symbol = parser.DefaultSymbol
	}
	for token, e := range defaults {
		snap.Bangs[token] = e
	}
	for _, b := range st.Bangs {
		snap.Bangs[b.Token] = customEntry(b)
	}
	for _, t := range st.Inactive {
		snap.Inactive[t] = true
	}
	return snap
}

func customEntry(b models.BangDefinition) session.Entry {
	return session.Entry{Name: b.Name, Targets: b.Targets}
}
