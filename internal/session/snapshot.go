// Package session holds the flattened, resolved bang configuration used on
// the interception hot path. A Snapshot is immutable once published; every
// update builds a new one and swaps it in.
package session

import (
	"github.com/starford/bangd/internal/checksum"
	"github.com/starford/bangd/internal/models"
)

// Entry is the resolved form of one bang token.
type Entry struct {
	Name    string              `json:"name,omitempty"`
	Targets []models.BangTarget `json:"targets"`
	Default bool                `json:"default,omitempty"`
}

// Snapshot is one complete, resolved configuration.
type Snapshot struct {
	Version  uint64           `json:"-"`
	Symbol   string           `json:"symbol"`
	Provider string           `json:"provider"`
	Bangs    map[string]Entry `json:"bangs"`
	Inactive map[string]bool  `json:"inactive"`
}

// Lookup returns the entry for token. Built-in entries that are deactivated
// are reported as absent.
func (s *Snapshot) Lookup(token string) (Entry, bool) {
	if s == nil {
		return Entry{}, false
	}
	e, ok := s.Bangs[token]
	if !ok {
		return Entry{}, false
	}
	if e.Default && s.Inactive[token] {
		return Entry{}, false
	}
	return e, true
}

// Digest is a content hash over everything but the version.
func (s *Snapshot) Digest() string {
	if s == nil {
		return ""
	}
	sum, err := checksum.SumJSON(s)
	if err != nil {
		return ""
	}
	return sum
}

// clone copies the top-level maps so the copy can be patched without
// touching the published snapshot. Target slices are shared; they are never
// mutated after construction.
func (s *Snapshot) clone() *Snapshot {
	c := &Snapshot{
		Symbol:   s.Symbol,
		Provider: s.Provider,
		Bangs:    make(map[string]Entry, len(s.Bangs)),
		Inactive: make(map[string]bool, len(s.Inactive)),
	}
	for k, v := range s.Bangs {
		c.Bangs[k] = v
	}
	for k, v := range s.Inactive {
		c.Inactive[k] = v
	}
	return c
}
