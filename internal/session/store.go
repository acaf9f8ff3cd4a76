package session

import (
	"sync/atomic"
)

// Tier is the session configuration tier as seen by its single writer.
type Tier interface {
	Load() *Snapshot
	Warm() bool
	Replace(s *Snapshot) error
}

// Verify *Store satisfies Tier at compile time.
var _ Tier = (*Store)(nil)

// Store publishes snapshots through an atomic pointer. Readers never block
// and always see a complete snapshot.
type Store struct {
	current atomic.Pointer[Snapshot]
	version atomic.Uint64
}

// NewStore returns an empty (cold) store.
func NewStore() *Store {
	return &Store{}
}

// Load returns the current snapshot, or nil when the store is cold.
func (st *Store) Load() *Snapshot {
	return st.current.Load()
}

// Warm reports whether a snapshot with a bang symbol has been published.
func (st *Store) Warm() bool {
	s := st.current.Load()
	return s != nil && s.Symbol != ""
}

// Replace publishes s wholesale, stamping it with the next version.
func (st *Store) Replace(s *Snapshot) error {
	if s.Bangs == nil {
		s.Bangs = map[string]Entry{}
	}
	if s.Inactive == nil {
		s.Inactive = map[string]bool{}
	}
	s.Version = st.version.Add(1)
	st.current.Store(s)
	return nil
}

// Clear drops the published snapshot.
func (st *Store) Clear() {
	st.current.Store(nil)
}

// SetInactive replaces the inactive-token set. It is a no-op on a cold store.
func (st *Store) SetInactive(tokens []string) {
	st.patch(func(s *Snapshot) {
		s.Inactive = make(map[string]bool, len(tokens))
		for _, t := range tokens {
			s.Inactive[t] = true
		}
	})
}

// SetScalars updates the symbol and provider settings.
func (st *Store) SetScalars(symbol, provider string) {
	st.patch(func(s *Snapshot) {
		if symbol != "" {
			s.Symbol = symbol
		}
		if provider != "" {
			s.Provider = provider
		}
	})
}

// PutCustom overlays or removes user-authored entries. A nil entry removes the
// token.
func (st *Store) PutCustom(entries map[string]*Entry) {
	st.patch(func(s *Snapshot) {
		for token, e := range entries {
			if e == nil {
				delete(s.Bangs, token)
				continue
			}
			s.Bangs[token] = *e
		}
	})
}

func (st *Store) patch(fn func(*Snapshot)) {
	for {
		old := st.current.Load()
		if old == nil {
			return
		}
		next := old.clone()
		fn(next)
		next.Version = st.version.Add(1)
		if st.current.CompareAndSwap(old, next) {
			return
		}
	}
}
