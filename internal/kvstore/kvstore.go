package kvstore

import (
	"context"
	"encoding/json"
)

// Durable is the durable configuration tier. Consumers should depend on this
// interface rather than the concrete *DB type.
type Durable interface {
	Get(ctx context.Context, keys ...string) (map[string]json.RawMessage, error)
	GetAll(ctx context.Context) (map[string]json.RawMessage, error)
	Set(ctx context.Context, items map[string]json.RawMessage) error
	Remove(ctx context.Context, keys ...string) error
	Apply(ctx context.Context, b Batch) error
	Usage(ctx context.Context) (Usage, error)
	Limits() Limits
	OnChanged(l ChangeListener)
}

// Verify *DB satisfies Durable at compile time.
var _ Durable = (*DB)(nil)

// Limits mirror the quotas of browser sync storage.
type Limits struct {
	MaxItems     int
	MaxBytes     int
	MaxItemBytes int
}

// DefaultLimits are the sync-storage quotas shared by Firefox and Chrome.
var DefaultLimits = Limits{
	MaxItems:     512,
	MaxBytes:     102400,
	MaxItemBytes: 8192,
}

// Usage reports how much of the quota is consumed.
type Usage struct {
	Items int `json:"items"`
	Bytes int `json:"bytes"`
}

// Batch is a set of writes and removals applied in one transaction.
type Batch struct {
	Set    map[string]json.RawMessage
	Remove []string
}

// Change describes one key mutation. A nil OldValue means the key was
// created; a nil NewValue means it was removed.
type Change struct {
	Key      string
	OldValue json.RawMessage
	NewValue json.RawMessage
}

// ChangeListener is called after a committed mutation. external is true when
// the change was made by another process and picked up by reconciliation.
type ChangeListener func(changes []Change, external bool)
