// Package bangservice implements the management operations on custom bangs,
// settings and backups on top of the durable tier.
package bangservice

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/starford/bangd/internal/catalog"
	"github.com/starford/bangd/internal/kvstore"
	"github.com/starford/bangd/internal/models"
	"github.com/starford/bangd/internal/session"
	"github.com/starford/bangd/internal/storage"
)

// PageSize is the number of bangs per listing page.
const PageSize = 25

// DefaultUndoWindow is how long a deleted bang can be restored.
const DefaultUndoWindow = 5 * time.Second

// Resolver schedules and runs resolve cycles.
type Resolver interface {
	Resolve(ctx context.Context, force bool) error
	Trigger(force bool)
}

// SessionReader exposes the current session snapshot.
type SessionReader interface {
	Load() *session.Snapshot
}

// Page is one page of a listing. Page is clamped to [1, Pages].
type Page[T any] struct {
	Items []T `json:"items"`
	Page  int `json:"page"`
	Pages int `json:"pages"`
	Total int `json:"total"`
}

// ListQuery selects a listing page.
type ListQuery struct {
	Search       string
	Page         int
	InactiveOnly bool
}

// Service coordinates the durable tier, the session tier and backup storage.
type Service struct {
	durable  kvstore.Durable
	session  SessionReader
	resolver Resolver
	backups  storage.Provider
	registry catalog.Registry
	logger   *slog.Logger

	undoWindow time.Duration
	now        func() time.Time

	events Events

	// wmu serialises read-modify-write sequences on the durable tier.
	wmu sync.Mutex

	undoMu sync.Mutex
	undo   map[string]pendingUndo
}

// Events receives notifications about custom bang changes.
type Events interface {
	PublishBangEvent(kind, token string)
}

type pendingUndo struct {
	def     models.BangDefinition
	pos     int
	expires time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithUndoWindow overrides DefaultUndoWindow.
func WithUndoWindow(d time.Duration) Option {
	return func(s *Service) { s.undoWindow = d }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithRegistry overrides the provider registry used to validate settings.
func WithRegistry(r catalog.Registry) Option {
	return func(s *Service) { s.registry = r }
}

// WithEvents registers a receiver for bang change notifications.
func WithEvents(e Events) Option {
	return func(s *Service) { s.events = e }
}

// NewService creates a new bang service. backups may be nil when backup
// files are not managed by this process.
func NewService(d kvstore.Durable, sess SessionReader, r Resolver, backups storage.Provider, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		durable:    d,
		session:    sess,
		resolver:   r,
		backups:    backups,
		registry:   catalog.DefaultRegistry(),
		logger:     logger,
		undoWindow: DefaultUndoWindow,
		now:        time.Now,
		undo:       make(map[string]pendingUndo),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// UndoWindow is how long DeleteBang's undo token stays valid.
func (s *Service) UndoWindow() time.Duration { return s.undoWindow }

// Now returns the service clock's current time.
func (s *Service) Now() time.Time { return s.now() }

// Refresh forces a resolve cycle and waits for it.
func (s *Service) Refresh(ctx context.Context) error {
	return s.resolver.Resolve(ctx, true)
}

func (s *Service) emit(kind, token string) {
	if s.events != nil {
		s.events.PublishBangEvent(kind, token)
	}
}

func paginate[T any](items []T, page int) Page[T] {
	total := len(items)
	pages := (total + PageSize - 1) / PageSize
	if pages < 1 {
		pages = 1
	}
	if page < 1 {
		page = 1
	}
	if page > pages {
		page = pages
	}
	lo := (page - 1) * PageSize
	hi := min(lo+PageSize, total)
	out := make([]T, hi-lo)
	copy(out, items[lo:hi])
	return Page[T]{Items: out, Page: page, Pages: pages, Total: total}
}

func matches(def models.BangDefinition, search string) bool {
	if search == "" {
		return true
	}
	q := strings.ToLower(search)
	return strings.Contains(strings.ToLower(def.Name), q) || strings.Contains(def.Token, q)
}

func sortByName(defs []models.BangDefinition) {
	sort.Slice(defs, func(i, j int) bool {
		a, b := strings.ToLower(defs[i].Name), strings.ToLower(defs[j].Name)
		if a != b {
			return a < b
		}
		return defs[i].Token < defs[j].Token
	})
}
