package settings

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/starford/bangd/internal/catalog"
	"github.com/starford/bangd/internal/kvstore"
	"github.com/starford/bangd/internal/models"
	"github.com/starford/bangd/internal/parser"
	"github.com/starford/bangd/internal/session"
)

// Catalog supplies built-in bangs for a provider.
type Catalog interface {
	Fetch(ctx context.Context, providerID string) ([]models.BangDefinition, error)
	Registry() catalog.Registry
}

// Tier is the session tier as written by the resolver.
type Tier interface {
	session.Tier
	SetInactive(tokens []string)
	SetScalars(symbol, provider string)
	PutCustom(entries map[string]*session.Entry)
}

// maxRebuilds bounds how often one cycle re-reads the durable tier when it
// changes underneath it.
const maxRebuilds = 3

// Resolver is the only writer of the session tier.
type Resolver struct {
	durable kvstore.Durable
	tier    Tier
	catalog Catalog
	logger  *slog.Logger

	// mu serialises resolve cycles.
	mu sync.Mutex
	// gen counts durable changes seen by HandleChanges.
	gen atomic.Uint64

	dmu      sync.RWMutex
	defaults map[string]session.Entry

	trigger chan bool

	lmu      sync.RWMutex
	onUpdate []func(*session.Snapshot)
}

// NewResolver creates a Resolver.
func NewResolver(d kvstore.Durable, tier Tier, c Catalog, logger *slog.Logger) *Resolver {
	return &Resolver{
		durable: d,
		tier:    tier,
		catalog: c,
		logger:  logger,
		trigger: make(chan bool, 1),
	}
}

// OnUpdate registers fn to be called with every snapshot the resolver
// publishes, including fast-path patches.
func (r *Resolver) OnUpdate(fn func(*session.Snapshot)) {
	r.lmu.Lock()
	r.onUpdate = append(r.onUpdate, fn)
	r.lmu.Unlock()
}

// Resolve rebuilds the session tier. Unless force is set, a warm tier is left
// alone. A catalog failure is not an error: the tier is rebuilt with custom
// bangs only. Errors are logged before being returned.
func (r *Resolver) Resolve(ctx context.Context, force bool) error {
	if !force && r.tier.Warm() {
		r.logger.Debug("resolver: session warm, skipping")
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	gen := r.gen.Load()
	state, err := LoadState(ctx, r.durable, r.logger)
	if err != nil {
		r.logger.Error("resolver: load durable tier failed", slog.String("error", err.Error()))
		return err
	}

	provider := r.providerOf(state.Provider)
	defs, err := r.catalog.Fetch(ctx, provider)
	if err != nil {
		r.logger.Error("resolver: fetch failed, using custom bangs only",
			slog.String("provider", provider),
			slog.String("error", err.Error()),
		)
		defs = nil
	}
	defaults := DefaultEntries(defs)

	r.dmu.Lock()
	r.defaults = defaults
	r.dmu.Unlock()

	var snap *session.Snapshot
	for i := 0; ; i++ {
		snap = Build(state, defaults, provider)
		if err := r.replace(snap); err != nil {
			return err
		}
		// A durable change that landed after the read may have been patched
		// into the snapshot just replaced. Rebuild until the tier is quiet.
		now := r.gen.Load()
		if now == gen || i >= maxRebuilds {
			break
		}
		gen = now
		if state, err = LoadState(ctx, r.durable, r.logger); err != nil {
			r.logger.Error("resolver: reload durable tier failed", slog.String("error", err.Error()))
			return err
		}
	}

	r.logger.Info("resolver: session rebuilt",
		slog.String("provider", provider),
		slog.Int("defaults", len(defaults)),
		slog.Int("custom", len(state.Bangs)),
		slog.Uint64("version", snap.Version),
	)
	r.publish()
	return nil
}

// replace swaps snap in, retrying once.
func (r *Resolver) replace(snap *session.Snapshot) error {
	err := r.tier.Replace(snap)
	if err == nil {
		return nil
	}
	r.logger.Warn("resolver: session write failed, retrying", slog.String("error", err.Error()))
	if err = r.tier.Replace(snap); err != nil {
		r.logger.Error("resolver: session write failed", slog.String("error", err.Error()))
		return err
	}
	return nil
}

func (r *Resolver) providerOf(id string) string {
	if id == "" {
		return catalog.DefaultProvider
	}
	if !r.catalog.Registry().Known(id) {
		r.logger.Warn("resolver: unknown provider, using default",
			slog.String("provider", id),
			slog.String("default", catalog.DefaultProvider),
		)
		return catalog.DefaultProvider
	}
	return id
}

// Trigger queues a resolve cycle for Run. Requests made while one is queued
// are merged; a forced request wins.
func (r *Resolver) Trigger(force bool) {
	for {
		select {
		case r.trigger <- force:
			return
		default:
		}
		select {
		case prev := <-r.trigger:
			force = force || prev
		default:
		}
	}
}

// Run executes queued resolve cycles until ctx is cancelled.
func (r *Resolver) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case force := <-r.trigger:
			if err := r.Resolve(ctx, force); err != nil && !errors.Is(err, context.Canceled) {
				r.logger.Warn("resolver: queued cycle failed", slog.String("error", err.Error()))
			}
		}
	}
}

// HandleChanges is a kvstore.ChangeListener. Bang, symbol and inactive-list
// changes are patched into the session tier directly; a provider change
// queues a forced resolve since it needs a new catalog.
func (r *Resolver) HandleChanges(changes []kvstore.Change, external bool) {
	r.gen.Add(1)

	if !r.tier.Warm() {
		r.Trigger(true)
		return
	}

	puts := make(map[string]*session.Entry)
	refetch := false
	patched := false
	for _, c := range changes {
		switch {
		case c.Key == models.KeyProvider:
			refetch = true
		case c.Key == models.KeySymbol:
			sym := decodeString(c.NewValue)
			if sym == "" {
				sym = parser.DefaultSymbol
			}
			r.tier.SetScalars(sym, "")
			patched = true
		case c.Key == models.KeyInactive:
			var tokens []string
			if c.NewValue != nil {
				if err := json.Unmarshal(c.NewValue, &tokens); err != nil {
					r.logger.Warn("resolver: bad inactive list", slog.String("error", err.Error()))
					continue
				}
			}
			r.tier.SetInactive(tokens)
			patched = true
		case models.IsBangKey(c.Key):
			token := models.TokenFromKey(c.Key)
			if c.NewValue == nil {
				puts[token] = r.defaultEntry(token)
				continue
			}
			def, err := DecodeBang(c.NewValue)
			if err != nil {
				r.logger.Warn("resolver: skipping changed bang", slog.String("key", c.Key), slog.String("error", err.Error()))
				continue
			}
			e := customEntry(def)
			puts[def.Token] = &e
		}
	}
	if len(puts) > 0 {
		r.tier.PutCustom(puts)
		patched = true
	}

	r.logger.Debug("resolver: durable change",
		slog.Int("changes", len(changes)),
		slog.Bool("external", external),
		slog.Bool("refetch", refetch),
	)
	if refetch {
		r.Trigger(true)
	}
	if patched {
		r.publish()
	}
}

// defaultEntry returns the built-in entry a removed custom bang was
// shadowing, or nil.
func (r *Resolver) defaultEntry(token string) *session.Entry {
	r.dmu.RLock()
	defer r.dmu.RUnlock()
	e, ok := r.defaults[token]
	if !ok {
		return nil
	}
	return &e
}

func (r *Resolver) publish() {
	snap := r.tier.Load()
	if snap == nil {
		return
	}
	r.lmu.RLock()
	fns := slices.Clone(r.onUpdate)
	r.lmu.RUnlock()
	for _, fn := range fns {
		fn(snap)
	}
}
