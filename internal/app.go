package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/starford/bangd/internal/bangservice"
	"github.com/starford/bangd/internal/catalog"
	"github.com/starford/bangd/internal/intercept"
	"github.com/starford/bangd/internal/kvstore"
	"github.com/starford/bangd/internal/migrate"
	"github.com/starford/bangd/internal/models"
	"github.com/starford/bangd/internal/session"
	"github.com/starford/bangd/internal/settings"
	"github.com/starford/bangd/internal/sse"
	"github.com/starford/bangd/internal/storage"
)

// sessionThrottle bounds how often session.updated events reach the shim.
const sessionThrottle = time.Second

// App holds the wired components shared by the daemon and the CLI commands.
type App struct {
	Config   *Config
	Logger   *slog.Logger
	DB       *kvstore.DB
	Session  *session.Store
	Resolver *settings.Resolver
	Service  *bangservice.Service
	Engine   *intercept.Engine
	Broker   *sse.Broker

	// Storage is the outcome of the startup storage migration.
	Storage migrate.StorageResult
}

// NewLogger returns the structured JSON logger used by every component.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// Open opens the durable store, migrates it and wires the components. The
// session tier stays cold until Start.
func Open(ctx context.Context, cfg *Config, logger *slog.Logger) (*App, error) {
	db, err := kvstore.Open(cfg.Store.Path, kvstore.DefaultLimits)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	res, err := migrate.MigrateStorage(ctx, db, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate store: %w", err)
	}
	if res.Installed && cfg.Catalog.Provider != catalog.DefaultProvider {
		seed := map[string]json.RawMessage{models.KeyProvider: settings.EncodeValue(cfg.Catalog.Provider)}
		if err := db.Set(ctx, seed); err != nil {
			db.Close()
			return nil, fmt.Errorf("seed provider: %w", err)
		}
	}

	backups, err := storage.NewFS(cfg.Backup.Dir)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init backups: %w", err)
	}

	rules := intercept.DefaultRules()
	if cfg.Intercept.RulesFile != "" {
		if rules, err = intercept.LoadRules(cfg.Intercept.RulesFile); err != nil {
			db.Close()
			return nil, fmt.Errorf("load rules: %w", err)
		}
	}

	tier := session.NewStore()
	fetcher := catalog.NewFetcher(&http.Client{Timeout: cfg.Catalog.Timeout}, catalog.DefaultRegistry(), logger)
	resolver := settings.NewResolver(db, tier, fetcher, logger)
	db.OnChanged(resolver.HandleChanges)

	broker := sse.NewBroker(sessionThrottle)
	resolver.OnUpdate(func(s *session.Snapshot) {
		broker.PublishSession(s.Version, len(s.Bangs))
	})

	svc := bangservice.NewService(db, tier, resolver, backups, logger,
		bangservice.WithEvents(broker),
		bangservice.WithRegistry(fetcher.Registry()),
	)
	engine := intercept.NewEngine(rules, intercept.NewLimiter(cfg.Intercept.Debounce), tier, broker, logger,
		intercept.WithFallbackSearch(cfg.Intercept.FallbackSearch),
	)

	return &App{
		Config:   cfg,
		Logger:   logger,
		DB:       db,
		Session:  tier,
		Resolver: resolver,
		Service:  svc,
		Engine:   engine,
		Broker:   broker,
		Storage:  res,
	}, nil
}

// Start runs the first resolve cycle. Install and migration force a fresh
// catalog; a plain startup resolves because the session tier is empty.
func (a *App) Start(ctx context.Context) error {
	force := a.Storage.Installed || a.Storage.Migrated
	a.Logger.Info("resolver: startup",
		slog.Bool("installed", a.Storage.Installed),
		slog.Bool("migrated", a.Storage.Migrated),
	)
	return a.Resolver.Resolve(ctx, force)
}

// Close releases the broker and the store.
func (a *App) Close() error {
	a.Broker.Close()
	return a.DB.Close()
}
