package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/starford/bangd/internal/models"
)

// maxDocumentBytes bounds a single catalog download.
const maxDocumentBytes = 32 << 20

// FetchError reports that every source of a provider failed.
type FetchError struct {
	Provider string
	Errs     []error
}

func (e *FetchError) Error() string {
	msgs := make([]string, len(e.Errs))
	for i, err := range e.Errs {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("catalog: fetch %s: all sources failed: %s", e.Provider, strings.Join(msgs, "; "))
}

func (e *FetchError) Unwrap() []error {
	return e.Errs
}

// ErrUnknownProvider is returned for identifiers missing from the registry.
var ErrUnknownProvider = errors.New("catalog: unknown provider")

// Fetcher downloads provider catalogs. Concurrent fetches of the same
// provider share one download.
type Fetcher struct {
	client   *http.Client
	registry Registry
	logger   *slog.Logger
	group    singleflight.Group
}

// NewFetcher creates a Fetcher. A nil registry means DefaultRegistry.
func NewFetcher(client *http.Client, registry Registry, logger *slog.Logger) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	if registry == nil {
		registry = DefaultRegistry()
	}
	return &Fetcher{client: client, registry: registry, logger: logger}
}

// Registry returns the providers this fetcher knows.
func (f *Fetcher) Registry() Registry {
	return f.registry
}

// Fetch returns the normalised, corrected catalog of providerID. Sources are
// tried in order; if all fail a *FetchError is returned. The "none" provider
// yields an empty list.
func (f *Fetcher) Fetch(ctx context.Context, providerID string) ([]models.BangDefinition, error) {
	p, ok := f.registry[providerID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, providerID)
	}
	if len(p.Sources) == 0 {
		return []models.BangDefinition{}, nil
	}

	v, err, _ := f.group.Do(providerID, func() (any, error) {
		return f.fetchProvider(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	shared := v.([]models.BangDefinition)
	out := make([]models.BangDefinition, len(shared))
	copy(out, shared)
	return out, nil
}

func (f *Fetcher) fetchProvider(ctx context.Context, p Provider) ([]models.BangDefinition, error) {
	fe := &FetchError{Provider: p.ID}
	for i, src := range p.Sources {
		defs, err := f.fetchSource(ctx, p, src)
		if err == nil {
			f.logger.Info("catalog: fetched",
				slog.String("provider", p.ID),
				slog.Int("source", i),
				slog.Int("bangs", len(defs)),
			)
			return ApplyCorrections(defs), nil
		}
		f.logger.Warn("catalog: source failed",
			slog.String("provider", p.ID),
			slog.Int("source", i),
			slog.String("error", err.Error()),
		)
		fe.Errs = append(fe.Errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	return nil, fe
}

func (f *Fetcher) fetchSource(ctx context.Context, p Provider, src Source) ([]models.BangDefinition, error) {
	var all []models.BangDefinition
	for _, u := range src.URLs {
		data, err := f.get(ctx, u)
		if err != nil {
			return nil, err
		}
		defs, err := Normalize(data, p.Origin)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", u, err)
		}
		all = append(all, defs...)
	}
	for i := range all {
		all[i].Order = i
	}
	return all, nil
}

func (f *Fetcher) get(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%s returned status %d", u, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", u, err)
	}
	return body, nil
}
