// Package intercept decides whether an outgoing request carries a bang and,
// if so, where the browser should go instead.
package intercept

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/starford/bangd/internal/models"
	"github.com/starford/bangd/internal/parser"
	"github.com/starford/bangd/internal/session"
)

// Navigator carries out tab actions in the browser.
type Navigator interface {
	ReplaceTab(ctx context.Context, tabID int, url string) error
	OpenBackground(ctx context.Context, url string) error
}

// SessionReader gives read access to the resolved configuration.
type SessionReader interface {
	Load() *session.Snapshot
}

// Decision actions.
const (
	ActionProceed  = "proceed"
	ActionRedirect = "redirect"
)

// Reasons a request was left alone.
const (
	ReasonOutOfScope = "out_of_scope"
	ReasonNoQuery    = "no_query"
	ReasonDebounced  = "debounced"
	ReasonNoBang     = "no_bang"
	ReasonUnknown    = "unknown_bang"
	ReasonNoTarget   = "no_valid_target"
)

// Decision is the answer returned to the browser for one request.
type Decision struct {
	Action      string       `json:"action"`
	Reason      string       `json:"reason,omitempty"`
	Token       string       `json:"bang,omitempty"`
	Query       string       `json:"query,omitempty"`
	Navigations []Navigation `json:"navigations,omitempty"`
}

func proceed(reason string) Decision {
	return Decision{Action: ActionProceed, Reason: reason}
}

// Engine runs extract, parse, resolve and navigate for each request.
type Engine struct {
	extractor *Extractor
	limiter   *Limiter
	session   SessionReader
	nav       Navigator
	fallback  string
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithFallbackSearch sets the URL template used by FallbackURL.
func WithFallbackSearch(template string) Option {
	return func(e *Engine) { e.fallback = template }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an Engine. nav may be nil, in which case decisions are
// only returned to the caller.
func NewEngine(rules *Rules, limiter *Limiter, s SessionReader, nav Navigator, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		extractor: NewExtractor(rules),
		limiter:   limiter,
		session:   s,
		nav:       nav,
		logger:    logger,
		now:       time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Handle processes one intercepted request. Every miss yields a proceed
// decision; nothing here returns an error to the browser.
func (e *Engine) Handle(ctx context.Context, d Descriptor) Decision {
	query, ok := e.extractor.Extract(d)
	if !ok {
		if e.extractor.rules.InScope(parseURL(d.URL)) {
			return proceed(ReasonNoQuery)
		}
		return proceed(ReasonOutOfScope)
	}
	if !e.limiter.ShouldProcess(e.now()) {
		e.logger.Debug("intercept: debounced", slog.String("url", d.URL))
		return proceed(ReasonDebounced)
	}

	dec := e.resolve(query)
	if dec.Action != ActionRedirect {
		return dec
	}
	e.navigate(ctx, d.TabID, dec.Navigations)
	return dec
}

// HandleQuery resolves a bare query typed into the browser's search box.
// Background targets are sent to the navigator; the caller redirects to the
// replace target itself.
func (e *Engine) HandleQuery(ctx context.Context, query string) Decision {
	dec := e.resolve(query)
	if dec.Action == ActionRedirect && e.nav != nil {
		for _, n := range dec.Navigations[1:] {
			if err := e.nav.OpenBackground(ctx, n.URL); err != nil {
				e.logger.Warn("intercept: open background tab failed", slog.String("error", err.Error()))
			}
		}
	}
	return dec
}

// Resolve returns the decision for query without debouncing or navigating.
func (e *Engine) Resolve(query string) Decision {
	return e.resolve(query)
}

// FallbackURL returns the search URL used when a query carries no bang, or
// "" when none is configured.
func (e *Engine) FallbackURL(query string) string {
	if e.fallback == "" {
		return ""
	}
	dest, err := Destination(models.BangTarget{URL: e.fallback, URLEncodeQuery: true}, query)
	if err != nil {
		e.logger.Warn("intercept: bad fallback search url", slog.String("error", err.Error()))
		return ""
	}
	return dest
}

func (e *Engine) resolve(query string) Decision {
	snap := e.session.Load()
	symbol := parser.DefaultSymbol
	if snap != nil && snap.Symbol != "" {
		symbol = snap.Symbol
	}

	p := parser.Parse(query, symbol)
	if !p.Found {
		return proceed(ReasonNoBang)
	}
	entry, ok := snap.Lookup(p.Token)
	if !ok {
		return Decision{Action: ActionProceed, Reason: ReasonUnknown, Token: p.Token}
	}

	navs := Plan(entry, p.Remainder, func(t models.BangTarget, err error) {
		e.logger.Warn("intercept: skipping target",
			slog.String("bang", p.Token),
			slog.String("error", err.Error()),
		)
	})
	if len(navs) == 0 {
		return Decision{Action: ActionProceed, Reason: ReasonNoTarget, Token: p.Token}
	}
	e.logger.Info("intercept: redirect",
		slog.String("bang", p.Token),
		slog.Int("targets", len(navs)),
	)
	return Decision{Action: ActionRedirect, Token: p.Token, Query: p.Remainder, Navigations: navs}
}

func (e *Engine) navigate(ctx context.Context, tabID int, navs []Navigation) {
	if e.nav == nil {
		return
	}
	for _, n := range navs {
		var err error
		if n.Kind == KindReplace {
			if tabID < 0 {
				// No tab to replace; the caller follows the decision itself.
				e.logger.Debug("intercept: request has no tab", slog.String("url", n.URL))
				continue
			}
			err = e.nav.ReplaceTab(ctx, tabID, n.URL)
		} else {
			err = e.nav.OpenBackground(ctx, n.URL)
		}
		if err != nil {
			e.logger.Warn("intercept: navigation failed",
				slog.String("kind", n.Kind),
				slog.String("error", err.Error()),
			)
		}
	}
}

func parseURL(raw string) *url.URL {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return &url.URL{}
	}
	return u
}
