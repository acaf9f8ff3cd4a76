package bangservice

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/starford/bangd/internal/apperr"
	"github.com/starford/bangd/internal/kvstore"
	"github.com/starford/bangd/internal/models"
	"github.com/starford/bangd/internal/parser"
	"github.com/starford/bangd/internal/settings"
)

// BangInput is a user-authored bang before normalisation.
type BangInput struct {
	Name    string              `json:"name"`
	Token   string              `json:"bang"`
	Targets []models.BangTarget `json:"targets"`
}

// ListCustom returns custom bangs in their configured order.
func (s *Service) ListCustom(ctx context.Context, q ListQuery) (Page[models.BangDefinition], error) {
	st, err := settings.LoadState(ctx, s.durable, s.logger)
	if err != nil {
		return Page[models.BangDefinition]{}, err
	}
	items := make([]models.BangDefinition, 0, len(st.Bangs))
	for _, b := range st.Bangs {
		if matches(b, q.Search) {
			b.IsActive = true
			items = append(items, b)
		}
	}
	return paginate(items, q.Page), nil
}

// ListDefaults returns the built-in bangs of the current session, sorted by
// name.
func (s *Service) ListDefaults(_ context.Context, q ListQuery) Page[models.BangDefinition] {
	snap := s.session.Load()
	var items []models.BangDefinition
	if snap != nil {
		for token, e := range snap.Bangs {
			if !e.Default {
				continue
			}
			def := models.BangDefinition{
				Name:      e.Name,
				Token:     token,
				Targets:   e.Targets,
				IsDefault: true,
				IsActive:  !snap.Inactive[token],
			}
			if q.InactiveOnly && def.IsActive {
				continue
			}
			if matches(def, q.Search) {
				items = append(items, def)
			}
		}
	}
	sortByName(items)
	return paginate(items, q.Page)
}

// GetBang returns the custom bang for token, or the built-in one when no
// custom bang exists.
func (s *Service) GetBang(ctx context.Context, token string) (models.BangDefinition, error) {
	token = strings.ToLower(token)
	def, err := s.custom(ctx, token)
	if err == nil {
		def.IsActive = true
		return def, nil
	}
	if snap := s.session.Load(); snap != nil {
		if e, ok := snap.Bangs[token]; ok && e.Default {
			return models.BangDefinition{
				Name:      e.Name,
				Token:     token,
				Targets:   e.Targets,
				IsDefault: true,
				IsActive:  !snap.Inactive[token],
			}, nil
		}
	}
	return models.BangDefinition{}, err
}

// AddBang validates and stores a new custom bang at the end of the list.
func (s *Service) AddBang(ctx context.Context, in BangInput) (models.BangDefinition, error) {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	st, err := settings.LoadState(ctx, s.durable, s.logger)
	if err != nil {
		return models.BangDefinition{}, err
	}
	def, err := prepare(in, symbolOf(st), len(st.Bangs))
	if err != nil {
		return models.BangDefinition{}, err
	}
	for _, b := range st.Bangs {
		if b.Token == def.Token {
			return models.BangDefinition{}, fmt.Errorf("bangservice: bang %q: %w", def.Token, apperr.ErrAlreadyExists)
		}
	}

	b := kvstore.Batch{Set: make(map[string]json.RawMessage, len(st.Bangs)+1)}
	if err := renumber(b.Set, append(st.Bangs, def)); err != nil {
		return models.BangDefinition{}, err
	}
	if err := s.durable.Apply(ctx, b); err != nil {
		return models.BangDefinition{}, err
	}
	s.emit("created", def.Token)
	return def, nil
}

// EditBang replaces the custom bang stored under token. Renaming the token is
// a single atomic write.
func (s *Service) EditBang(ctx context.Context, token string, in BangInput) (models.BangDefinition, error) {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	token = strings.ToLower(token)
	old, err := s.custom(ctx, token)
	if err != nil {
		return models.BangDefinition{}, err
	}
	sym, err := s.symbol(ctx)
	if err != nil {
		return models.BangDefinition{}, err
	}
	def, err := prepare(in, sym, old.Order)
	if err != nil {
		return models.BangDefinition{}, err
	}

	b := kvstore.Batch{Set: map[string]json.RawMessage{}}
	if def.Token != old.Token {
		if _, err := s.custom(ctx, def.Token); err == nil {
			return models.BangDefinition{}, fmt.Errorf("bangservice: bang %q: %w", def.Token, apperr.ErrAlreadyExists)
		}
		b.Remove = []string{models.BangKey(old.Token)}
	}
	key, value, err := settings.EncodeBang(def)
	if err != nil {
		return models.BangDefinition{}, err
	}
	b.Set[key] = value
	if err := s.durable.Apply(ctx, b); err != nil {
		return models.BangDefinition{}, err
	}

	if def.Token != old.Token {
		s.emit("deleted", old.Token)
		s.emit("created", def.Token)
	} else {
		s.emit("updated", def.Token)
	}
	return def, nil
}

// DeleteBang removes a custom bang and returns a token that restores it
// within the undo window.
func (s *Service) DeleteBang(ctx context.Context, token string) (string, error) {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	token = strings.ToLower(token)
	st, err := settings.LoadState(ctx, s.durable, s.logger)
	if err != nil {
		return "", err
	}
	pos := slices.IndexFunc(st.Bangs, func(b models.BangDefinition) bool { return b.Token == token })
	if pos < 0 {
		return "", fmt.Errorf("bangservice: bang %q: %w", token, apperr.ErrNotFound)
	}
	def := st.Bangs[pos]

	rest := slices.Delete(slices.Clone(st.Bangs), pos, pos+1)
	b := kvstore.Batch{Set: make(map[string]json.RawMessage, len(rest)), Remove: []string{models.BangKey(token)}}
	if err := renumber(b.Set, rest); err != nil {
		return "", err
	}
	if err := s.durable.Apply(ctx, b); err != nil {
		return "", err
	}

	id := uuid.NewString()
	now := s.now()
	s.undoMu.Lock()
	for k, p := range s.undo {
		if now.After(p.expires) {
			delete(s.undo, k)
		}
	}
	s.undo[id] = pendingUndo{def: def, pos: pos, expires: now.Add(s.undoWindow)}
	s.undoMu.Unlock()

	s.emit("deleted", token)
	return id, nil
}

// UndoDelete restores the bang removed by the DeleteBang call that returned
// undoToken. Expired or unknown tokens yield apperr.ErrNotFound.
func (s *Service) UndoDelete(ctx context.Context, undoToken string) (models.BangDefinition, error) {
	s.undoMu.Lock()
	p, ok := s.undo[undoToken]
	if ok {
		delete(s.undo, undoToken)
	}
	s.undoMu.Unlock()
	if !ok || s.now().After(p.expires) {
		return models.BangDefinition{}, fmt.Errorf("bangservice: undo token: %w", apperr.ErrNotFound)
	}

	s.wmu.Lock()
	defer s.wmu.Unlock()
	st, err := settings.LoadState(ctx, s.durable, s.logger)
	if err != nil {
		return models.BangDefinition{}, err
	}
	for _, b := range st.Bangs {
		if b.Token == p.def.Token {
			return models.BangDefinition{}, fmt.Errorf("bangservice: bang %q: %w", p.def.Token, apperr.ErrAlreadyExists)
		}
	}

	// Back to where it was, or last if the list has shrunk since.
	pos := min(p.pos, len(st.Bangs))
	bangs := slices.Insert(slices.Clone(st.Bangs), pos, p.def)
	b := kvstore.Batch{Set: make(map[string]json.RawMessage, len(bangs))}
	if err := renumber(b.Set, bangs); err != nil {
		return models.BangDefinition{}, err
	}
	if err := s.durable.Apply(ctx, b); err != nil {
		return models.BangDefinition{}, err
	}
	def := bangs[pos]
	def.Order = pos
	s.emit("created", def.Token)
	return def, nil
}

// Reorder assigns dense orders following tokens, which must name every
// custom bang exactly once.
func (s *Service) Reorder(ctx context.Context, tokens []string) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	st, err := settings.LoadState(ctx, s.durable, s.logger)
	if err != nil {
		return err
	}
	byToken := make(map[string]models.BangDefinition, len(st.Bangs))
	for _, b := range st.Bangs {
		byToken[b.Token] = b
	}
	if len(tokens) != len(byToken) {
		return fmt.Errorf("bangservice: reorder lists %d of %d bangs: %w", len(tokens), len(byToken), apperr.ErrInvalid)
	}

	set := make(map[string]json.RawMessage, len(tokens))
	for i, t := range tokens {
		t = strings.ToLower(t)
		def, ok := byToken[t]
		if !ok {
			return fmt.Errorf("bangservice: reorder: unknown or repeated bang %q: %w", t, apperr.ErrInvalid)
		}
		delete(byToken, t)
		def.Order = i
		key, value, err := settings.EncodeBang(def)
		if err != nil {
			return err
		}
		set[key] = value
	}
	return s.durable.Set(ctx, set)
}

// SetActive activates or deactivates a built-in bang.
func (s *Service) SetActive(ctx context.Context, token string, active bool) error {
	token = strings.ToLower(token)
	snap := s.session.Load()
	if snap == nil {
		return fmt.Errorf("bangservice: session not ready: %w", apperr.ErrConflict)
	}
	if e, ok := snap.Bangs[token]; !ok || !e.Default {
		return fmt.Errorf("bangservice: default bang %q: %w", token, apperr.ErrNotFound)
	}

	s.wmu.Lock()
	defer s.wmu.Unlock()

	st, err := settings.LoadState(ctx, s.durable, s.logger)
	if err != nil {
		return err
	}
	set := make(map[string]bool, len(st.Inactive)+1)
	for _, t := range st.Inactive {
		set[t] = true
	}
	if active == !set[token] {
		return nil
	}
	if active {
		delete(set, token)
	} else {
		set[token] = true
	}
	list := make([]string, 0, len(set))
	for t := range set {
		list = append(list, t)
	}
	sort.Strings(list)
	return s.durable.Set(ctx, map[string]json.RawMessage{models.KeyInactive: settings.EncodeValue(list)})
}

// renumber encodes bangs into set with orders 0..n-1 in slice order.
func renumber(set map[string]json.RawMessage, bangs []models.BangDefinition) error {
	for i, def := range bangs {
		def.Order = i
		key, value, err := settings.EncodeBang(def)
		if err != nil {
			return err
		}
		set[key] = value
	}
	return nil
}

func (s *Service) custom(ctx context.Context, token string) (models.BangDefinition, error) {
	key := models.BangKey(token)
	items, err := s.durable.Get(ctx, key)
	if err != nil {
		return models.BangDefinition{}, err
	}
	raw, ok := items[key]
	if !ok {
		return models.BangDefinition{}, fmt.Errorf("bangservice: bang %q: %w", token, apperr.ErrNotFound)
	}
	return settings.DecodeBang(raw)
}

func (s *Service) symbol(ctx context.Context) (string, error) {
	items, err := s.durable.Get(ctx, models.KeySymbol)
	if err != nil {
		return "", err
	}
	var sym string
	if raw, ok := items[models.KeySymbol]; ok {
		_ = json.Unmarshal(raw, &sym)
	}
	if sym == "" {
		sym = parser.DefaultSymbol
	}
	return sym, nil
}

func symbolOf(st settings.State) string {
	if st.Symbol == "" {
		return parser.DefaultSymbol
	}
	return st.Symbol
}

func prepare(in BangInput, symbol string, order int) (models.BangDefinition, error) {
	def := models.BangDefinition{
		Name:    strings.TrimSpace(in.Name),
		Token:   parser.NormalizeToken(in.Token, symbol),
		Targets: make([]models.BangTarget, len(in.Targets)),
		Order:   order,
	}
	for i, t := range in.Targets {
		t.URL = strings.TrimSpace(t.URL)
		t.BaseURL = strings.TrimSpace(t.BaseURL)
		def.Targets[i] = t
	}
	if err := def.Validate(); err != nil {
		return models.BangDefinition{}, fmt.Errorf("%w: %v", apperr.ErrInvalid, err)
	}
	return def, nil
}
