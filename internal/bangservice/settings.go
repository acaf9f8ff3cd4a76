package bangservice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/bangd/internal/apperr"
	"github.com/starford/bangd/internal/catalog"
	"github.com/starford/bangd/internal/models"
	"github.com/starford/bangd/internal/parser"
	"github.com/starford/bangd/internal/settings"
)

// MaxSymbolLength bounds the bang symbol.
const MaxSymbolLength = 5

var symbolRe = regexp.MustCompile(`^\S+$`)

// Settings are the user-editable scalar settings.
type Settings struct {
	Symbol   string `json:"bangSymbol"`
	Provider string `json:"bangProvider"`
}

// UsageReport describes durable-tier consumption.
type UsageReport struct {
	BytesUsed  int `json:"bytesUsed"`
	BytesQuota int `json:"bytesQuota"`
	Bangs      int `json:"bangs"`
	BangLimit  int `json:"bangLimit"`
}

// settingKeys are the reserved keys counted against the item quota.
var settingKeys = []string{models.KeySymbol, models.KeyProvider, models.KeyInactive, models.KeySchema}

// GetSettings returns the saved settings with defaults applied.
func (s *Service) GetSettings(ctx context.Context) (Settings, error) {
	st, err := settings.LoadState(ctx, s.durable, s.logger)
	if err != nil {
		return Settings{}, err
	}
	out := Settings{Symbol: symbolOf(st), Provider: st.Provider}
	if out.Provider == "" {
		out.Provider = catalog.DefaultProvider
	}
	return out, nil
}

// SaveSettings validates and persists in. Empty fields keep their default.
// The durable change listener patches the session; a provider change
// additionally queues a forced resolve there.
func (s *Service) SaveSettings(ctx context.Context, in Settings) (Settings, error) {
	if in.Symbol == "" {
		in.Symbol = parser.DefaultSymbol
	}
	if in.Provider == "" {
		in.Provider = catalog.DefaultProvider
	}
	err := validation.ValidateStruct(&in,
		validation.Field(&in.Symbol,
			validation.Length(1, MaxSymbolLength),
			validation.Match(symbolRe).Error("the symbol cannot contain whitespace"),
		),
		validation.Field(&in.Provider, validation.By(func(v any) error {
			if !s.registry.Known(v.(string)) {
				return errors.New("unknown provider")
			}
			return nil
		})),
	)
	if err != nil {
		return Settings{}, fmt.Errorf("%w: %v", apperr.ErrInvalid, err)
	}

	s.wmu.Lock()
	defer s.wmu.Unlock()
	err = s.durable.Set(ctx, map[string]json.RawMessage{
		models.KeySymbol:   settings.EncodeValue(in.Symbol),
		models.KeyProvider: settings.EncodeValue(in.Provider),
	})
	if err != nil {
		return Settings{}, err
	}
	return in, nil
}

// Usage reports bytes in use against the byte quota and the custom bang
// count against the item quota left after the reserved keys.
func (s *Service) Usage(ctx context.Context) (UsageReport, error) {
	u, err := s.durable.Usage(ctx)
	if err != nil {
		return UsageReport{}, err
	}
	all, err := s.durable.GetAll(ctx)
	if err != nil {
		return UsageReport{}, err
	}
	bangs := 0
	for k := range all {
		if models.IsBangKey(k) {
			bangs++
		}
	}
	limits := s.durable.Limits()
	return UsageReport{
		BytesUsed:  u.Bytes,
		BytesQuota: limits.MaxBytes,
		Bangs:      bangs,
		BangLimit:  max(limits.MaxItems-len(settingKeys), 0),
	}, nil
}
