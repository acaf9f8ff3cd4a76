// Package settings reads the durable configuration and resolves it, together
// with the provider catalog, into the session tier.
package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/starford/bangd/internal/kvstore"
	"github.com/starford/bangd/internal/models"
)

// State is the typed view of the durable tier. Empty Symbol and Provider
// mean the setting was never saved.
type State struct {
	Symbol   string
	Provider string
	Inactive []string
	// Bangs are the custom bangs sorted by Order.
	Bangs []models.BangDefinition
}

// LoadState reads every durable item. Values that fail to decode are logged
// and skipped.
func LoadState(ctx context.Context, d kvstore.Durable, logger *slog.Logger) (State, error) {
	all, err := d.GetAll(ctx)
	if err != nil {
		return State{}, fmt.Errorf("settings: read durable tier: %w", err)
	}

	var st State
	for k, raw := range all {
		switch {
		case k == models.KeySymbol:
			st.Symbol = decodeString(raw)
		case k == models.KeyProvider:
			st.Provider = decodeString(raw)
		case k == models.KeyInactive:
			if err := json.Unmarshal(raw, &st.Inactive); err != nil {
				logger.Warn("settings: bad inactive list", slog.String("error", err.Error()))
			}
		case models.IsBangKey(k):
			def, err := DecodeBang(raw)
			if err != nil {
				logger.Warn("settings: skipping bang", slog.String("key", k), slog.String("error", err.Error()))
				continue
			}
			st.Bangs = append(st.Bangs, def)
		}
	}
	sort.SliceStable(st.Bangs, func(i, j int) bool {
		if st.Bangs[i].Order != st.Bangs[j].Order {
			return st.Bangs[i].Order < st.Bangs[j].Order
		}
		return st.Bangs[i].Token < st.Bangs[j].Token
	})
	sort.Strings(st.Inactive)
	return st, nil
}

// DecodeBang decodes a stored custom bang.
func DecodeBang(raw json.RawMessage) (models.BangDefinition, error) {
	var def models.BangDefinition
	if err := json.Unmarshal(raw, &def); err != nil {
		return models.BangDefinition{}, err
	}
	if def.Token == "" || len(def.Targets) == 0 {
		return models.BangDefinition{}, fmt.Errorf("settings: bang %q has no token or targets", def.Name)
	}
	def.IsDefault, def.IsActive = false, false
	return def, nil
}

// EncodeBang returns the durable key and value of a custom bang.
func EncodeBang(def models.BangDefinition) (string, json.RawMessage, error) {
	def.IsDefault, def.IsActive = false, false
	data, err := json.Marshal(def)
	if err != nil {
		return "", nil, fmt.Errorf("settings: encode bang %q: %w", def.Token, err)
	}
	return models.BangKey(def.Token), data, nil
}

// EncodeValue JSON-encodes a string or string-slice setting value.
func EncodeValue[T string | []string](v T) json.RawMessage {
	data, _ := json.Marshal(v)
	return data
}

func decodeString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}
