package migrate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/starford/bangd/internal/kvstore"
	"github.com/starford/bangd/internal/models"
)

// StorageResult describes what MigrateStorage did.
type StorageResult struct {
	// From is the schema found in the store; empty for unversioned data.
	From Version
	// Installed is set when the store was empty, i.e. a first run.
	Installed bool
	// Migrated is set when legacy data was rewritten.
	Migrated bool
}

// MigrateStorage brings the durable tier to the Current layout in a single
// batch. Stores already at Current are left untouched. Entries that cannot be
// decoded are logged and kept as they are.
func MigrateStorage(ctx context.Context, d kvstore.Durable, logger *slog.Logger) (StorageResult, error) {
	all, err := d.GetAll(ctx)
	if err != nil {
		return StorageResult{}, fmt.Errorf("migrate: read store: %w", err)
	}

	var res StorageResult
	if raw, ok := all[models.KeySchema]; ok {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			res.From = Version(s)
		}
	}
	if res.From == Current {
		return res, nil
	}
	res.Installed = len(all) == 0

	batch := kvstore.Batch{Set: map[string]json.RawMessage{}}
	var bangs []decodedBang
	keyOf := make(map[string]string)

	keys := make([]string, 0, len(all))
	for k := range all {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := gjson.ParseBytes(all[k])
		switch {
		case models.IsSettingKey(k):
			continue
		case strings.HasPrefix(k, models.PrefixLegacyEngine):
			batch.Remove = append(batch.Remove, k)
			continue
		case models.IsBangKey(k):
		case v.IsObject() && v.Get("bang").Exists() && v.Get("url").Exists():
			// Unprefixed keys are bangs written before keys were namespaced.
		default:
			logger.Warn("migrate: unknown key left in place", slog.String("key", k))
			continue
		}

		version := V1_0
		if v.Get("targets").Exists() {
			version = Current
		}
		b, err := decodeBang(v, version)
		if err == nil {
			err = b.def.Validate()
		}
		if err != nil {
			logger.Warn("migrate: skipping undecodable bang",
				slog.String("key", k),
				slog.String("error", err.Error()),
			)
			continue
		}
		if prev, dup := keyOf[b.def.Token]; dup {
			logger.Warn("migrate: duplicate bang token",
				slog.String("token", b.def.Token),
				slog.String("kept", prev),
				slog.String("dropped", k),
			)
			batch.Remove = append(batch.Remove, k)
			continue
		}
		keyOf[b.def.Token] = k
		bangs = append(bangs, b)
		if k != models.BangKey(b.def.Token) {
			batch.Remove = append(batch.Remove, k)
		}
	}

	for _, def := range orderBangs(bangs) {
		data, err := json.Marshal(def)
		if err != nil {
			return res, fmt.Errorf("migrate: encode bang %q: %w", def.Token, err)
		}
		batch.Set[models.BangKey(def.Token)] = data
	}

	schema, _ := json.Marshal(string(Current))
	batch.Set[models.KeySchema] = schema

	if err := d.Apply(ctx, batch); err != nil {
		return res, fmt.Errorf("migrate: write store: %w", err)
	}
	res.Migrated = !res.Installed
	logger.Info("migrate: storage schema updated",
		slog.String("from", string(res.From)),
		slog.String("to", string(Current)),
		slog.Bool("installed", res.Installed),
		slog.Int("bangs", len(bangs)),
	)
	return res, nil
}
