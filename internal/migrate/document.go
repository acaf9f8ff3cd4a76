package migrate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/starford/bangd/internal/apperr"
	"github.com/starford/bangd/internal/models"
)

// Backup document field names.
const (
	fieldVersion  = "backupVersion"
	fieldBangs    = "bangs"
	fieldSettings = "settings"
	fieldSymbol   = "bangSymbol"
	fieldProvider = "bangProvider"
)

// Document is a backup in the current schema. Bangs are in display order
// with a dense, zero-based Order. Empty Symbol or Provider mean the backup
// did not carry the setting.
type Document struct {
	Version  Version
	Symbol   string
	Provider string
	Bangs    []models.BangDefinition
}

// Per-version document shapes. Each upgrade step converts one into the next.
type (
	docV10 struct {
		bangs []decodedBang
	}
	docV11 struct {
		docV10
		symbol string
	}
	docV12 struct {
		symbol string
		bangs  []decodedBang
	}
	docV13 struct {
		docV12
		provider string
	}
)

func upgradeV10(d docV10) docV11 { return docV11{docV10: d} }

func upgradeV11(d docV11) docV12 {
	// Bang shapes were already lifted while decoding.
	return docV12{symbol: d.symbol, bangs: d.bangs}
}

func upgradeV12(d docV12) docV13 { return docV13{docV12: d} }

// Decode parses a backup document of any supported version and upgrades it
// to the current schema. Any structural problem yields an error wrapping
// apperr.ErrMalformedBackup.
func Decode(data []byte) (*Document, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("migrate: backup is not valid JSON: %w", apperr.ErrMalformedBackup)
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, fmt.Errorf("migrate: backup is not a JSON object: %w", apperr.ErrMalformedBackup)
	}

	// Unversioned files predate 1.0 and are a bare bang map.
	version := V1_0
	bangs := root
	if vr := root.Get(fieldVersion); vr.Exists() {
		v, err := ParseVersion(vr.String())
		if err != nil {
			return nil, err
		}
		version = v
		bangs = root.Get(fieldBangs)
		if !bangs.IsObject() {
			return nil, fmt.Errorf("migrate: %q must be an object: %w", fieldBangs, apperr.ErrMalformedBackup)
		}
	}

	decoded, err := decodeBangs(bangs, version)
	if err != nil {
		return nil, err
	}
	settings := root.Get(fieldSettings)

	var d13 docV13
	switch version {
	case V1_0:
		d13 = upgradeV12(upgradeV11(upgradeV10(docV10{bangs: decoded})))
	case V1_1:
		d11 := docV11{docV10: docV10{bangs: decoded}, symbol: settings.Get(fieldSymbol).String()}
		d13 = upgradeV12(upgradeV11(d11))
	case V1_2:
		d13 = upgradeV12(docV12{symbol: settings.Get(fieldSymbol).String(), bangs: decoded})
	case V1_3:
		d13 = docV13{
			docV12:   docV12{symbol: settings.Get(fieldSymbol).String(), bangs: decoded},
			provider: settings.Get(fieldProvider).String(),
		}
	}

	doc := &Document{
		Version:  version,
		Symbol:   strings.TrimSpace(d13.symbol),
		Provider: strings.TrimSpace(d13.provider),
		Bangs:    orderBangs(d13.bangs),
	}
	for _, b := range doc.Bangs {
		if err := b.Validate(); err != nil {
			return nil, fmt.Errorf("migrate: bang %q: %v: %w", b.Token, err, apperr.ErrMalformedBackup)
		}
	}
	return doc, nil
}

// decodeBangs walks the bang map in file order. Later duplicates of a token
// replace earlier ones. Legacy search-engine and setting keys are skipped.
func decodeBangs(bangs gjson.Result, v Version) ([]decodedBang, error) {
	var out []decodedBang
	pos := make(map[string]int)
	var err error
	bangs.ForEach(func(key, value gjson.Result) bool {
		k := key.String()
		if strings.HasPrefix(k, models.PrefixLegacyEngine) || models.IsSettingKey(k) {
			return true
		}
		var b decodedBang
		b, err = decodeBang(value, v)
		if err != nil {
			err = fmt.Errorf("%s: %w", k, err)
			return false
		}
		if i, dup := pos[b.def.Token]; dup {
			out[i] = b
			return true
		}
		pos[b.def.Token] = len(out)
		out = append(out, b)
		return true
	})
	return out, err
}

// orderBangs sorts by stored order where present, file position otherwise,
// and renumbers densely from zero.
func orderBangs(bangs []decodedBang) []models.BangDefinition {
	idx := make([]int, len(bangs))
	for i := range idx {
		idx[i] = i
	}
	key := func(i int) int {
		if bangs[i].hasOrder {
			return bangs[i].def.Order
		}
		return i
	}
	sort.SliceStable(idx, func(a, b int) bool { return key(idx[a]) < key(idx[b]) })

	out := make([]models.BangDefinition, len(bangs))
	for n, i := range idx {
		out[n] = bangs[i].def
		out[n].Order = n
	}
	return out
}

// Encode renders doc as a current-version backup. Bangs are written as an
// object keyed by their durable key, in Order.
func Encode(doc *Document) ([]byte, error) {
	bangs := make([]models.BangDefinition, len(doc.Bangs))
	copy(bangs, doc.Bangs)
	sort.SliceStable(bangs, func(a, b int) bool { return bangs[a].Order < bangs[b].Order })

	var obj bytes.Buffer
	obj.WriteByte('{')
	for i, b := range bangs {
		if i > 0 {
			obj.WriteByte(',')
		}
		k, err := json.Marshal(models.BangKey(b.Token))
		if err != nil {
			return nil, err
		}
		b.IsDefault, b.IsActive = false, false
		v, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("migrate: encode bang %q: %w", b.Token, err)
		}
		obj.Write(k)
		obj.WriteByte(':')
		obj.Write(v)
	}
	obj.WriteByte('}')

	file := struct {
		Version  Version `json:"backupVersion"`
		Settings struct {
			Symbol   string `json:"bangSymbol"`
			Provider string `json:"bangProvider"`
		} `json:"settings"`
		Bangs         json.RawMessage `json:"bangs"`
		SearchEngines struct{}        `json:"searchEngines"`
	}{Version: Current, Bangs: obj.Bytes()}
	file.Settings.Symbol = doc.Symbol
	file.Settings.Provider = doc.Provider

	return json.MarshalIndent(file, "", "  ")
}
