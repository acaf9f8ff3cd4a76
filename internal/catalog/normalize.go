package catalog

import (
	"errors"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/starford/bangd/internal/models"
)

// Format flags found in the "fmt" field of catalog entries.
const (
	flagOpenBasePath = "open_base_path"
	flagEncodeQuery  = "url_encode_placeholder"
	flagSpaceToPlus  = "url_encode_space_to_plus"
)

var errNotArray = errors.New("catalog document is not a JSON array")

// Normalize converts one raw catalog document into bang definitions. Entries
// without a trigger or with a target that is not an absolute URL are
// skipped. Aliases come after all primary tokens and never replace one.
func Normalize(data []byte, origin string) ([]models.BangDefinition, error) {
	if !gjson.ValidBytes(data) {
		return nil, errors.New("catalog document is not valid JSON")
	}
	doc := gjson.ParseBytes(data)
	if !doc.IsArray() {
		return nil, errNotArray
	}

	var primaries, aliases []models.BangDefinition
	seen := make(map[string]bool)

	doc.ForEach(func(_, entry gjson.Result) bool {
		token := strings.ToLower(strings.TrimSpace(entry.Get("t").String()))
		target, ok := targetOf(entry, origin)
		if token == "" || !ok {
			return true
		}
		name := strings.TrimSpace(entry.Get("s").String())
		if name == "" {
			name = token
		}
		targets := []models.BangTarget{target}

		primaries = append(primaries, models.BangDefinition{
			Name:      name,
			Token:     token,
			Targets:   targets,
			IsDefault: true,
			IsActive:  true,
		})
		seen[token] = true

		for _, field := range []string{"ts", "aliases"} {
			for _, a := range entry.Get(field).Array() {
				alias := strings.ToLower(strings.TrimSpace(a.String()))
				if alias == "" || alias == token {
					continue
				}
				aliases = append(aliases, models.BangDefinition{
					Name:      name,
					Token:     alias,
					Targets:   targets,
					IsDefault: true,
					IsActive:  true,
				})
			}
		}
		return true
	})

	out := primaries
	for _, a := range aliases {
		if seen[a.Token] {
			continue
		}
		seen[a.Token] = true
		out = append(out, a)
	}
	for i := range out {
		out[i].Order = i
	}
	return out, nil
}

func targetOf(entry gjson.Result, origin string) (models.BangTarget, bool) {
	raw := strings.TrimSpace(entry.Get("u").String())
	if raw == "" {
		return models.BangTarget{}, false
	}
	if strings.HasPrefix(raw, "/") && !strings.HasPrefix(raw, "//") {
		raw = strings.TrimSuffix(origin, "/") + raw
	}
	base := models.OriginOf(raw)
	if base == "" {
		return models.BangTarget{}, false
	}

	t := models.BangTarget{URL: raw, URLEncodeQuery: true, BaseURL: base}

	f := entry.Get("fmt")
	if !f.Exists() {
		return t, true
	}
	flags := make(map[string]bool)
	for _, v := range f.Array() {
		flags[v.String()] = true
	}
	t.URLEncodeQuery = flags[flagEncodeQuery]
	t.SpaceAsPlus = flags[flagSpaceToPlus]
	if !flags[flagOpenBasePath] {
		t.BaseURL = ""
	}
	return t, true
}
