package migrate

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/starford/bangd/internal/apperr"
	"github.com/starford/bangd/internal/models"
)

// flatBang is the single-target bang shape used before 1.2.
type flatBang struct {
	Name           string `json:"name"`
	Bang           string `json:"bang"`
	URL            string `json:"url"`
	URLEncodeQuery bool   `json:"urlEncodeQuery"`
	OpenBaseURL    bool   `json:"openBaseUrl"`
	Order          *int   `json:"order"`
}

// listBang is the bang shape from 1.2 onwards.
type listBang struct {
	Name    string              `json:"name"`
	Bang    string              `json:"bang"`
	Targets []models.BangTarget `json:"targets"`
	Order   *int                `json:"order"`
}

// decodedBang is a bang lifted to the current shape, with its stored order if
// the source carried one.
type decodedBang struct {
	def      models.BangDefinition
	hasOrder bool
}

func requiredFields(v Version) []string {
	if v.AtLeast(V1_2) {
		return []string{"name", "bang", "targets"}
	}
	return []string{"name", "url", "bang", "urlEncodeQuery"}
}

// decodeBang checks the fields required by v, decodes raw in that version's
// shape and upgrades it to a BangDefinition.
func decodeBang(raw gjson.Result, v Version) (decodedBang, error) {
	if !raw.IsObject() {
		return decodedBang{}, fmt.Errorf("migrate: bang is not an object: %w", apperr.ErrMalformedBackup)
	}
	for _, f := range requiredFields(v) {
		if !raw.Get(f).Exists() {
			return decodedBang{}, fmt.Errorf("migrate: bang missing %q: %w", f, apperr.ErrMalformedBackup)
		}
	}

	if v.AtLeast(V1_2) {
		var b listBang
		if err := json.Unmarshal([]byte(raw.Raw), &b); err != nil {
			return decodedBang{}, fmt.Errorf("migrate: decode bang: %v: %w", err, apperr.ErrMalformedBackup)
		}
		return b.lift(), nil
	}

	var b flatBang
	if err := json.Unmarshal([]byte(raw.Raw), &b); err != nil {
		return decodedBang{}, fmt.Errorf("migrate: decode bang: %v: %w", err, apperr.ErrMalformedBackup)
	}
	return b.upgrade().lift(), nil
}

// upgrade is the 1.1 -> 1.2 bang transition: the flat url becomes a
// one-element targets list.
func (b flatBang) upgrade() listBang {
	t := models.BangTarget{URL: b.URL, URLEncodeQuery: b.URLEncodeQuery}
	if b.OpenBaseURL {
		t.BaseURL = models.OriginOf(b.URL)
	}
	return listBang{
		Name:    b.Name,
		Bang:    b.Bang,
		Targets: []models.BangTarget{t},
		Order:   b.Order,
	}
}

func (b listBang) lift() decodedBang {
	d := decodedBang{def: models.BangDefinition{
		Name:    strings.TrimSpace(b.Name),
		Token:   strings.ToLower(strings.TrimSpace(b.Bang)),
		Targets: b.Targets,
	}}
	if b.Order != nil {
		d.def.Order = *b.Order
		d.hasOrder = true
	}
	return d
}
