package intercept

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/starford/bangd/internal/models"
	"github.com/starford/bangd/internal/session"
)

// Navigation kinds.
const (
	KindReplace    = "replace"
	KindBackground = "background"
)

// Navigation is one tab action.
type Navigation struct {
	Kind string `json:"kind"`
	URL  string `json:"url"`
}

// componentUnescaped are left alone by encodeURIComponent but escaped by
// url.QueryEscape.
var componentUnescaped = strings.NewReplacer(
	"%21", "!",
	"%27", "'",
	"%28", "(",
	"%29", ")",
	"%2A", "*",
)

// EncodeQuery percent-encodes s as encodeURIComponent does. Spaces become
// "+" instead of "%20" when spaceAsPlus is set.
func EncodeQuery(s string, spaceAsPlus bool) string {
	out := componentUnescaped.Replace(url.QueryEscape(s))
	if !spaceAsPlus {
		out = strings.ReplaceAll(out, "+", "%20")
	}
	return out
}

var errNotAbsolute = errors.New("not an absolute URL")

// Destination computes where t sends remainder. An empty remainder goes to
// the base URL when the target has one.
func Destination(t models.BangTarget, remainder string) (string, error) {
	if remainder == "" && t.BaseURL != "" {
		return t.BaseURL, nil
	}
	q := remainder
	if t.URLEncodeQuery {
		q = EncodeQuery(remainder, t.SpaceAsPlus)
	}
	dest := strings.Replace(t.URL, models.Placeholder, q, 1)
	u, err := url.Parse(dest)
	if err != nil {
		return "", fmt.Errorf("intercept: target %q: %w", t.URL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("intercept: target %q: %w", t.URL, errNotAbsolute)
	}
	return dest, nil
}

// Plan turns an entry's targets into navigations. The first valid target
// replaces the current tab; the rest open in the background, in order.
// Invalid targets are skipped and reported through skip.
func Plan(e session.Entry, remainder string, skip func(models.BangTarget, error)) []Navigation {
	var navs []Navigation
	for _, t := range e.Targets {
		dest, err := Destination(t, remainder)
		if err != nil {
			if skip != nil {
				skip(t, err)
			}
			continue
		}
		kind := KindBackground
		if len(navs) == 0 {
			kind = KindReplace
		}
		navs = append(navs, Navigation{Kind: kind, URL: dest})
	}
	return navs
}
