// Package models defines the domain types for bangd.
package models

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Placeholder is substituted with the (optionally encoded) search terms.
const Placeholder = "{{{s}}}"

// Limits enforced on user-authored bangs.
const (
	MaxNameLength     = 100
	MaxTokenLength    = 25
	MaxURLLength      = 250
	MaxTargetsPerBang = 10
)

var noWhitespaceRe = regexp.MustCompile(`^\S+$`)

// BangTarget is one destination of a bang.
type BangTarget struct {
	URL            string `json:"url"`
	BaseURL        string `json:"baseUrl,omitempty"`
	URLEncodeQuery bool   `json:"urlEncodeQuery"`
	// SpaceAsPlus encodes spaces as "+" instead of "%20" when URLEncodeQuery is set.
	SpaceAsPlus bool `json:"spaceAsPlus,omitempty"`
}

// Validate checks the target URL template and the optional base URL.
func (t BangTarget) Validate() error {
	return validation.ValidateStruct(&t,
		validation.Field(&t.URL,
			validation.Required,
			validation.Length(1, MaxURLLength),
			validation.By(validTemplate),
		),
		validation.Field(&t.BaseURL, validation.By(validBaseURL)),
	)
}

// BangDefinition is a named shorthand, either built-in or user-authored.
type BangDefinition struct {
	Name      string       `json:"name"`
	Token     string       `json:"bang"`
	Targets   []BangTarget `json:"targets"`
	Order     int          `json:"order"`
	IsDefault bool         `json:"default,omitempty"`
	IsActive  bool         `json:"active,omitempty"`
}

// Validate checks a user-authored definition.
func (d BangDefinition) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.Name, validation.Required, validation.Length(1, MaxNameLength)),
		validation.Field(&d.Token,
			validation.Required,
			validation.Length(1, MaxTokenLength),
			validation.Match(noWhitespaceRe).Error("the bang cannot contain whitespace"),
		),
		validation.Field(&d.Targets, validation.Required, validation.Length(1, MaxTargetsPerBang)),
		validation.Field(&d.Order, validation.Min(0)),
	)
}

// Primary returns the first (foreground) target.
func (d BangDefinition) Primary() BangTarget {
	if len(d.Targets) == 0 {
		return BangTarget{}
	}
	return d.Targets[0]
}

// OriginOf returns scheme://host of an absolute URL, or "" when raw is not
// absolute.
func OriginOf(raw string) string {
	u, err := url.Parse(strings.ReplaceAll(raw, Placeholder, "x"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

func validTemplate(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	if n := strings.Count(s, Placeholder); n != 1 {
		return fmt.Errorf("must contain exactly one %s placeholder (found %d)", Placeholder, n)
	}
	if OriginOf(s) == "" {
		return errors.New("must be an absolute URL including the scheme, e.g. https://")
	}
	return nil
}

func validBaseURL(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	if strings.Contains(s, Placeholder) {
		return errors.New("must not contain a placeholder")
	}
	if OriginOf(s) == "" {
		return errors.New("must be an absolute URL")
	}
	return nil
}
