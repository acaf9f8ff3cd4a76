package intercept

import (
	_ "embed"
	"fmt"
	"net/url"
	"os"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/tidwall/match"
	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultRules []byte

// Rules decide which requests are search submissions and where their query
// lives.
type Rules struct {
	Allow      []string `yaml:"allow"`
	DenyPaths  []string `yaml:"deny_paths"`
	DenyParams []string `yaml:"deny_params"`
	Params     []string `yaml:"params"`
}

// Validate implements validation.Validatable.
func (r Rules) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Allow, validation.Required),
		validation.Field(&r.Params, validation.Required),
	)
}

// DefaultRules returns the built-in rule table.
func DefaultRules() *Rules {
	var r Rules
	if err := yaml.Unmarshal(defaultRules, &r); err != nil {
		panic(fmt.Sprintf("intercept: embedded rules: %v", err))
	}
	r.normalize()
	return &r
}

// LoadRules reads a rule table from path. Sections the file leaves out keep
// their built-in values. An empty path returns DefaultRules.
func LoadRules(path string) (*Rules, error) {
	r := DefaultRules()
	if path == "" {
		return r, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("intercept: read rules: %w", err)
	}
	var file Rules
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("intercept: parse rules: %w", err)
	}
	if file.Allow != nil {
		r.Allow = file.Allow
	}
	if file.DenyPaths != nil {
		r.DenyPaths = file.DenyPaths
	}
	if file.DenyParams != nil {
		r.DenyParams = file.DenyParams
	}
	if file.Params != nil {
		r.Params = file.Params
	}
	r.normalize()
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("intercept: rules %s: %w", path, err)
	}
	return r, nil
}

func (r *Rules) normalize() {
	for i, p := range r.Allow {
		r.Allow[i] = strings.ToLower(strings.TrimSpace(p))
	}
	for i, p := range r.DenyPaths {
		r.DenyPaths[i] = strings.ToLower(p)
	}
}

// InScope reports whether u looks like a search submission.
func (r *Rules) InScope(u *url.URL) bool {
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	path := strings.ToLower(u.EscapedPath())
	if path == "" {
		path = "/"
	}
	target := u.Scheme + "://" + strings.ToLower(u.Host) + path

	allowed := false
	for _, pattern := range r.Allow {
		if match.Match(target, pattern) {
			allowed = true
			break
		}
	}
	if !allowed {
		return false
	}

	for _, frag := range r.DenyPaths {
		if strings.Contains(path, frag) {
			return false
		}
	}
	q := u.Query()
	for _, p := range r.DenyParams {
		if q.Has(p) {
			return false
		}
	}
	return true
}
