package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/bangd/internal/catalog"
	"github.com/starford/bangd/internal/models"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	Store     StoreConfig       `yaml:"store"`
	Backup    BackupConfig      `yaml:"backup"`
	Catalog   CatalogConfig     `yaml:"catalog"`
	Intercept InterceptConfig   `yaml:"intercept"`
	Auth      AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Store.Validate(); err != nil {
		return err
	}
	if err := c.Backup.Validate(); err != nil {
		return err
	}
	if err := c.Catalog.Validate(); err != nil {
		return err
	}
	if err := c.Intercept.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// BaseURL returns the URL clients use to reach the server.
func (c *HTTPConfig) BaseURL() string {
	host := c.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(c.Port))
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// StoreConfig holds the durable settings store configuration.
type StoreConfig struct {
	Path string `yaml:"path"`
	// Watch reconciles writes made by other processes, e.g. the CLI.
	Watch bool `yaml:"watch"`
}

// Validate validates the store configuration.
func (c *StoreConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// BackupConfig holds the backup directory.
type BackupConfig struct {
	Dir string `yaml:"dir"`
}

// Validate validates the backup configuration.
func (c *BackupConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Dir, validation.Required),
	)
}

// CatalogConfig controls default bang fetching.
type CatalogConfig struct {
	// Provider is stored as the bang provider on first install.
	Provider string        `yaml:"provider"`
	Timeout  time.Duration `yaml:"timeout"`
}

// Validate validates the catalog configuration.
func (c *CatalogConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Provider, validation.Required, validation.In(catalog.Kagi, catalog.DuckDuckGo, catalog.None)),
		validation.Field(&c.Timeout, validation.Required, validation.Min(time.Second)),
	)
}

// InterceptConfig controls request interception.
type InterceptConfig struct {
	Debounce time.Duration `yaml:"debounce"`
	// FallbackSearch is where /search sends queries without a usable bang.
	FallbackSearch string `yaml:"fallback_search"`
	// RulesFile overrides sections of the built-in interception rules.
	RulesFile string `yaml:"rules_file"`
}

// Validate validates the intercept configuration.
func (c *InterceptConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Debounce, validation.Min(time.Duration(0))),
		validation.Field(&c.FallbackSearch, validation.By(func(v any) error {
			s, _ := v.(string)
			if s == "" {
				return nil
			}
			if strings.Count(s, models.Placeholder) != 1 || models.OriginOf(s) == "" {
				return errors.New("must be an absolute URL with one " + models.Placeholder + " placeholder")
			}
			return nil
		})),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for a daemon bound to localhost.
//   - "token": Bearer token authentication; Token must be non-empty.
//
// GET /search is never authenticated since browsers cannot send headers from
// the search box.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	// Normalise empty mode to "disabled" for backward compatibility.
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Host: "127.0.0.1",
				Port: 8484,
			},
		},
		Store: StoreConfig{
			Path:  "./bangd.db",
			Watch: true,
		},
		Backup: BackupConfig{
			Dir: "./backups",
		},
		Catalog: CatalogConfig{
			Provider: catalog.DefaultProvider,
			Timeout:  10 * time.Second,
		},
		Intercept: InterceptConfig{
			Debounce:       500 * time.Millisecond,
			FallbackSearch: "https://duckduckgo.com/?q=" + models.Placeholder,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
