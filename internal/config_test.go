package internal

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	pkgconfig "github.com/starford/bangd/pkg/config"
)

func TestAuthConfig_Modes(t *testing.T) {
	tests := []struct {
		name    string
		cfg     AuthConfig
		wantErr string
		enabled bool
	}{
		{name: "disabled", cfg: AuthConfig{Mode: "disabled"}},
		{name: "empty defaults to disabled", cfg: AuthConfig{}},
		{name: "token", cfg: AuthConfig{Mode: "token", Token: "s3cret"}, enabled: true},
		{name: "token without value", cfg: AuthConfig{Mode: "token"}, wantErr: "token is empty"},
		{name: "unknown mode", cfg: AuthConfig{Mode: "magic", Token: "x"}, wantErr: "mode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("err = %v, want containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if tt.cfg.Mode == "" {
				t.Error("mode was not normalised")
			}
			if tt.cfg.AuthEnabled() != tt.enabled {
				t.Errorf("AuthEnabled = %v, want %v", tt.cfg.AuthEnabled(), tt.enabled)
			}
		})
	}
}

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if got := cfg.App.HTTP.Address(); got != "127.0.0.1:8484" {
		t.Errorf("address = %q", got)
	}
}

func TestConfig_ValidationErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"auth", func(c *Config) { c.Auth = AuthConfig{Mode: "token"} }},
		{"port", func(c *Config) { c.App.HTTP.Port = 70000 }},
		{"store path", func(c *Config) { c.Store.Path = "" }},
		{"backup dir", func(c *Config) { c.Backup.Dir = "" }},
		{"provider", func(c *Config) { c.Catalog.Provider = "altavista" }},
		{"timeout", func(c *Config) { c.Catalog.Timeout = 10 * time.Millisecond }},
		{"debounce", func(c *Config) { c.Intercept.Debounce = -time.Second }},
		{"fallback placeholder", func(c *Config) { c.Intercept.FallbackSearch = "https://duckduckgo.com/" }},
		{"fallback relative", func(c *Config) { c.Intercept.FallbackSearch = "/search?q={{{s}}}" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestConfig_LoadYAML(t *testing.T) {
	t.Setenv("BANGD_TEST_TOKEN", "from-env")
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
app:
  log_level: debug
  http:
    port: 9090
store:
  path: /tmp/bangs.db
  watch: false
catalog:
  provider: duckduckgo
  timeout: 3s
intercept:
  debounce: 250ms
  fallback_search: "https://www.startpage.com/do/search?q={{{s}}}"
auth:
  mode: token
  token: ${BANGD_TEST_TOKEN}
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := NewDefaultConfig()
	if err := pkgconfig.Load(path, cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.App.LogLevel != slog.LevelDebug || cfg.App.HTTP.Port != 9090 || cfg.App.HTTP.Host != "127.0.0.1" {
		t.Errorf("app = %+v", cfg.App)
	}
	if cfg.Store.Watch || cfg.Store.Path != "/tmp/bangs.db" || cfg.Backup.Dir != "./backups" {
		t.Errorf("store = %+v, backup = %+v", cfg.Store, cfg.Backup)
	}
	if cfg.Catalog.Timeout != 3*time.Second || cfg.Intercept.Debounce != 250*time.Millisecond {
		t.Errorf("durations = %v, %v", cfg.Catalog.Timeout, cfg.Intercept.Debounce)
	}
	if cfg.Auth.Token != "from-env" {
		t.Errorf("token = %q", cfg.Auth.Token)
	}
}

func TestConfig_LoadOptionalMissingFile(t *testing.T) {
	cfg := NewDefaultConfig()
	found, err := pkgconfig.LoadOptional(filepath.Join(t.TempDir(), "missing.yaml"), cfg)
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Error("found = true for a missing file")
	}
	if cfg.App.HTTP.Port != 8484 {
		t.Errorf("defaults not kept: %+v", cfg.App.HTTP)
	}
}
