package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 8000 || cfg.Server.LogDir != "logs" {
		t.Fatalf("server defaults = %+v", cfg.Server)
	}
	if cfg.Upstream.BaseURL != "https://demo-api.ramp.com" || cfg.Upstream.Timeout != 30*time.Second || cfg.Upstream.MaxRetries != 3 {
		t.Fatalf("upstream defaults = %+v", cfg.Upstream)
	}
	if cfg.Classifier.Model != "gpt-3.5-turbo" {
		t.Fatalf("classifier defaults = %+v", cfg.Classifier)
	}
	if cfg.Pagination.PageSize != 20 || cfg.Pagination.ChunkSize != 100 || cfg.Pagination.CountLimit != 20 {
		t.Fatalf("pagination defaults = %+v", cfg.Pagination)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("RAMPDASH_UPSTREAM_CLIENT_ID", "env-id")
	t.Setenv("RAMPDASH_UPSTREAM_CLIENT_SECRET", "env-secret")
	t.Setenv("RAMPDASH_SERVER_PORT", "9090")
	t.Setenv("RAMPDASH_CLASSIFIER_MODEL", "gemini-2.0-flash")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Upstream.ClientID != "env-id" || cfg.Upstream.ClientSecret != "env-secret" {
		t.Fatalf("credentials = %+v", cfg.Upstream)
	}
	if cfg.Server.Port != 9090 {
		t.Fatalf("port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Classifier.Model != "gemini-2.0-flash" {
		t.Fatalf("model = %q", cfg.Classifier.Model)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rampdash.yaml")
	content := `server:
  host: 0.0.0.0
  port: 8080
upstream:
  client_id: file-id
  client_secret: file-secret
  timeout: 10s
pagination:
  page_size: 25
  chunk_size: 100
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Host != "0.0.0.0" || cfg.Server.Port != 8080 {
		t.Fatalf("server = %+v", cfg.Server)
	}
	if cfg.Upstream.ClientID != "file-id" || cfg.Upstream.Timeout != 10*time.Second {
		t.Fatalf("upstream = %+v", cfg.Upstream)
	}
	if cfg.Pagination.PageSize != 25 {
		t.Fatalf("page size = %d", cfg.Pagination.PageSize)
	}
	// Unset keys keep their defaults.
	if cfg.Pagination.CountLimit != 20 || cfg.Classifier.Model != "gpt-3.5-turbo" {
		t.Fatalf("defaults lost: %+v", cfg)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing explicit config file")
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:     Server{Host: "127.0.0.1", Port: 8000},
			Upstream:   Upstream{ClientID: "id", ClientSecret: "secret"},
			Pagination: Pagination{PageSize: 20, ChunkSize: 100, CountLimit: 20},
		}
	}
	if err := valid().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"missing client id", func(c *Config) { c.Upstream.ClientID = " " }, "client id"},
		{"missing client secret", func(c *Config) { c.Upstream.ClientSecret = "" }, "client secret"},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "port"},
		{"zero page size", func(c *Config) { c.Pagination.PageSize = 0 }, "positive"},
		{"chunk not multiple", func(c *Config) { c.Pagination.ChunkSize = 90 }, "multiple"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("err = %v, want containing %q", err, tc.wantErr)
			}
		})
	}
}
