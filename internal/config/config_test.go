package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func validConfig() Config {
	cfg := *Default()
	cfg.AI.APIKey = "test-key-1234567890"
	cfg.Database.Path = "haven.db"
	cfg.Canvas.Dir = "canvas"
	return cfg
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "missing API key is allowed",
			mutate:  func(c *Config) { c.AI.APIKey = "" },
			wantErr: false,
		},
		{
			name:    "unknown provider",
			mutate:  func(c *Config) { c.AI.Provider = "mystery" },
			wantErr: true,
			errMsg:  "Provider",
		},
		{
			name:    "invalid base URL",
			mutate:  func(c *Config) { c.AI.BaseURL = "not-a-url" },
			wantErr: true,
			errMsg:  "BaseURL",
		},
		{
			name:    "timeout too high",
			mutate:  func(c *Config) { c.AI.Timeout = 5000 },
			wantErr: true,
			errMsg:  "Timeout",
		},
		{
			name:    "postgres backend without url",
			mutate:  func(c *Config) { c.Database.VectorBackend = "postgres" },
			wantErr: true,
			errMsg:  "PostgresURL",
		},
		{
			name:    "redis canvas without address",
			mutate:  func(c *Config) { c.Canvas.Backend = "redis" },
			wantErr: true,
			errMsg:  "RedisAddr",
		},
		{
			name: "archive before aging",
			mutate: func(c *Config) {
				c.Lifecycle.AgingDays = 30
				c.Lifecycle.ArchiveDays = 7
			},
			wantErr: true,
			errMsg:  "ArchiveDays",
		},
		{
			name:    "bad cron schedule",
			mutate:  func(c *Config) { c.Lifecycle.Schedule = "every day" },
			wantErr: true,
			errMsg:  "lifecycle.schedule",
		},
		{
			name: "write timeout not above model timeout",
			mutate: func(c *Config) {
				c.AI.Timeout = 120
				c.Server.WriteTimeout = 120
			},
			wantErr: true,
			errMsg:  "server.write_timeout",
		},
		{
			name:    "backfill concurrency too high",
			mutate:  func(c *Config) { c.Backfill.Concurrency = 64 },
			wantErr: true,
			errMsg:  "Concurrency",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}

			if err != nil && tt.errMsg != "" && !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("validate() error = %v, want error containing %q", err, tt.errMsg)
			}
		})
	}
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.validate(); err != nil {
		t.Errorf("Default() should produce valid config, got error: %v", err)
	}
	if cfg.Server.WriteTimeout <= cfg.AI.Timeout {
		t.Errorf("default write timeout %ds should exceed ai timeout %ds", cfg.Server.WriteTimeout, cfg.AI.Timeout)
	}
}

func TestLoadFromFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlData := `
ai:
  provider: openai
  model: gpt-4o-mini
  embedding_model: text-embedding-3-small
  base_url: https://api.openai.com/v1
  api_key: ${OPENAI_API_KEY}
search:
  threshold: 0.25
  count: 5
`
	if err := os.WriteFile(path, []byte(yamlData), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("HAVEN_CONFIG", path)
	t.Setenv("HAVEN_AI_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "google-key")
	t.Setenv("HAVEN_DATABASE_PATH", filepath.Join(dir, "haven.db"))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.AI.Provider != "openai" {
		t.Errorf("provider = %q, want openai", cfg.AI.Provider)
	}
	if cfg.AI.APIKey != "google-key" {
		t.Errorf("api key = %q, want value from GOOGLE_API_KEY", cfg.AI.APIKey)
	}
	if cfg.Search.Count != 5 || cfg.Search.Threshold != 0.25 {
		t.Errorf("search = %+v, want overrides from file", cfg.Search)
	}
	if cfg.Backfill.Concurrency != 1 {
		t.Errorf("backfill concurrency = %d, want default 1", cfg.Backfill.Concurrency)
	}
	if cfg.Database.Path != filepath.Join(dir, "haven.db") {
		t.Errorf("database path = %q", cfg.Database.Path)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("HAVEN_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))
	t.Setenv("HAVEN_AI_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HasAPIKey() {
		t.Error("expected no API key")
	}
	if cfg.AI.Provider != "gemini" {
		t.Errorf("provider = %q, want gemini", cfg.AI.Provider)
	}
}
