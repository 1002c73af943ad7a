package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	AI        AIConfig        `yaml:"ai" validate:"required"`
	Server    ServerConfig    `yaml:"server" validate:"required"`
	Database  DatabaseConfig  `yaml:"database" validate:"required"`
	Canvas    CanvasConfig    `yaml:"canvas" validate:"required"`
	Lifecycle LifecycleConfig `yaml:"lifecycle" validate:"required"`
	Backfill  BackfillConfig  `yaml:"backfill" validate:"required"`
	Search    SearchConfig    `yaml:"search" validate:"required"`
	WebSearch WebSearchConfig `yaml:"web_search"`
	Log       LogConfig       `yaml:"log"`
}

type AIConfig struct {
	Provider string `yaml:"provider" validate:"required,oneof=gemini openai anthropic"`
	// APIKey may be empty: agent routes then answer with a configuration error.
	APIKey         string          `yaml:"api_key"`
	Model          string          `yaml:"model" validate:"required"`
	EmbeddingModel string          `yaml:"embedding_model" validate:"required"`
	BaseURL        string          `yaml:"base_url" validate:"required,url"`
	Timeout        int             `yaml:"timeout" validate:"required,min=5,max=3600"`
	MaxRetries     int             `yaml:"max_retries" validate:"min=0,max=10"`
	RateLimit      RateLimitConfig `yaml:"rate_limit" validate:"required"`
}

type ServerConfig struct {
	Addr         string `yaml:"addr" validate:"required"`
	ReadTimeout  int    `yaml:"read_timeout" validate:"min=1,max=600"`
	WriteTimeout int    `yaml:"write_timeout" validate:"min=1,max=600"`
}

type DatabaseConfig struct {
	Path          string `yaml:"path" validate:"required"`
	VectorBackend string `yaml:"vector_backend" validate:"required,oneof=sqlite postgres"`
	PostgresURL   string `yaml:"postgres_url" validate:"required_if=VectorBackend postgres"`
}

type CanvasConfig struct {
	Backend   string `yaml:"backend" validate:"required,oneof=file memory redis"`
	Dir       string `yaml:"dir" validate:"required_if=Backend file"`
	RedisAddr string `yaml:"redis_addr" validate:"required_if=Backend redis"`
}

type LifecycleConfig struct {
	Schedule    string `yaml:"schedule"`
	AgingDays   int    `yaml:"aging_days" validate:"required,min=1"`
	ArchiveDays int    `yaml:"archive_days" validate:"required,gtfield=AgingDays"`
}

type BackfillConfig struct {
	BatchSize   int `yaml:"batch_size" validate:"required,min=1,max=1000"`
	Concurrency int `yaml:"concurrency" validate:"required,min=1,max=16"`
}

type SearchConfig struct {
	Threshold float64 `yaml:"threshold" validate:"min=0,max=1"`
	Count     int     `yaml:"count" validate:"required,min=1,max=200"`
}

type WebSearchConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url" validate:"omitempty,url"`
}

type LogConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `yaml:"format" validate:"omitempty,oneof=text json"`
}

// Load reads .env, the YAML config file (if present) and environment
// overrides, then validates the result.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	configPath := getConfigPath()
	data, err := os.ReadFile(configPath)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func getConfigPath() string {
	// 1. Explicit config path via environment variable
	if path := os.Getenv("HAVEN_CONFIG"); path != "" {
		return path
	}

	// 2. XDG_CONFIG_HOME
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "haven", "config.yaml")
	}

	// 3. ~/.config/haven/config.yaml
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "haven", "config.yaml")
}

// dataDir returns XDG_DATA_HOME/haven or ~/.local/share/haven
func dataDir() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "haven")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "haven")
}

// expandTilde expands a tilde (~) at the beginning of a path to the user's home directory
func expandTilde(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

// apiKeyEnvNames lists the variables checked for the model key, in order.
var apiKeyEnvNames = []string{"HAVEN_AI_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY"}

func (c *Config) applyEnv() {
	if c.AI.APIKey == "" || strings.HasPrefix(c.AI.APIKey, "${") {
		c.AI.APIKey = ""
		for _, name := range apiKeyEnvNames {
			if v := os.Getenv(name); v != "" {
				c.AI.APIKey = v
				break
			}
		}
	}
	if v := os.Getenv("HAVEN_DATABASE_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("SUPABASE_DB_URL"); v != "" {
		c.Database.PostgresURL = v
		c.Database.VectorBackend = "postgres"
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Canvas.RedisAddr = v
	}
	if v := os.Getenv("WEB_SEARCH_API_KEY"); v != "" {
		c.WebSearch.APIKey = v
	}
	if v := os.Getenv("HAVEN_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("HAVEN_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

func (c *Config) validate() error {
	c.Database.Path = expandTilde(c.Database.Path)
	c.Canvas.Dir = expandTilde(c.Canvas.Dir)

	if c.Lifecycle.Schedule != "" {
		if _, err := ParseSchedule(c.Lifecycle.Schedule); err != nil {
			return fmt.Errorf("lifecycle.schedule: %w", err)
		}
	}

	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	// A model call that runs to its timeout still needs time to write the
	// error response.
	if c.Server.WriteTimeout <= c.AI.Timeout {
		return fmt.Errorf("server.write_timeout (%ds) must exceed ai.timeout (%ds)", c.Server.WriteTimeout, c.AI.Timeout)
	}

	return nil
}

// HasAPIKey reports whether model-backed routes can run.
func (c *Config) HasAPIKey() bool {
	return c.AI.APIKey != ""
}
