package config

import (
	"path/filepath"

	"github.com/robfig/cron/v3"
)

type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute" validate:"required,min=1,max=1000"`
	BurstSize         int `yaml:"burst_size" validate:"required,min=1,max=100"`
}

// Default returns a configuration that runs locally with SQLite and file
// canvases. The model key is filled from the environment.
func Default() *Config {
	data := dataDir()
	return &Config{
		AI: AIConfig{
			Provider:       "gemini",
			Model:          "gemini-2.0-flash",
			EmbeddingModel: "text-embedding-004",
			BaseURL:        "https://generativelanguage.googleapis.com/v1beta",
			Timeout:        120,
			MaxRetries:     0,
			RateLimit:      DefaultRateLimit(),
		},
		Server: ServerConfig{
			Addr:         ":8080",
			ReadTimeout:  30,
			WriteTimeout: 150,
		},
		Database: DatabaseConfig{
			Path:          filepath.Join(data, "haven.db"),
			VectorBackend: "sqlite",
		},
		Canvas: CanvasConfig{
			Backend: "file",
			Dir:     filepath.Join(data, "canvas"),
		},
		Lifecycle: LifecycleConfig{
			Schedule:    "0 3 * * *",
			AgingDays:   7,
			ArchiveDays: 30,
		},
		Backfill: BackfillConfig{
			BatchSize:   50,
			Concurrency: 1,
		},
		Search: SearchConfig{
			Threshold: 0.1,
			Count:     20,
		},
		WebSearch: WebSearchConfig{
			BaseURL: "https://api.tavily.com",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func DefaultRateLimit() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 60,
		BurstSize:         10,
	}
}

var scheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseSchedule parses a five-field cron expression.
func ParseSchedule(expr string) (cron.Schedule, error) {
	return scheduleParser.Parse(expr)
}
