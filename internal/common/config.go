package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// LLM provider names accepted in [llm] default_provider.
const (
	LLMProviderGemini = "gemini"
	LLMProviderClaude = "claude"
)

// Config represents the application configuration
type Config struct {
	Environment string           `toml:"environment"` // "development" or "production"
	Storage     StorageConfig    `toml:"storage"`
	Logging     LoggingConfig    `toml:"logging"`
	Gemini      GeminiConfig     `toml:"gemini"`
	Claude      ClaudeConfig     `toml:"claude"`
	LLM         LLMConfig        `toml:"llm"`
	History     HistoryConfig    `toml:"history"`
	Taste       TasteConfig      `toml:"taste"`
	Recommend   RecommendConfig  `toml:"recommend"`
	Scheduler   SchedulerConfig  `toml:"scheduler"`
	Catalog     CatalogConfig    `toml:"catalog"`
	MediaServer ServiceEndpoint  `toml:"media_server"`
	Directory   ServiceEndpoint  `toml:"directory"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path" validate:"required"` // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"`         // Delete database on startup for clean test runs
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Format string   `toml:"format"` // "json" or "text"
	Output []string `toml:"output"` // "stdout", "file"
}

// GeminiConfig contains Google Gemini API settings.
type GeminiConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`
	Temperature float32 `toml:"temperature"`
	MaxTokens   int     `toml:"max_tokens"`
	Timeout     string  `toml:"timeout"` // e.g. "2m"
}

// ClaudeConfig contains Anthropic Claude API settings.
type ClaudeConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`
	Temperature float32 `toml:"temperature"`
	MaxTokens   int     `toml:"max_tokens"`
	Timeout     string  `toml:"timeout"`
}

// LLMConfig selects the default AI provider when a model string carries no
// provider prefix.
type LLMConfig struct {
	DefaultProvider string `toml:"default_provider" validate:"oneof=gemini claude"`
}

// HistoryConfig controls watch-history ingestion and grouping.
type HistoryConfig struct {
	ItemsPerGroup int    `toml:"items_per_group" validate:"gt=0"` // Max items per model-facing history block
	Cadence       string `toml:"cadence"`                         // Minimum interval between history refreshes per user
}

// TasteConfig controls taste synthesis.
type TasteConfig struct {
	Cadence string `toml:"cadence"`
}

// FallbackRecommendation is one curated entry served when the AI backend
// cannot produce enough novel results.
type FallbackRecommendation struct {
	Title      string `toml:"title"`
	ExternalID string `toml:"external_id"`
	ImageURL   string `toml:"image_url"`
}

// RecommendConfig controls recommendation generation.
type RecommendConfig struct {
	MonthlyMovies   int                      `toml:"monthly_movies" validate:"gte=0"`
	MonthlySeries   int                      `toml:"monthly_series" validate:"gte=0"`
	DiscoveryMovies int                      `toml:"discovery_movies" validate:"gte=0"`
	DiscoverySeries int                      `toml:"discovery_series" validate:"gte=0"`
	Cadence         string                   `toml:"cadence"`
	PostPassDelay   string                   `toml:"post_pass_delay"` // Fixed courtesy pause after an "all" refresh
	Fallback        []FallbackRecommendation `toml:"fallback"`
}

// SchedulerConfig controls the two coordinator poll loops.
type SchedulerConfig struct {
	UserPollInterval string `toml:"user_poll_interval"` // Fast loop: new-user discovery
	SweepInterval    string `toml:"sweep_interval"`     // Coarse loop: cadence checks
}

// CatalogConfig configures the poster-resolution catalog API.
type CatalogConfig struct {
	BaseURL      string `toml:"base_url"`
	APIKey       string `toml:"api_key"`
	ImageBaseURL string `toml:"image_base_url"`
	RateLimit    int    `toml:"rate_limit"` // Requests per second
}

// ServiceEndpoint is a generic HTTP collaborator address.
type ServiceEndpoint struct {
	BaseURL string `toml:"base_url"`
	Timeout string `toml:"timeout"`
}

// NewDefaultConfig returns a Config populated with defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path:           "./data/reelrec",
				ResetOnStartup: false,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: []string{"stdout"},
		},
		Gemini: GeminiConfig{
			Model:       "gemini-2.0-flash-exp",
			Temperature: 1.0,
			MaxTokens:   8192,
			Timeout:     "2m",
		},
		Claude: ClaudeConfig{
			Model:       "claude-sonnet-4-20250514",
			Temperature: 1.0,
			MaxTokens:   8192,
			Timeout:     "2m",
		},
		LLM: LLMConfig{
			DefaultProvider: LLMProviderGemini,
		},
		History: HistoryConfig{
			ItemsPerGroup: 5000,
			Cadence:       "24h",
		},
		Taste: TasteConfig{
			Cadence: "168h", // 7 days
		},
		Recommend: RecommendConfig{
			MonthlyMovies:   3,
			MonthlySeries:   2,
			DiscoveryMovies: 3,
			DiscoverySeries: 2,
			Cadence:         "720h", // 30 days
			PostPassDelay:   "10s",
		},
		Scheduler: SchedulerConfig{
			UserPollInterval: "15s",
			SweepInterval:    "1h",
		},
		Catalog: CatalogConfig{
			BaseURL:      "https://api.themoviedb.org/3",
			ImageBaseURL: "https://image.tmdb.org/t/p/w500",
			RateLimit:    10,
		},
		MediaServer: ServiceEndpoint{
			BaseURL: "http://localhost:5334",
			Timeout: "30s",
		},
		Directory: ServiceEndpoint{
			BaseURL: "http://localhost:5332",
			Timeout: "10s",
		},
	}
}

// LoadFromFiles loads configuration from multiple files with priority:
// default -> file1 -> file2 -> ... -> env. Later files override earlier ones.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks structural config constraints and that every configured
// duration parses.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	durations := map[string]string{
		"history.cadence":              c.History.Cadence,
		"taste.cadence":                c.Taste.Cadence,
		"recommend.cadence":            c.Recommend.Cadence,
		"recommend.post_pass_delay":    c.Recommend.PostPassDelay,
		"scheduler.user_poll_interval": c.Scheduler.UserPollInterval,
		"scheduler.sweep_interval":     c.Scheduler.SweepInterval,
		"gemini.timeout":               c.Gemini.Timeout,
		"claude.timeout":               c.Claude.Timeout,
		"media_server.timeout":         c.MediaServer.Timeout,
		"directory.timeout":            c.Directory.Timeout,
	}
	for name, value := range durations {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid duration for %s (%q): %w", name, value, err)
		}
	}

	return nil
}

// Duration parses a config duration string that Validate has already checked.
func Duration(value string) time.Duration {
	d, _ := time.ParseDuration(value)
	return d
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("REELREC_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	// Storage configuration
	if badgerPath := os.Getenv("REELREC_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	// Logging configuration
	if level := os.Getenv("REELREC_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("REELREC_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, part := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	// AI backend keys: REELREC_* first, bare names as fallback
	if key := firstEnv("REELREC_GEMINI_API_KEY", "GEMINI_API_KEY"); key != "" {
		config.Gemini.APIKey = key
	}
	if key := firstEnv("REELREC_CLAUDE_API_KEY", "ANTHROPIC_API_KEY"); key != "" {
		config.Claude.APIKey = key
	}
	if provider := os.Getenv("REELREC_LLM_PROVIDER"); provider != "" {
		config.LLM.DefaultProvider = strings.ToLower(provider)
	}

	// Catalog (poster lookup)
	if key := firstEnv("REELREC_TMDB_API_KEY", "TMDB_API_KEY"); key != "" {
		config.Catalog.APIKey = key
	}
	if url := os.Getenv("REELREC_CATALOG_URL"); url != "" {
		config.Catalog.BaseURL = url
	}

	// Collaborator endpoints
	if url := os.Getenv("REELREC_MEDIA_SERVER_URL"); url != "" {
		config.MediaServer.BaseURL = url
	}
	if url := firstEnv("REELREC_DIRECTORY_URL", "PLEXAUTH_URL"); url != "" {
		config.Directory.BaseURL = url
	}

	// Grouping threshold
	if items := os.Getenv("REELREC_ITEMS_PER_GROUP"); items != "" {
		if n, err := strconv.Atoi(items); err == nil && n > 0 {
			config.History.ItemsPerGroup = n
		}
	}
}

func firstEnv(names ...string) string {
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}
