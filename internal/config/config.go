// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.calagem/config.yaml or ./config.yaml)
//  3. Default values
//
// A .env file in the working directory is loaded before Viper runs so that
// GEMINI_API_KEY can live next to the binary during development.
//
// Error handling uses sentinel errors for errors.Is checks; wrap with
// fmt.Errorf("%w: details", ErrXxx) when adding context.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var (
	// ErrMissingAPIKey indicates GEMINI_API_KEY is not set. This is fatal at
	// startup for commands that talk to the model: there is no retry path.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidModelName indicates the model name is empty or malformed.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidEmbedderModel indicates the embedder model is empty.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidIndexPath indicates a vector index path is empty.
	ErrInvalidIndexPath = errors.New("invalid index path")

	// ErrInvalidDocumentID indicates a roster entry is not a 7-digit GeM id.
	ErrInvalidDocumentID = errors.New("invalid document id")

	// ErrInvalidWorkerCount indicates the async worker count is out of range.
	ErrInvalidWorkerCount = errors.New("invalid worker count")

	// ErrInvalidThrottle indicates the per-session throttle is negative.
	ErrInvalidThrottle = errors.New("invalid throttle interval")
)

// gemDocIDPattern matches a bare 7-digit GeM document id.
var gemDocIDPattern = regexp.MustCompile(`^\d{7}$`)

// DefaultGemDocumentIDs is the known roster of GeM bid documents the
// multi-document retriever must cover.
var DefaultGemDocumentIDs = []string{
	"7893321", "7908419", "7975925", "7987151",
	"8046605", "8089475", "8102343", "8127013",
}

// DefaultWikiURLs is the curated list of Calamity wiki pages the wiki
// ingester builds the domain-A corpus from.
var DefaultWikiURLs = []string{
	"https://calamitymod.wiki.gg/wiki/Murasama",
	"https://calamitymod.wiki.gg/wiki/Empyrean_Knives",
	"https://calamitymod.wiki.gg/wiki/Bosses",
	"https://calamitymod.wiki.gg/wiki/Weapons",
	"https://calamitymod.wiki.gg/wiki/Armor",
	"https://calamitymod.wiki.gg/wiki/Accessories",
	"https://calamitymod.wiki.gg/wiki/Yharon,_Dragon_of_Rebirth",
	"https://calamitymod.wiki.gg/wiki/Supreme_Witch,_Calamitas",
	"https://calamitymod.wiki.gg/wiki/Biomes",
	"https://calamitymod.wiki.gg/wiki/Sunken_Sea",
	"https://calamitymod.wiki.gg/wiki/The_Abyss",
}

// ScraperConfig controls the wiki ingestion crawler.
type ScraperConfig struct {
	Parallelism int `mapstructure:"parallelism"`
	DelayMs     int `mapstructure:"delay_ms"`
	TimeoutMs   int `mapstructure:"timeout_ms"`
}

// Config stores application configuration.
type Config struct {
	// Model configuration
	ModelName     string  `mapstructure:"model_name"`     // e.g. "gemini-2.5-flash"
	EmbedderModel string  `mapstructure:"embedder_model"` // e.g. "text-embedding-004"
	Temperature   float32 `mapstructure:"temperature"`

	// Vector index paths (one persistent index per corpus)
	CalamityIndexPath string `mapstructure:"calamity_index_path"`
	GemIndexPath      string `mapstructure:"gem_index_path"`

	// GeM corpus
	GemDocumentIDs []string `mapstructure:"gem_document_ids"`
	GemPDFDir      string   `mapstructure:"gem_pdf_dir"`

	// Wiki corpus
	WikiURLs []string      `mapstructure:"wiki_urls"`
	Scraper  ScraperConfig `mapstructure:"scraper"`

	// HTTP server
	HTTPAddr  string `mapstructure:"http_addr"`
	RateBurst int    `mapstructure:"rate_burst"`

	// Per-session minimum spacing between chat requests, in seconds.
	ThrottleSeconds int `mapstructure:"throttle_seconds"`

	// Cache TTLs, in seconds.
	ResponseCacheTTL int `mapstructure:"response_cache_ttl"`
	ChunkCacheTTL    int `mapstructure:"chunk_cache_ttl"`
	TaskStatusTTL    int `mapstructure:"task_status_ttl"`

	// Async pipeline worker pool size.
	Workers int `mapstructure:"workers"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	// Best effort: a missing .env file is the normal case.
	if err := godotenv.Load(); err == nil {
		slog.Debug("loaded environment from .env")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}
	configDir := filepath.Join(home, ".calagem")

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// Configuration file not found is not an error; defaults apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("model_name", "gemini-2.5-flash")
	v.SetDefault("embedder_model", "text-embedding-004")
	v.SetDefault("temperature", 0.1)

	v.SetDefault("calamity_index_path", "indexes/calamity")
	v.SetDefault("gem_index_path", "indexes/gem")

	v.SetDefault("gem_document_ids", DefaultGemDocumentIDs)
	v.SetDefault("gem_pdf_dir", "documents")

	v.SetDefault("wiki_urls", DefaultWikiURLs)
	v.SetDefault("scraper.parallelism", 2)
	v.SetDefault("scraper.delay_ms", 1000)
	v.SetDefault("scraper.timeout_ms", 30000)

	v.SetDefault("http_addr", ":8080")
	v.SetDefault("rate_burst", 60)
	v.SetDefault("throttle_seconds", 2)

	v.SetDefault("response_cache_ttl", 300)
	v.SetDefault("chunk_cache_ttl", 600)
	v.SetDefault("task_status_ttl", 60)

	v.SetDefault("workers", 2)
}

// bindEnvVariables binds environment overrides explicitly.
// GEMINI_API_KEY is read directly by the Genkit googlegenai plugin, not via
// Viper; RequireAPIKey checks its presence for model-facing commands.
func bindEnvVariables(v *viper.Viper) {
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("model_name", "CALAGEM_MODEL_NAME")
	mustBind("embedder_model", "CALAGEM_EMBEDDER_MODEL")
	mustBind("http_addr", "CALAGEM_HTTP_ADDR")
	mustBind("rate_burst", "CALAGEM_RATE_BURST")
	mustBind("calamity_index_path", "CALAGEM_CALAMITY_INDEX")
	mustBind("gem_index_path", "CALAGEM_GEM_INDEX")
	mustBind("workers", "CALAGEM_WORKERS")
}

// Validate checks configuration invariants that do not depend on secrets.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ModelName) == "" {
		return fmt.Errorf("%w: model name is empty", ErrInvalidModelName)
	}
	if strings.TrimSpace(c.EmbedderModel) == "" {
		return fmt.Errorf("%w: embedder model is empty", ErrInvalidEmbedderModel)
	}
	if c.CalamityIndexPath == "" || c.GemIndexPath == "" {
		return fmt.Errorf("%w: index paths must be set", ErrInvalidIndexPath)
	}
	for _, id := range c.GemDocumentIDs {
		if !gemDocIDPattern.MatchString(id) {
			return fmt.Errorf("%w: %q is not a 7-digit id", ErrInvalidDocumentID, id)
		}
	}
	if c.Workers < 1 || c.Workers > 32 {
		return fmt.Errorf("%w: %d (want 1..32)", ErrInvalidWorkerCount, c.Workers)
	}
	if c.ThrottleSeconds < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidThrottle, c.ThrottleSeconds)
	}
	return nil
}

// RequireAPIKey verifies that the Gemini credential is present.
// Commands that call the model fail fast here rather than surfacing a raw
// provider error mid-request.
func (c *Config) RequireAPIKey() error {
	key := os.Getenv("GEMINI_API_KEY")
	if key == "" {
		key = os.Getenv("GOOGLE_API_KEY")
	}
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("%w: set GEMINI_API_KEY in the environment or .env", ErrMissingAPIKey)
	}
	return nil
}

// FullModelName returns the provider-qualified model name for Genkit.
func (c *Config) FullModelName() string {
	if strings.Contains(c.ModelName, "/") {
		return c.ModelName
	}
	return "googleai/" + c.ModelName
}
