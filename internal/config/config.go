// Package config provides application configuration with multi-source
// priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (ORBIT_ prefix, runtime override)
//  2. Config file (~/.orbit/config.yaml or ./config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - AI: generation model, embedder model and dimensionality
//   - Storage: PostgreSQL connection for the vector index and sessions
//   - RAG: chunking, retrieval and context-assembly tuning
//   - SearXNG: external web-search fallback endpoint
//   - WebScraper: ingestion crawler limits
//   - Tracing: OTLP trace export to a local agent
//
// Sensitive fields (the Postgres password) are masked in MarshalJSON.
// Validation lives in validation.go and uses sentinel errors so callers
// can match with errors.Is().
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidModelName indicates the generation model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidEmbedderModel indicates the embedder model is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidEmbedderDimensions indicates the embedder dimensionality is out of range.
	ErrInvalidEmbedderDimensions = errors.New("invalid embedder dimensions")

	// ErrInvalidChunking indicates chunk size/overlap settings are inconsistent.
	ErrInvalidChunking = errors.New("invalid chunking configuration")

	// ErrInvalidRetrieval indicates top-k or score-threshold settings are out of range.
	ErrInvalidRetrieval = errors.New("invalid retrieval configuration")

	// ErrInvalidContextBudget indicates the context token budget is out of range.
	ErrInvalidContextBudget = errors.New("invalid context budget")

	// ErrInvalidFallbackWeight indicates the external-result weight is out of range.
	ErrInvalidFallbackWeight = errors.New("invalid fallback weight")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")
)

const (
	// DefaultGenerationModel is the default Gemini generation model.
	DefaultGenerationModel = "googleai/gemini-2.5-flash"

	// DefaultEmbedderModel is the default Gemini embedder model.
	// gemini-embedding-001 supports truncation to 768 dimensions, which
	// is what the chunks table schema uses (knowledge.VectorDimensions).
	DefaultEmbedderModel = "gemini-embedding-001"

	// DefaultEmbedderDimensions must match the vector column width in
	// db/migrations.
	DefaultEmbedderDimensions = 768
)

// SearXNGConfig holds the SearXNG endpoint used for the web-search
// fallback. An empty BaseURL disables external search entirely.
type SearXNGConfig struct {
	BaseURL    string `mapstructure:"base_url" json:"base_url"`
	TimeoutMs  int    `mapstructure:"timeout_ms" json:"timeout_ms"`
	MaxResults int    `mapstructure:"max_results" json:"max_results"`
}

// WebScraperConfig holds crawler limits for document ingestion.
type WebScraperConfig struct {
	// Parallelism is max concurrent requests per domain.
	Parallelism int `mapstructure:"parallelism" json:"parallelism"`
	// DelayMs is the delay between requests in milliseconds.
	DelayMs int `mapstructure:"delay_ms" json:"delay_ms"`
	// TimeoutMs is the per-request timeout in milliseconds.
	TimeoutMs int `mapstructure:"timeout_ms" json:"timeout_ms"`
}

// TracingConfig holds OTLP trace export settings. Traces go to a local
// collector agent which handles auth and forwarding.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled" json:"enabled"`
	AgentHost   string `mapstructure:"agent_host" json:"agent_host"`
	ServiceName string `mapstructure:"service_name" json:"service_name"`
	Environment string `mapstructure:"environment" json:"environment"`
}

// Config stores application configuration.
// SECURITY: sensitive fields are masked in MarshalJSON. When adding new
// secrets, update MarshalJSON.
type Config struct {
	// AI model configuration
	GenerationModel    string `mapstructure:"generation_model" json:"generation_model"`
	EmbedderModel      string `mapstructure:"embedder_model" json:"embedder_model"`
	EmbedderDimensions int    `mapstructure:"embedder_dimensions" json:"embedder_dimensions"`

	// Chunking configuration
	ChunkTokens        int `mapstructure:"chunk_tokens" json:"chunk_tokens"`
	ChunkOverlapTokens int `mapstructure:"chunk_overlap_tokens" json:"chunk_overlap_tokens"`

	// Retrieval configuration. MinScore is the similarity threshold
	// below which local results are dropped; an empty post-threshold
	// set triggers the external-search fallback.
	TopK     int     `mapstructure:"top_k" json:"top_k"`
	MinScore float64 `mapstructure:"min_score" json:"min_score"`

	// Context assembly configuration. FallbackWeight scales external
	// search results relative to local retrieval (local weight is 1.0).
	MaxContextTokens int     `mapstructure:"max_context_tokens" json:"max_context_tokens"`
	FallbackWeight   float64 `mapstructure:"fallback_weight" json:"fallback_weight"`
	AlwaysSearch     bool    `mapstructure:"always_search" json:"always_search"`

	// Conversation history window threaded into each generation call.
	MaxHistoryTurns int `mapstructure:"max_history_turns" json:"max_history_turns"`

	// Storage configuration
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	SearXNG    SearXNGConfig    `mapstructure:"searxng" json:"searxng"`
	WebScraper WebScraperConfig `mapstructure:"web_scraper" json:"web_scraper"`
	Tracing    TracingConfig    `mapstructure:"tracing" json:"tracing"`
}

// Load reads configuration from file, environment and defaults, then
// validates it.
func Load() (*Config, error) {
	configDir, err := Dir()
	if err != nil {
		return nil, err
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".") // also support current directory

	viper.SetEnvPrefix("ORBIT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// No config file is fine; defaults plus env apply.
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Dir returns the Orbit configuration directory, creating it when
// missing.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	dir := filepath.Join(home, ".orbit")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("creating config directory: %w", err)
	}
	return dir, nil
}

func setDefaults() {
	viper.SetDefault("generation_model", DefaultGenerationModel)
	viper.SetDefault("embedder_model", DefaultEmbedderModel)
	viper.SetDefault("embedder_dimensions", DefaultEmbedderDimensions)

	viper.SetDefault("chunk_tokens", 512)
	viper.SetDefault("chunk_overlap_tokens", 50)

	viper.SetDefault("top_k", 5)
	viper.SetDefault("min_score", 0.55)

	viper.SetDefault("max_context_tokens", 3000)
	viper.SetDefault("fallback_weight", 0.5)
	viper.SetDefault("always_search", false)

	viper.SetDefault("max_history_turns", 6)

	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "orbit")
	viper.SetDefault("postgres_password", "")
	viper.SetDefault("postgres_db_name", "orbit")
	viper.SetDefault("postgres_ssl_mode", "disable")

	viper.SetDefault("searxng.base_url", "")
	viper.SetDefault("searxng.timeout_ms", 5000)
	viper.SetDefault("searxng.max_results", 5)

	viper.SetDefault("web_scraper.parallelism", 2)
	viper.SetDefault("web_scraper.delay_ms", 1000)
	viper.SetDefault("web_scraper.timeout_ms", 30000)

	viper.SetDefault("tracing.enabled", false)
	viper.SetDefault("tracing.agent_host", "localhost:4318")
	viper.SetDefault("tracing.service_name", "orbit")
	viper.SetDefault("tracing.environment", "dev")
}

// PostgresURL returns the connection string in URL form, as expected by
// golang-migrate and pgxpool.ParseConfig.
func (c *Config) PostgresURL() string {
	u := url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", c.PostgresHost, c.PostgresPort),
		Path:   c.PostgresDBName,
	}
	if c.PostgresUser != "" {
		if c.PostgresPassword != "" {
			u.User = url.UserPassword(c.PostgresUser, c.PostgresPassword)
		} else {
			u.User = url.User(c.PostgresUser)
		}
	}
	q := url.Values{}
	q.Set("sslmode", c.PostgresSSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// MarshalJSON masks sensitive fields so configs can be logged safely.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	return json.Marshal(a)
}

func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	return "********"
}
