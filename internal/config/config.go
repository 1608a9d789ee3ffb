// Package config loads memento's runtime configuration. Defaults are
// overridden first by an optional YAML file (MEMENTO_CONFIG_FILE, or
// ./memento.yaml if present) and finally by environment variables, the
// same precedence order the teacher's internal/config.Load applies to
// its own project/user config files.
package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	apperrors "github.com/bgconley/memento/internal/errors"
)

// DatabaseConfig configures the pgx pool.
type DatabaseConfig struct {
	URL             string        `yaml:"url"`
	MaxConns        int32         `yaml:"max_conns"`
	MinConns        int32         `yaml:"min_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time"`
}

// EmbedderConfig configures the default embedder used when a profile's
// provider_config does not override base URL or key.
type EmbedderConfig struct {
	UseFake bool   `yaml:"use_fake"`
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`

	BatchSize   int `yaml:"batch_size"`
	Concurrency int `yaml:"concurrency"`
}

// ContextualConfig guards whole-document contextual embedding.
type ContextualConfig struct {
	MaxChars  int  `yaml:"max_chars"`
	MaxChunks int  `yaml:"max_chunks"`
	Strict    bool `yaml:"strict"`
}

// OutboxConfig configures the worker's lease/retry behavior.
type OutboxConfig struct {
	LeaseSeconds      int           `yaml:"lease_seconds"`
	RetryDelaySeconds int           `yaml:"retry_delay_seconds"`
	RetryMaxDelay     int           `yaml:"retry_max_delay_seconds"`
	MaxAttempts       int           `yaml:"max_attempts"`
	BatchSize         int           `yaml:"batch_size"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	MetricsInterval   time.Duration `yaml:"metrics_interval"`
}

// SearchConfig configures capability caching and index-build behavior.
type SearchConfig struct {
	BM25CapsTTL    time.Duration `yaml:"bm25_caps_ttl"`
	SkipIndexBuild bool          `yaml:"skip_index_build"`
}

// Config is the complete runtime configuration.
type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Embedder   EmbedderConfig   `yaml:"embedder"`
	Contextual ContextualConfig `yaml:"contextual"`
	Outbox     OutboxConfig     `yaml:"outbox"`
	Search     SearchConfig     `yaml:"search"`
}

func defaults() *Config {
	return &Config{
		Database: DatabaseConfig{
			MaxConns:        10,
			MinConns:        2,
			MaxConnLifetime: time.Hour,
			MaxConnIdleTime: 30 * time.Minute,
		},
		Embedder: EmbedderConfig{
			BatchSize:   32,
			Concurrency: 2,
		},
		Contextual: ContextualConfig{
			MaxChars:  24000,
			MaxChunks: 64,
		},
		Outbox: OutboxConfig{
			LeaseSeconds:      120,
			RetryDelaySeconds: 5,
			RetryMaxDelay:     600,
			MaxAttempts:       5,
			BatchSize:         5,
			PollInterval:      2 * time.Second,
			MetricsInterval:   30 * time.Second,
		},
		Search: SearchConfig{
			BM25CapsTTL: 5 * time.Minute,
		},
	}
}

// Load builds Config from, in increasing precedence: built-in defaults,
// an optional YAML file, and environment variables. DATABASE_URL must
// end up set by one of the first two steps or by the DATABASE_URL
// variable itself; every other field has a working default.
func Load() (*Config, error) {
	cfg := defaults()

	if path := configFilePath(); path != "" {
		if err := loadYAMLFile(path, cfg); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	if cfg.Database.URL == "" {
		return nil, apperrors.Validation("DATABASE_URL is required")
	}
	cfg.Embedder.BatchSize = clamp(cfg.Embedder.BatchSize, 1, 256)
	cfg.Embedder.Concurrency = clamp(cfg.Embedder.Concurrency, 1, 8)
	return cfg, nil
}

// configFilePath resolves the YAML config file to load, if any:
// MEMENTO_CONFIG_FILE when set, else ./memento.yaml when it exists.
func configFilePath() string {
	if p := os.Getenv("MEMENTO_CONFIG_FILE"); p != "" {
		return p
	}
	if _, err := os.Stat("memento.yaml"); err == nil {
		return "memento.yaml"
	}
	return ""
}

func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return apperrors.Internal("read config file "+path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return apperrors.Validation("parse config file " + path).WithDetail("cause", err.Error())
	}
	return nil
}

// applyEnvOverrides applies every MEMENTO/DATABASE/EMBEDDER/... variable
// on top of cfg's current values (defaults, possibly already overridden
// by a YAML file), so env vars remain the final word regardless of what
// a config file set.
func applyEnvOverrides(cfg *Config) {
	cfg.Database.URL = envOrString("DATABASE_URL", cfg.Database.URL)
	cfg.Database.MaxConns = int32(envOrInt("DB_POOL_MAX_CONNS", int(cfg.Database.MaxConns)))
	cfg.Database.MinConns = int32(envOrInt("DB_POOL_MIN_CONNS", int(cfg.Database.MinConns)))
	cfg.Database.MaxConnLifetime = envOrDuration("DB_POOL_MAX_CONN_LIFETIME", cfg.Database.MaxConnLifetime)
	cfg.Database.MaxConnIdleTime = envOrDuration("DB_POOL_MAX_CONN_IDLE_TIME", cfg.Database.MaxConnIdleTime)

	cfg.Embedder.UseFake = envOrBool("EMBEDDER_USE_FAKE", cfg.Embedder.UseFake)
	cfg.Embedder.BaseURL = envOrString("EMBEDDER_BASE_URL", cfg.Embedder.BaseURL)
	cfg.Embedder.APIKey = envOrString("EMBEDDER_API_KEY", cfg.Embedder.APIKey)
	cfg.Embedder.BatchSize = envOrInt("EMBED_BATCH_SIZE", cfg.Embedder.BatchSize)
	cfg.Embedder.Concurrency = envOrInt("EMBED_CONCURRENCY", cfg.Embedder.Concurrency)

	cfg.Contextual.MaxChars = envOrInt("CONTEXTUAL_MAX_CHARS", cfg.Contextual.MaxChars)
	cfg.Contextual.MaxChunks = envOrInt("CONTEXTUAL_MAX_CHUNKS", cfg.Contextual.MaxChunks)
	cfg.Contextual.Strict = envOrBool("CONTEXTUAL_STRICT", cfg.Contextual.Strict)

	cfg.Outbox.LeaseSeconds = envOrInt("OUTBOX_LEASE_SECONDS", cfg.Outbox.LeaseSeconds)
	cfg.Outbox.RetryDelaySeconds = envOrInt("OUTBOX_RETRY_DELAY_SECONDS", cfg.Outbox.RetryDelaySeconds)
	cfg.Outbox.RetryMaxDelay = envOrInt("OUTBOX_RETRY_MAX_DELAY_SECONDS", cfg.Outbox.RetryMaxDelay)
	cfg.Outbox.MaxAttempts = envOrInt("OUTBOX_MAX_ATTEMPTS", cfg.Outbox.MaxAttempts)
	cfg.Outbox.BatchSize = envOrInt("OUTBOX_BATCH_SIZE", cfg.Outbox.BatchSize)
	cfg.Outbox.PollInterval = envOrDuration("OUTBOX_POLL_INTERVAL", cfg.Outbox.PollInterval)
	cfg.Outbox.MetricsInterval = envOrDuration("OUTBOX_METRICS_INTERVAL", cfg.Outbox.MetricsInterval)

	cfg.Search.BM25CapsTTL = envOrDuration("MEMENTO_BM25_CAPS_TTL_SECONDS", cfg.Search.BM25CapsTTL)
	cfg.Search.SkipIndexBuild = envOrBool("MEMENTO_SKIP_INDEX_BUILD", cfg.Search.SkipIndexBuild)
}

func envOrString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envOrBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envOrDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	// Bare integers are treated as seconds (MEMENTO_BM25_CAPS_TTL_SECONDS,
	// OUTBOX_LEASE_SECONDS-style naming); anything else must parse as a
	// Go duration string.
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func clamp(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
