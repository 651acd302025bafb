// Package config loads and validates the ragmux configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	redcache "github.com/blueberrycongee/ragmux/caches/redis"
	"github.com/blueberrycongee/ragmux/internal/embedding"
	"github.com/blueberrycongee/ragmux/internal/ingest"
	"github.com/blueberrycongee/ragmux/internal/prefetch"
	"github.com/blueberrycongee/ragmux/internal/retrieval"
	"github.com/blueberrycongee/ragmux/internal/vectorstore"
	"github.com/blueberrycongee/ragmux/pkg/cache"
)

// Config is the root configuration.
type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Logging   LoggingConfig    `yaml:"logging"`
	Cache     CacheConfig      `yaml:"cache"`
	Embedding EmbeddingConfig  `yaml:"embedding"`
	Store     StoreConfig      `yaml:"store"`
	Retrieval retrieval.Config `yaml:"retrieval"`
	Ingest    ingest.Config    `yaml:"ingest"`
	Prefetch  prefetch.Config  `yaml:"prefetch"`
}

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LoggingConfig holds slog settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// CacheConfig selects the shared cache backend. Type "none" disables
// caching entirely; retrieval then always recomputes.
type CacheConfig struct {
	Type  cache.Type       `yaml:"type"` // local, redis, none
	Local LocalCacheConfig `yaml:"local"`
	Redis redcache.Config  `yaml:"redis"`
}

// LocalCacheConfig holds the in-process cache settings.
type LocalCacheConfig struct {
	MaxSize         int           `yaml:"max_size"`
	DefaultTTL      time.Duration `yaml:"default_ttl"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// EmbeddingConfig holds the embedder and embedding-service settings.
type EmbeddingConfig struct {
	OpenAI        embedding.OpenAIConfig `yaml:"openai"`
	BatchSize     int                    `yaml:"batch_size"`
	CacheCapacity int                    `yaml:"cache_capacity"`
	LoadTimeout   time.Duration          `yaml:"load_timeout"`
	RPS           float64                `yaml:"rps"` // 0 disables rate limiting
	Burst         int                    `yaml:"burst"`
}

// StoreConfig selects the vector store backend.
type StoreConfig struct {
	Type     string                     `yaml:"type"` // memory or postgres
	Postgres vectorstore.PostgresConfig `yaml:"postgres"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Cache: CacheConfig{
			Type: cache.TypeLocal,
			Local: LocalCacheConfig{
				MaxSize:         5000,
				DefaultTTL:      24 * time.Hour,
				CleanupInterval: time.Minute,
			},
			Redis: redcache.DefaultConfig(),
		},
		Embedding: EmbeddingConfig{
			OpenAI:        embedding.DefaultOpenAIConfig(),
			BatchSize:     32,
			CacheCapacity: 5000,
			LoadTimeout:   30 * time.Second,
		},
		Store: StoreConfig{
			Type: "memory",
			Postgres: vectorstore.PostgresConfig{
				Dimension: embedding.DefaultOpenAIConfig().Dimension,
			},
		},
		Retrieval: retrieval.DefaultConfig(),
		Ingest:    ingest.DefaultConfig(),
		Prefetch:  prefetch.DefaultConfig(),
	}
}

// LoadFromFile reads a YAML config, expanding ${ENV_VAR} references before
// parsing so secrets stay out of the file. Fields absent from the file keep
// their defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	switch c.Cache.Type {
	case cache.TypeLocal, cache.TypeRedis, cache.TypeNone:
	default:
		return fmt.Errorf("cache.type must be local, redis, or none, got %q", c.Cache.Type)
	}
	if c.Cache.Type == cache.TypeRedis && c.Cache.Redis.Addr == "" {
		return fmt.Errorf("cache.redis.addr is required when cache.type is redis")
	}

	switch c.Store.Type {
	case "memory", "postgres":
	default:
		return fmt.Errorf("store.type must be memory or postgres, got %q", c.Store.Type)
	}
	if c.Store.Type == "postgres" && c.Store.Postgres.DSN == "" {
		return fmt.Errorf("store.postgres.dsn is required when store.type is postgres")
	}

	if c.Embedding.OpenAI.Dimension <= 0 {
		return fmt.Errorf("embedding.openai.dimension must be positive")
	}
	if c.Store.Type == "postgres" && c.Store.Postgres.Dimension != c.Embedding.OpenAI.Dimension {
		return fmt.Errorf("store.postgres.dimension (%d) must match embedding.openai.dimension (%d)",
			c.Store.Postgres.Dimension, c.Embedding.OpenAI.Dimension)
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	if c.Retrieval.TopK < 0 || c.Retrieval.MaxContextLength < 0 {
		return fmt.Errorf("retrieval limits must not be negative")
	}
	return nil
}
