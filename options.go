package ragmux

import (
	"log/slog"

	"github.com/blueberrycongee/ragmux/internal/config"
	"github.com/blueberrycongee/ragmux/internal/vectorstore"
	"github.com/blueberrycongee/ragmux/pkg/cache"
)

// clientConfig collects everything New needs to assemble a Client.
type clientConfig struct {
	cfg    *config.Config
	logger *slog.Logger

	// Pre-built components; each overrides the corresponding config section.
	embedder Embedder
	cache    cache.Cache
	store    vectorstore.Store
}

// Option configures the Client.
type Option func(*clientConfig)

// WithConfig uses a full configuration, typically loaded from a file.
func WithConfig(cfg *config.Config) Option {
	return func(c *clientConfig) { c.cfg = cfg }
}

// WithLogger sets the logger. Overrides the logging section of the config.
func WithLogger(logger *slog.Logger) Option {
	return func(c *clientConfig) { c.logger = logger }
}

// WithEmbedder plugs in a custom embedding backend instead of the
// OpenAI-compatible HTTP embedder.
func WithEmbedder(e Embedder) Option {
	return func(c *clientConfig) { c.embedder = e }
}

// WithOpenAIEmbedder configures the OpenAI-compatible HTTP embedder.
func WithOpenAIEmbedder(cfg OpenAIConfig) Option {
	return func(c *clientConfig) { c.cfg.Embedding.OpenAI = cfg }
}

// WithCache plugs in a custom shared cache implementation.
func WithCache(cc cache.Cache) Option {
	return func(c *clientConfig) { c.cache = cc }
}

// WithRedisCache uses Redis as the shared cache.
func WithRedisCache(cfg RedisConfig) Option {
	return func(c *clientConfig) {
		c.cfg.Cache.Type = cache.TypeRedis
		c.cfg.Cache.Redis = cfg
	}
}

// WithoutCache disables the shared cache; every request recomputes.
func WithoutCache() Option {
	return func(c *clientConfig) { c.cfg.Cache.Type = cache.TypeNone }
}

// WithStore plugs in a custom vector store.
func WithStore(s vectorstore.Store) Option {
	return func(c *clientConfig) { c.store = s }
}

// WithPostgresStore uses PostgreSQL with pgvector as the vector store.
func WithPostgresStore(cfg vectorstore.PostgresConfig) Option {
	return func(c *clientConfig) {
		c.cfg.Store.Type = "postgres"
		c.cfg.Store.Postgres = cfg
	}
}

func defaultClientConfig() *clientConfig {
	return &clientConfig{cfg: config.DefaultConfig()}
}
