package ragmux

import (
	"context"
	"log/slog"
	"os"
	"sync"

	redcache "github.com/blueberrycongee/ragmux/caches/redis"
	intcache "github.com/blueberrycongee/ragmux/internal/cache"
	"github.com/blueberrycongee/ragmux/internal/config"
	"github.com/blueberrycongee/ragmux/internal/embedding"
	"github.com/blueberrycongee/ragmux/internal/ingest"
	"github.com/blueberrycongee/ragmux/internal/prefetch"
	"github.com/blueberrycongee/ragmux/internal/retrieval"
	"github.com/blueberrycongee/ragmux/internal/vectorstore"
	"github.com/blueberrycongee/ragmux/pkg/cache"
	ragerrors "github.com/blueberrycongee/ragmux/pkg/errors"
)

// Client is the assembled retrieval engine: embedding service, vector
// store, shared cache, ingestion pipeline, and prefetch scheduler behind
// one API. Safe for concurrent use.
type Client struct {
	cfg      *config.Config
	logger   *slog.Logger
	cache    cache.Cache
	store    vectorstore.Store
	embedSvc *embedding.Service
	engine   *retrieval.Engine
	pipeline *ingest.Pipeline
	prefetch *prefetch.Scheduler
	registry *retrieval.Registry

	ownsCache bool
	ownsStore bool
	closeOnce sync.Once
}

// Stats is a point-in-time snapshot of the client's caches.
type Stats struct {
	Cache            CacheStats `json:"cache"`
	EmbedModelCalls  int64      `json:"embed_model_calls"`
	EmbedCacheSize   int        `json:"embed_cache_size"`
	RegisteredScopes int        `json:"registered_scopes"`
}

// New assembles a Client from the given options. The context bounds
// backend connection setup only.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cc := defaultClientConfig()
	for _, opt := range opts {
		opt(cc)
	}
	cfg := cc.cfg
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := cc.logger
	if logger == nil {
		logger = newLogger(cfg.Logging)
	}

	c := &Client{cfg: cfg, logger: logger, cache: cc.cache, store: cc.store}

	if c.cache == nil {
		var err error
		if c.cache, err = buildCache(cfg.Cache); err != nil {
			return nil, err
		}
		c.ownsCache = c.cache != nil
	}

	embedder := cc.embedder
	if embedder == nil {
		var err error
		if embedder, err = embedding.NewOpenAIEmbedder(cfg.Embedding.OpenAI); err != nil {
			c.closePartial()
			return nil, err
		}
	}
	if cfg.Embedding.RPS > 0 {
		embedder = embedding.NewRateLimitedEmbedder(embedder, cfg.Embedding.RPS, cfg.Embedding.Burst)
	}
	c.embedSvc = embedding.NewService(embedder, embedding.ServiceConfig{
		BatchSize:     cfg.Embedding.BatchSize,
		CacheCapacity: cfg.Embedding.CacheCapacity,
		LoadTimeout:   cfg.Embedding.LoadTimeout,
		Logger:        logger,
	})

	if c.store == nil {
		var err error
		if c.store, err = buildStore(ctx, cfg.Store, embedder.Dimension()); err != nil {
			c.closePartial()
			return nil, err
		}
		c.ownsStore = true
	}

	c.registry = retrieval.NewRegistry()
	c.engine = retrieval.New(c.embedSvc, c.store, c.cache, cfg.Retrieval, logger)

	c.pipeline = ingest.New(c.embedSvc, c.store, cfg.Ingest, logger)
	c.pipeline.OnDocumentIngested = func(ctx context.Context, documentID string) {
		for _, scopeID := range c.registry.ScopesForDocument(documentID) {
			if _, err := c.engine.InvalidateScope(ctx, scopeID); err != nil {
				logger.Warn("scope invalidation failed", "scope", scopeID, "error", err)
			}
		}
	}

	c.prefetch = prefetch.New(c.engine, cfg.Prefetch, logger)

	logger.Info("ragmux client ready",
		"cache", cfg.Cache.Type,
		"store", cfg.Store.Type,
		"embedding_model", c.embedSvc.Model(),
	)
	return c, nil
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func buildCache(cfg config.CacheConfig) (cache.Cache, error) {
	switch cfg.Type {
	case cache.TypeNone:
		return nil, nil
	case cache.TypeRedis:
		return redcache.New(cfg.Redis)
	default:
		return intcache.NewMemory(intcache.MemoryConfig{
			MaxSize:         cfg.Local.MaxSize,
			DefaultTTL:      cfg.Local.DefaultTTL,
			CleanupInterval: cfg.Local.CleanupInterval,
		}), nil
	}
}

func buildStore(ctx context.Context, cfg config.StoreConfig, dimension int) (vectorstore.Store, error) {
	if cfg.Type != "postgres" {
		return vectorstore.NewMemory(dimension), nil
	}

	pcfg := cfg.Postgres
	if pcfg.Dimension <= 0 {
		pcfg.Dimension = dimension
	}
	store, err := vectorstore.NewPostgres(ctx, pcfg)
	if err != nil {
		return nil, err
	}
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

// EnsureReady forces embedding model initialization instead of paying for
// it on the first request. A fatal model load error is sticky.
func (c *Client) EnsureReady(ctx context.Context) error {
	return c.embedSvc.EnsureReady(ctx)
}

// RegisterScope adds or replaces a retrieval scope.
func (c *Client) RegisterScope(scope Scope) {
	c.registry.Register(scope)
}

// Scopes returns the registered scopes in registration order.
func (c *Client) Scopes() []Scope {
	return c.registry.List()
}

// GetContext retrieves the concatenated context for a query within a
// registered scope. topK <= 0 uses the configured default. An unregistered
// scope is an empty scope: the result is "" with no error, and nothing is
// cached, so registering the scope later takes effect immediately.
func (c *Client) GetContext(ctx context.Context, scopeID, query string, topK int) (string, Status, error) {
	scope, ok := c.registry.Get(scopeID)
	if !ok {
		scope = Scope{ID: scopeID}
	}
	return c.engine.GetContext(ctx, scope, query, topK)
}

// Ingest embeds and persists the chunks of a document, returning how many
// were written. Re-ingesting a document is an upsert, and cached contexts
// of every scope containing it are invalidated afterwards.
func (c *Client) Ingest(ctx context.Context, documentID string, chunks []Chunk) (int, error) {
	return c.pipeline.Ingest(ctx, documentID, chunks)
}

// CachedGenerate memoizes an expensive generation (e.g. an LLM call) under
// the artifact parameters.
func (c *Client) CachedGenerate(ctx context.Context, params ArtifactParams, produce func(context.Context) (string, error)) (string, Status, error) {
	return c.engine.CachedGenerate(ctx, params, produce)
}

// Prefetch schedules background cache warming and returns the number of
// accepted tasks without waiting for them. With no arguments it warms the
// first registered scopes, up to the configured limit; otherwise it warms
// the named scopes. Scopes without a WarmQuery are skipped.
func (c *Client) Prefetch(scopeIDs ...string) int {
	var scopes []Scope
	if len(scopeIDs) == 0 {
		scopes = c.registry.List()
	} else {
		for _, id := range scopeIDs {
			if scope, ok := c.registry.Get(id); ok {
				scopes = append(scopes, scope)
			}
		}
	}

	items := make([]prefetch.Item, 0, len(scopes))
	for _, scope := range scopes {
		items = append(items, prefetch.Item{Scope: scope, Query: scope.WarmQuery})
	}
	return c.prefetch.Warm(items)
}

// InvalidateScope drops every cached context for the scope.
func (c *Client) InvalidateScope(ctx context.Context, scopeID string) (int, error) {
	return c.engine.InvalidateScope(ctx, scopeID)
}

// ApplyConfig swaps the hot-reloadable tunables from a freshly loaded
// config. Backend selection and addresses are ignored; those require a
// restart.
func (c *Client) ApplyConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	c.engine.SetConfig(cfg.Retrieval)
	c.logger.Info("retrieval tunables updated",
		"top_k", cfg.Retrieval.TopK,
		"max_context_length", cfg.Retrieval.MaxContextLength,
	)
}

// Stats returns cache and embedding counters.
func (c *Client) Stats() Stats {
	s := Stats{
		EmbedModelCalls:  c.embedSvc.ModelCalls(),
		EmbedCacheSize:   c.embedSvc.CacheLen(),
		RegisteredScopes: len(c.registry.List()),
	}
	if c.cache != nil {
		s.Cache = c.cache.Stats()
	}
	return s
}

// Ping checks the health of the cache and the vector store.
func (c *Client) Ping(ctx context.Context) error {
	if c.cache != nil {
		if err := c.cache.Ping(ctx); err != nil {
			return ragerrors.NewCacheUnavailableError(err)
		}
	}
	if err := c.store.Ping(ctx); err != nil {
		return ragerrors.NewStoreUnavailableError(err)
	}
	return nil
}

// Close stops the prefetch scheduler and releases owned backends.
// Components passed in via options are the caller's to close.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.prefetch.Close()
		err = c.closePartial()
	})
	return err
}

func (c *Client) closePartial() error {
	var firstErr error
	if c.ownsCache && c.cache != nil {
		if cerr := c.cache.Close(); cerr != nil && firstErr == nil {
			firstErr = cerr
		}
	}
	if c.ownsStore && c.store != nil {
		if serr := c.store.Close(); serr != nil && firstErr == nil {
			firstErr = serr
		}
	}
	return firstErr
}
