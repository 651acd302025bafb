// Package retrieval implements cache-aside context retrieval over the
// embedding service and the vector store.
package retrieval

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	intcache "github.com/blueberrycongee/ragmux/internal/cache"
	"github.com/blueberrycongee/ragmux/internal/embedding"
	"github.com/blueberrycongee/ragmux/internal/metrics"
	"github.com/blueberrycongee/ragmux/internal/vectorstore"
	"github.com/blueberrycongee/ragmux/pkg/cache"
	ragerrors "github.com/blueberrycongee/ragmux/pkg/errors"
)

// Config holds the retrieval tunables.
type Config struct {
	TopK             int           `yaml:"top_k"`
	MaxContextLength int           `yaml:"max_context_length"` // characters, whole chunks only
	Separator        string        `yaml:"separator"`
	ContextTTL       time.Duration `yaml:"context_ttl"`
	ArtifactTTL      time.Duration `yaml:"artifact_ttl"`
	StoreRetries     int           `yaml:"store_retries"`
}

// DefaultConfig returns the default retrieval configuration.
func DefaultConfig() Config {
	return Config{
		TopK:             5,
		MaxContextLength: 8000,
		Separator:        "\n\n",
		ContextTTL:       24 * time.Hour,
		ArtifactTTL:      time.Hour,
		StoreRetries:     2,
	}
}

// Engine answers context queries. Assembled contexts are cached by their
// logical inputs, so two identical queries against the same scope share
// one embedding call and one vector search.
type Engine struct {
	embedder *embedding.Service
	store    vectorstore.Store
	cache    cache.Cache
	keys     *intcache.KeyGenerator
	cfg      atomic.Pointer[Config]
	logger   *slog.Logger
}

// New builds an Engine. The cache may be nil, in which case every request
// goes to the store.
func New(embedder *embedding.Service, store vectorstore.Store, c cache.Cache, cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		embedder: embedder,
		store:    store,
		cache:    c,
		keys:     intcache.NewKeyGenerator(""),
		logger:   logger,
	}
	e.SetConfig(cfg)
	return e
}

// SetConfig swaps the retrieval tunables. Safe to call while requests are
// in flight; each request works from one consistent snapshot. Changed
// limits alter cache keys, so old entries simply age out.
func (e *Engine) SetConfig(cfg Config) {
	def := DefaultConfig()
	if cfg.TopK <= 0 {
		cfg.TopK = def.TopK
	}
	if cfg.MaxContextLength <= 0 {
		cfg.MaxContextLength = def.MaxContextLength
	}
	if cfg.Separator == "" {
		cfg.Separator = def.Separator
	}
	if cfg.ContextTTL <= 0 {
		cfg.ContextTTL = def.ContextTTL
	}
	if cfg.ArtifactTTL <= 0 {
		cfg.ArtifactTTL = def.ArtifactTTL
	}
	if cfg.StoreRetries < 0 {
		cfg.StoreRetries = 0
	}
	e.cfg.Store(&cfg)
}

func (e *Engine) config() Config {
	return *e.cfg.Load()
}

// GetContext returns the concatenated context for a query within a scope,
// along with the cache outcome. topK <= 0 uses the configured default.
//
// The cache key covers every input that shapes the result: the normalized
// query, the scope, topK, the length limit, the separator, and the
// embedding model. Empty contexts are never cached, so documents indexed
// later become visible on the next request.
func (e *Engine) GetContext(ctx context.Context, scope Scope, query string, topK int) (string, cache.Status, error) {
	if strings.TrimSpace(query) == "" {
		return "", cache.StatusBypass, ragerrors.NewInvalidArgumentError("retrieval", "query must not be empty")
	}
	if scope.ID == "" {
		return "", cache.StatusBypass, ragerrors.NewInvalidArgumentError("retrieval", "scope id must not be empty")
	}
	cfg := e.config()
	if topK <= 0 {
		topK = cfg.TopK
	}

	key := e.keys.Generate(e.contextNamespace(scope.ID), map[string]string{
		"query":     embedding.Normalize(query),
		"top_k":     strconv.Itoa(topK),
		"max_len":   strconv.Itoa(cfg.MaxContextLength),
		"separator": cfg.Separator,
		"model":     e.embedder.Model(),
	})

	text, status, err := intcache.GetOrCompute(ctx, e.cache, e.logger, key, cfg.ContextTTL,
		func(ctx context.Context) (string, error) {
			return e.buildContext(ctx, cfg, scope, query, topK)
		},
		func(text string) bool { return text != "" },
	)
	metrics.ContextRequests.WithLabelValues(string(status)).Inc()
	if err != nil {
		return "", status, err
	}

	e.logger.Debug("context retrieved",
		"scope", scope.ID,
		"status", status,
		"length", len(text),
	)
	return text, status, nil
}

func (e *Engine) buildContext(ctx context.Context, cfg Config, scope Scope, query string, topK int) (string, error) {
	// An empty scope has a known answer; don't touch the model for it.
	if len(scope.DocumentIDs) == 0 {
		return "", nil
	}

	if err := e.embedder.EnsureReady(ctx); err != nil {
		return "", err
	}

	vector, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return "", err
	}

	results, err := e.searchWithRetry(ctx, cfg, scope.DocumentIDs, vector, topK)
	if err != nil {
		return "", err
	}

	return assemble(results, cfg.Separator, cfg.MaxContextLength), nil
}

// searchWithRetry retries transient store failures a bounded number of
// times. Non-retryable errors surface immediately.
func (e *Engine) searchWithRetry(ctx context.Context, cfg Config, documentIDs []string, vector []float32, topK int) ([]vectorstore.Result, error) {
	var lastErr error
	for attempt := 0; attempt <= cfg.StoreRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * 100 * time.Millisecond):
			}
			e.logger.Warn("retrying vector search", "attempt", attempt, "error", lastErr)
		}

		start := time.Now()
		results, err := e.store.Search(ctx, documentIDs, vector, topK)
		metrics.SearchDuration.WithLabelValues(storeBackend(e.store)).Observe(time.Since(start).Seconds())
		if err == nil {
			return results, nil
		}
		if !ragerrors.IsRetryable(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// assemble concatenates chunk texts in result order, separator between
// chunks, and stops before the first chunk that would push the total past
// the length limit. Chunks are never truncated mid-text.
func assemble(results []vectorstore.Result, separator string, maxLength int) string {
	var sb strings.Builder
	for _, r := range results {
		if r.Chunk.Text == "" {
			continue
		}
		added := len(r.Chunk.Text)
		if sb.Len() > 0 {
			added += len(separator)
		}
		if sb.Len()+added > maxLength {
			break
		}
		if sb.Len() > 0 {
			sb.WriteString(separator)
		}
		sb.WriteString(r.Chunk.Text)
	}
	return sb.String()
}

// InvalidateScope drops every cached context for the scope. Called after
// the scope's documents change.
func (e *Engine) InvalidateScope(ctx context.Context, scopeID string) (int, error) {
	if e.cache == nil {
		return 0, nil
	}
	n, err := e.cache.DeleteMatching(ctx, e.keys.NamespacePrefix(e.contextNamespace(scopeID)))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		e.logger.Info("invalidated cached contexts", "scope", scopeID, "entries", n)
	}
	return n, nil
}

// contextNamespace keys every context entry under its scope so that
// invalidation is a single prefix delete. The scope ID is hashed to a
// fixed width: a raw ID would make the prefix for scope "a" also match
// scope "a:b", and IDs may carry glob metacharacters the cache backend
// would misread.
func (e *Engine) contextNamespace(scopeID string) string {
	sum := sha256.Sum256([]byte(scopeID))
	return "context:" + hex.EncodeToString(sum[:8])
}

func storeBackend(s vectorstore.Store) string {
	switch s.(type) {
	case *vectorstore.Postgres:
		return "postgres"
	case *vectorstore.Memory:
		return "memory"
	default:
		return "other"
	}
}
