package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blueberrycongee/ragmux/internal/metrics"
	ragerrors "github.com/blueberrycongee/ragmux/pkg/errors"
)

// Service is the process-wide embedding service. It owns the model handle
// for the process lifetime, memoizes single-text embeddings in a bounded
// LRU cache, and partitions bulk work into fixed-size batches.
//
// The model is loaded lazily: the first caller of EnsureReady (or any embed
// operation) triggers a probe that runs detached from that caller's context,
// so a cancelled or timed-out first request cannot poison the load for the
// rest of the process. Concurrent callers wait for the in-flight probe but
// release that wait as soon as their own context is done. A probe that the
// model itself fails is recorded as a fatal ModelLoadError for this and
// every later caller; a probe that merely ran out of time is retried by the
// next caller. Construct exactly one Service per process and pass it by
// reference; it is safe for concurrent use.
type Service struct {
	embedder Embedder
	cache    *vectorLRU
	logger   *slog.Logger

	batchSize   int
	loadTimeout time.Duration

	mu      sync.Mutex
	ready   bool
	loadErr error
	loading *loadAttempt

	// modelCalls counts actual model invocations (cache misses and batch
	// calls). Tests use it to observe cache effectiveness.
	modelCalls atomic.Int64
}

// loadAttempt is one in-flight model probe. err is set before done closes.
type loadAttempt struct {
	done chan struct{}
	err  error
}

// ServiceConfig holds configuration for the embedding Service.
type ServiceConfig struct {
	// BatchSize is the fixed partition size for EmbedBatch (default: 32).
	// Smaller batches reduce peak memory at the cost of per-call overhead.
	BatchSize int
	// CacheCapacity bounds the in-process text->vector cache (default: 5000).
	CacheCapacity int
	// LoadTimeout bounds the model load probe (default: 30s). A probe that
	// exceeds it fails that attempt only; the next caller retries.
	LoadTimeout time.Duration
	Logger      *slog.Logger
}

// DefaultServiceConfig returns sensible defaults.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		BatchSize:     32,
		CacheCapacity: 5000,
		LoadTimeout:   30 * time.Second,
	}
}

// NewService creates the embedding service around the given embedder.
// The model is not loaded until first use.
func NewService(embedder Embedder, cfg ServiceConfig) *Service {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	if cfg.CacheCapacity <= 0 {
		cfg.CacheCapacity = 5000
	}
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Service{
		embedder:    embedder,
		cache:       newVectorLRU(cfg.CacheCapacity),
		logger:      cfg.Logger,
		batchSize:   cfg.BatchSize,
		loadTimeout: cfg.LoadTimeout,
	}
}

// EnsureReady performs idempotent model initialization. The first caller
// starts a probe with a minimal inference call; concurrent callers wait for
// it, or return ctx.Err() once their own context is done while the probe
// keeps running. A model failure is recorded and returned as a fatal
// ModelLoadError to this and every later caller; a probe that hit the load
// timeout fails only the callers waiting on it and the next caller retries.
func (s *Service) EnsureReady(ctx context.Context) error {
	s.mu.Lock()
	if s.ready {
		s.mu.Unlock()
		return nil
	}
	if s.loadErr != nil {
		err := s.loadErr
		s.mu.Unlock()
		return err
	}
	attempt := s.loading
	if attempt == nil {
		attempt = &loadAttempt{done: make(chan struct{})}
		s.loading = attempt
		go s.load(context.WithoutCancel(ctx), attempt)
	}
	s.mu.Unlock()

	select {
	case <-attempt.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return nil
	}
	return attempt.err
}

// load probes the model once. It runs detached from the triggering caller's
// cancellation, bounded only by the service's own load timeout.
func (s *Service) load(ctx context.Context, attempt *loadAttempt) {
	ctx, cancel := context.WithTimeout(ctx, s.loadTimeout)
	defer cancel()

	s.logger.Info("loading embedding model", "model", s.embedder.Model(), "dimension", s.embedder.Dimension())
	vec, err := s.embedder.Embed(ctx, "ready")

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = nil

	switch {
	case err != nil:
		attempt.err = ragerrors.NewModelLoadError(s.embedder.Model(), err)
		if !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
			s.loadErr = attempt.err
		}
		s.logger.Error("embedding model failed to load", "model", s.embedder.Model(), "error", err)
	case len(vec) != s.embedder.Dimension():
		attempt.err = ragerrors.NewModelLoadError(s.embedder.Model(),
			fmt.Errorf("model returned dimension %d, configured dimension is %d", len(vec), s.embedder.Dimension()))
		s.loadErr = attempt.err
	default:
		s.ready = true
		s.modelCalls.Add(1)
		s.logger.Info("embedding model ready", "model", s.embedder.Model())
	}
	close(attempt.done)
}

// Embed returns the embedding vector for text, consulting the in-process
// cache by normalized text first. Deterministic for identical input.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := s.EnsureReady(ctx); err != nil {
		return nil, err
	}

	key := Normalize(text)
	if vec, ok := s.cache.get(key); ok {
		return vec, nil
	}

	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	s.modelCalls.Add(1)
	metrics.EmbedModelCalls.Inc()

	s.cache.put(key, vec)
	return vec, nil
}

// EmbedBatch embeds texts in fixed-size partitions, one model call per
// partition, preserving input order. It bypasses the LRU cache: ingestion
// chunks are rarely repeated, and caching them would evict query entries.
// batchSize <= 0 uses the configured default.
func (s *Service) EmbedBatch(ctx context.Context, texts []string, batchSize int) ([][]float32, error) {
	if err := s.EnsureReady(ctx); err != nil {
		return nil, err
	}
	if len(texts) == 0 {
		return nil, nil
	}
	if batchSize <= 0 {
		batchSize = s.batchSize
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += batchSize {
		end := min(start+batchSize, len(texts))

		vecs, err := s.embedder.EmbedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		s.modelCalls.Add(1)

		out = append(out, vecs...)
	}

	return out, nil
}

// Dimension returns the embedding dimension of the underlying model.
func (s *Service) Dimension() int {
	return s.embedder.Dimension()
}

// Model returns the underlying model name.
func (s *Service) Model() string {
	return s.embedder.Model()
}

// ModelCalls returns the number of actual model invocations so far.
func (s *Service) ModelCalls() int64 {
	return s.modelCalls.Load()
}

// CacheLen returns the number of entries in the embedding cache.
func (s *Service) CacheLen() int {
	return s.cache.len()
}

// Normalize canonicalizes text for cache keying: trimmed, lower-cased,
// inner whitespace collapsed. Two queries differing only in spacing or case
// share one cache entry.
func Normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}
