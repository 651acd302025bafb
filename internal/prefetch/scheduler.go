// Package prefetch warms the context cache in the background so that the
// first real request for a popular scope is a cache hit.
package prefetch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/semaphore"

	"github.com/blueberrycongee/ragmux/internal/embedding"
	"github.com/blueberrycongee/ragmux/internal/metrics"
	"github.com/blueberrycongee/ragmux/internal/retrieval"
	"github.com/blueberrycongee/ragmux/pkg/cache"
)

// ContextWarmer is the slice of the retrieval engine the scheduler needs.
type ContextWarmer interface {
	GetContext(ctx context.Context, scope retrieval.Scope, query string, topK int) (string, cache.Status, error)
}

// Config holds the prefetch tunables.
type Config struct {
	Limit             int           `yaml:"limit"`              // scopes warmed per Warm call
	Concurrency       int64         `yaml:"concurrency"`        // simultaneous warm tasks
	SuppressionWindow time.Duration `yaml:"suppression_window"` // per-task dedup window
	Timeout           time.Duration `yaml:"timeout"`            // per-task deadline
}

// DefaultConfig returns the default prefetch configuration.
func DefaultConfig() Config {
	return Config{
		Limit:             3,
		Concurrency:       4,
		SuppressionWindow: 30 * time.Second,
		Timeout:           30 * time.Second,
	}
}

// Item is one warm task: a scope plus the query to warm it with.
type Item struct {
	Scope retrieval.Scope
	Query string
}

// Scheduler fires warm tasks in the background. Warm never blocks the
// caller: the concurrency semaphore is acquired inside the spawned
// goroutine, and a full scheduler just queues the task behind it.
// Duplicate tasks within the suppression window are dropped, so a burst of
// identical requests costs one warm.
type Scheduler struct {
	warmer   ContextWarmer
	cfg      Config
	logger   *slog.Logger
	sem      *semaphore.Weighted
	suppress *gocache.Cache

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// New builds a Scheduler.
func New(warmer ContextWarmer, cfg Config, logger *slog.Logger) *Scheduler {
	def := DefaultConfig()
	if cfg.Limit <= 0 {
		cfg.Limit = def.Limit
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.SuppressionWindow <= 0 {
		cfg.SuppressionWindow = def.SuppressionWindow
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		warmer:   warmer,
		cfg:      cfg,
		logger:   logger,
		sem:      semaphore.NewWeighted(cfg.Concurrency),
		suppress: gocache.New(cfg.SuppressionWindow, 2*cfg.SuppressionWindow),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Warm schedules background warming for the first Limit items and returns
// immediately with the number of tasks accepted. Items beyond the limit and
// items already warmed within the suppression window are skipped.
func (s *Scheduler) Warm(items []Item) int {
	if len(items) > s.cfg.Limit {
		items = items[:s.cfg.Limit]
	}

	accepted := 0
	for _, item := range items {
		if item.Scope.ID == "" || item.Query == "" {
			continue
		}

		key := item.Scope.ID + "|" + embedding.Normalize(item.Query)
		if err := s.suppress.Add(key, struct{}{}, gocache.DefaultExpiration); err != nil {
			metrics.PrefetchRuns.WithLabelValues("suppressed").Inc()
			continue
		}

		// Add and Wait must not race, so the spawn is fenced by the same
		// lock Close takes before waiting.
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			metrics.PrefetchRuns.WithLabelValues("dropped").Inc()
			break
		}
		accepted++
		s.wg.Add(1)
		s.mu.Unlock()
		go s.run(item)
	}
	return accepted
}

func (s *Scheduler) run(item Item) {
	defer s.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			metrics.PrefetchRuns.WithLabelValues("failed").Inc()
			s.logger.Error("prefetch task panicked", "scope", item.Scope.ID, "panic", r)
		}
	}()

	if err := s.sem.Acquire(s.ctx, 1); err != nil {
		metrics.PrefetchRuns.WithLabelValues("dropped").Inc()
		return
	}
	defer s.sem.Release(1)

	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.Timeout)
	defer cancel()

	_, status, err := s.warmer.GetContext(ctx, item.Scope, item.Query, 0)
	if err != nil {
		// Warming is opportunistic; failures are logged, never surfaced.
		metrics.PrefetchRuns.WithLabelValues("failed").Inc()
		s.logger.Warn("prefetch failed", "scope", item.Scope.ID, "query", item.Query, "error", err)
		return
	}

	metrics.PrefetchRuns.WithLabelValues("warmed").Inc()
	s.logger.Debug("prefetch complete", "scope", item.Scope.ID, "status", status)
}

// Close stops accepting new tasks, cancels running ones, and waits for
// every spawned goroutine to finish. Warm calls after Close reject all
// items.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()
	s.wg.Wait()
}
