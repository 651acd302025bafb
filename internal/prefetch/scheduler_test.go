package prefetch

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blueberrycongee/ragmux/internal/retrieval"
	"github.com/blueberrycongee/ragmux/pkg/cache"
)

// fakeWarmer records warm calls; an optional gate blocks them.
type fakeWarmer struct {
	mu       sync.Mutex
	calls    []string
	gate     chan struct{}
	inUse    atomic.Int64
	maxInUse atomic.Int64
	panicOn  string
}

func (w *fakeWarmer) GetContext(ctx context.Context, scope retrieval.Scope, query string, _ int) (string, cache.Status, error) {
	cur := w.inUse.Add(1)
	defer w.inUse.Add(-1)
	for {
		peak := w.maxInUse.Load()
		if cur <= peak || w.maxInUse.CompareAndSwap(peak, cur) {
			break
		}
	}

	if scope.ID == w.panicOn {
		panic("boom")
	}
	if w.gate != nil {
		select {
		case <-w.gate:
		case <-ctx.Done():
			return "", cache.StatusBypass, ctx.Err()
		}
	}

	w.mu.Lock()
	w.calls = append(w.calls, scope.ID)
	w.mu.Unlock()
	return "warmed", cache.StatusMiss, nil
}

func (w *fakeWarmer) callCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.calls)
}

func items(ids ...string) []Item {
	out := make([]Item, len(ids))
	for i, id := range ids {
		out[i] = Item{Scope: retrieval.Scope{ID: id, DocumentIDs: []string{id}}, Query: id}
	}
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestWarmLimitsToFirstN(t *testing.T) {
	w := &fakeWarmer{}
	s := New(w, Config{Limit: 3}, nil)
	defer s.Close()

	accepted := s.Warm(items("a", "b", "c", "d", "e"))
	assert.Equal(t, 3, accepted)

	waitFor(t, func() bool { return w.callCount() == 3 })
	w.mu.Lock()
	defer w.mu.Unlock()
	assert.ElementsMatch(t, []string{"a", "b", "c"}, w.calls)
}

func TestWarmSuppressesDuplicates(t *testing.T) {
	w := &fakeWarmer{}
	s := New(w, Config{Limit: 3, SuppressionWindow: 40 * time.Millisecond}, nil)
	defer s.Close()

	require.Equal(t, 2, s.Warm(items("a", "b")))
	assert.Equal(t, 0, s.Warm(items("a", "b")))

	waitFor(t, func() bool { return w.callCount() == 2 })

	// After the window the same scopes warm again.
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 2, s.Warm(items("a", "b")))
	waitFor(t, func() bool { return w.callCount() == 4 })
}

func TestWarmDoesNotBlockCaller(t *testing.T) {
	w := &fakeWarmer{gate: make(chan struct{})}
	s := New(w, Config{Limit: 10, Concurrency: 1}, nil)
	defer s.Close()

	start := time.Now()
	accepted := s.Warm(items("a", "b", "c"))
	elapsed := time.Since(start)

	// All tasks queue behind a single semaphore slot and a blocked warmer,
	// yet Warm returns immediately.
	assert.Equal(t, 3, accepted)
	assert.Less(t, elapsed, 100*time.Millisecond)

	close(w.gate)
	waitFor(t, func() bool { return w.callCount() == 3 })
}

func TestWarmConcurrencyBound(t *testing.T) {
	w := &fakeWarmer{gate: make(chan struct{})}
	s := New(w, Config{Limit: 10, Concurrency: 2}, nil)
	defer s.Close()

	s.Warm(items("a", "b", "c", "d"))
	waitFor(t, func() bool { return w.inUse.Load() == 2 })

	close(w.gate)
	waitFor(t, func() bool { return w.callCount() == 4 })
	assert.LessOrEqual(t, w.maxInUse.Load(), int64(2))
}

func TestCloseCancelsPendingTasks(t *testing.T) {
	w := &fakeWarmer{gate: make(chan struct{})}
	s := New(w, Config{Limit: 10, Concurrency: 1}, nil)

	s.Warm(items("a", "b", "c"))
	waitFor(t, func() bool { return w.inUse.Load() == 1 })

	done := make(chan struct{})
	go func() {
		s.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}

	// Nothing completed: the running task was cancelled mid-gate and the
	// queued ones never acquired the semaphore.
	assert.Equal(t, 0, w.callCount())
}

func TestWarmRecoversFromPanic(t *testing.T) {
	w := &fakeWarmer{panicOn: "bad"}
	s := New(w, Config{Limit: 3}, nil)

	s.Warm(items("bad", "good"))
	waitFor(t, func() bool { return w.callCount() == 1 })
	s.Close()

	w.mu.Lock()
	defer w.mu.Unlock()
	assert.Equal(t, []string{"good"}, w.calls)
}

func TestWarmAfterCloseIsRejected(t *testing.T) {
	w := &fakeWarmer{}
	s := New(w, Config{Limit: 5}, nil)
	s.Close()

	accepted := s.Warm(items("a", "b"))
	assert.Equal(t, 0, accepted)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, w.callCount())
}

func TestWarmSkipsEmptyItems(t *testing.T) {
	w := &fakeWarmer{}
	s := New(w, Config{Limit: 5}, nil)
	defer s.Close()

	accepted := s.Warm([]Item{
		{Scope: retrieval.Scope{ID: ""}, Query: "q"},
		{Scope: retrieval.Scope{ID: "a"}, Query: ""},
		{Scope: retrieval.Scope{ID: "a"}, Query: "q"},
	})
	assert.Equal(t, 1, accepted)
	waitFor(t, func() bool { return w.callCount() == 1 })
}
