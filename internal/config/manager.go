package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Manager watches the config file and swaps in new tunables without a
// restart. A reload that fails to parse or validate is discarded and the
// previous config stays live.
//
// Only request-level tunables (retrieval limits, TTLs, prefetch settings)
// take effect on reload; backend selection and addresses are read once at
// startup.
type Manager struct {
	path    string
	logger  *slog.Logger
	current atomic.Pointer[Config]
	watcher *fsnotify.Watcher

	mu          sync.Mutex
	subscribers []func(*Config)

	done     chan struct{}
	stopOnce sync.Once
}

// NewManager loads the config and starts watching its directory. Watching
// the directory rather than the file keeps reloads working across the
// rename-and-replace writes that editors and configmap updates produce.
func NewManager(path string, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create config watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch config dir: %w", err)
	}

	m := &Manager{
		path:    path,
		logger:  logger,
		watcher: watcher,
		done:    make(chan struct{}),
	}
	m.current.Store(cfg)
	go m.watch()
	return m, nil
}

// Current returns the live configuration. The returned value must be
// treated as read-only.
func (m *Manager) Current() *Config {
	return m.current.Load()
}

// Subscribe registers a callback invoked after every successful reload.
func (m *Manager) Subscribe(fn func(*Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = append(m.subscribers, fn)
}

func (m *Manager) watch() {
	// Editors fire several events per save; coalesce them.
	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-m.done:
			return
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(m.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(100*time.Millisecond, m.reload)
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			m.logger.Warn("config watcher error", "error", err)
		}
	}
}

func (m *Manager) reload() {
	cfg, err := LoadFromFile(m.path)
	if err != nil {
		m.logger.Warn("config reload rejected, keeping previous config", "error", err)
		return
	}

	m.current.Store(cfg)
	m.logger.Info("config reloaded", "path", m.path)

	m.mu.Lock()
	subs := make([]func(*Config), len(m.subscribers))
	copy(subs, m.subscribers)
	m.mu.Unlock()
	for _, fn := range subs {
		fn(cfg)
	}
}

// Close stops the watcher.
func (m *Manager) Close() error {
	var err error
	m.stopOnce.Do(func() {
		close(m.done)
		err = m.watcher.Close()
	})
	return err
}
