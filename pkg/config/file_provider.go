package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const debounceDuration = 100 * time.Millisecond

// ErrWatcherClosed is returned by Reload after Close.
var ErrWatcherClosed = errors.New("config watcher closed")

// BuildFunc turns a freshly loaded configuration into the value a Watcher publishes.
type BuildFunc[T any] func(*ClientConfiguration) (T, error)

// Watcher reloads a configuration file when it changes, rebuilds it with a
// BuildFunc and publishes each successful result. A reload that fails to
// load or build keeps the previous value.
type Watcher[T any] struct {
	path   string
	build  BuildFunc[T]
	logger *slog.Logger

	mu          sync.RWMutex
	current     T
	subscribers []chan T
	closed      bool

	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewWatcher loads path, builds the initial value and starts watching for changes.
// The initial load must succeed.
func NewWatcher[T any](path string, build BuildFunc[T], logger *slog.Logger) (*Watcher[T], error) {
	if build == nil {
		return nil, errors.New("build function is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	w := &Watcher[T]{
		path:   absPath,
		build:  build,
		logger: logger,
		done:   make(chan struct{}),
	}

	if err := w.Reload(); err != nil {
		return nil, fmt.Errorf("initial config load failed: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	// Watch the directory so editors that replace the file are still observed.
	if err := fsw.Add(filepath.Dir(absPath)); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("failed to watch directory: %w", err)
	}
	w.watcher = fsw

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	go w.watchLoop(ctx)

	return w, nil
}

// Current returns the latest published value.
func (w *Watcher[T]) Current() T {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Subscribe returns a channel that receives every subsequently published value.
// The current value is delivered immediately. A slow subscriber only ever sees
// the newest value. The channel is closed by Close.
func (w *Watcher[T]) Subscribe() <-chan T {
	w.mu.Lock()
	defer w.mu.Unlock()
	ch := make(chan T, 1)
	ch <- w.current
	if w.closed {
		close(ch)
		return ch
	}
	w.subscribers = append(w.subscribers, ch)
	return ch
}

// Reload reads and rebuilds the configuration now.
func (w *Watcher[T]) Reload() error {
	cfg, err := LoadClientConfiguration(w.path)
	if err != nil {
		return err
	}
	value, err := w.build(cfg)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWatcherClosed
	}
	w.current = value
	for _, ch := range w.subscribers {
		publishLatest(ch, value)
	}
	return nil
}

func publishLatest[T any](ch chan T, value T) {
	select {
	case ch <- value:
		return
	default:
	}
	// Drop the stale value so the subscriber sees the newest one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- value:
	default:
	}
}

// Close stops watching and closes all subscriber channels.
func (w *Watcher[T]) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	for _, ch := range w.subscribers {
		close(ch)
	}
	w.subscribers = nil
	w.mu.Unlock()

	w.cancel()
	err := w.watcher.Close()
	<-w.done
	return err
}

func (w *Watcher[T]) watchLoop(ctx context.Context) {
	defer close(w.done)

	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(debounceDuration, func() {
				switch err := w.Reload(); {
				case errors.Is(err, ErrWatcherClosed):
				case err != nil:
					w.logger.Warn("config reload failed; keeping previous configuration", "path", w.path, "error", err)
				default:
					w.logger.Info("configuration reloaded", "path", w.path)
				}
			})
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", "error", err)
		}
	}
}
