package yamldir

import (
	"context"
	"fmt"
	"time"

	"github.com/formflow/formflow/log/logkeys"

	"github.com/fsnotify/fsnotify"
	"github.com/micromdm/nanolib/log"
)

const DefaultDebounce = 250 * time.Millisecond

// Watcher reloads a YAMLDir when its definition files change.
type Watcher struct {
	dir      *YAMLDir
	logger   log.Logger
	debounce time.Duration
	onReload func(error)
}

type WatcherOption func(*Watcher)

func WithLogger(logger log.Logger) WatcherOption {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// WithDebounce sets how long the watcher waits for changes to settle.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.debounce = d
	}
}

// WithReloadCallback calls f with the result of every reload.
func WithReloadCallback(f func(error)) WatcherOption {
	return func(w *Watcher) {
		w.onReload = f
	}
}

func NewWatcher(dir *YAMLDir, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		dir:      dir,
		logger:   log.NopLogger,
		debounce: DefaultDebounce,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Watcher) reload() {
	err := w.dir.Load()
	if err != nil {
		w.logger.Info(logkeys.Message, "reloading definitions", logkeys.Error, err)
	} else {
		w.logger.Debug(logkeys.Message, "reloaded definitions", "path", w.dir.Path())
	}
	if w.onReload != nil {
		w.onReload(err)
	}
}

// Run watches the definition directory until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer fsw.Close()
	if err = fsw.Add(w.dir.Path()); err != nil {
		return fmt.Errorf("watching %s: %w", w.dir.Path(), err)
	}
	w.logger.Debug(logkeys.Message, "watching definitions", "path", w.dir.Path())

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Info(logkeys.Message, "watching definitions", logkeys.Error, err)
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.AfterFunc(w.debounce, w.reload)
			} else {
				timer.Reset(w.debounce)
			}
		}
	}
}
