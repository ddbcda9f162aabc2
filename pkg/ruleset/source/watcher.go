package source

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches a ruleset directory and re-syncs on changes.
// Filesystem events are debounced so an editor writing temp files and
// renaming does not trigger a sync per event.
type Watcher struct {
	dir      string
	syncer   *Syncer
	debounce time.Duration
	logger   *slog.Logger

	watcher *fsnotify.Watcher

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// WatcherConfig configures the ruleset directory watcher.
type WatcherConfig struct {
	// Dir is the directory holding ruleset definition files.
	Dir string

	// DebounceInterval is how long to wait after the last event before
	// syncing. Default: 250ms
	DebounceInterval time.Duration
}

// NewWatcher creates a watcher that drives the given syncer.
func NewWatcher(cfg WatcherConfig, syncer *Syncer, logger *slog.Logger) (*Watcher, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("watch dir cannot be empty")
	}
	if cfg.DebounceInterval == 0 {
		cfg.DebounceInterval = 250 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &Watcher{
		dir:      cfg.Dir,
		syncer:   syncer,
		debounce: cfg.DebounceInterval,
		logger:   logger.With("component", "ruleset.watcher"),
		watcher:  fw,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start begins watching. It returns after the initial sync; the event loop
// runs until Stop is called or ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher already running")
	}
	w.running = true
	w.mu.Unlock()

	if err := w.watcher.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}

	if n, err := w.syncer.SyncDir(ctx, w.dir); err != nil {
		return fmt.Errorf("initial sync: %w", err)
	} else if n > 0 {
		w.logger.Info("initial ruleset sync applied versions", "count", n)
	}

	go w.loop(ctx)
	return nil
}

// Stop stops the watcher and waits for the event loop to exit.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	return w.watcher.Close()
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.doneCh)

	var timer *time.Timer
	var timerCh <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !relevant(event) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerCh = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
		case <-timerCh:
			timer = nil
			timerCh = nil
			if n, err := w.syncer.SyncDir(ctx, w.dir); err != nil {
				w.logger.Error("ruleset re-sync failed", "error", err)
			} else if n > 0 {
				w.logger.Info("ruleset re-sync applied versions", "count", n)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watch error", "error", err)
		}
	}
}

func relevant(event fsnotify.Event) bool {
	if !isRulesetFile(filepath.Base(event.Name)) {
		return false
	}
	return event.Op.Has(fsnotify.Write) || event.Op.Has(fsnotify.Create) ||
		event.Op.Has(fsnotify.Rename) || event.Op.Has(fsnotify.Remove)
}
