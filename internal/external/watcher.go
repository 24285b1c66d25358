package external

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/fleetward/orchestrator/internal/descriptor"
)

// debounceWindow collapses bursts of filesystem events for the same file
// into one reload.
const debounceWindow = 300 * time.Millisecond

// DiffFunc is invoked once per settled reload with the descriptors added
// and removed relative to the previous snapshot. Reload diffs are delivered
// on the watcher's own goroutine, and the initial diff from Start on Start's
// caller goroutine; callers needing to touch shared state must synchronize.
type DiffFunc func(added, removed []*descriptor.Descriptor)

// Watcher watches a single external-mcps.json path and emits debounced
// (added, removed) diffs via DiffFunc.
type Watcher struct {
	path   string
	onDiff DiffFunc
	logger *log.Logger

	mu   sync.Mutex
	prev []*descriptor.Descriptor

	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
}

// NewWatcher constructs a Watcher for path. Call Start to begin watching.
func NewWatcher(path string, onDiff DiffFunc, logger *log.Logger) (*Watcher, error) {
	if logger == nil {
		logger = log.Default()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{path: path, onDiff: onDiff, logger: logger, watcher: fw}, nil
}

// Start performs an initial load (emitting an all-added diff if the file is
// non-empty) and begins watching for changes. Errors from the initial load
// are returned; later load errors are logged and the previous snapshot is
// kept.
func (w *Watcher) Start(ctx context.Context) error {
	initial, err := Load(w.path)
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.prev = initial
	w.mu.Unlock()
	if len(initial) > 0 && w.onDiff != nil {
		w.onDiff(initial, nil)
	}

	if err := w.watcher.Add(w.path); err != nil {
		w.logger.Printf("external: watch %s: %v (file may not exist yet; reload disabled until created)", w.path, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	go w.loop(ctx)
	return nil
}

// Stop terminates the watch goroutine and closes the underlying fsnotify
// watcher.
func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	_ = w.watcher.Close()
}

// Current returns the most recently loaded descriptor snapshot.
func (w *Watcher) Current() []*descriptor.Descriptor {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]*descriptor.Descriptor, len(w.prev))
	copy(out, w.prev)
	return out
}

func (w *Watcher) loop(ctx context.Context) {
	var timer *time.Timer
	var timerC <-chan time.Time

	reset := func() {
		if timer == nil {
			timer = time.NewTimer(debounceWindow)
		} else {
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(debounceWindow)
		}
		timerC = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			reset()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Printf("external: watch error: %v", err)

		case <-timerC:
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	next, err := Load(w.path)
	if err != nil {
		w.logger.Printf("external: reload %s failed, keeping previous snapshot: %v", w.path, err)
		return
	}
	w.mu.Lock()
	prev := w.prev
	w.prev = next
	w.mu.Unlock()

	added, removed := Diff(prev, next)
	if (len(added) == 0 && len(removed) == 0) || w.onDiff == nil {
		return
	}
	w.onDiff(added, removed)
}
