package resource

import (
	"path/filepath"
	"sort"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher collects file changes under the watched directories. Events arrive on
// a background goroutine and are handed to the render thread through Drain.
type Watcher struct {
	w       *fsnotify.Watcher
	log     *zap.Logger
	mu      sync.Mutex
	changed map[string]struct{}
	done    chan struct{}
}

// NewWatcher watches the directories containing paths. Directories are watched
// rather than files so editors that replace files on save are still seen.
func NewWatcher(log *zap.Logger, paths ...string) (*Watcher, error) {
	if log == nil {
		log = zap.NewNop()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{w: fw, log: log, changed: make(map[string]struct{}), done: make(chan struct{})}
	seen := make(map[string]bool)
	for _, p := range paths {
		dir := filepath.Dir(p)
		if seen[dir] {
			continue
		}
		seen[dir] = true
		if err := fw.Add(dir); err != nil {
			fw.Close()
			return nil, err
		}
	}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	defer close(w.done)
	for {
		select {
		case ev, ok := <-w.w.Events:
			if !ok {
				return
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
				w.mu.Lock()
				w.changed[filepath.Clean(ev.Name)] = struct{}{}
				w.mu.Unlock()
			}
		case err, ok := <-w.w.Errors:
			if !ok {
				return
			}
			w.log.Warn("file watcher", zap.Error(err))
		}
	}
}

// Drain returns the paths changed since the previous call, sorted.
func (w *Watcher) Drain() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.changed) == 0 {
		return nil
	}
	out := make([]string, 0, len(w.changed))
	for p := range w.changed {
		out = append(out, p)
	}
	w.changed = make(map[string]struct{})
	sort.Strings(out)
	return out
}

func (w *Watcher) Close() error {
	err := w.w.Close()
	<-w.done
	return err
}
