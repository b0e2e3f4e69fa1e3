package core

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long a watcher waits for changes to settle.
const DefaultDebounce = 300 * time.Millisecond

// Watcher reports changed agent sources and overlays in batches.
type Watcher struct {
	fs       *fsnotify.Watcher
	debounce time.Duration
	logger   Logger
}

// NewWatcher watches every directory under roots, recursively. Missing roots
// are ignored.
func NewWatcher(roots []string, debounce time.Duration, logger Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	w := &Watcher{fs: fw, debounce: debounce, logger: loggerOrNop(logger)}
	if w.debounce <= 0 {
		w.debounce = DefaultDebounce
	}
	for _, root := range roots {
		if !dirExists(root) {
			continue
		}
		if err := w.addTree(root); err != nil {
			_ = fw.Close()
			return nil, err
		}
	}
	return w, nil
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && (strings.HasPrefix(d.Name(), ".") || d.Name() == "node_modules") {
			return filepath.SkipDir
		}
		if err := w.fs.Add(path); err != nil {
			w.logger.Warn(fmt.Sprintf("cannot watch %s: %v", path, err))
		}
		return nil
	})
}

// Close stops watching.
func (w *Watcher) Close() error { return w.fs.Close() }

// Run calls onChange with the sorted set of changed files each time changes
// settle. It returns when ctx is done.
func (w *Watcher) Run(ctx context.Context, onChange func(paths []string)) error {
	pending := make(map[string]bool)
	timer := time.NewTimer(w.debounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if event.Op&fsnotify.Create != 0 && dirExists(event.Name) {
				if err := w.addTree(event.Name); err != nil {
					w.logger.Warn(fmt.Sprintf("cannot watch %s: %v", event.Name, err))
				}
				continue
			}
			if !IsAgentInput(event.Name) {
				continue
			}
			pending[event.Name] = true
			timer.Reset(w.debounce)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn(fmt.Sprintf("watcher: %v", err))

		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}
			sort.Strings(paths)
			clear(pending)
			onChange(paths)
		}
	}
}

// IsAgentInput reports whether path is a file agent compilation reads.
func IsAgentInput(path string) bool {
	name := filepath.Base(path)
	return strings.HasSuffix(name, ".agent.yaml") || strings.HasSuffix(name, ".customize.yaml")
}
