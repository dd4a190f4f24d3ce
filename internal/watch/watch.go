// Package watch triggers a callback when files under a set of directories
// change, coalescing bursts of filesystem events.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is used when Options.Debounce is zero.
const DefaultDebounce = 500 * time.Millisecond

// Options configures a Watcher.
type Options struct {
	// Paths are the roots watched recursively.
	Paths []string
	// Ignore lists directory or file base names to skip, or absolute paths
	// whose subtree is skipped.
	Ignore   []string
	Debounce time.Duration
	Logger   *slog.Logger
}

// ChangeFunc receives the sorted set of paths that changed in one burst.
type ChangeFunc func(ctx context.Context, paths []string)

// Watcher watches directory trees and calls a ChangeFunc after each burst
// of events has been quiet for the debounce interval.
type Watcher struct {
	fsw      *fsnotify.Watcher
	opts     Options
	onChange ChangeFunc
	logger   *slog.Logger
	ignore   map[string]bool
	ignoreAt []string
}

// New creates a Watcher and registers every directory under opts.Paths.
func New(opts Options, onChange ChangeFunc) (*Watcher, error) {
	if onChange == nil {
		return nil, errors.New("watch: nil change callback")
	}
	if len(opts.Paths) == 0 {
		opts.Paths = []string{"."}
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	w := &Watcher{
		fsw:      fsw,
		opts:     opts,
		onChange: onChange,
		logger:   logger,
		ignore:   make(map[string]bool),
	}
	for _, ig := range opts.Ignore {
		if filepath.IsAbs(ig) {
			w.ignoreAt = append(w.ignoreAt, filepath.Clean(ig))
		} else {
			w.ignore[ig] = true
		}
	}

	for _, root := range opts.Paths {
		if err := w.addTree(root); err != nil {
			fsw.Close()
			return nil, err
		}
	}
	return w, nil
}

// Watched returns the directories currently registered.
func (w *Watcher) Watched() []string {
	list := w.fsw.WatchList()
	sort.Strings(list)
	return list
}

func (w *Watcher) ignored(path string) bool {
	if w.ignore[filepath.Base(path)] {
		return true
	}
	if len(w.ignoreAt) == 0 {
		return false
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	for _, prefix := range w.ignoreAt {
		if abs == prefix || strings.HasPrefix(abs, prefix+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return fmt.Errorf("watch %s: %w", root, err)
			}
			w.logger.Debug("skipping unreadable path", "path", path, "error", err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && w.ignored(path) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

// Run processes events until ctx is cancelled, then closes the watcher.
// The callback runs on the Run goroutine, so events arriving while it runs
// are delivered in the next burst.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	pending := make(map[string]struct{})
	timer := time.NewTimer(w.opts.Debounce)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if w.ignored(ev.Name) {
				continue
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := w.addTree(ev.Name); err != nil {
						w.logger.Warn("watching new directory failed", "path", ev.Name, "error", err)
					}
				}
			}
			if ev.Op == fsnotify.Chmod {
				continue
			}
			pending[ev.Name] = struct{}{}
			timer.Reset(w.opts.Debounce)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", "error", err)

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

			w.logger.Debug("change detected", "paths", len(paths))
			w.onChange(ctx, paths)
		}
	}
}
