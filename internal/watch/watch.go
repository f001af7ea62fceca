// Package watch records Human checkpoints while the developer edits, so
// hand-written work between agent runs keeps its author.
package watch

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jensroland/git-aitrack/internal/logging"
)

// Recorder checkpoints the given repository-relative paths.
type Recorder func(ctx context.Context, paths []string) error

// Watcher watches a working tree and calls its Recorder once edits have
// been quiet for the debounce interval.
type Watcher struct {
	root     string
	debounce time.Duration
	record   Recorder
	Logger   *slog.Logger

	ready chan struct{}
}

// New returns a watcher for the working tree at root.
func New(root string, debounce time.Duration, record Recorder) *Watcher {
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	return &Watcher{
		root:     root,
		debounce: debounce,
		record:   record,
		Logger:   logging.Discard(),
		ready:    make(chan struct{}),
	}
}

// Run watches until ctx is done. Edits still pending at that point are
// recorded before Run returns.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := w.addTree(fw, w.root); err != nil {
		return err
	}
	close(w.ready)

	pending := make(map[string]struct{})
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			w.flush(context.WithoutCancel(ctx), pending)
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			rel, ok := w.relevant(ev.Name)
			if !ok {
				continue
			}
			if ev.Op&fsnotify.Create != 0 {
				// new directories need their own watch
				if err := w.addTree(fw, ev.Name); err != nil {
					w.Logger.Debug("watch new path", "path", rel, "error", err)
				}
			}
			pending[rel] = struct{}{}
			timer.Reset(w.debounce)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.Logger.Warn("watch error", "error", err)

		case <-timer.C:
			w.flush(ctx, pending)
		}
	}
}

func (w *Watcher) flush(ctx context.Context, pending map[string]struct{}) {
	if len(pending) == 0 {
		return
	}
	paths := make([]string, 0, len(pending))
	for p := range pending {
		paths = append(paths, p)
		delete(pending, p)
	}
	sort.Strings(paths)
	if err := w.record(ctx, paths); err != nil {
		w.Logger.Warn("watch checkpoint failed", "paths", paths, "error", err)
	}
}

// relevant maps an event path to a repository-relative path, rejecting
// anything inside .git.
func (w *Watcher) relevant(name string) (string, bool) {
	rel, err := filepath.Rel(w.root, name)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	if rel == ".git" || strings.HasPrefix(rel, ".git/") {
		return "", false
	}
	return rel, true
}

// addTree watches dir and every directory below it except .git. A path that
// is not a directory is ignored.
func (w *Watcher) addTree(fw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if d.Name() == ".git" {
			return filepath.SkipDir
		}
		return fw.Add(path)
	})
}
