// Package watch re-runs an action when source files under a root change.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/phobologic/pydependra/internal/ignore"
	"github.com/phobologic/pydependra/internal/lang"
	"github.com/phobologic/pydependra/internal/logging"
)

// maxWaitFactor bounds how long a steady stream of changes can postpone a
// run, as a multiple of the quiet period.
const maxWaitFactor = 10

// FileWatcher watches every non-ignored directory under a root and reports
// changed source files and directories.
type FileWatcher struct {
	watcher *fsnotify.Watcher
	root    string
	ignored ignore.Predicate
	changes chan string
}

// NewFileWatcher creates a watcher for root. ignored prunes directories
// and files the same way discovery does.
func NewFileWatcher(root string, ignored ignore.Predicate) (*FileWatcher, error) {
	if ignored == nil {
		ignored = ignore.None
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	return &FileWatcher{
		watcher: w,
		root:    root,
		ignored: ignored,
		changes: make(chan string, 100),
	}, nil
}

// Start adds the directory tree and processes events until ctx is done.
func (fw *FileWatcher) Start(ctx context.Context) error {
	n, err := fw.addTree(fw.root)
	if err != nil {
		_ = fw.watcher.Close()
		return err
	}
	logging.Info("watching for changes", "path", fw.root, "dirs", n)
	go fw.processEvents(ctx)
	return nil
}

// Changes returns changed paths. It is closed when the watcher stops.
func (fw *FileWatcher) Changes() <-chan string {
	return fw.changes
}

func (fw *FileWatcher) rel(path string) (string, bool) {
	r, err := filepath.Rel(fw.root, path)
	if err != nil {
		return "", false
	}
	return filepath.ToSlash(r), true
}

// addTree watches dir and every non-ignored directory below it.
func (fw *FileWatcher) addTree(dir string) (int, error) {
	count := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			logging.Debug("not watching", "path", path, "error", err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != fw.root {
			if rel, ok := fw.rel(path); ok && fw.ignored(rel, true) {
				return filepath.SkipDir
			}
		}
		if err := fw.watcher.Add(path); err != nil {
			logging.Warn("failed to watch directory", "path", path, "error", err)
			return nil
		}
		count++
		return nil
	})
	if err != nil {
		return count, fmt.Errorf("walking %s: %w", dir, err)
	}
	return count, nil
}

// relevant reports whether an event should trigger a run. New directories
// are added to the watch list as a side effect.
func (fw *FileWatcher) relevant(ev fsnotify.Event) bool {
	rel, ok := fw.rel(ev.Name)
	if !ok || rel == "." {
		return false
	}

	if ev.Has(fsnotify.Create) {
		if isDir(ev.Name) {
			if fw.ignored(rel, true) {
				return false
			}
			if _, err := fw.addTree(ev.Name); err != nil {
				logging.Warn("failed to watch new directory", "path", rel, "error", err)
			}
			return true
		}
	}

	if lang.ForExtension(filepath.Ext(ev.Name)) == "" {
		// Removing or renaming a directory drops the files below it.
		return ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename)
	}
	return !fw.ignored(rel, false)
}

func (fw *FileWatcher) processEvents(ctx context.Context) {
	defer close(fw.changes)
	defer fw.watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if ev.Has(fsnotify.Chmod) && !ev.Has(fsnotify.Write) {
				continue
			}
			if !fw.relevant(ev) {
				continue
			}
			logging.Debug("change detected", "path", ev.Name, "op", ev.Op.String())
			select {
			case fw.changes <- ev.Name:
			case <-ctx.Done():
				return
			}

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			logging.Error("watcher error", "error", err)
		}
	}
}

// Run calls fn once, then again after every debounced batch of changes
// under root, until ctx is done. Errors from fn are logged and watching
// continues. Run returns nil when ctx is canceled.
func Run(ctx context.Context, root string, ignored ignore.Predicate, quiet time.Duration, fn func(context.Context) error) error {
	if err := fn(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		logging.Error("run failed", "error", err)
	}

	fw, err := NewFileWatcher(root, ignored)
	if err != nil {
		return err
	}
	if err := fw.Start(ctx); err != nil {
		return err
	}

	deb := NewDebouncer(fw.Changes(), quiet, quiet*maxWaitFactor)
	deb.Start(ctx)

	for ev := range deb.Output() {
		if ctx.Err() != nil {
			break
		}
		logging.Info("re-running after changes", "files", len(ev.Paths))
		if err := fn(ctx); err != nil {
			if errors.Is(err, context.Canceled) && ctx.Err() != nil {
				break
			}
			logging.Error("run failed", "error", err)
		}
	}
	return nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
