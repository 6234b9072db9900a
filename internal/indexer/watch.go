package indexer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/VioletCranberry/coco-search/internal/storage"
)

// DefaultDebounce is how long the watcher waits for the tree to go
// quiet before submitting accumulated changes.
const DefaultDebounce = 500 * time.Millisecond

// WatchOptions tunes Watch.
type WatchOptions struct {
	Submit   SubmitOptions
	Debounce time.Duration
}

// Watch keeps the index current: it watches the tree for changes and
// submits modified files after a debounce window. Deleted files are
// purged from the ledger. Watch blocks until ctx is canceled.
func (idx *Indexer) Watch(ctx context.Context, opts WatchOptions) error {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	root, err := filepath.Abs(opts.Submit.Root)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	if err := addWatchTree(watcher, root); err != nil {
		return err
	}

	index, err := idx.store.GetIndex(ctx, opts.Submit.IndexName)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	changed := make(map[string]bool)
	removed := make(map[string]bool)
	var timer *time.Timer
	var timerC <-chan time.Time

	flush := func() error {
		if len(removed) > 0 && index != nil {
			for path := range removed {
				err := idx.store.DeleteFile(ctx, index.ID, path)
				if err != nil && !errors.Is(err, storage.ErrNotFound) {
					return err
				}
			}
		}
		if len(changed) > 0 {
			paths := make([]string, 0, len(changed))
			for path := range changed {
				paths = append(paths, path)
			}
			submit := opts.Submit
			submit.Paths = paths
			if _, err := idx.Submit(ctx, submit); err != nil {
				return err
			}
			if index == nil {
				index, err = idx.store.GetIndex(ctx, opts.Submit.IndexName)
				if err != nil {
					return err
				}
			}
		}
		changed = make(map[string]bool)
		removed = make(map[string]bool)
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			rel, err := filepath.Rel(root, event.Name)
			if err != nil || strings.HasPrefix(rel, "..") {
				continue
			}
			rel = filepath.ToSlash(rel)

			if event.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = addWatchTree(watcher, event.Name)
					continue
				}
			}
			if idx.registry.LookupPath(event.Name) == nil {
				continue
			}

			switch {
			case event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename):
				removed[rel] = true
				delete(changed, rel)
			case event.Op.Has(fsnotify.Create) || event.Op.Has(fsnotify.Write):
				changed[rel] = true
				delete(removed, rel)
			default:
				continue
			}

			if timer == nil {
				timer = time.NewTimer(opts.Debounce)
				timerC = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(opts.Debounce)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			idx.log.Warn().Err(err).Msg("watch error")

		case <-timerC:
			timer = nil
			timerC = nil
			if err := flush(); err != nil {
				return err
			}
		}
	}
}

// addWatchTree registers root and all non-skipped subdirectories.
func addWatchTree(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		name := d.Name()
		if path != root && (skipDirs[name] || strings.HasPrefix(name, ".")) {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
}
