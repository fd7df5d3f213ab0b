package main

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"

	"pkt.systems/pslog"
)

const watchDebounce = 150 * time.Millisecond

// fileWatcher reports changes to a fixed set of files. It watches their
// directories so editors that replace files by rename are still seen.
type fileWatcher struct {
	watcher *fsnotify.Watcher
	targets map[string]struct{}
	logger  pslog.Logger
}

func newFileWatcher(files []string, logger pslog.Logger) (*fileWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}
	fw := &fileWatcher{watcher: w, targets: make(map[string]struct{}), logger: logger}
	dirs := make(map[string]struct{})
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			w.Close()
			return nil, fmt.Errorf("watch %s: %w", f, err)
		}
		fw.targets[abs] = struct{}{}
		dirs[filepath.Dir(abs)] = struct{}{}
	}
	for dir := range dirs {
		if err := w.Add(dir); err != nil {
			w.Close()
			return nil, fmt.Errorf("watch %s: %w", dir, err)
		}
	}
	return fw, nil
}

func (fw *fileWatcher) Close() error {
	return fw.watcher.Close()
}

// Loop calls fn for each changed file, coalescing bursts of events, until ctx
// is done or the watcher is closed.
func (fw *fileWatcher) Loop(ctx context.Context, fn func(path string)) error {
	dirty := make(map[string]struct{})
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			path := filepath.Clean(ev.Name)
			if _, ok := fw.targets[path]; !ok {
				continue
			}
			dirty[path] = struct{}{}
			fire = time.After(watchDebounce)
		case <-fire:
			fire = nil
			paths := make([]string, 0, len(dirty))
			for p := range dirty {
				paths = append(paths, p)
			}
			clear(dirty)
			sort.Strings(paths)
			for _, p := range paths {
				fn(p)
			}
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return nil
			}
			fw.logger.Warn("cli.watch.error", "error", err)
		}
	}
}
