package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Change reports that a watched file was written, replaced or removed.
type Change struct {
	Path string
	Op   fsnotify.Op
}

// Watch reports changes to paths until ctx is done. The parent directories
// are watched so editors that replace files atomically are still seen.
// Bursts of events for the same file within debounce collapse into one.
func Watch(ctx context.Context, debounce time.Duration, paths ...string) (<-chan Change, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	wanted := make(map[string]bool, len(paths))
	dirs := make(map[string]bool)
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			w.Close()
			return nil, err
		}
		wanted[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	for dir := range dirs {
		if err := w.Add(dir); err != nil {
			w.Close()
			return nil, fmt.Errorf("watch %s: %w", dir, err)
		}
	}

	out := make(chan Change)
	go func() {
		defer close(out)
		defer w.Close()
		last := make(map[string]time.Time)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if !wanted[ev.Name] || ev.Op == fsnotify.Chmod {
					continue
				}
				now := time.Now()
				if t, seen := last[ev.Name]; seen && now.Sub(t) < debounce {
					continue
				}
				last[ev.Name] = now
				select {
				case out <- Change{Path: ev.Name, Op: ev.Op}:
				case <-ctx.Done():
					return
				}
			case _, ok := <-w.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return out, nil
}
