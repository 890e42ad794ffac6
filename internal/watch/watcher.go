// Package watch monitors a directory of exported design JSON files and
// invokes a callback when one changes, so hand-edited exports get their
// raster previews re-rendered live.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceWindow batches rapid writes (editors often write twice) into a
// single callback per file.
const debounceWindow = 500 * time.Millisecond

// Watch blocks until the context is cancelled, calling onChange with the
// path of every design JSON file that is written or created in dir.
func Watch(ctx context.Context, dir string, onChange func(path string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	changed := make(map[string]bool)
	debounce := time.NewTimer(debounceWindow)
	debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isDesignFile(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			changed[event.Name] = true
			debounce.Reset(debounceWindow)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watch error: %w", err)

		case <-debounce.C:
			for path := range changed {
				onChange(path)
			}
			changed = make(map[string]bool)
		}
	}
}

func isDesignFile(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}
