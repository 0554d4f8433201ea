package file

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatchDebounce is how long a file must stay quiet before its change is reported.
var WatchDebounce = 150 * time.Millisecond

// Watch implements ports.Watchable. It reports the id of each tool file that
// is created, written, renamed or removed. Changes to the global script are
// reported as GlobalScriptFile.
func (r *Repository) Watch(ctx context.Context) (<-chan string, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(r.BasePath); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", r.BasePath, err)
	}

	ch := make(chan string, 1)
	go func() {
		defer close(ch)
		defer watcher.Close()

		pending := make(map[string]time.Time)
		ticker := time.NewTicker(WatchDebounce / 3)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op == fsnotify.Chmod {
					continue
				}
				if id, ok := r.watchedID(event.Name); ok {
					pending[id] = time.Now()
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			case now := <-ticker.C:
				for _, id := range settled(pending, now) {
					select {
					case ch <- id:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()
	return ch, nil
}

func (r *Repository) watchedID(path string) (string, bool) {
	name := filepath.Base(path)
	if slices.Contains(r.Exclude, name) {
		return "", false
	}
	if name == GlobalScriptFile {
		return name, true
	}
	if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "tmp-") {
		return "", false
	}
	ext := filepath.Ext(name)
	if !slices.Contains(Extensions, ext) {
		return "", false
	}
	return strings.TrimSuffix(name, ext), true
}

func settled(pending map[string]time.Time, now time.Time) []string {
	var ids []string
	for id, at := range pending {
		if now.Sub(at) >= WatchDebounce {
			ids = append(ids, id)
			delete(pending, id)
		}
	}
	slices.Sort(ids)
	return ids
}
