// Package watch follows a Slippi replay folder and reports replays once the
// console has finished writing them.
package watch

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/fakeyudi/clippi/internal/queue"
)

// Replays starts a recursive fsnotify watcher on dir and sends the path of
// every .slp file that has gone settle without being written to. Slippi
// appends to a replay for the whole game, so settle must exceed the gap
// between its writes. The channel is closed when ctx is cancelled.
func Replays(ctx context.Context, dir string, settle time.Duration, logger *slog.Logger) (<-chan string, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if _, err := os.Stat(dir); err != nil {
		return nil, err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Walk the directory tree and add a watcher for every subdirectory.
	if err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // skip unreadable entries
		}
		if d.IsDir() {
			return watcher.Add(path)
		}
		return nil
	}); err != nil {
		watcher.Close()
		return nil, err
	}

	out := make(chan string)
	go func() {
		defer close(out)
		defer watcher.Close()
		run(ctx, watcher, settle, out, logger)
	}()
	return out, nil
}

func run(ctx context.Context, watcher *fsnotify.Watcher, settle time.Duration, out chan<- string, logger *slog.Logger) {
	tick := settle / 4
	if tick <= 0 {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	// last write per replay still being written
	pending := make(map[string]time.Time)

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
					delete(pending, event.Name)
				}
				continue
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := watcher.Add(event.Name); err != nil {
						logger.Warn("could not watch new directory", "dir", event.Name, "err", err)
					}
					continue
				}
			}
			if queue.IsReplay(event.Name) {
				pending[event.Name] = time.Now()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("watcher error", "err", err)

		case now := <-ticker.C:
			for _, path := range settled(pending, now, settle) {
				delete(pending, path)
				logger.Debug("replay settled", "path", path)
				select {
				case out <- path:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

// settled returns the pending paths last written at least settle ago, oldest
// first.
func settled(pending map[string]time.Time, now time.Time, settle time.Duration) []string {
	var paths []string
	for path, at := range pending {
		if now.Sub(at) >= settle {
			paths = append(paths, path)
		}
	}
	sort.Slice(paths, func(i, j int) bool {
		if !pending[paths[i]].Equal(pending[paths[j]]) {
			return pending[paths[i]].Before(pending[paths[j]])
		}
		return paths[i] < paths[j]
	})
	return paths
}
