package media

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const janitorInterval = 5 * time.Minute

// StartJanitor runs a background goroutine that periodically removes images
// older than ttl. A non-positive ttl disables it.
func StartJanitor(ctx context.Context, store *FileStore, ttl time.Duration) {
	if ttl <= 0 {
		slog.Info("Image janitor disabled")
		return
	}
	ticker := time.NewTicker(janitorInterval)
	go func() {
		defer ticker.Stop()
		slog.Info("Image janitor started", "interval", janitorInterval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				if n := Sweep(store, ttl, time.Now()); n > 0 {
					slog.Info("Image janitor removed stale images", "count", n)
				}
			case <-ctx.Done():
				slog.Info("Image janitor shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

// Sweep deletes generated images last modified before now-ttl and returns
// how many were removed.
func Sweep(store *FileStore, ttl time.Duration, now time.Time) int {
	entries, err := os.ReadDir(store.Dir())
	if err != nil {
		slog.Error("Image janitor failed to list directory", "error", err, "dir", store.Dir())
		return 0
	}

	cutoff := now.Add(-ttl)
	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), "_image.png") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(store.Dir(), e.Name())
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			slog.Warn("Image janitor failed to remove image", "error", err, "path", path)
			continue
		}
		removed++
	}
	return removed
}
