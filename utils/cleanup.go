package utils

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// StartPartialCleaner launches a background goroutine that periodically
// removes stale extractor temp files (.part/.ytdl) under the downloads root.
// A killed subprocess can leave these behind; finished artifacts are never
// touched. Best-effort, logs failures.
func StartPartialCleaner(root string, interval, maxAge time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	if maxAge <= 0 {
		maxAge = 2 * time.Hour
	}
	go func() {
		for {
			// Sleep first to avoid racing immediately at startup
			time.Sleep(interval)
			cutoff := time.Now().Add(-maxAge)
			err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
				if err != nil || d.IsDir() {
					return nil
				}
				if !strings.HasSuffix(path, ".part") && !strings.HasSuffix(path, ".ytdl") {
					return nil
				}
				info, err := d.Info()
				if err != nil || info.ModTime().After(cutoff) {
					return nil
				}
				if err := os.Remove(path); err != nil {
					Sugar.Warnf("partial cleaner remove failed path=%s err=%v", path, err)
				} else {
					Sugar.Infof("removed stale partial download %s", path)
				}
				return nil
			})
			if err != nil {
				Sugar.Warnf("partial cleaner walk failed: %v", err)
			}
		}
	}()
}
