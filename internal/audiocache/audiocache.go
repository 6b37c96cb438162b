// Package audiocache manages the content-addressed, TTL-bound audio cache
// directory described in spec.md §3 and §4.11.
package audiocache

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Cache roots audio files at <dataDir>/cache/audio/<id>.<ext>.
type Cache struct {
	root string
}

// New creates a Cache rooted at dataDir/cache/audio.
func New(dataDir string) *Cache {
	return &Cache{root: filepath.Join(dataDir, "cache", "audio")}
}

// Path returns the exclusive destination path for id with the given
// extension, creating the cache directory if needed.
func (c *Cache) Path(id, ext string) (string, error) {
	if err := os.MkdirAll(c.root, 0o755); err != nil {
		return "", fmt.Errorf("create audio cache dir: %w", err)
	}
	return filepath.Join(c.root, fmt.Sprintf("%s.%s", id, ext)), nil
}

// Remove deletes the cached file at path. A missing file is ignored, not
// treated as an error, per spec.md §4.11.
func (c *Cache) Remove(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// ExpiryFor computes the audio_cached_until timestamp for a freshly
// downloaded file, per spec.md §4.5 step 5: now + audio_cache_days.
func ExpiryFor(now time.Time, cacheDays int) time.Time {
	return now.AddDate(0, 0, cacheDays)
}
