package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FileCache stores one JSON entry per key under a directory, grouped by the
// key's first segment (metrics, source, github, ...).
type FileCache struct {
	baseDir string
	now     func() time.Time
}

// NewFileCache opens the cache under the OS cache directory for appName
func NewFileCache(appName string) (*FileCache, error) {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get user cache directory: %w", err)
	}
	return NewFileCacheWithDir(filepath.Join(cacheDir, appName))
}

// NewFileCacheWithDir opens the cache rooted at dir, creating it if needed
func NewFileCacheWithDir(dir string) (*FileCache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory %s: %w", dir, err)
	}
	return &FileCache{baseDir: dir, now: time.Now}, nil
}

// Get decodes the entry for key into value. Expired, foreign or unreadable
// entries are removed and reported as misses.
func (c *FileCache) Get(key string, value interface{}) error {
	path := c.path(key)

	entry, err := readEntry(path)
	if errors.Is(err, fs.ErrNotExist) {
		return ErrCacheMiss
	}
	if err != nil || !entry.usable(key, c.now()) {
		_ = os.Remove(path)
		return ErrCacheMiss
	}

	if err := json.Unmarshal(entry.Data, value); err != nil {
		return fmt.Errorf("failed to unmarshal cached data for %s: %w", key, err)
	}
	return nil
}

// Set stores value under key. A ttl of zero never expires.
func (c *FileCache) Set(key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	now := c.now()
	entry := Entry{Version: entryVersion, Key: key, Data: data, CreatedAt: now}
	if ttl > 0 {
		expiresAt := now.Add(ttl)
		entry.ExpiresAt = &expiresAt
	}

	encoded, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}
	return writeAtomic(c.path(key), encoded)
}

// Delete removes the entry for key, if any
func (c *FileCache) Delete(key string) error {
	if err := os.Remove(c.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete cache file: %w", err)
	}
	return nil
}

// Prune removes every expired or unreadable entry and returns how many it
// removed. Entries are otherwise only dropped when read.
func (c *FileCache) Prune() (int, error) {
	now := c.now()
	removed := 0

	err := filepath.WalkDir(c.baseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".json" {
			return nil
		}

		entry, err := readEntry(path)
		if err == nil && entry.Version == entryVersion && !entry.IsExpired(now) {
			return nil
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		removed++
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("failed to prune cache: %w", err)
	}
	return removed, nil
}

// Dir returns the directory holding the cache entries
func (c *FileCache) Dir() string {
	return c.baseDir
}

// Close is a no-op for file caches
func (c *FileCache) Close() error {
	return nil
}

// path maps key to <dir>/<namespace>/<sha256>.json
func (c *FileCache) path(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(c.baseDir, namespace(key), hex.EncodeToString(sum[:])+".json")
}

// namespace is the key's first segment when it is a plain name
func namespace(key string) string {
	ns, _, found := strings.Cut(key, ":")
	if !found || ns == "" || strings.ContainsAny(ns, `/\.`) {
		return "default"
	}
	return ns
}

func readEntry(path string) (*Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("corrupt cache entry %s: %w", path, err)
	}
	return &entry, nil
}

// writeAtomic writes through a temp file and rename so concurrent readers
// never see a partial entry
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create cache subdirectory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "entry-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create cache file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to move cache file into place: %w", err)
	}
	return nil
}
