// Package file implements backend.LocalCache as one JSON file per key in a directory.
package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"todosync/backend"
)

// Config holds file cache configuration
type Config struct {
	Dir string // Directory holding <key>.json files
}

// Cache implements backend.LocalCache on the filesystem
type Cache struct {
	dir string // Resolved absolute path
	mu  sync.RWMutex
}

var _ backend.LocalCache = (*Cache)(nil)

var validKey = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// New creates a file cache rooted at cfg.Dir, creating it if needed.
func New(cfg Config) (*Cache, error) {
	dir := cfg.Dir
	if dir == "" {
		dir = "todosync-cache"
	}

	// Resolve relative paths
	if !filepath.IsAbs(dir) {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		dir = filepath.Join(wd, dir)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	return &Cache{dir: dir}, nil
}

// Dir returns the directory the cache writes to.
func (c *Cache) Dir() string {
	return c.dir
}

// Path returns the file backing key.
func (c *Cache) Path(key string) string {
	return filepath.Join(c.dir, key+".json")
}

func (c *Cache) checkKey(key string) error {
	if !validKey.MatchString(key) {
		return fmt.Errorf("invalid cache key %q", key)
	}
	return nil
}

// Get returns the contents stored under key. ok is false when the file is absent.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := c.checkKey(key); err != nil {
		return nil, false, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	data, err := os.ReadFile(c.Path(key))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// Put writes value to a temp file and renames it over the key's file.
func (c *Cache) Put(ctx context.Context, key string, value []byte) error {
	if err := c.checkKey(key); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	tmp, err := os.CreateTemp(c.dir, "."+key+"-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(value); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}

	if err := os.Rename(tmpPath, c.Path(key)); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to replace %s: %w", key, err)
	}
	return nil
}

// Delete removes key's file. Deleting a missing key is not an error.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.checkKey(key); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.Remove(c.Path(key)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Close closes the cache
func (c *Cache) Close() error {
	return nil
}
