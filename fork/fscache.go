package fork

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FileSystemCache persists fetched values as individual files under a
// configured directory, one directory per (chain, block, api) namespace and
// one file per hex key. Writes go to a temporary file first and are renamed
// into place, making each key atomic for concurrent sessions.
type FileSystemCache struct {
	root string
}

// DefaultCacheDir returns the cache directory used when none is configured:
// the FORK_CACHE_DIR environment variable, or ~/.tinyevm as fallback.
func DefaultCacheDir() string {
	if dir := os.Getenv("FORK_CACHE_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".tinyevm"
	}
	return filepath.Join(home, ".tinyevm")
}

// NewFileSystemCache creates a cache rooted at the given directory. An empty
// dir selects DefaultCacheDir().
func NewFileSystemCache(dir string) *FileSystemCache {
	if dir == "" {
		dir = DefaultCacheDir()
	}
	return &FileSystemCache{root: dir}
}

func (c *FileSystemCache) path(chain string, block uint64, api string, key string) string {
	return filepath.Join(c.root, chain, fmt.Sprintf("%d", block), api, cacheKey(chain, block, api, key))
}

func (c *FileSystemCache) Store(chain string, block uint64, api string, key string, value []byte) error {
	target := c.path(chain, block, api, key)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheError, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(target), ".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCacheError, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: %v", ErrCacheError, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheError, err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheError, err)
	}
	return nil
}

func (c *FileSystemCache) Get(chain string, block uint64, api string, key string) ([]byte, error) {
	data, err := os.ReadFile(c.path(chain, block, api, key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("%w: %v", ErrCacheError, err)
	}
	return data, nil
}
