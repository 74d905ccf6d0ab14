package proxy

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/afero"
)

// Cache stores one JSON document on fs with an expiry. mu serialises
// goroutines of this process; the optional file lock serialises processes
// sharing the cache directory, since flock state is per process.
type Cache struct {
	fs   afero.Fs
	path string
	ttl  time.Duration
	mu   sync.RWMutex
	lock *flock.Flock
	now  func() time.Time
}

type cacheEntry struct {
	StoredAt time.Time       `json:"stored_at"`
	Data     json.RawMessage `json:"data"`
}

// NewCache keeps the document at path on fs for ttl. lockPath names an OS
// file used for locking; empty disables locking.
func NewCache(fs afero.Fs, path string, ttl time.Duration, lockPath string) *Cache {
	c := &Cache{fs: fs, path: path, ttl: ttl, now: time.Now}
	if lockPath != "" {
		c.lock = flock.New(lockPath)
	}
	return c
}

// Get returns the cached document if present and fresh.
func (c *Cache) Get() (json.RawMessage, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.lock != nil {
		if err := c.lock.RLock(); err != nil {
			return nil, false, fmt.Errorf("failed to lock cache: %w", err)
		}
		defer c.lock.Unlock()
	}

	data, err := afero.ReadFile(c.fs, c.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cache: %w", err)
	}

	var entry cacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		// a corrupt cache file is a miss, it gets overwritten on the next Set
		return nil, false, nil
	}
	if c.ttl > 0 && c.now().Sub(entry.StoredAt) >= c.ttl {
		return nil, false, nil
	}
	return entry.Data, true, nil
}

// Set replaces the cached document.
func (c *Cache) Set(data json.RawMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lock != nil {
		if err := c.lock.Lock(); err != nil {
			return fmt.Errorf("failed to lock cache: %w", err)
		}
		defer c.lock.Unlock()
	}

	encoded, err := json.Marshal(cacheEntry{StoredAt: c.now().UTC(), Data: data})
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}

	if err := c.fs.MkdirAll(filepath.Dir(c.path), 0700); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	tmp := c.path + ".tmp"
	if err := afero.WriteFile(c.fs, tmp, encoded, 0600); err != nil {
		return fmt.Errorf("failed to write cache: %w", err)
	}
	if err := c.fs.Rename(tmp, c.path); err != nil {
		return fmt.Errorf("failed to replace cache: %w", err)
	}
	return nil
}

// Clear drops the cached document.
func (c *Cache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lock != nil {
		if err := c.lock.Lock(); err != nil {
			return fmt.Errorf("failed to lock cache: %w", err)
		}
		defer c.lock.Unlock()
	}
	if err := c.fs.Remove(c.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	return nil
}
