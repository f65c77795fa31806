package extract

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Cache keeps scraped results as JSON files that expire after ttl.
type Cache struct {
	dir string
	ttl time.Duration
	mu  sync.RWMutex
	now func() time.Time
}

type cacheEntry struct {
	Key       string          `json:"key"`
	Data      json.RawMessage `json:"data"`
	FetchedAt time.Time       `json:"fetched_at"`
}

func NewCache(dir string, ttl time.Duration) *Cache {
	return &Cache{dir: dir, ttl: ttl, now: time.Now}
}

func (c *Cache) path(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(c.dir, hex.EncodeToString(sum[:8])+".json")
}

// Get decodes a fresh entry for key into v. Expired or unreadable entries
// are misses.
func (c *Cache) Get(key string, v any) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	b, err := os.ReadFile(c.path(key))
	if err != nil {
		return false
	}
	var e cacheEntry
	if err := json.Unmarshal(b, &e); err != nil || e.Key != key {
		return false
	}
	if c.now().Sub(e.FetchedAt) > c.ttl {
		return false
	}
	return json.Unmarshal(e.Data, v) == nil
}

func (c *Cache) Set(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	b, err := json.Marshal(cacheEntry{Key: key, Data: data, FetchedAt: c.now()})
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(c.path(key), b, 0o644)
}

// CleanupExpired deletes expired entries and returns how many were removed.
func (c *Cache) CleanupExpired() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := os.ReadDir(c.dir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		p := filepath.Join(c.dir, entry.Name())
		b, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		var e cacheEntry
		if json.Unmarshal(b, &e) != nil || c.now().Sub(e.FetchedAt) > c.ttl {
			if os.Remove(p) == nil {
				removed++
			}
		}
	}
	return removed, nil
}
