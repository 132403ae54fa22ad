// Package cache memoises stage results in memory and on disk.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/ppiankov/verifact/internal/model"
)

// KeyPrefix namespaces every cache key; bump the version when the cached
// value format changes.
const KeyPrefix = "verifact:v1:"

// Cache defines the interface for caching
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// Key hashes the given parts into a cache key
func Key(parts ...string) string {
	hash := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return KeyPrefix + hex.EncodeToString(hash[:])
}

// Load decodes a JSON value stored under key. Undecodable entries count
// as misses.
func Load[T any](c Cache, key string) (T, bool) {
	var v T
	raw, ok := c.Get(key)
	if !ok {
		return v, false
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, false
	}
	return v, true
}

// Store encodes v as JSON under key
func Store(c Cache, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Set(key, raw, ttl)
}

// New builds the cache described by cfg: memory only when no directory is
// set, memory in front of disk otherwise. It returns nil when caching is
// disabled.
func New(cfg model.CacheConfig) Cache {
	if !cfg.Enabled {
		return nil
	}

	memoryTTL := time.Duration(cfg.MemoryTTLMins) * time.Minute
	if memoryTTL <= 0 {
		memoryTTL = 30 * time.Minute
	}
	if cfg.Dir == "" {
		return NewMemoryCache(memoryTTL, 10*time.Minute)
	}

	diskTTL := time.Duration(cfg.DiskTTLHours) * time.Hour
	if diskTTL <= 0 {
		diskTTL = 24 * time.Hour
	}
	return NewLayeredCache(memoryTTL, cfg.Dir, diskTTL)
}
