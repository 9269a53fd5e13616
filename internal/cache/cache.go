package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Cache is the storage interface shared by the page cache and the
// source-reliability cache.
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// PageKey derives the cache key for a fetched page.
func PageKey(url string) string {
	return "veridex:page:" + digest(url)
}

// ReliabilityKey derives the cache key for a domain's reliability record.
// Domains are short and stable, so the raw domain stays in the key for
// inspectability of the on-disk cache.
func ReliabilityKey(domain string) string {
	return "veridex:reliability:" + domain
}

func digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
