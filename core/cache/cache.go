// Package cache provides a small LRU used by the repository to keep recently
// materialized snapshots close at hand.
package cache

// Cache is a bounded key/value cache. Implementations must be safe for
// concurrent use.
type Cache interface {
	Get(key string) (any, bool)
	Put(key string, val any)
	Remove(key string)
	Len() int
}
