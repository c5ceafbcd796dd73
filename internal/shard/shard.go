// Package shard maps string keys onto a fixed number of shards. Used to
// bound the number of serial queues behind a sequencing policy.
package shard

import "hash/fnv"

// ForKey returns the shard index for key in [0, shardCount).
func ForKey(key string, shardCount int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(shardCount))
}

// Sharder resolves the shard for a key.
type Sharder interface {
	GetShardForKey(key string) int
}

type fnSharder struct {
	fn func(key string) int
}

func (s *fnSharder) GetShardForKey(key string) int { return s.fn(key) }

// Distributed spreads keys over count shards by hash.
func Distributed(count int) Sharder {
	return &fnSharder{fn: func(key string) int { return ForKey(key, count) }}
}

// Const sends every key to the same shard.
func Const(shard int) Sharder {
	return &fnSharder{fn: func(string) int { return shard }}
}
