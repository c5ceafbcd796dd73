package eventbus

import (
	"strconv"

	"github.com/axleworks/axle-go/core/message"
	"github.com/axleworks/axle-go/internal/shard"
)

// SequencingPolicy maps an event to a serial-execution key. Events with the
// same key are handled one at a time in arrival order; events without a key
// (sequential=false) run fully concurrently.
type SequencingPolicy interface {
	SequenceKey(e message.EventMessage) (key string, sequential bool)
}

// SequencingPolicyFunc adapts a plain function to a SequencingPolicy.
type SequencingPolicyFunc func(e message.EventMessage) (string, bool)

func (f SequencingPolicyFunc) SequenceKey(e message.EventMessage) (string, bool) {
	return f(e)
}

// PerAggregatePolicy serializes events of the same aggregate stream and
// lets everything else run concurrently.
func PerAggregatePolicy() SequencingPolicy {
	return SequencingPolicyFunc(func(e message.EventMessage) (string, bool) {
		if e.IsDomainEvent() {
			return e.AggregateType + "/" + e.AggregateID, true
		}
		return "", false
	})
}

// SequentialPolicy serializes all events onto a single key.
func SequentialPolicy() SequencingPolicy {
	return SequencingPolicyFunc(func(message.EventMessage) (string, bool) {
		return "all", true
	})
}

// ConcurrentPolicy applies no sequencing at all.
func ConcurrentPolicy() SequencingPolicy {
	return SequencingPolicyFunc(func(message.EventMessage) (string, bool) {
		return "", false
	})
}

// ShardedPolicy folds the keys of inner onto a fixed number of shards, so
// an async cluster runs at most shards serial queues instead of one per
// key. Events sharing an inner key still share a shard, preserving their
// relative order.
func ShardedPolicy(inner SequencingPolicy, shards int) SequencingPolicy {
	sharder := shard.Distributed(shards)
	return SequencingPolicyFunc(func(e message.EventMessage) (string, bool) {
		key, sequential := inner.SequenceKey(e)
		if !sequential {
			return "", false
		}
		return "shard-" + strconv.Itoa(sharder.GetShardForKey(key)), true
	})
}
