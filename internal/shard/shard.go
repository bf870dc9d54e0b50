// Package shard computes partition keys for the relationship table.
package shard

import (
	"fmt"
	"hash/fnv"
)

// MaxShards is the largest supported shard count.
const MaxShards = 256

// Ref formats a record reference as "kind#id".
func Ref(kind, id string) string {
	return kind + "#" + id
}

// RelationshipPK computes the sharded partition key for a relationship record.
// With numShards<=1 every child lands in shard "00"; otherwise the child ref
// hash picks the shard.
func RelationshipPK(parentRef, childRef string, numShards int) string {
	if numShards <= 1 {
		return PK(parentRef, 0)
	}
	h := fnv.New32a()
	h.Write([]byte(childRef))
	return PK(parentRef, int(h.Sum32()%uint32(clamp(numShards))))
}

// PK returns the partition key of one shard of parentRef.
func PK(parentRef string, shard int) string {
	return fmt.Sprintf("%s#%02x", parentRef, shard)
}

// All returns the partition keys of every shard of parentRef, in shard order.
func All(parentRef string, numShards int) []string {
	n := clamp(numShards)
	out := make([]string, n)
	for i := range out {
		out[i] = PK(parentRef, i)
	}
	return out
}

func clamp(n int) int {
	if n < 1 {
		return 1
	}
	if n > MaxShards {
		return MaxShards
	}
	return n
}
