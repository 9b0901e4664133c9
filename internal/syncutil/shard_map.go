// Package syncutil provides concurrency helpers shared by the proxy registries.
package syncutil

import (
	"fmt"
	"hash/fnv"
	"iter"
	"maps"
	"sync"
)

// ShardMap is a thread-safe map that uses sharding to reduce lock contention.
type ShardMap[K comparable, V any] struct {
	shards []*shard[K, V]
}

type shard[K comparable, V any] struct {
	sync.RWMutex
	items map[K]V
}

// DefaultShards is the number of shards used when zero is passed to [NewShardMap].
const DefaultShards = 32

// NewShardMap creates a new [ShardMap] with n shards.
func NewShardMap[K comparable, V any](n uint) *ShardMap[K, V] {
	if n == 0 {
		n = DefaultShards
	}
	shards := make([]*shard[K, V], n)
	for i := range shards {
		shards[i] = &shard[K, V]{items: make(map[K]V)}
	}
	return &ShardMap[K, V]{shards: shards}
}

func (m *ShardMap[K, V]) getShard(key K) *shard[K, V] {
	hash := fnv.New32a()
	fmt.Fprint(hash, key)
	return m.shards[hash.Sum32()%uint32(len(m.shards))]
}

// Set adds or updates a key-value pair.
func (m *ShardMap[K, V]) Set(key K, value V) {
	s := m.getShard(key)
	s.Lock()
	s.items[key] = value
	s.Unlock()
}

// SetIfAbsent stores the value only if the key is not present yet.
// It returns the value stored under the key and whether it was stored by this call.
func (m *ShardMap[K, V]) SetIfAbsent(key K, value V) (actual V, stored bool) {
	s := m.getShard(key)
	s.Lock()
	defer s.Unlock()

	if v, ok := s.items[key]; ok {
		return v, false
	}
	s.items[key] = value
	return value, true
}

// Get retrieves a value by key.
func (m *ShardMap[K, V]) Get(key K) (V, bool) {
	s := m.getShard(key)
	s.RLock()
	defer s.RUnlock()
	val, ok := s.items[key]
	return val, ok
}

// Del removes a key-value pair by key.
func (m *ShardMap[K, V]) Del(key K) (V, bool) {
	s := m.getShard(key)
	s.Lock()
	defer s.Unlock()
	val, ok := s.items[key]
	if ok {
		delete(s.items, key)
	}
	return val, ok
}

// DelIf removes the key only if fn reports true for the stored value.
func (m *ShardMap[K, V]) DelIf(key K, fn func(V) bool) bool {
	s := m.getShard(key)
	s.Lock()
	defer s.Unlock()
	val, ok := s.items[key]
	if !ok || !fn(val) {
		return false
	}
	delete(s.items, key)
	return true
}

// Size returns the total number of items in the map.
func (m *ShardMap[K, V]) Size() int {
	size := 0
	for _, s := range m.shards {
		s.RLock()
		size += len(s.items)
		s.RUnlock()
	}
	return size
}

// Items returns an iterator over a snapshot of all items in the map.
func (m *ShardMap[K, V]) Items() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		for _, s := range m.shards {
			s.RLock()
			items := maps.Clone(s.items)
			s.RUnlock()

			for k, v := range items {
				if !yield(k, v) {
					return
				}
			}
		}
	}
}
