// Package dropmap implements a TTL-based eviction cache: a map whose
// entries can be marked for expiration and are purged in batches by an
// explicit GC sweep, with access always able to rescue a pending
// expiration. pkg/engine uses it to cache open
// Editors per branch.
package dropmap

import (
	"github.com/google/btree"
)

// Clock is a monotonically non-decreasing millisecond timestamp, passed
// in by the caller rather than read from the wall clock so tests can
// drive GC deterministically.
type Clock = int64

const btreeDegree = 32

// DropMap maps K to V, evicting entries a fixed TTL after they are
// dropped unless a later access rescues them first.
type DropMap[K comparable, V any] struct {
	data        map[K]*entry[V]
	capacity    int
	ttl         Clock
	dropQueue   *btree.BTree
	toDropCount int
}

type entry[V any] struct {
	value      V
	expiration Clock
	pending    bool
}

// New builds a DropMap with the given pending-eviction capacity (forced
// GC trigger) and TTL in milliseconds.
func New[K comparable, V any](capacity int, ttl Clock) *DropMap[K, V] {
	return &DropMap[K, V]{
		data:      make(map[K]*entry[V], capacity+1),
		capacity:  capacity,
		ttl:       ttl,
		dropQueue: btree.New(btreeDegree),
	}
}

// Len reports the current number of entries in the map, pending eviction
// or not.
func (m *DropMap[K, V]) Len() int {
	return len(m.data)
}

// timeBucket is the expiration index's item: all keys scheduled to drop
// at the same millisecond, kept together to bound GC sweep cost.
type timeBucket[K comparable] struct {
	at   Clock
	keys smallSet[K]
}

func (b *timeBucket[K]) Less(than btree.Item) bool {
	return b.at < than.(*timeBucket[K]).at
}

// GetOrMaybeInsertWith returns the existing value for key, or inserts
// the value built by f on a miss. f may fail, in which case its error is
// returned and nothing is inserted. Either way, a hit cancels any pending
// expiration on the entry; accessing a value always rescues it.
func (m *DropMap[K, V]) GetOrMaybeInsertWith(key K, f func() (V, error)) (V, error) {
	e, ok := m.data[key]
	if !ok {
		v, err := f()
		if err != nil {
			var zero V
			return zero, err
		}
		e = &entry[V]{value: v}
		m.data[key] = e
		return e.value, nil
	}

	if e.pending {
		m.cancelDrop(key, e.expiration)
		m.toDropCount--
		e.pending = false
	}
	return e.value, nil
}

// Get returns the existing value for key without inserting on a miss,
// rescuing any pending expiration the same way GetOrMaybeInsertWith does.
func (m *DropMap[K, V]) Get(key K) (V, bool) {
	e, ok := m.data[key]
	if !ok {
		var zero V
		return zero, false
	}
	if e.pending {
		m.cancelDrop(key, e.expiration)
		m.toDropCount--
		e.pending = false
	}
	return e.value, true
}

// Range calls f for every live entry, pending eviction or not, until f
// returns false. Iteration order is unspecified. Range does not rescue
// pending expirations; it is a read-only walk, not an access.
func (m *DropMap[K, V]) Range(f func(key K, value V) bool) {
	for key, e := range m.data {
		if !f(key, e.value) {
			return
		}
	}
}

// DropExpire marks key for eviction at now+ttl (immediately if ttl is
// zero). If the pending-eviction count reaches capacity, a GC sweep runs
// immediately.
func (m *DropMap[K, V]) DropExpire(key K, now Clock) {
	e, ok := m.data[key]
	if !ok {
		return
	}

	if e.pending {
		m.cancelDrop(key, e.expiration)
		m.toDropCount--
		e.pending = false
	}

	if m.ttl == 0 {
		delete(m.data, key)
		return
	}

	expiration := now + m.ttl
	e.pending = true
	e.expiration = expiration
	m.scheduleDrop(key, expiration)
	m.toDropCount++

	if m.toDropCount >= m.capacity {
		m.GC(now)
	}
}

func (m *DropMap[K, V]) scheduleDrop(key K, expiration Clock) {
	pivot := &timeBucket[K]{at: expiration}
	item := m.dropQueue.Get(pivot)
	bucket, ok := item.(*timeBucket[K])
	if !ok {
		bucket = pivot
		m.dropQueue.ReplaceOrInsert(bucket)
	}
	bucket.keys.insert(key)
}

func (m *DropMap[K, V]) cancelDrop(key K, expiration Clock) {
	pivot := &timeBucket[K]{at: expiration}
	item := m.dropQueue.Get(pivot)
	bucket, ok := item.(*timeBucket[K])
	if !ok {
		return
	}
	bucket.keys.remove(key)
	if bucket.keys.isEmpty() {
		m.dropQueue.Delete(pivot)
	}
}

// GC purges every entry whose expiration is at or before now.
func (m *DropMap[K, V]) GC(now Clock) {
	var due []*timeBucket[K]
	m.dropQueue.AscendLessThan(&timeBucket[K]{at: now + 1}, func(i btree.Item) bool {
		due = append(due, i.(*timeBucket[K]))
		return true
	})

	for _, bucket := range due {
		m.dropQueue.Delete(bucket)
		bucket.keys.forEach(func(key K) {
			delete(m.data, key)
			m.toDropCount--
		})
	}
}
