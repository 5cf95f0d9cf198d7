// Package jpindex is a lock-free trie keyed by 64-bit hashes.
//
// Lookups never take a lock, so the index can sit on paths that run on every
// intercepted call. Writers race through compare-and-swap on the child slots
// and last write wins on a value slot.
package jpindex

import (
	"hash/fnv"
	"sync/atomic"
)

type node[T any] struct {
	slot  [256]atomic.Pointer[node[T]]
	value atomic.Pointer[T]
}

// Index maps uint64 keys to *T values.
type Index[T any] struct {
	head node[T]
	size atomic.Int64
}

// New returns an empty index.
func New[T any]() *Index[T] {
	return &Index[T]{}
}

// Key hashes s into an index key (FNV-1a, 64 bit).
func Key(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}

// Store sets the value for key. Storing nil is the same as Delete.
func (x *Index[T]) Store(key uint64, value *T) {
	n := &x.head
	for i := 0; i < 8; i++ {
		idx := (key >> (56 - i*8)) & 0xff
		next := n.slot[idx].Load()
		if next == nil {
			fresh := &node[T]{}
			if n.slot[idx].CompareAndSwap(nil, fresh) {
				next = fresh
			} else {
				next = n.slot[idx].Load()
			}
		}
		n = next
	}

	old := n.value.Swap(value)
	switch {
	case old == nil && value != nil:
		x.size.Add(1)
	case old != nil && value == nil:
		x.size.Add(-1)
	}
}

// Load returns the value stored for key, or nil.
func (x *Index[T]) Load(key uint64) *T {
	n := &x.head
	for i := 0; i < 8; i++ {
		idx := (key >> (56 - i*8)) & 0xff
		n = n.slot[idx].Load()
		if n == nil {
			return nil
		}
	}
	return n.value.Load()
}

// Delete clears the value for key. Interior nodes are kept; the key space
// used by callers is small and stable.
func (x *Index[T]) Delete(key uint64) {
	n := &x.head
	for i := 0; i < 8; i++ {
		idx := (key >> (56 - i*8)) & 0xff
		n = n.slot[idx].Load()
		if n == nil {
			return
		}
	}
	if old := n.value.Swap(nil); old != nil {
		x.size.Add(-1)
	}
}

// Len reports how many keys currently hold a value.
func (x *Index[T]) Len() int {
	return int(x.size.Load())
}
