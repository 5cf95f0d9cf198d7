// Package instrument provides the advice table behind the host
// instrumentation handle.
//
// This file contains the Instrumentation interface, join points, and the
// default AdviceTable implementation. Code that wants to be interceptable
// routes a well-known method through Enter; hosts and bridges attach advice
// to that join point with Advise.
package instrument

import (
	"sync"

	"github.com/snowmerak/agentbridge/lib/instrument/jpindex"
)

// JoinPoint names an interceptable method.
type JoinPoint struct {
	Type   string
	Method string
}

// String returns "Type#Method".
func (j JoinPoint) String() string {
	return j.Type + "#" + j.Method
}

// Advice runs on entry to a join point. A non-nil error aborts the method
// and is returned to its caller.
type Advice func(receiver any) error

// Instrumentation is the live instrumentation capability of the process.
type Instrumentation interface {
	// Advise attaches advice to jp. The returned function detaches it.
	Advise(jp JoinPoint, advice Advice) (remove func())
	// Enter runs the advice attached to jp in attachment order and returns
	// the first error.
	Enter(jp JoinPoint, receiver any) error
}

type adviceEntry struct {
	id     uint64
	advice Advice
}

// bucket holds every join point hashing to one key. Buckets are replaced,
// never mutated, once published.
type bucket struct {
	points map[JoinPoint][]adviceEntry
}

// AdviceTable is the default Instrumentation. Enter is lock-free; Advise and
// removal serialize on a mutex.
type AdviceTable struct {
	index  *jpindex.Index[bucket]
	mu     sync.Mutex
	nextID uint64
}

var _ Instrumentation = (*AdviceTable)(nil)

// NewAdviceTable returns an empty table.
func NewAdviceTable() *AdviceTable {
	return &AdviceTable{index: jpindex.New[bucket]()}
}

// Advise implements Instrumentation.
func (t *AdviceTable) Advise(jp JoinPoint, advice Advice) func() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.nextID++
	id := t.nextID
	key := jpindex.Key(jp.String())

	next := t.copyBucket(key)
	next.points[jp] = append(next.points[jp], adviceEntry{id: id, advice: advice})
	t.index.Store(key, next)

	var once sync.Once
	return func() {
		once.Do(func() { t.remove(jp, id) })
	}
}

// Enter implements Instrumentation.
func (t *AdviceTable) Enter(jp JoinPoint, receiver any) error {
	b := t.index.Load(jpindex.Key(jp.String()))
	if b == nil {
		return nil
	}
	for _, e := range b.points[jp] {
		if err := e.advice(receiver); err != nil {
			return err
		}
	}
	return nil
}

// Advised reports whether any advice is attached to jp.
func (t *AdviceTable) Advised(jp JoinPoint) bool {
	b := t.index.Load(jpindex.Key(jp.String()))
	return b != nil && len(b.points[jp]) > 0
}

func (t *AdviceTable) remove(jp JoinPoint, id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := jpindex.Key(jp.String())
	next := t.copyBucket(key)
	entries := next.points[jp]
	kept := make([]adviceEntry, 0, len(entries))
	for _, e := range entries {
		if e.id != id {
			kept = append(kept, e)
		}
	}
	if len(kept) == 0 {
		delete(next.points, jp)
	} else {
		next.points[jp] = kept
	}

	if len(next.points) == 0 {
		t.index.Delete(key)
		return
	}
	t.index.Store(key, next)
}

// copyBucket must be called with t.mu held.
func (t *AdviceTable) copyBucket(key uint64) *bucket {
	next := &bucket{points: make(map[JoinPoint][]adviceEntry)}
	if cur := t.index.Load(key); cur != nil {
		for jp, entries := range cur.points {
			next.points[jp] = append([]adviceEntry(nil), entries...)
		}
	}
	return next
}
