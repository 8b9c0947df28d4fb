// Package credpool implements a priority-ordered holding area for
// credentials that are not currently checked out by the scheduler.
// Entries come back in ascending availability-time order, ties broken by
// credential ID so that scans are deterministic under test.
package credpool

import (
	"container/heap"
	"time"

	"github.com/keywheel/keywheel/pkg/credential"
)

// Pool is a min-heap of credential entries keyed by availability time.
// It is not safe for concurrent use; the scheduler serializes access
// under its own lock.
type Pool struct {
	entries entryHeap
	ids     map[string]struct{}
}

// item tags an entry with its materialized availability time.
type item struct {
	entry       *credential.Entry
	availableAt time.Time
	index       int // index in the heap
}

type entryHeap []*item

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].availableAt.Equal(h[j].availableAt) {
		return h[i].entry.ID < h[j].entry.ID
	}
	return h[i].availableAt.Before(h[j].availableAt)
}

func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *entryHeap) Push(x any) {
	n := len(*h)
	it, ok := x.(*item)
	if !ok {
		return
	}
	it.index = n
	*h = append(*h, it)
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil // avoid memory leak
	it.index = -1
	*h = old[0 : n-1]
	return it
}

// New creates an empty pool.
func New() *Pool {
	return &Pool{
		entries: make(entryHeap, 0),
		ids:     make(map[string]struct{}),
	}
}

// Enqueue inserts or re-inserts an entry at the given availability time.
// Enqueueing an ID already present is ignored and reported as false;
// the pool never holds two entries for one credential.
func (p *Pool) Enqueue(entry *credential.Entry, availableAt time.Time) bool {
	if _, dup := p.ids[entry.ID]; dup {
		return false
	}
	p.ids[entry.ID] = struct{}{}
	heap.Push(&p.entries, &item{entry: entry, availableAt: availableAt})
	return true
}

// PopNext removes and returns the entry with the smallest availability
// time. ok is false when the pool is empty.
func (p *Pool) PopNext() (entry *credential.Entry, ok bool) {
	if p.entries.Len() == 0 {
		return nil, false
	}
	it, _ := heap.Pop(&p.entries).(*item)
	delete(p.ids, it.entry.ID)
	return it.entry, true
}

// Size returns the number of pooled entries.
func (p *Pool) Size() int {
	return p.entries.Len()
}

// Contains reports whether the pool holds the given credential ID.
func (p *Pool) Contains(id string) bool {
	_, ok := p.ids[id]
	return ok
}
