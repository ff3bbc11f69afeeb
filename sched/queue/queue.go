// Package queue provides the priority-ordered ready queue used by the scheduler and the worker pool.
package queue

import (
	"container/heap"
	"sync"
)

// Item is anything the queue can order. Lower Priority values are popped first,
// ties are broken by the lower Seq, i.e. submission order.
type Item interface {
	Priority() int
	Seq() uint64
}

// ReadyQueue is a thread-safe priority queue of Items.
// An Item is present at most once.
type ReadyQueue struct {
	mu    sync.Mutex
	items itemHeap
	index map[Item]int
}

// NewReadyQueue returns an empty queue.
func NewReadyQueue() *ReadyQueue {
	q := &ReadyQueue{index: make(map[Item]int)}
	q.items.index = q.index
	return q
}

// Push adds item to the queue. Returns false if the item was already present.
func (q *ReadyQueue) Push(item Item) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.index[item]; ok {
		return false
	}
	heap.Push(&q.items, item)
	return true
}

// Pop removes and returns the first item, or nil if the queue is empty.
func (q *ReadyQueue) Pop() Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items.elems) == 0 {
		return nil
	}
	return heap.Pop(&q.items).(Item)
}

// Peek returns the first item without removing it, or nil if the queue is empty.
func (q *ReadyQueue) Peek() Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items.elems) == 0 {
		return nil
	}
	return q.items.elems[0]
}

// Remove takes item out of the queue. Returns false if it was not present.
func (q *ReadyQueue) Remove(item Item) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	i, ok := q.index[item]
	if !ok {
		return false
	}
	heap.Remove(&q.items, i)
	return true
}

// Contains reports whether item is queued.
func (q *ReadyQueue) Contains(item Item) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.index[item]
	return ok
}

// Len returns the number of queued items.
func (q *ReadyQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items.elems)
}

// Drain empties the queue, returning its items in pop order.
func (q *ReadyQueue) Drain() []Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Item, 0, len(q.items.elems))
	for len(q.items.elems) > 0 {
		out = append(out, heap.Pop(&q.items).(Item))
	}
	return out
}

// itemHeap implements heap.Interface and keeps index in sync with element positions.
type itemHeap struct {
	elems []Item
	index map[Item]int
}

func (h itemHeap) Len() int { return len(h.elems) }

func (h itemHeap) Less(i, j int) bool {
	a, b := h.elems[i], h.elems[j]
	if a.Priority() != b.Priority() {
		return a.Priority() < b.Priority()
	}
	return a.Seq() < b.Seq()
}

func (h itemHeap) Swap(i, j int) {
	h.elems[i], h.elems[j] = h.elems[j], h.elems[i]
	h.index[h.elems[i]] = i
	h.index[h.elems[j]] = j
}

func (h *itemHeap) Push(x interface{}) {
	item := x.(Item)
	h.index[item] = len(h.elems)
	h.elems = append(h.elems, item)
}

func (h *itemHeap) Pop() interface{} {
	n := len(h.elems)
	item := h.elems[n-1]
	h.elems[n-1] = nil
	h.elems = h.elems[:n-1]
	delete(h.index, item)
	return item
}
