// Package opqueue provides a timestamp-ordered buffer for operations that
// cannot yet be applied. Both the text CRDT and the tree CRDT defer
// operations whose prerequisites haven't arrived, and retry them in
// Lamport order once state changes.
package opqueue

import "container/heap"

// Timestamped is implemented by anything that can be ordered by Lamport
// timestamp for deferred delivery.
type Timestamped interface {
	// Timestamp returns the Lamport timestamp used to order this value
	// relative to other deferred values.
	Timestamp() uint64
}

// Queue is a min-heap of deferred operations, ordered by Lamport
// timestamp. Insert does not detect duplicates: a value inserted twice
// is queued twice. Values with equal timestamps drain in no defined
// order.
type Queue[T Timestamped] struct {
	items *itemHeap[T]
}

// New returns an empty deferred-operation queue.
func New[T Timestamped]() *Queue[T] {
	h := &itemHeap[T]{}
	heap.Init(h)
	return &Queue[T]{items: h}
}

// Len returns the number of queued operations.
func (q *Queue[T]) Len() int {
	return q.items.Len()
}

// Insert adds op to the queue.
func (q *Queue[T]) Insert(op T) {
	heap.Push(q.items, op)
}

// Drain removes and returns every queued operation, in ascending
// timestamp order.
func (q *Queue[T]) Drain() []T {
	out := make([]T, 0, q.items.Len())
	for q.items.Len() > 0 {
		out = append(out, heap.Pop(q.items).(T))
	}
	return out
}

// Peek returns the lowest-timestamp operation without removing it, and
// whether the queue was non-empty.
func (q *Queue[T]) Peek() (T, bool) {
	var zero T
	if q.items.Len() == 0 {
		return zero, false
	}
	return (*q.items)[0], true
}

type itemHeap[T Timestamped] []T

func (h itemHeap[T]) Len() int { return len(h) }
func (h itemHeap[T]) Less(i, j int) bool {
	return h[i].Timestamp() < h[j].Timestamp()
}
func (h itemHeap[T]) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *itemHeap[T]) Push(x any) {
	*h = append(*h, x.(T))
}

func (h *itemHeap[T]) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
