package containers

import (
	"github.com/emirpasic/gods/trees/binaryheap"
)

// PriorityQueue is a binary min-heap ordered by a caller-supplied
// comparison. Pop always yields a current minimum; the order among equal
// elements is unspecified.
type PriorityQueue[T any] struct {
	h *binaryheap.Heap
}

// NewPriorityQueue creates an empty heap using less as the strict
// ordering between elements.
func NewPriorityQueue[T any](less func(a, b T) bool) *PriorityQueue[T] {
	cmp := func(a, b interface{}) int {
		x, y := a.(T), b.(T)
		switch {
		case less(x, y):
			return -1
		case less(y, x):
			return 1
		default:
			return 0
		}
	}
	return &PriorityQueue[T]{h: binaryheap.NewWith(cmp)}
}

// Push adds v to the heap.
func (q *PriorityQueue[T]) Push(v T) {
	q.h.Push(v)
}

// Pop removes and returns a minimum element. The second return value is
// false when the heap is empty.
func (q *PriorityQueue[T]) Pop() (T, bool) {
	v, ok := q.h.Pop()
	if !ok {
		var zero T
		return zero, false
	}
	return v.(T), true
}

// Peek returns a minimum element without removing it.
func (q *PriorityQueue[T]) Peek() (T, bool) {
	v, ok := q.h.Peek()
	if !ok {
		var zero T
		return zero, false
	}
	return v.(T), true
}

// Len returns the number of elements in the heap.
func (q *PriorityQueue[T]) Len() int {
	return q.h.Size()
}

// Clear removes all elements.
func (q *PriorityQueue[T]) Clear() {
	q.h.Clear()
}
