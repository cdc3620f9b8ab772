package ringbuffer

import (
	"sync"
	"sync/atomic"
)

// Ring is a fixed-capacity FIFO shared between producers running in
// interrupt context and a single consumer. When the ring is full the newest
// value is dropped and counted; producers never block on the consumer.
type Ring[T any] struct {
	values []T
	size   uint64

	head atomic.Uint64 // next slot to read, owned by the consumer
	tail atomic.Uint64 // next slot to write, owned by producers

	dropped atomic.Uint64

	// Producers take mask for the few instructions that claim a slot. It
	// stands in for masking interrupts around the index update.
	mask sync.Mutex
}

func New[T any](size int) *Ring[T] {
	if size < 1 {
		panic("ringbuffer: size must be positive")
	}

	return &Ring[T]{
		values: make([]T, size),
		size:   uint64(size),
	}
}

// Push appends element unless the ring is full, in which case element is
// discarded and the dropped counter incremented. It does not allocate.
func (r *Ring[T]) Push(element T) bool {
	r.mask.Lock()
	defer r.mask.Unlock()

	tail := r.tail.Load()
	if tail-r.head.Load() >= r.size {
		r.dropped.Add(1)
		return false
	}

	r.values[tail%r.size] = element
	r.tail.Store(tail + 1)
	return true
}

// Pop removes the oldest element. Only one goroutine may consume.
func (r *Ring[T]) Pop() (T, bool) {
	var zero T

	head := r.head.Load()
	if head == r.tail.Load() {
		return zero, false
	}

	slot := head % r.size
	element := r.values[slot]
	r.values[slot] = zero
	r.head.Store(head + 1)

	return element, true
}

// Drain pops at most max elements in insertion order and hands each to fn.
// It returns how many were consumed.
func (r *Ring[T]) Drain(max int, fn func(T)) int {
	n := 0
	for n < max {
		element, ok := r.Pop()
		if !ok {
			break
		}
		fn(element)
		n++
	}
	return n
}

func (r *Ring[T]) Len() int {
	return int(r.tail.Load() - r.head.Load())
}

func (r *Ring[T]) Cap() int {
	return int(r.size)
}

// Dropped reports how many pushes were rejected because the ring was full.
func (r *Ring[T]) Dropped() uint64 {
	return r.dropped.Load()
}

// ResetDropped zeroes the dropped counter and returns its previous value.
func (r *Ring[T]) ResetDropped() uint64 {
	return r.dropped.Swap(0)
}
