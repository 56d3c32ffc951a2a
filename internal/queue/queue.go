package queue

import (
	"sync"
	"sync/atomic"
)

// Batch collects records between storage flushes. A bounded batch keeps
// only the newest records and counts the ones it evicted.
type Batch[T any] struct {
	mu      sync.Mutex
	items   []T
	limit   int
	dropped atomic.Int64
}

// New returns an unbounded batch.
func New[T any]() *Batch[T] {
	return &Batch[T]{}
}

// NewBounded returns a batch holding at most limit records. limit <= 0
// means unbounded.
func NewBounded[T any](limit int) *Batch[T] {
	return &Batch[T]{limit: limit}
}

// Push appends records, evicting the oldest when over the limit.
func (b *Batch[T]) Push(items ...T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = append(b.items, items...)
	b.trim()
}

// Take returns every pending record and leaves the batch empty.
func (b *Batch[T]) Take() []T {
	b.mu.Lock()
	defer b.mu.Unlock()
	items := b.items
	b.items = nil
	return items
}

// Requeue puts records from a failed flush back in front of anything
// pushed since, so they are retried in their original order.
func (b *Batch[T]) Requeue(items []T) {
	if len(items) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = append(items[:len(items):len(items)], b.items...)
	b.trim()
}

func (b *Batch[T]) trim() {
	if b.limit <= 0 || len(b.items) <= b.limit {
		return
	}
	over := len(b.items) - b.limit
	b.dropped.Add(int64(over))
	b.items = append([]T(nil), b.items[over:]...)
}

// Len returns the number of pending records.
func (b *Batch[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Dropped returns how many records were evicted over the batch's lifetime.
func (b *Batch[T]) Dropped() int64 {
	return b.dropped.Load()
}
