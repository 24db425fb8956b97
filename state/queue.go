package state

import (
	"context"
)

// Queue is the unbounded FIFO mailbox behind Env. Put never blocks, so a
// router can message any other router, itself included, without deadlocking
// on a full mailbox.
type Queue[T any] struct {
	// items holds the single non-empty backlog, or nothing while empty holds a token
	items chan []T
	empty chan struct{}
}

func NewQueue[T any]() *Queue[T] {
	q := &Queue[T]{
		items: make(chan []T, 1),
		empty: make(chan struct{}, 1),
	}
	q.empty <- struct{}{}
	return q
}

// take acquires the backlog, which may be empty. The caller must hand it back with give.
func (q *Queue[T]) take(ctx context.Context) ([]T, bool) {
	select {
	case items := <-q.items:
		return items, true
	case <-q.empty:
		return nil, true
	case <-ctx.Done():
		return nil, false
	}
}

func (q *Queue[T]) give(items []T) {
	if len(items) == 0 {
		q.empty <- struct{}{}
	} else {
		q.items <- items
	}
}

func (q *Queue[T]) Put(item T) {
	items, _ := q.take(context.Background())
	q.give(append(items, item))
}

// Get blocks until an item is available. It returns false once ctx is done.
func (q *Queue[T]) Get(ctx context.Context) (T, bool) {
	var items []T
	select {
	case items = <-q.items:
	case <-ctx.Done():
		var zero T
		return zero, false
	}
	item := items[0]
	q.give(items[1:])
	return item, true
}

// Len is the current backlog.
func (q *Queue[T]) Len() int {
	items, _ := q.take(context.Background())
	n := len(items)
	q.give(items)
	return n
}
