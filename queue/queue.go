// Copyright 2025 The apcdiag authors. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package queue implements a bounded FIFO buffer that sheds its oldest
// entries under pressure.
//
// The harness stages inbound events here between the reader callback and
// slower consumers (the monitor printer, the capture writer). The reader
// must never block on a slow consumer, so when the buffer is full the oldest
// entry is dropped and counted rather than making the producer wait.
package queue

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is reported by Get on a closed, drained queue.
var ErrClosed = errors.New("queue is closed")

// DefaultLimit is the capacity used when New is given a non-positive limit.
const DefaultLimit = 1024

// A Queue is a bounded drop-oldest FIFO. It is safe for concurrent use, with
// any number of producers and consumers.
type Queue[T any] struct {
	μ      sync.Mutex
	items  []T // ring buffer, capacity fixed at limit
	head   int // index of the oldest entry
	n      int // number of entries
	closed bool
	wake   chan struct{} // signaled when an entry arrives or the queue closes

	enqueued int64
	dequeued int64
	dropped  int64
	maxDepth int
}

// New constructs an empty queue holding at most limit entries. If limit is
// not positive, DefaultLimit is used.
func New[T any](limit int) *Queue[T] {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Queue[T]{items: make([]T, limit), wake: make(chan struct{}, 1)}
}

// Put appends v to the queue. If the queue is full, the oldest entry is
// discarded to make room and the drop counter is advanced. Put never blocks;
// entries given to a closed queue are discarded.
func (q *Queue[T]) Put(v T) {
	q.μ.Lock()
	defer q.μ.Unlock()
	if q.closed {
		return
	}
	if q.n == len(q.items) {
		q.head = (q.head + 1) % len(q.items)
		q.n--
		q.dropped++
	}
	q.items[(q.head+q.n)%len(q.items)] = v
	q.n++
	q.enqueued++
	if q.n > q.maxDepth {
		q.maxDepth = q.n
	}
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// TryGet removes and returns the oldest entry, if one is present.
func (q *Queue[T]) TryGet() (T, bool) {
	q.μ.Lock()
	defer q.μ.Unlock()
	return q.pop()
}

// pop removes the oldest entry. The caller must hold μ.
func (q *Queue[T]) pop() (T, bool) {
	var zero T
	if q.n == 0 {
		return zero, false
	}
	v := q.items[q.head]
	q.items[q.head] = zero
	q.head = (q.head + 1) % len(q.items)
	q.n--
	q.dequeued++
	if q.n > 0 && !q.closed {
		select {
		case q.wake <- struct{}{}:
		default:
		}
	}
	return v, true
}

// Get removes and returns the oldest entry, blocking until one is available,
// ctx ends, or the queue is closed and drained.
func (q *Queue[T]) Get(ctx context.Context) (T, error) {
	for {
		q.μ.Lock()
		if v, ok := q.pop(); ok {
			q.μ.Unlock()
			return v, nil
		}
		if q.closed {
			q.μ.Unlock()
			var zero T
			return zero, ErrClosed
		}
		q.μ.Unlock()

		select {
		case <-q.wake:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

// Len reports the number of entries currently buffered.
func (q *Queue[T]) Len() int {
	q.μ.Lock()
	defer q.μ.Unlock()
	return q.n
}

// Dropped reports how many entries have been shed to make room.
func (q *Queue[T]) Dropped() int64 {
	q.μ.Lock()
	defer q.μ.Unlock()
	return q.dropped
}

// Stats is a snapshot of a queue's counters.
type Stats struct {
	Enqueued int64 // entries accepted by Put
	Dequeued int64 // entries handed to consumers
	Dropped  int64 // entries shed to make room
	MaxDepth int   // high-water mark of buffered entries
}

// Stats reports a snapshot of the queue's counters.
func (q *Queue[T]) Stats() Stats {
	q.μ.Lock()
	defer q.μ.Unlock()
	return Stats{Enqueued: q.enqueued, Dequeued: q.dequeued, Dropped: q.dropped, MaxDepth: q.maxDepth}
}

// Close marks the queue closed. Buffered entries remain readable; once they
// are drained, Get reports ErrClosed. Close is idempotent.
func (q *Queue[T]) Close() {
	q.μ.Lock()
	defer q.μ.Unlock()
	if !q.closed {
		q.closed = true
		close(q.wake)
	}
}
