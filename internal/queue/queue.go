// Package queue provides the FIFO that carries edge records from the edge
// handlers to the dispatch loop.
package queue

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/sweeney/bat-detector/internal/logic"
)

const initialSize = 64

// Queue is a multi-producer, single-consumer FIFO of edge records.
//
// Push never blocks beyond a short critical section. With capacity 0 the
// queue grows without bound; with a positive capacity a push onto a full
// queue drops the incoming record and counts it.
type Queue struct {
	mu       sync.Mutex
	buf      []logic.Record
	head     int // oldest record
	count    int
	capacity int

	dropped atomic.Uint64
	ready   chan struct{}
}

// New creates a queue. capacity <= 0 means unbounded.
func New(capacity int) *Queue {
	if capacity < 0 {
		capacity = 0
	}
	size := initialSize
	if capacity > 0 && capacity < size {
		size = capacity
	}
	return &Queue{
		buf:      make([]logic.Record, size),
		capacity: capacity,
		ready:    make(chan struct{}, 1),
	}
}

// Push appends r. It returns false if the queue is bounded and full, in
// which case r is dropped.
func (q *Queue) Push(r logic.Record) bool {
	q.mu.Lock()
	if q.count == len(q.buf) {
		if q.capacity > 0 && q.count >= q.capacity {
			q.mu.Unlock()
			q.dropped.Add(1)
			return false
		}
		q.grow()
	}
	q.buf[(q.head+q.count)%len(q.buf)] = r
	q.count++
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return true
}

// grow doubles the ring, unrolling it so the oldest record sits at index 0.
// Caller must hold q.mu.
func (q *Queue) grow() {
	size := len(q.buf) * 2
	if q.capacity > 0 && size > q.capacity {
		size = q.capacity
	}
	next := make([]logic.Record, size)
	for i := 0; i < q.count; i++ {
		next[i] = q.buf[(q.head+i)%len(q.buf)]
	}
	q.buf = next
	q.head = 0
}

// TryPop removes the oldest record without blocking.
func (q *Queue) TryPop() (logic.Record, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.count == 0 {
		return logic.Record{}, false
	}
	r := q.buf[q.head]
	q.buf[q.head] = logic.Record{}
	q.head = (q.head + 1) % len(q.buf)
	q.count--
	return r, true
}

// Pop removes the oldest record, blocking until one is available or ctx is
// done. Only one goroutine may call Pop at a time.
func (q *Queue) Pop(ctx context.Context) (logic.Record, error) {
	for {
		if r, ok := q.TryPop(); ok {
			return r, nil
		}
		select {
		case <-q.ready:
		case <-ctx.Done():
			return logic.Record{}, ctx.Err()
		}
	}
}

// Len returns the number of queued records.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Dropped returns how many records were rejected because the queue was full.
func (q *Queue) Dropped() uint64 {
	return q.dropped.Load()
}

// Capacity returns the configured bound, 0 for unbounded.
func (q *Queue) Capacity() int {
	return q.capacity
}
