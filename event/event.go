// Package event implements the kernel's time-ordered event queue: a
// fixed-capacity binary min-heap keyed by (timestamp, sequence),
// grounded on the same container/heap-based timer-heap discipline used
// by the pack's own eventloop.Loop.
package event

import (
	"container/heap"
	"errors"

	"github.com/sarchlab/rdlbraid/lattice"
)

// ErrQueueFull names the queue-at-capacity condition. Push itself
// reports that condition by returning false, not by returning this
// error.
var ErrQueueFull = errors.New("event: queue is full")

// Event is a discrete message routed between lattice cells.
type Event struct {
	Timestamp uint64
	Sequence  uint64
	DestCell  lattice.Coord
	SrcCell   lattice.Coord
	Payload   int32
}

// less implements the queue's sole ordering rule: timestamp first,
// sequence number (assignment order) breaks ties.
func less(a, b Event) bool {
	if a.Timestamp != b.Timestamp {
		return a.Timestamp < b.Timestamp
	}
	return a.Sequence < b.Sequence
}

// innerHeap adapts []Event to container/heap.Interface.
type innerHeap []Event

func (h innerHeap) Len() int            { return len(h) }
func (h innerHeap) Less(i, j int) bool  { return less(h[i], h[j]) }
func (h innerHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *innerHeap) Push(x interface{}) { *h = append(*h, x.(Event)) }
func (h *innerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

// Queue is a fixed-capacity min-heap of events ordered by
// (timestamp, sequence).
type Queue struct {
	capacity int
	h        innerHeap
}

// NewQueue creates an empty queue with room for exactly capacity
// events.
func NewQueue(capacity int) *Queue {
	q := &Queue{capacity: capacity}
	q.h = make(innerHeap, 0, capacity)
	heap.Init(&q.h)
	return q
}

// Push inserts e, returning false without modifying the queue if it
// is already at capacity.
func (q *Queue) Push(e Event) bool {
	if len(q.h) >= q.capacity {
		return false
	}
	heap.Push(&q.h, e)
	return true
}

// Pop removes and returns the earliest event. The second return is
// false if the queue was empty.
func (q *Queue) Pop() (Event, bool) {
	if len(q.h) == 0 {
		return Event{}, false
	}
	e := heap.Pop(&q.h).(Event)
	return e, true
}

// Len returns the number of events currently queued.
func (q *Queue) Len() int {
	return len(q.h)
}

// Cap returns the queue's fixed capacity.
func (q *Queue) Cap() int {
	return q.capacity
}

// Reset empties the queue without shrinking its backing array.
func (q *Queue) Reset() {
	q.h = q.h[:0]
}

// BackingBytes reports the byte size of the queue's backing array at
// full capacity, for the pool-backed memory_used telemetry figure.
func (q *Queue) BackingBytes() uintptr {
	return uintptr(q.capacity) * eventSize
}

const eventSize = 48 // approx: 2*uint64 + 2*Coord(3*int32) + int32, rounded for alignment
