// Package queue implements the priority queue used for top-k selection.
package queue

import "container/heap"

// Compile time check to ensure MaxQueue satisfies the heap interface.
var _ heap.Interface = (*MaxQueue)(nil)

// Item represents a candidate in the queue.
type Item struct {
	Row      uint32  // Row is the store row of the candidate.
	ID       int64   // ID is the primary key of the candidate.
	Distance float32 // Distance is the priority of the item in the queue.
}

// MaxQueue is a bounded max-heap of search candidates: the worst candidate
// sits at the top so it can be evicted cheaply. Equal distances rank the
// higher primary key as worse, which keeps extracted results deterministic.
type MaxQueue struct {
	items []Item
}

// NewMax creates a max queue with the given capacity hint.
func NewMax(capacity int) *MaxQueue {
	return &MaxQueue{items: make([]Item, 0, capacity)}
}

func (q *MaxQueue) Len() int { return len(q.items) }

func (q *MaxQueue) Less(i, j int) bool {
	a, b := q.items[i], q.items[j]
	if a.Distance != b.Distance {
		return a.Distance > b.Distance
	}
	return a.ID > b.ID
}

func (q *MaxQueue) Swap(i, j int) {
	q.items[i], q.items[j] = q.items[j], q.items[i]
}

// Push adds x to the queue.
func (q *MaxQueue) Push(x any) {
	q.items = append(q.items, x.(Item))
}

// Pop removes and returns the worst candidate.
func (q *MaxQueue) Pop() any {
	old := q.items
	n := len(old)
	item := old[n-1]
	q.items = old[:n-1]
	return item
}

// Top returns the worst candidate without removing it.
func (q *MaxQueue) Top() Item {
	return q.items[0]
}

// Better reports whether a candidate with the given distance and primary key
// would replace the current worst entry.
func (q *MaxQueue) Better(dist float32, id int64) bool {
	top := q.items[0]
	if dist != top.Distance {
		return dist < top.Distance
	}
	return id < top.ID
}
