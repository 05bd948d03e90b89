package runner

import (
	"container/heap"
	"time"

	"github.com/neurofed/axon/pkg/types"
)

// queueItem is one approved request waiting for an executor slot.
type queueItem struct {
	requestID string
	priority  types.Priority
	submitted time.Time
	seq       int
}

// jobQueue orders pending jobs: high priority ahead of all non-high
// entries, ties broken by submission timestamp ascending.
type jobQueue struct {
	items []*queueItem
	seq   int
}

func newJobQueue() *jobQueue {
	q := &jobQueue{}
	heap.Init(q)
	return q
}

func (q *jobQueue) Len() int { return len(q.items) }

func (q *jobQueue) Less(i, j int) bool {
	a, b := q.items[i], q.items[j]
	ah, bh := a.priority == types.PriorityHigh, b.priority == types.PriorityHigh
	if ah != bh {
		return ah
	}
	if !a.submitted.Equal(b.submitted) {
		return a.submitted.Before(b.submitted)
	}
	return a.seq < b.seq
}

func (q *jobQueue) Swap(i, j int) { q.items[i], q.items[j] = q.items[j], q.items[i] }

func (q *jobQueue) Push(x any) { q.items = append(q.items, x.(*queueItem)) }

func (q *jobQueue) Pop() any {
	old := q.items
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	q.items = old[:n-1]
	return item
}

// Enqueue adds a request to the wait queue.
func (q *jobQueue) Enqueue(requestID string, priority types.Priority, submitted time.Time) {
	q.seq++
	heap.Push(q, &queueItem{
		requestID: requestID,
		priority:  priority,
		submitted: submitted,
		seq:       q.seq,
	})
}

// Dequeue removes and returns the next request, or "" when empty.
func (q *jobQueue) Dequeue() string {
	if q.Len() == 0 {
		return ""
	}
	return heap.Pop(q).(*queueItem).requestID
}

// Remove drops a queued request by id; reports whether it was present.
func (q *jobQueue) Remove(requestID string) bool {
	for i, item := range q.items {
		if item.requestID == requestID {
			heap.Remove(q, i)
			return true
		}
	}
	return false
}
