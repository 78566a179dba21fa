package broker

import (
	"container/heap"

	"github.com/brokerhq/jobcentre/pkg/codec"
)

// jobHeap is a container/heap.Interface over live jobs only: a job is
// removed from the heap the moment it stops being PENDING (delivered to a
// waiter, claimed by a get, or deleted), so Less never has to reason about
// stale entries. This mirrors the teacher's priority_queue.go jobHeap, with
// its comparison inverted: the teacher's heap is a min-heap where the
// smallest Priority wins; this protocol requires the opposite (largest
// priority wins, ties broken toward the smaller, i.e. older, job id).
type jobHeap []*Job

func (h jobHeap) Len() int { return len(h) }

func (h jobHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].ID < h[j].ID
}

func (h jobHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *jobHeap) Push(x any) {
	*h = append(*h, x.(*Job))
}

func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// waiter is one blocked get, parked on every queue named in its request.
// reply is buffered (capacity 1) so the broker actor never blocks handing
// off a wake-up.
type waiter struct {
	clientID int64
	reply    chan<- codec.Response
}

// Queue holds one named queue's pending jobs and the clients blocked on it.
// Queues are created lazily and are never removed (spec: "never destroyed").
type Queue struct {
	name    string
	pending jobHeap
	waiters []waiter
}

func newQueue(name string) *Queue {
	q := &Queue{name: name}
	heap.Init(&q.pending)
	return q
}

func (q *Queue) peek() *Job {
	if len(q.pending) == 0 {
		return nil
	}
	return q.pending[0]
}

func (q *Queue) push(j *Job) {
	heap.Push(&q.pending, j)
}

func (q *Queue) pop() *Job {
	return heap.Pop(&q.pending).(*Job)
}

// removeByID removes a pending job by id, used by delete. Ported from the
// reference implementation's linear Queue.Delete scan; this repository's
// single-actor model needs no mutex around it.
func (q *Queue) removeByID(id int64) bool {
	for i, j := range q.pending {
		if j.ID == id {
			heap.Remove(&q.pending, i)
			return true
		}
	}
	return false
}

// removeWaiter drops every waiter entry belonging to clientID, used when a
// client is woken on one of several queues it was blocked on, or when it
// disconnects while blocked.
func (q *Queue) removeWaiter(clientID int64) {
	kept := q.waiters[:0]
	for _, w := range q.waiters {
		if w.clientID != clientID {
			kept = append(kept, w)
		}
	}
	q.waiters = kept
}
