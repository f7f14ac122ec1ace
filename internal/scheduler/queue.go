package scheduler

import (
	"container/heap"
	"sync"
	"time"

	"github.com/me/qhaul/pkg/model"
)

// item is one queue entry: a job plus the enqueue sequence number that
// breaks ties between equal priorities (earlier wins).
type item struct {
	job *model.Job
	seq uint64
}

// itemHeap orders by (priority asc, seq asc).
type itemHeap []item

func (h itemHeap) Len() int { return len(h) }

func (h itemHeap) Less(i, j int) bool {
	if h[i].job.Priority != h[j].job.Priority {
		return h[i].job.Priority < h[j].job.Priority
	}
	return h[i].seq < h[j].seq
}

func (h itemHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *itemHeap) Push(x any) { *h = append(*h, x.(item)) }

func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

// jobQueue is the internally synchronized priority queue shared by all
// workers. Push never blocks; Pop blocks up to a timeout. A lossy
// 1-buffered wake channel cuts the common-case pop latency below the
// timeout without busy-spinning.
type jobQueue struct {
	mu   sync.Mutex
	h    itemHeap
	seq  uint64
	wake chan struct{}
}

func newJobQueue() *jobQueue {
	return &jobQueue{wake: make(chan struct{}, 1)}
}

// Push enqueues a job with a fresh sequence number. A retried job
// passing through here competes on requeue time, not original
// submission time.
func (q *jobQueue) Push(j *model.Job) {
	q.mu.Lock()
	q.seq++
	heap.Push(&q.h, item{job: j, seq: q.seq})
	q.mu.Unlock()
	q.signal()
}

// Requeue reinserts an item keeping its original sequence number, for
// entries popped but not executed (device at capacity).
func (q *jobQueue) Requeue(it item) {
	q.mu.Lock()
	heap.Push(&q.h, it)
	q.mu.Unlock()
	q.signal()
}

func (q *jobQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Pop removes the highest-priority entry, waiting up to timeout for
// one to arrive. The second return is false on timeout.
func (q *jobQueue) Pop(timeout time.Duration) (item, bool) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		q.mu.Lock()
		if len(q.h) > 0 {
			it := heap.Pop(&q.h).(item)
			q.mu.Unlock()
			return it, true
		}
		q.mu.Unlock()

		select {
		case <-q.wake:
		case <-deadline.C:
			return item{}, false
		}
	}
}

// Len returns the current number of queued entries.
func (q *jobQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.h)
}
