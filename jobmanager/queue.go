package jobmanager

import (
	"container/heap"
	"sync"

	"github.com/copyd/copyd/common"
)

// queueItem is one entry in the priority queue: higher Priority pops first; among equal
// priorities, lower sequence (earlier insertion) pops first, i.e. FIFO within a priority
// band. A resumed job is given the highest possible priority so it pops before every job
// pushed with PushBack, regardless of its own priority; resumed jobs pop FIFO among
// themselves.
type queueItem struct {
	jobID    common.JobID
	priority uint64
	sequence uint64
	index    int
}

type priorityHeap []*queueItem

func (h priorityHeap) Len() int { return len(h) }
func (h priorityHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority // higher priority first
	}
	return h[i].sequence < h[j].sequence // FIFO within a priority band
}
func (h priorityHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *priorityHeap) Push(x any) {
	item := x.(*queueItem)
	item.index = len(*h)
	*h = append(*h, item)
}
func (h *priorityHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// queue is the job manager's pending-job ordering: a priority heap with an explicit
// "resume" fast path that bypasses priority entirely.
type queue struct {
	mu        sync.Mutex
	heap      priorityHeap
	nextSeq   uint64
	resumeSeq uint64
}

func newQueue() *queue {
	q := &queue{}
	heap.Init(&q.heap)
	return q
}

// PushBack enqueues a newly-created job behind everything else at its priority band.
func (q *queue) PushBack(jobID common.JobID, priority uint64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.nextSeq++
	heap.Push(&q.heap, &queueItem{jobID: jobID, priority: priority, sequence: q.nextSeq})
}

// PushFront enqueues a resumed job ahead of every job queued with PushBack, regardless of
// priority, and behind any job already queued with PushFront, matching the spec's
// "resumed jobs run first" rule.
func (q *queue) PushFront(jobID common.JobID, priority uint64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.resumeSeq++
	heap.Push(&q.heap, &queueItem{jobID: jobID, priority: ^uint64(0), sequence: q.resumeSeq})
	_ = priority // resumed jobs ignore their stored priority for ordering purposes, by design
}

// Pop removes and returns the next job id, or ok=false if the queue is empty.
func (q *queue) Pop() (common.JobID, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.heap.Len() == 0 {
		return common.JobID{}, false
	}
	item := heap.Pop(&q.heap).(*queueItem)
	return item.jobID, true
}

func (q *queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.heap.Len()
}
