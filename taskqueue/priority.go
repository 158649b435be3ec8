package taskqueue

import (
	"container/heap"
	"sync"
)

type pItem struct {
	task *Task
	idx  int
}

type pHeap []*pItem

func (h pHeap) Len() int { return len(h) }

// Less: lower Attr.Priority dequeues first (min-heap by priority).
func (h pHeap) Less(i, j int) bool { return h[i].task.Attr.Priority < h[j].task.Attr.Priority }
func (h pHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].idx, h[j].idx = i, j
}
func (h *pHeap) Push(x any) {
	it := x.(*pItem)
	it.idx = len(*h)
	*h = append(*h, it)
}
func (h *pHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return it
}

// Priority is the min-heap-by-priority task queue variant.
type Priority struct {
	mu    sync.Mutex
	cond  *sync.Cond
	h     pHeap
	index map[ID]*pItem
}

func NewPriority() *Priority {
	q := &Priority{index: make(map[ID]*pItem)}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *Priority) Push(fn Func, attr Attr) ID {
	id := newID()
	t := &Task{ID: id, Attr: attr, fn: fn}
	it := &pItem{task: t}
	q.mu.Lock()
	heap.Push(&q.h, it)
	q.index[id] = it
	q.cond.Signal()
	q.mu.Unlock()
	return id
}

func (q *Priority) Pop() *Task {
	q.mu.Lock()
	for q.h.Len() == 0 {
		q.cond.Wait()
	}
	it := heap.Pop(&q.h).(*pItem)
	delete(q.index, it.task.ID)
	q.mu.Unlock()
	return it.task
}

func (q *Priority) Cancel(id ID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	it, ok := q.index[id]
	if !ok {
		return false
	}
	it.task.fn = noop
	delete(q.index, id)
	return true
}

func (q *Priority) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.h.Len()
}
