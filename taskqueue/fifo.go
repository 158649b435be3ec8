package taskqueue

import (
	"sync"
	"sync/atomic"

	"github.com/source-build/go-wrpc/blockqueue"
)

// FIFO is the bounded blocking task queue built directly on blockqueue.Ring;
// cancellation CAS-swaps a no-op sentinel into the ring slot rather than
// removing it.
type FIFO struct {
	ring *blockqueue.Ring[Task]
	len  int64

	mu      sync.Mutex
	indexOf map[ID]uint64
}

// NewFIFO builds a bounded FIFO task queue; capacity is rounded up to a
// power of two by the underlying ring.
func NewFIFO(capacity int) *FIFO {
	return &FIFO{
		ring:    blockqueue.New[Task](capacity),
		indexOf: make(map[ID]uint64),
	}
}

func (q *FIFO) Push(fn Func, attr Attr) ID {
	id := newID()
	t := &Task{ID: id, Attr: attr, fn: fn}
	idx := q.ring.Push(t)
	q.mu.Lock()
	q.indexOf[id] = idx
	q.mu.Unlock()
	atomic.AddInt64(&q.len, 1)
	return id
}

func (q *FIFO) Pop() *Task {
	t := q.ring.Pop()
	atomic.AddInt64(&q.len, -1)
	if t != nil {
		q.mu.Lock()
		delete(q.indexOf, t.ID)
		q.mu.Unlock()
	}
	return t
}

func (q *FIFO) Cancel(id ID) bool {
	q.mu.Lock()
	idx, ok := q.indexOf[id]
	if ok {
		delete(q.indexOf, id)
	}
	q.mu.Unlock()
	if !ok {
		return false
	}
	current := q.ring.At(idx)
	if current == nil || current.ID != id {
		return false // already popped
	}
	noopTask := &Task{ID: id, fn: noop}
	return q.ring.CompareAndSwap(idx, current, noopTask)
}

func (q *FIFO) Len() int { return int(atomic.LoadInt64(&q.len)) }
