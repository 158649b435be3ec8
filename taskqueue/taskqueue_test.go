package taskqueue

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestFIFOOrderAndCancel(t *testing.T) {
	q := NewFIFO(8)
	var ran int32
	id1 := q.Push(func() { atomic.AddInt32(&ran, 1) }, Attr{})
	q.Push(func() { atomic.AddInt32(&ran, 2) }, Attr{})
	if !q.Cancel(id1) {
		t.Fatalf("expected cancel of pending task to succeed")
	}
	first := q.Pop()
	first.Run()
	second := q.Pop()
	second.Run()
	if atomic.LoadInt32(&ran) != 2 {
		t.Fatalf("cancelled task must be a no-op, ran=%d", ran)
	}
}

func TestFIFOUnboundedPreservesOrder(t *testing.T) {
	q := NewFIFOUnbounded()
	var order []int
	for i := 0; i < 3; i++ {
		n := i
		q.Push(func() { order = append(order, n) }, Attr{})
	}
	for i := 0; i < 3; i++ {
		q.Pop().Run()
	}
	for i, v := range order {
		if v != i {
			t.Fatalf("order[%d] = %d, want %d", i, v, i)
		}
	}
}

func TestPriorityDequeuesLowestFirst(t *testing.T) {
	q := NewPriority()
	q.Push(func() {}, Attr{Priority: 5})
	q.Push(func() {}, Attr{Priority: 1})
	q.Push(func() {}, Attr{Priority: 3})
	first := q.Pop()
	if first.Attr.Priority != 1 {
		t.Fatalf("first priority = %d, want 1", first.Attr.Priority)
	}
	second := q.Pop()
	if second.Attr.Priority != 3 {
		t.Fatalf("second priority = %d, want 3", second.Attr.Priority)
	}
}

func TestTimerBlocksUntilDue(t *testing.T) {
	q := NewTimer()
	start := time.Now()
	q.PushDelay(30*1000, func() {}) // 30ms
	q.Pop()
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Fatalf("timer task popped too early: %v", elapsed)
	}
}

func TestTimerLatePushWithEarlierDeadlineWakesWaiter(t *testing.T) {
	q := NewTimer()
	q.PushDelay(500*1000, func() {}) // 500ms, far away
	go func() {
		time.Sleep(10 * time.Millisecond)
		q.PushDelay(-1, func() {}) // ExecTime becomes ~now, due immediately
	}()
	start := time.Now()
	task := q.Pop()
	if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
		t.Fatalf("expected the earlier late push to wake Pop quickly, took %v", elapsed)
	}
	_ = task
}

func TestQueueLenTracksBacklog(t *testing.T) {
	q := NewFIFOUnbounded()
	if q.Len() != 0 {
		t.Fatalf("expected empty queue")
	}
	q.Push(func() {}, Attr{})
	q.Push(func() {}, Attr{})
	if q.Len() != 2 {
		t.Fatalf("len = %d, want 2", q.Len())
	}
	q.Pop()
	if q.Len() != 1 {
		t.Fatalf("len = %d, want 1", q.Len())
	}
}
