package workerpool

import (
	"sync"
	"testing"
	"time"

	"github.com/source-build/go-wrpc/taskqueue"
)

func TestPoolRunsAllTasks(t *testing.T) {
	q := taskqueue.NewFIFOUnbounded()
	p := New(4)
	p.Start(q)

	var wg sync.WaitGroup
	const n = 50
	wg.Add(n)
	for i := 0; i < n; i++ {
		q.Push(func() { wg.Done() }, taskqueue.Attr{ExecTime: -1})
	}
	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("not all tasks ran within the deadline")
	}
	p.Stop(true)
}

func TestPoolSurvivesPanickingTask(t *testing.T) {
	q := taskqueue.NewFIFOUnbounded()
	p := New(1)
	p.Start(q)

	var wg sync.WaitGroup
	wg.Add(2)
	q.Push(func() { defer wg.Done(); panic("boom") }, taskqueue.Attr{ExecTime: -1})
	q.Push(func() { wg.Done() }, taskqueue.Attr{ExecTime: -1})

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("pool stalled after a panicking task")
	}
	p.Stop(true)
}

func TestProfileCountsCompletedTasks(t *testing.T) {
	q := taskqueue.NewFIFOUnbounded()
	p := New(2)
	p.Start(q)

	var wg sync.WaitGroup
	wg.Add(10)
	for i := 0; i < 10; i++ {
		q.Push(func() { wg.Done() }, taskqueue.Attr{ExecTime: -1})
	}
	wg.Wait()
	time.Sleep(20 * time.Millisecond)
	prof := p.Profile(false)
	if prof.Count != 10 {
		t.Fatalf("profile count = %d, want 10", prof.Count)
	}
	p.Stop(true)
}
