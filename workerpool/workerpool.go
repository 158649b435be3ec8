// Package workerpool implements a fixed-thread-count worker pool: threads
// loop popping from a taskqueue.Queue, track scheduling delay (time
// between a task becoming due and being popped) and execution cost, and
// recover panics at the task boundary so a failing task still counts as
// completed.
//
// Grounded on _examples/original_source/thread_pool/thread_pool.{h,cpp}.
package workerpool

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/source-build/go-wrpc/taskqueue"
)

// Profile is a point-in-time snapshot returned by Pool.Profile.
type Profile struct {
	Count           int64
	AvgSchedDelay   time.Duration
	AvgExecuteDelay time.Duration
}

// Pool is a fixed-size set of worker goroutines draining one task queue.
type Pool struct {
	threadNum int
	queue     taskqueue.Queue

	wg      sync.WaitGroup
	stopped int32

	count         int64
	schedDelaySum int64 // microseconds
	execDelaySum  int64 // microseconds
}

// New constructs a Pool with the given fixed thread count. Call Start to
// begin draining a queue.
func New(threadNum int) *Pool {
	if threadNum < 1 {
		threadNum = 1
	}
	return &Pool{threadNum: threadNum}
}

// Start spawns threadNum worker goroutines pulling from queue. It must be
// called at most once per Pool.
func (p *Pool) Start(queue taskqueue.Queue) {
	p.queue = queue
	for i := 0; i < p.threadNum; i++ {
		p.wg.Add(1)
		go p.loop()
	}
}

func (p *Pool) loop() {
	defer p.wg.Done()
	for {
		task := p.queue.Pop()
		popTime := microNow()
		if task.Attr.ExecTime >= 0 {
			if d := popTime - task.Attr.ExecTime; d > 0 {
				atomic.AddInt64(&p.schedDelaySum, d)
			}
		}
		execStart := time.Now()
		task.Run()
		atomic.AddInt64(&p.execDelaySum, time.Since(execStart).Microseconds())
		atomic.AddInt64(&p.count, 1)

		if atomic.LoadInt32(&p.stopped) != 0 {
			return
		}
	}
}

func microNow() int64 { return time.Now().UnixNano() / int64(time.Microsecond) }

// Stop sets the stop flag and pushes one no-op per worker thread to
// unblock any goroutine parked in queue.Pop, then optionally waits for all
// workers to return.
func (p *Pool) Stop(wait bool) {
	if !atomic.CompareAndSwapInt32(&p.stopped, 0, 1) {
		if wait {
			p.wg.Wait()
		}
		return
	}
	for i := 0; i < p.threadNum; i++ {
		p.queue.Push(func() {}, taskqueue.Attr{ExecTime: -1})
	}
	if wait {
		p.wg.Wait()
	}
}

// Profile returns (count, avg scheduling delay, avg execution delay) and,
// if clear is true, resets the accumulators atomically.
func (p *Pool) Profile(clear bool) Profile {
	count := atomic.LoadInt64(&p.count)
	schedSum := atomic.LoadInt64(&p.schedDelaySum)
	execSum := atomic.LoadInt64(&p.execDelaySum)
	if clear {
		atomic.StoreInt64(&p.count, 0)
		atomic.StoreInt64(&p.schedDelaySum, 0)
		atomic.StoreInt64(&p.execDelaySum, 0)
	}
	prof := Profile{Count: count}
	if count > 0 {
		prof.AvgSchedDelay = time.Duration(schedSum/count) * time.Microsecond
		prof.AvgExecuteDelay = time.Duration(execSum/count) * time.Microsecond
	}
	return prof
}

// ThreadNum returns the configured worker count.
func (p *Pool) ThreadNum() int { return p.threadNum }
