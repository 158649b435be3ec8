// Package background implements the process-wide global scheduler: a
// fixed-size worker pool drains a process-wide timer task queue for
// periodic work, backup-request firing, total-timeout firing, feedback
// delivery, and deferred submit. One Scheduler per process, lazily
// started on first use.
package background

import (
	"sync"
	"time"

	"github.com/source-build/go-wrpc/taskqueue"
	"github.com/source-build/go-wrpc/workerpool"
)

// Scheduler pairs a taskqueue.Timer with a workerpool.Pool: pushing a task
// schedules it by deadline, the pool's worker goroutines drain it as
// tasks come due.
type Scheduler struct {
	queue *taskqueue.Timer
	pool  *workerpool.Pool
}

// NewScheduler constructs and starts a Scheduler with the given worker
// count. Most callers want Global() instead of a private instance.
func NewScheduler(workerCount int) *Scheduler {
	s := &Scheduler{
		queue: taskqueue.NewTimer(),
		pool:  workerpool.New(workerCount),
	}
	s.pool.Start(s.queue)
	return s
}

// PushDelay schedules fn to run after delay. Returns a cancellation id.
func (s *Scheduler) PushDelay(delay time.Duration, fn func()) taskqueue.ID {
	return s.queue.PushDelay(delay.Microseconds(), fn)
}

// PushAt schedules fn to run at (or soon after) at.
func (s *Scheduler) PushAt(at time.Time, fn func()) taskqueue.ID {
	return s.queue.Push(fn, taskqueue.Attr{ExecTime: at.UnixMicro()})
}

// PushNow enqueues fn for immediate dispatch, used for deferred-submit
// and feedback-delivery tasks.
func (s *Scheduler) PushNow(fn func()) taskqueue.ID {
	return s.queue.Push(fn, taskqueue.Attr{ExecTime: -1})
}

// Cancel is idempotent, per the shared Queue contract.
func (s *Scheduler) Cancel(id taskqueue.ID) bool {
	return s.queue.Cancel(id)
}

// Profile returns the pool's scheduling-delay/execution-cost accumulators.
func (s *Scheduler) Profile(clear bool) workerpool.Profile {
	return s.pool.Profile(clear)
}

// Stop stops the worker pool without draining its queue; see
// workerpool.Pool.Stop.
func (s *Scheduler) Stop(wait bool) {
	s.pool.Stop(wait)
}

var (
	globalOnce sync.Once
	global     *Scheduler
	// GlobalWorkerCount configures Global()'s pool size; set it (if at
	// all) before the first call to Global(). Default 1.
	GlobalWorkerCount = 1
)

// Global returns the process-wide Scheduler, starting it on first call.
func Global() *Scheduler {
	globalOnce.Do(func() {
		global = NewScheduler(GlobalWorkerCount)
	})
	return global
}
