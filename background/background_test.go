package background

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestSchedulerRunsDelayedTask(t *testing.T) {
	s := NewScheduler(2)
	defer s.Stop(true)

	var ran int32
	s.PushDelay(10*time.Millisecond, func() { atomic.StoreInt32(&ran, 1) })

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if atomic.LoadInt32(&ran) == 1 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("delayed task never ran")
}

func TestSchedulerCancelPreventsExecution(t *testing.T) {
	s := NewScheduler(1)
	defer s.Stop(true)

	var ran int32
	id := s.PushDelay(50*time.Millisecond, func() { atomic.StoreInt32(&ran, 1) })
	if !s.Cancel(id) {
		t.Fatalf("expected Cancel to find the pending task")
	}
	time.Sleep(150 * time.Millisecond)
	if atomic.LoadInt32(&ran) == 1 {
		t.Fatalf("canceled task must not have run")
	}
}

func TestSchedulerProfileAccumulates(t *testing.T) {
	s := NewScheduler(1)
	defer s.Stop(true)

	done := make(chan struct{})
	s.PushNow(func() { close(done) })
	<-done
	time.Sleep(10 * time.Millisecond)

	prof := s.Profile(false)
	if prof.Count < 1 {
		t.Fatalf("expected at least one completed task, got %+v", prof)
	}
}

func TestGlobalReturnsSameInstance(t *testing.T) {
	a := Global()
	b := Global()
	if a != b {
		t.Fatalf("Global must return the same Scheduler instance across calls")
	}
}

func TestCollectSnapshotPopulatesTimeRegardlessOfHostErrors(t *testing.T) {
	snap, err := CollectSnapshot()
	if err != nil {
		t.Fatalf("CollectSnapshot: %v", err)
	}
	if snap.Time.IsZero() {
		t.Fatalf("expected Time to be set")
	}
}
