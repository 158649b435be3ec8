package reload

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestInitAndGet(t *testing.T) {
	h := New[int](func(params any) (*int, error) {
		v := params.(int)
		return &v, nil
	}, nil)
	if err := h.Init(7); err != nil {
		t.Fatalf("Init: %v", err)
	}
	handle := h.Get()
	defer handle.Release()
	if got := *handle.Get(); got != 7 {
		t.Fatalf("resource = %d, want 7", got)
	}
}

func TestReloadRejectsWhileInactiveSlotInUse(t *testing.T) {
	h := New[int](func(params any) (*int, error) {
		v := params.(int)
		return &v, nil
	}, nil)
	_ = h.Init(1)
	_ = h.Reload(2) // now slot flips; old slot (value 1) is inactive and free

	stale := h.Get() // holds a ref on the currently active slot (value 2)
	if err := h.Reload(3); err != nil {
		t.Fatalf("reload with the other slot free should succeed: %v", err)
	}
	// now `stale`'s slot (value 2) is the inactive one, and it's held
	if err := h.Reload(4); err == nil {
		t.Fatalf("expected reload to fail while the inactive slot is held")
	}
	stale.Release()
	if err := h.Reload(4); err != nil {
		t.Fatalf("reload should succeed once the handle is released: %v", err)
	}
}

func TestDestructorRunsExactlyOncePerSupersededVersion(t *testing.T) {
	var drops int64
	h := New[int](func(params any) (*int, error) {
		v := params.(int)
		return &v, nil
	}, func(v *int) { atomic.AddInt64(&drops, 1) })
	_ = h.Init(0)
	for i := 1; i <= 5; i++ {
		if err := h.Reload(i); err != nil {
			t.Fatalf("reload %d: %v", i, err)
		}
	}
	if drops != 5 {
		t.Fatalf("drops = %d, want 5 (one per superseded version)", drops)
	}
}

func TestConcurrentReadersNeverObserveNil(t *testing.T) {
	h := New[int](func(params any) (*int, error) {
		v := params.(int)
		return &v, nil
	}, nil)
	_ = h.Init(0)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				handle := h.Get()
				if handle.Get() == nil {
					t.Errorf("observed nil resource")
				}
				handle.Release()
			}
		}()
	}
	for i := 1; i <= 200; i++ {
		h.Reload(i)
	}
	close(stop)
	wg.Wait()
}
