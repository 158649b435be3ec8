package objpool

import (
	"sync"
	"testing"
)

type cell struct {
	n int
}

func TestFetchGiveBackRoundTrip(t *testing.T) {
	p := New[cell](4, func(c *cell) { c.n = 0 }, nil)
	a, fromSlab := p.Fetch()
	if !fromSlab {
		t.Fatalf("expected first fetch to come from the slab")
	}
	a.n = 42
	if got := p.Available(); got != 3 {
		t.Fatalf("available = %d, want 3", got)
	}
	p.GiveBack(a)
	if got := p.Available(); got != 4 {
		t.Fatalf("available after give-back = %d, want 4", got)
	}
}

func TestFetchExhaustionFallsBackToHeap(t *testing.T) {
	p := New[cell](2, nil, nil)
	a, _ := p.Fetch()
	b, _ := p.Fetch()
	c, fromSlab := p.Fetch()
	if fromSlab {
		t.Fatalf("third fetch should overflow to the heap")
	}
	if c == nil {
		t.Fatalf("heap fallback returned nil")
	}
	p.GiveBack(a)
	p.GiveBack(b)
	p.GiveBack(c) // out-of-slab give-back must not panic or double count
	if got := p.Available(); got != 2 {
		t.Fatalf("available = %d, want 2", got)
	}
}

func TestFetchFastFailDoesNotOverflow(t *testing.T) {
	p := New[cell](1, nil, nil)
	a, ok := p.FetchFastFail()
	if !ok || a == nil {
		t.Fatalf("expected fast-fail fetch to succeed once")
	}
	_, ok = p.FetchFastFail()
	if ok {
		t.Fatalf("fast-fail fetch must not fall back to the heap")
	}
}

func TestConcurrentFetchGiveBackConservesCapacity(t *testing.T) {
	const capacity = 16
	p := New[cell](capacity, nil, nil)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				c, _ := p.Fetch()
				p.GiveBack(c)
			}
		}()
	}
	wg.Wait()
	if got := p.Available(); got != capacity {
		t.Fatalf("available after contention = %d, want %d", got, capacity)
	}
}
