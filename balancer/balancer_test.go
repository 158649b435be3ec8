package balancer

import (
	"testing"

	wrpc "github.com/source-build/go-wrpc"
)

func eps(t *testing.T, addrs ...string) []wrpc.Endpoint {
	t.Helper()
	out := make([]wrpc.Endpoint, len(addrs))
	for i, a := range addrs {
		e, err := wrpc.ParseEndpoint(a)
		if err != nil {
			t.Fatalf("parse %q: %v", a, err)
		}
		out[i] = e
	}
	return out
}

func TestRoundRobinCyclesEvenlyAcrossFirstAttempts(t *testing.T) {
	rr := NewRoundRobin()
	for _, e := range eps(t, "10.0.0.1:1", "10.0.0.2:2", "10.0.0.3:3") {
		rr.OnAddOne(e)
	}
	seen := map[wrpc.Endpoint]int{}
	for i := 0; i < 300; i++ {
		ctx := &wrpc.LoadBalancerContext{}
		ep, err := rr.Select(ctx)
		if err != nil {
			t.Fatalf("select: %v", err)
		}
		seen[ep]++
	}
	for ep, n := range seen {
		if n != 100 {
			t.Fatalf("endpoint %v selected %d times, want 100 for even distribution", ep, n)
		}
	}
}

func TestRoundRobinRetriesAdvanceFromFirstAttemptOffset(t *testing.T) {
	rr := NewRoundRobin()
	all := eps(t, "10.0.0.1:1", "10.0.0.2:2", "10.0.0.3:3")
	for _, e := range all {
		rr.OnAddOne(e)
	}
	ctx := &wrpc.LoadBalancerContext{}
	first, _ := rr.Select(ctx)
	ctx.RetryCount = 1
	second, _ := rr.Select(ctx)
	if first == second {
		t.Fatalf("retry must advance to a different endpoint than the first attempt")
	}
}

func TestHashModSkipsDeadOnRetry(t *testing.T) {
	hm := NewHashMod()
	all := eps(t, "10.0.0.1:1", "10.0.0.2:2")
	for _, e := range all {
		hm.OnAddOne(e)
	}
	ctx := &wrpc.LoadBalancerContext{Hash: all[0].Hash()}
	first, _ := hm.Select(ctx)
	hm.OnSetDeath(first)

	ctx.RetryCount = 1
	second, err := hm.Select(ctx)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if second == first {
		t.Fatalf("expected retry to probe past the dead endpoint")
	}
}

func TestNoChoosableEndPointWhenSetEmpty(t *testing.T) {
	rr := NewRoundRobin()
	_, err := rr.Select(&wrpc.LoadBalancerContext{})
	if err == nil {
		t.Fatalf("expected ErrNoChoosableEndPoint on an empty set")
	}
}

func TestRegistryConstructsFreshInstances(t *testing.T) {
	a, err := New("round_robin")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	b, _ := New("round_robin")
	a.OnAddOne(eps(t, "10.0.0.1:1")[0])
	if _, err := b.Select(&wrpc.LoadBalancerContext{}); err == nil {
		t.Fatalf("expected the second instance to have an independent, empty endpoint set")
	}
}
