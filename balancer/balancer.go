// Package balancer implements load-balancer / retry-policy strategies:
// round-robin, hash-modulo, consistent-hash, and ip-hash. Every strategy
// implements wrpc.EndpointObserver so the endpoint manager can fan out
// membership/health changes directly into it, and mutates its
// endpoint/dead sets only from those callbacks, under one mutex per
// strategy instance.
//
// Adapted from a RoundRobinBalancer/ConsistentHashBalancer/
// IPHashBalancer strategy set plus a BalancerType factory, retargeted
// from selecting over a live []Service slice to selecting over the
// Endpoint/EndpointObserver model used here.
package balancer

import (
	"sort"
	"sync"

	wrpc "github.com/source-build/go-wrpc"
)

// Balancer is the capability set every strategy implements.
type Balancer interface {
	wrpc.EndpointObserver
	Name() string
	// Select picks an endpoint for this attempt given the per-session
	// context. It returns wrpc.ErrNoChoosableEndPoint if no candidate
	// exists.
	Select(ctx *wrpc.LoadBalancerContext) (wrpc.Endpoint, error)
	// Feedback reports an attempt's outcome; strategies that don't use
	// feedback (most of them) may ignore it.
	Feedback(info wrpc.FeedbackInfo)
}

// base tracks the known endpoint set and dead set shared by every
// strategy, keeping `all` sorted for deterministic hash-based indexing.
type base struct {
	mu   sync.Mutex
	all  []wrpc.Endpoint
	dead map[wrpc.Endpoint]bool
}

func newBase() base {
	return base{dead: make(map[wrpc.Endpoint]bool)}
}

func (b *base) OnAddOne(ep wrpc.Endpoint) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.insertLocked(ep)
}

func (b *base) insertLocked(ep wrpc.Endpoint) {
	i := sort.Search(len(b.all), func(i int) bool { return !b.all[i].Less(ep) })
	if i < len(b.all) && b.all[i] == ep {
		return
	}
	b.all = append(b.all, wrpc.Endpoint{})
	copy(b.all[i+1:], b.all[i:])
	b.all[i] = ep
}

func (b *base) OnRemoveOne(ep wrpc.Endpoint) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, e := range b.all {
		if e == ep {
			b.all = append(b.all[:i], b.all[i+1:]...)
			break
		}
	}
	delete(b.dead, ep)
}

func (b *base) OnSetAlive(ep wrpc.Endpoint) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.dead, ep)
}

func (b *base) OnSetDeath(ep wrpc.Endpoint) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dead[ep] = true
}

func (b *base) OnUpdateAll(alive, dead []wrpc.Endpoint) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = b.all[:0]
	b.dead = make(map[wrpc.Endpoint]bool, len(dead))
	for _, ep := range alive {
		b.insertLocked(ep)
	}
	for _, ep := range dead {
		b.insertLocked(ep)
		b.dead[ep] = true
	}
}

// aliveLocked returns the subset of b.all not marked dead. Caller must
// hold b.mu.
func (b *base) aliveLocked() []wrpc.Endpoint {
	alive := make([]wrpc.Endpoint, 0, len(b.all))
	for _, ep := range b.all {
		if !b.dead[ep] {
			alive = append(alive, ep)
		}
	}
	return alive
}

func (b *base) allDeadLocked() bool {
	if len(b.all) == 0 {
		return false
	}
	for _, ep := range b.all {
		if !b.dead[ep] {
			return false
		}
	}
	return true
}
