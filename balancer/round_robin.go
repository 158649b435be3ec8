package balancer

import (
	"sync/atomic"

	wrpc "github.com/source-build/go-wrpc"
)

// RoundRobin is the atomic monotonically-increasing-index strategy: on an
// attempt's first try it records the current counter value into ctx.Data;
// every attempt (including retries) offsets by ctx.RetryCount so retries
// advance deterministically from the same base.
type RoundRobin struct {
	base
	counter uint64
}

func NewRoundRobin() *RoundRobin {
	return &RoundRobin{base: newBase()}
}

func (r *RoundRobin) Name() string { return "round_robin" }

func (r *RoundRobin) Select(ctx *wrpc.LoadBalancerContext) (wrpc.Endpoint, error) {
	if ctx.RetryCount == 0 {
		ctx.Data = atomic.AddUint64(&r.counter, 1)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	candidates := r.aliveLocked()
	if len(candidates) == 0 {
		candidates = r.all // "if empty, use dead list"
	}
	if len(candidates) == 0 {
		return wrpc.Endpoint{}, wrpc.ErrNoChoosableEndPoint
	}
	offset := ctx.Data + uint64(ctx.RetryCount)
	return candidates[offset%uint64(len(candidates))], nil
}

func (r *RoundRobin) Feedback(wrpc.FeedbackInfo) {}
