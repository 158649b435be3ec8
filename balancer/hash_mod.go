package balancer

import (
	wrpc "github.com/source-build/go-wrpc"
)

// HashMod maps ctx.Hash (offset by ctx.RetryCount) into the candidate
// vector; if the selected endpoint is dead, it is not the first attempt,
// and not every candidate is dead, it linearly probes forward until it
// finds an alive one.
type HashMod struct {
	base
}

func NewHashMod() *HashMod {
	return &HashMod{base: newBase()}
}

func (h *HashMod) Name() string { return "hash_mod" }

func (h *HashMod) Select(ctx *wrpc.LoadBalancerContext) (wrpc.Endpoint, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.all) == 0 {
		return wrpc.Endpoint{}, wrpc.ErrNoChoosableEndPoint
	}
	offset := ctx.Hash + uint64(ctx.RetryCount)
	idx := int(offset % uint64(len(h.all)))
	ep := h.all[idx]

	if h.dead[ep] && ctx.RetryCount > 0 && !h.allDeadLocked() {
		for i := 1; i < len(h.all); i++ {
			cand := h.all[(idx+i)%len(h.all)]
			if !h.dead[cand] {
				ep = cand
				break
			}
		}
	}
	return ep, nil
}

func (h *HashMod) Feedback(wrpc.FeedbackInfo) {}
