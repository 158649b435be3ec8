package balancer

import (
	"sort"

	wrpc "github.com/source-build/go-wrpc"
)

type ringNode struct {
	hash uint64
	ep   wrpc.Endpoint
}

// ConsistentHash keeps a sorted ring of endpoint hashes. The first attempt
// picks the first node whose key is greater than ctx.Hash, wrapping to the
// start of the ring if none is; retries advance ctx.RetryCount positions
// around the ring and probe forward past dead nodes.
type ConsistentHash struct {
	base
}

func NewConsistentHash() *ConsistentHash {
	return &ConsistentHash{base: newBase()}
}

func (c *ConsistentHash) Name() string { return "consistent_hash" }

func (c *ConsistentHash) ring() []ringNode {
	nodes := make([]ringNode, len(c.all))
	for i, ep := range c.all {
		nodes[i] = ringNode{hash: ep.Hash(), ep: ep}
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].hash < nodes[j].hash })
	return nodes
}

func (c *ConsistentHash) Select(ctx *wrpc.LoadBalancerContext) (wrpc.Endpoint, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.all) == 0 {
		return wrpc.Endpoint{}, wrpc.ErrNoChoosableEndPoint
	}
	nodes := c.ring()
	start := sort.Search(len(nodes), func(i int) bool { return nodes[i].hash > ctx.Hash })
	if start == len(nodes) {
		start = 0
	}
	pos := (start + ctx.RetryCount) % len(nodes)
	ep := nodes[pos].ep

	if c.dead[ep] && ctx.RetryCount > 0 && !c.allDeadLocked() {
		for i := 1; i < len(nodes); i++ {
			cand := nodes[(pos+i)%len(nodes)].ep
			if !c.dead[cand] {
				ep = cand
				break
			}
		}
	}
	return ep, nil
}

func (c *ConsistentHash) Feedback(wrpc.FeedbackInfo) {}
