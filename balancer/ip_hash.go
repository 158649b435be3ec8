package balancer

import wrpc "github.com/source-build/go-wrpc"

// IPHash uses the same selection algorithm as HashMod, but is intended
// for use with ctx.Hash seeded from a client IP (wrpc.Fingerprint(ip))
// instead of a request fingerprint, giving session affinity to the
// caller's address rather than to the call's content. Adapted from an
// IPHashBalancer strategy.
type IPHash struct {
	HashMod
}

func NewIPHash() *IPHash {
	return &IPHash{HashMod: HashMod{base: newBase()}}
}

func (i *IPHash) Name() string { return "ip_hash" }
