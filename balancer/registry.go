package balancer

import (
	"fmt"
	"sync"

	wrpc "github.com/source-build/go-wrpc"
)

// Factory constructs a fresh Balancer instance, so each Channel gets its
// own endpoint/dead-set state rather than sharing one across channels.
type Factory func() Balancer

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{
		"round_robin":     func() Balancer { return NewRoundRobin() },
		"hash_mod":        func() Balancer { return NewHashMod() },
		"consistent_hash": func() Balancer { return NewConsistentHash() },
		"ip_hash":         func() Balancer { return NewIPHash() },
	}
)

// Register installs or replaces a named strategy factory.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// New constructs a fresh Balancer for the named, registered strategy.
func New(name string) (Balancer, error) {
	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: balancer %q", wrpc.ErrStrategyNotFound, name)
	}
	return factory(), nil
}
