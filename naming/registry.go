package naming

import (
	"fmt"
	"sync"

	wrpc "github.com/source-build/go-wrpc"
)

// Factory constructs a fresh Service instance for a named strategy.
type Factory func() Service

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{
		"list": func() Service { return NewListService() },
		"file": func() Service { return NewFileService() },
		"dns":  func() Service { return NewDNSService(0) },
	}
)

// Register installs or replaces a named naming-service factory. The
// "directory" strategy isn't pre-registered here because it needs an
// *clientv3.Client the registry has no way to supply; callers wire it in
// directly with NewDirectoryService, or Register their own factory that
// closes over a shared client.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

func New(name string) (Service, error) {
	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: naming strategy %q", wrpc.ErrStrategyNotFound, name)
	}
	return factory(), nil
}
