package message

import (
	"fmt"
	"sync"

	wrpc "github.com/source-build/go-wrpc"
)

var (
	registryMu sync.RWMutex
	registry   = map[string]Protocol{
		"http":   NewHTTPProtocol(),
		"redis":  NewRedisProtocol(),
		"nshead": NewNsheadProtocol(),
	}
)

// Register installs or replaces a named protocol strategy; it must be
// registered before a channel naming it in ChannelOptions.Protocol can
// start.
func Register(name string, protocol Protocol) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = protocol
}

func Get(name string) (Protocol, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	protocol, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: protocol %q", wrpc.ErrProtocolNotFound, name)
	}
	return protocol, nil
}
