// Package naming implements the naming-service strategies: each
// refreshes an endpoint set from a string address and notifies an
// UpdateObserver (normally an *epmanager.Manager, which satisfies this
// duck-typed interface via its own OnUpdate method) with the resulting
// set. list/file/dns are plain stdlib string/file/DNS work with nothing
// protocol-specific behind them; the directory service follows an
// etcd-watch pattern for its diffing/refresh loop.
package naming

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	wrpc "github.com/source-build/go-wrpc"
)

// UpdateObserver receives a naming service's refreshed endpoint set.
type UpdateObserver interface {
	OnUpdate(set []wrpc.Endpoint)
}

// Service is the capability set every naming-service strategy implements:
// a refresh(address) -> error primitive plus a notify-observers-on-update
// primitive.
type Service interface {
	// Refresh re-resolves address and notifies every registered observer
	// with the filtered endpoint set. It returns an error only for
	// malformed input or a backend failure; an address that resolves to
	// zero valid endpoints still notifies observers with an empty set.
	Refresh(ctx context.Context, address string) error
	AddObserver(o UpdateObserver)
}

// base is embedded by every Service implementation to share observer
// bookkeeping and the common "parse host:port, skip invalid" filter.
type base struct {
	observers []UpdateObserver
}

func (b *base) AddObserver(o UpdateObserver) {
	b.observers = append(b.observers, o)
}

func (b *base) notify(set []wrpc.Endpoint) {
	for _, o := range b.observers {
		o.OnUpdate(set)
	}
}

// parseHostPorts parses a slice of "host:port" strings, silently dropping
// any that don't parse or carry an invalid port.
func parseHostPorts(raw []string) []wrpc.Endpoint {
	out := make([]wrpc.Endpoint, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		ep, err := wrpc.ParseEndpoint(r)
		if err != nil {
			continue
		}
		out = append(out, ep)
	}
	return out
}

// splitHostPort is a forgiving host:port splitter used by the dns backend,
// which accepts a bare hostname (no port) by falling back to defaultPort.
func splitHostPort(hostport string, defaultPort int) (host string, port int, err error) {
	if idx := strings.LastIndex(hostport, ":"); idx >= 0 {
		p, perr := strconv.Atoi(hostport[idx+1:])
		if perr == nil {
			return hostport[:idx], p, nil
		}
	}
	if defaultPort <= 0 {
		return "", 0, fmt.Errorf("%w: %q has no port and no default was given", wrpc.ErrInvalidArgument, hostport)
	}
	return hostport, defaultPort, nil
}
