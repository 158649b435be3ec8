package naming

import (
	"context"
	"fmt"
	"net"

	wrpc "github.com/source-build/go-wrpc"
)

// DNSService treats address as "host[:port]" and expands host into every
// A/AAAA record the resolver returns, all sharing the same port — so a
// single DNS name fronting several backend IPs (a headless Kubernetes
// service, a round-robin A record) resolves into a full endpoint set
// instead of one.
type DNSService struct {
	base
	// DefaultPort is used when address carries no ":port" suffix.
	DefaultPort int
	Resolver    *net.Resolver
}

func NewDNSService(defaultPort int) *DNSService {
	return &DNSService{DefaultPort: defaultPort, Resolver: net.DefaultResolver}
}

func (d *DNSService) Refresh(ctx context.Context, address string) error {
	host, port, err := splitHostPort(address, d.DefaultPort)
	if err != nil {
		return err
	}

	resolver := d.Resolver
	if resolver == nil {
		resolver = net.DefaultResolver
	}

	ips, err := resolver.LookupHost(ctx, host)
	if err != nil {
		return fmt.Errorf("%w: %v", wrpc.ErrNamingBackend, err)
	}

	set := make([]wrpc.Endpoint, 0, len(ips))
	for _, ip := range ips {
		ep, err := wrpc.NewEndpoint(ip, port)
		if err != nil {
			continue
		}
		set = append(set, ep)
	}
	d.notify(set)
	return nil
}
