// Package channel implements the per-downstream configuration and
// wiring object: one Channel owns a naming service, a load balancer
// (plus an optional distinct retry-policy balancer), and an endpoint
// manager for its lifetime, and is the factory sessions submit through.
//
// Adapted from an RpcClientConf-style options struct feeding an etcd
// resolver + balancer + connection-pool stack built once per client, into
// a pluggable naming/balancer/protocol strategy selected by
// ChannelOptions and address scheme instead of a single hardcoded
// etcd/gRPC stack.
package channel

import (
	"context"
	"fmt"
	"strings"
	"time"

	retry "github.com/avast/retry-go/v4"
	wrpc "github.com/source-build/go-wrpc"
	"github.com/source-build/go-wrpc/background"
	"github.com/source-build/go-wrpc/balancer"
	"github.com/source-build/go-wrpc/epmanager"
	"github.com/source-build/go-wrpc/flog"
	"github.com/source-build/go-wrpc/message"
	"github.com/source-build/go-wrpc/naming"
	"github.com/source-build/go-wrpc/reactor"
	"github.com/source-build/go-wrpc/session"
	"github.com/source-build/go-wrpc/wconn"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Channel is a configured route to one downstream: a naming service
// feeding an endpoint manager, a load-balancing strategy (plus an
// optional retry-policy strategy) observing it, and the protocol used to
// frame requests to it. It implements session.Downstream.
type Channel struct {
	opts     wrpc.ChannelOptions
	runtime  wrpc.RuntimeOptions
	protocol message.Protocol

	lb      balancer.Balancer
	retryLB balancer.Balancer

	manager   *epmanager.Manager
	namingSvc naming.Service
	reactor   *reactor.Reactor
	scheduler *background.Scheduler

	address string

	refreshGroup singleflight.Group

	stopRefresh chan struct{}
	stopHealth  chan struct{}
}

// Refresh re-polls the naming service for address, coalescing concurrent
// callers (the ticker in refreshLoop and any manual trigger racing it)
// into a single in-flight lookup via singleflight, for duplicate-work
// suppression.
func (c *Channel) Refresh(ctx context.Context) error {
	_, err, _ := c.refreshGroup.Do(c.address, func() (interface{}, error) {
		return nil, c.namingSvc.Refresh(ctx, c.address)
	})
	return err
}

// New builds a Channel for address ("scheme://value", e.g.
// "list://10.0.0.1:9000,10.0.0.2:9000", "dns://rpc.internal:9000",
// "file:///etc/wrpc/endpoints.txt"), wiring together the naming service
// selected by scheme, a fresh balancer/retry-balancer pair, and an
// endpoint manager dialing via wconn. react is shared across Channels
// that should multiplex onto the same reactor dispatchers.
func New(address string, opts wrpc.ChannelOptions, runtime wrpc.RuntimeOptions, react *reactor.Reactor) (*Channel, error) {
	protocol, err := message.Get(opts.Protocol)
	if err != nil {
		return nil, err
	}

	lb, err := balancer.New(opts.LoadBalancer)
	if err != nil {
		return nil, err
	}
	retryLB := lb
	if opts.RetryPolicy != "" && opts.RetryPolicy != opts.LoadBalancer {
		retryLB, err = balancer.New(opts.RetryPolicy)
		if err != nil {
			return nil, err
		}
	}

	scheme, value, err := splitAddress(address)
	if err != nil {
		return nil, err
	}
	namingSvc, err := naming.New(scheme)
	if err != nil {
		return nil, err
	}

	ch := &Channel{
		opts:      opts,
		runtime:   runtime,
		protocol:  protocol,
		lb:        lb,
		retryLB:   retryLB,
		namingSvc: namingSvc,
		reactor:   react,
		scheduler: background.Global(),
		address:   value,
	}
	ch.manager = epmanager.New(opts.ConnectionType, opts.MaxConnectionPerEndpoint, opts.MaxErrorCountPerEndpoint, ch.dial)
	ch.manager.AddObserver(lb)
	if retryLB != lb {
		ch.manager.AddObserver(retryLB)
	}
	namingSvc.AddObserver(ch.manager)

	// The first lookup is retried a few times before giving up: a naming
	// backend (etcd, DNS) being briefly unreachable at process startup
	// shouldn't fail Channel construction outright.
	if err := retry.Do(
		func() error { return namingSvc.Refresh(context.Background(), value) },
		retry.Attempts(3),
		retry.Delay(100*time.Millisecond),
		retry.LastErrorOnly(true),
	); err != nil {
		return nil, fmt.Errorf("%w: initial endpoint refresh: %v", wrpc.ErrNamingBackend, err)
	}

	flog.Info("[channel]: opened", zap.String("scheme", scheme), zap.String("address", value))
	ch.startBackgroundLoops()
	return ch, nil
}

// NewStatic builds a Channel over a fixed endpoint set with no naming
// backend behind it — refresh still runs (against the "list" strategy's
// static parse) so UpdateEndPointsInterval stays a uniform concept across
// both constructors.
func NewStatic(endpoints []wrpc.Endpoint, opts wrpc.ChannelOptions, runtime wrpc.RuntimeOptions, react *reactor.Reactor) (*Channel, error) {
	addrs := make([]string, len(endpoints))
	for i, ep := range endpoints {
		addrs[i] = ep.Address()
	}
	return New("list://"+strings.Join(addrs, ","), opts, runtime, react)
}

func splitAddress(address string) (scheme, value string, err error) {
	scheme, value, ok := strings.Cut(address, "://")
	if !ok {
		return "", "", fmt.Errorf("%w: address %q missing scheme (expected scheme://value)", wrpc.ErrInvalidArgument, address)
	}
	return scheme, value, nil
}

func (c *Channel) dial(ep wrpc.Endpoint, connTimeout time.Duration) (*wconn.Connection, error) {
	return wconn.Dial(ep, connTimeout)
}

// CreateController builds a session.Controller bound to this Channel for
// one RPC.
func (c *Channel) CreateController(req *message.Request) *session.Controller {
	return session.New(c, req)
}

// Close stops this Channel's background loops and, if its naming service
// has a Close method, that service's watcher. It does not close the
// endpoint manager's pooled connections, and it does not stop the shared
// reactor or the global scheduler, which may be serving other Channels.
func (c *Channel) Close() {
	close(c.stopRefresh)
	close(c.stopHealth)
	if closer, ok := c.namingSvc.(interface{ Close() }); ok {
		closer.Close()
	}
	flog.Info("[channel]: closed", zap.String("address", c.address))
}

// --- session.Downstream ---

func (c *Channel) Options() wrpc.ChannelOptions { return c.opts }
func (c *Channel) Protocol() message.Protocol   { return c.protocol }
func (c *Channel) Reactor() *reactor.Reactor    { return c.reactor }
func (c *Channel) Scheduler() *background.Scheduler {
	return c.scheduler
}

// SelectEndpoint picks the retry-policy balancer once a session has
// already tried at least one endpoint, and the primary balancer
// otherwise.
func (c *Channel) SelectEndpoint(ctx *wrpc.LoadBalancerContext) (wrpc.Endpoint, error) {
	if ctx.RetryCount > 0 {
		return c.retryLB.Select(ctx)
	}
	return c.lb.Select(ctx)
}

func (c *Channel) FetchConnection(ep wrpc.Endpoint, timeout time.Duration) (*wconn.Connection, error) {
	return c.manager.FetchConnection(ep, timeout)
}

func (c *Channel) GiveBackConnection(ep wrpc.Endpoint, conn *wconn.Connection, forceClose bool) {
	c.manager.GiveBackConnection(ep, conn, forceClose)
}

func (c *Channel) Feedback(info wrpc.FeedbackInfo) {
	c.lb.Feedback(info)
	if c.retryLB != c.lb {
		c.retryLB.Feedback(info)
	}
}
