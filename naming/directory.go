package naming

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	wrpc "github.com/source-build/go-wrpc"
	clientv3 "go.etcd.io/etcd/client/v3"
)

// registerValue mirrors the JSON shape a registration side writes to
// etcd (a RegisterValue record): enough to recover an endpoint, with Meta
// left untouched for fields this service doesn't need.
type registerValue struct {
	IP   string                 `json:"ip"`
	Port string                 `json:"port"`
	Meta map[string]interface{} `json:"meta"`
}

// DirectoryService watches an etcd key prefix and maintains a live endpoint
// set from the keys under it, notifying observers on every Put/Delete.
// Grounded on frpc/etcdresolver.go's watch-then-diff loop, adapted from a
// grpc.resolver.ClientConn target to a plain UpdateObserver notification.
type DirectoryService struct {
	base
	client *clientv3.Client

	mu      sync.Mutex
	cancel  context.CancelFunc
	cache   map[string]wrpc.Endpoint // etcd key -> endpoint
	started bool
}

func NewDirectoryService(client *clientv3.Client) *DirectoryService {
	return &DirectoryService{client: client, cache: make(map[string]wrpc.Endpoint)}
}

// Refresh performs a full Get for prefix, then — on the first call for
// this service — starts a background watcher on that prefix that keeps the
// cache and observers current until Close is called; ctx bounds only the
// Get. A later call with a different prefix is not rejected: it replaces
// the cache with that prefix's entries, while the watcher keeps watching
// the first prefix.
func (d *DirectoryService) Refresh(ctx context.Context, prefix string) error {
	resp, err := d.client.Get(ctx, prefix, clientv3.WithPrefix())
	if err != nil {
		return fmt.Errorf("%w: %v", wrpc.ErrNamingBackend, err)
	}

	d.mu.Lock()
	d.cache = make(map[string]wrpc.Endpoint, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		if ep, ok := decodeRegisterValue(kv.Value); ok {
			d.cache[string(kv.Key)] = ep
		}
	}
	alreadyStarted := d.started
	d.started = true
	d.mu.Unlock()

	d.notify(d.snapshot())

	if !alreadyStarted {
		watchCtx, cancel := context.WithCancel(context.Background())
		d.mu.Lock()
		d.cancel = cancel
		d.mu.Unlock()
		go d.watch(watchCtx, prefix)
	}
	return nil
}

// Close stops the background watcher, if one was started.
func (d *DirectoryService) Close() {
	d.mu.Lock()
	cancel := d.cancel
	d.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (d *DirectoryService) snapshot() []wrpc.Endpoint {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]wrpc.Endpoint, 0, len(d.cache))
	for _, ep := range d.cache {
		out = append(out, ep)
	}
	return out
}

func (d *DirectoryService) watch(ctx context.Context, prefix string) {
	rch := d.client.Watch(ctx, prefix, clientv3.WithPrefix())
	for {
		select {
		case <-ctx.Done():
			return
		case wresp, ok := <-rch:
			if !ok {
				return
			}
			d.applyEvents(wresp)
		}
	}
}

func (d *DirectoryService) applyEvents(wresp clientv3.WatchResponse) {
	d.mu.Lock()
	for _, ev := range wresp.Events {
		switch ev.Type {
		case clientv3.EventTypePut:
			if ep, ok := decodeRegisterValue(ev.Kv.Value); ok {
				d.cache[string(ev.Kv.Key)] = ep
			}
		case clientv3.EventTypeDelete:
			delete(d.cache, string(ev.Kv.Key))
		}
	}
	d.mu.Unlock()

	d.notify(d.snapshot())
}

func decodeRegisterValue(raw []byte) (wrpc.Endpoint, bool) {
	var rv registerValue
	if err := json.Unmarshal(raw, &rv); err != nil {
		return wrpc.Endpoint{}, false
	}
	port, err := strconv.Atoi(rv.Port)
	if err != nil {
		return wrpc.Endpoint{}, false
	}
	ep, err := wrpc.NewEndpoint(rv.IP, port)
	if err != nil {
		return wrpc.Endpoint{}, false
	}
	return ep, true
}
