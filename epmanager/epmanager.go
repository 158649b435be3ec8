// Package epmanager implements an endpoint manager: it keeps the set of
// candidate endpoints, their alive/dead status and per-endpoint
// connection pools under one lock, runs periodic health checks against
// dead endpoints, and fans out membership/health changes to registered
// observers (load balancers) outside the lock.
//
// Adapted from an etcd-KV-driven *Service bookkeeping scheme
// (getServices/processKvPair/addServiceToGroup/watcher/handlerEvents
// diffing an endpoint set from naming-service events, plus per-service
// health and pool bookkeeping) into a plain endpoint+wrapper model with
// no etcd dependency of its own, and from a ServiceConnectionPool into
// the per-endpoint wconn.Pool lifecycle used here.
package epmanager

import (
	"sync"
	"time"

	wrpc "github.com/source-build/go-wrpc"
	"github.com/source-build/go-wrpc/wconn"
)

// Status is an endpoint wrapper's health.
type Status int

const (
	StatusNormal Status = iota
	StatusDead
)

type wrapper struct {
	endpoint wrpc.Endpoint
	status   Status
	errCount int
	pool     *wconn.Pool
}

// Dialer creates a new connection to an endpoint, bounded by connTimeout.
type Dialer func(ep wrpc.Endpoint, connTimeout time.Duration) (*wconn.Connection, error)

// Manager owns the endpoint -> wrapper map and the dead set. The zero
// value is not usable; construct with New.
type Manager struct {
	mu        sync.RWMutex
	endpoints map[wrpc.Endpoint]*wrapper

	connType     wrpc.ConnectionType
	maxIdle      int
	maxErrCount  int
	dialer       Dialer
	observers    []wrpc.EndpointObserver
	observersMu  sync.RWMutex
}

// New constructs an empty Manager. dialer is used both by fetch_connection
// (to create pool connections) and by health_check (to bare-connect probe
// dead endpoints).
func New(connType wrpc.ConnectionType, maxIdlePerEndpoint, maxErrorCount int, dialer Dialer) *Manager {
	return &Manager{
		endpoints:   make(map[wrpc.Endpoint]*wrapper),
		connType:    connType,
		maxIdle:     maxIdlePerEndpoint,
		maxErrCount: maxErrorCount,
		dialer:      dialer,
	}
}

// AddObserver registers an observer notified of every membership/health
// transition. It is safe to call concurrently with notifications: a
// notification in progress delivers to the observers registered when it
// began.
func (m *Manager) AddObserver(o wrpc.EndpointObserver) {
	m.observersMu.Lock()
	m.observers = append(m.observers, o)
	m.observersMu.Unlock()
}

func (m *Manager) notify(fn func(wrpc.EndpointObserver)) {
	m.observersMu.RLock()
	obs := append([]wrpc.EndpointObserver(nil), m.observers...)
	m.observersMu.RUnlock()
	for _, o := range obs {
		fn(o)
	}
}

func (m *Manager) newWrapper(ep wrpc.Endpoint) *wrapper {
	w := &wrapper{endpoint: ep, status: StatusNormal}
	if m.connType == wrpc.ConnectionPooled {
		w.pool = wconn.NewPool(ep, m.maxIdle, func() (*wconn.Connection, error) {
			return m.dialer(ep, 0)
		})
	}
	return w
}

// OnUpdate computes the add/remove diff against set, applies it under the
// lock, then notifies observers outside the lock: per-endpoint add/remove
// when combined churn is small (<=2), or a full OnUpdateAll otherwise.
func (m *Manager) OnUpdate(set []wrpc.Endpoint) {
	want := make(map[wrpc.Endpoint]struct{}, len(set))
	for _, ep := range set {
		want[ep] = struct{}{}
	}

	var added, removed []wrpc.Endpoint

	m.mu.Lock()
	for ep := range want {
		if _, ok := m.endpoints[ep]; !ok {
			m.endpoints[ep] = m.newWrapper(ep)
			added = append(added, ep)
		}
	}
	for ep, w := range m.endpoints {
		if _, ok := want[ep]; !ok {
			if w.pool != nil {
				w.pool.Close()
			}
			delete(m.endpoints, ep)
			removed = append(removed, ep)
		}
	}
	m.mu.Unlock()

	churn := len(added) + len(removed)
	if churn == 0 {
		return
	}
	if churn <= 2 {
		for _, ep := range added {
			m.notify(func(o wrpc.EndpointObserver) { o.OnAddOne(ep) })
		}
		for _, ep := range removed {
			m.notify(func(o wrpc.EndpointObserver) { o.OnRemoveOne(ep) })
		}
		return
	}
	alive, dead := m.snapshotLocked()
	m.notify(func(o wrpc.EndpointObserver) { o.OnUpdateAll(alive, dead) })
}

func (m *Manager) snapshotLocked() (alive, dead []wrpc.Endpoint) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for ep, w := range m.endpoints {
		if w.status == StatusDead {
			dead = append(dead, ep)
		} else {
			alive = append(alive, ep)
		}
	}
	return alive, dead
}

// Snapshot returns the current alive and dead endpoint lists.
func (m *Manager) Snapshot() (alive, dead []wrpc.Endpoint) {
	return m.snapshotLocked()
}

// HealthCheck snapshots dead endpoints, bare-connects to each outside the
// lock, and flips any that succeed back to NORMAL, notifying observers
// outside the lock.
func (m *Manager) HealthCheck(connectTimeout time.Duration) {
	m.mu.RLock()
	var deadEps []wrpc.Endpoint
	for ep, w := range m.endpoints {
		if w.status == StatusDead {
			deadEps = append(deadEps, ep)
		}
	}
	m.mu.RUnlock()

	for _, ep := range deadEps {
		c, err := m.dialer(ep, connectTimeout)
		if err != nil {
			continue
		}
		_ = c.Close()

		m.mu.Lock()
		w, ok := m.endpoints[ep]
		if ok && w.status == StatusDead {
			w.status = StatusNormal
			w.errCount = 0
			if m.connType == wrpc.ConnectionPooled && w.pool == nil {
				w.pool = wconn.NewPool(ep, m.maxIdle, func() (*wconn.Connection, error) {
					return m.dialer(ep, 0)
				})
			}
		}
		m.mu.Unlock()

		if ok {
			m.notify(func(o wrpc.EndpointObserver) { o.OnSetAlive(ep) })
		}
	}
}

// FetchConnection fetches a connection for ep: an endpoint absent
// from the map gets a direct, unregistered connection; otherwise the
// endpoint's pool (or a direct dial for SHORT connections) is used, with
// consecutive-error tracking driving the NORMAL<->DEAD transition.
func (m *Manager) FetchConnection(ep wrpc.Endpoint, connectTimeout time.Duration) (*wconn.Connection, error) {
	m.mu.RLock()
	w, ok := m.endpoints[ep]
	m.mu.RUnlock()

	if !ok {
		return m.dialer(ep, connectTimeout)
	}

	var (
		c   *wconn.Connection
		err error
	)
	if m.connType == wrpc.ConnectionPooled && w.pool != nil {
		c, err = w.pool.Fetch()
	} else {
		c, err = m.dialer(ep, connectTimeout)
	}

	if err != nil {
		m.recordFailure(ep)
		return nil, err
	}
	m.recordSuccess(ep)
	return c, nil
}

func (m *Manager) recordFailure(ep wrpc.Endpoint) {
	m.mu.Lock()
	w, ok := m.endpoints[ep]
	if !ok {
		m.mu.Unlock()
		return
	}
	w.errCount++
	becameDead := m.maxErrCount > 0 && w.errCount >= m.maxErrCount && w.status == StatusNormal
	if becameDead {
		w.status = StatusDead
		if w.pool != nil {
			w.pool.Close()
			w.pool = nil
		}
	}
	m.mu.Unlock()
	if becameDead {
		m.notify(func(o wrpc.EndpointObserver) { o.OnSetDeath(ep) })
	}
}

func (m *Manager) recordSuccess(ep wrpc.Endpoint) {
	m.mu.Lock()
	w, ok := m.endpoints[ep]
	if !ok {
		m.mu.Unlock()
		return
	}
	w.errCount = 0
	becameAlive := w.status == StatusDead
	if becameAlive {
		w.status = StatusNormal
		if m.connType == wrpc.ConnectionPooled && w.pool == nil {
			w.pool = wconn.NewPool(ep, m.maxIdle, func() (*wconn.Connection, error) {
				return m.dialer(ep, 0)
			})
		}
	}
	m.mu.Unlock()
	if becameAlive {
		m.notify(func(o wrpc.EndpointObserver) { o.OnSetAlive(ep) })
	}
}

// GiveBackConnection closes directly if close is requested, the endpoint
// is absent, or it is DEAD; otherwise returns the connection to its pool.
func (m *Manager) GiveBackConnection(ep wrpc.Endpoint, c *wconn.Connection, forceClose bool) {
	if c == nil {
		return
	}
	if forceClose {
		_ = c.Close()
		return
	}
	m.mu.RLock()
	w, ok := m.endpoints[ep]
	m.mu.RUnlock()
	if !ok || w.status == StatusDead || w.pool == nil {
		_ = c.Close()
		return
	}
	w.pool.GiveBack(c)
}
