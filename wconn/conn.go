// Package wconn implements Connection and a per-endpoint ConnectionPool:
// a stream-socket wrapper with a Created->Connected->Closed lifecycle and
// deadline-bounded I/O, and a bounded free list of idle connections per
// endpoint.
//
// Adapted from a two-tier *grpc.ClientConn pool keyed by service id, with
// a least-active selection algorithm and a background idle-eviction
// ticker, retargeted from pooling *grpc.ClientConn to pooling raw
// net.Conn since this module has no gRPC/protobuf framing dependency.
package wconn

import (
	"net"
	"sync"
	"time"

	wrpc "github.com/source-build/go-wrpc"
)

// Status is a Connection's lifecycle stage.
type Status int

const (
	StatusCreated Status = iota
	StatusConnected
	StatusClosed
)

// Connection owns one stream socket. At most one goroutine performs I/O on
// a Connection at a time; that invariant is enforced by the attempt that
// borrows it, not by Connection itself (a mutex here would only hide a
// caller bug).
type Connection struct {
	endpoint wrpc.Endpoint
	conn     net.Conn
	status   Status
	lastUsed time.Time
}

// Dial creates and connects a new Connection to endpoint within timeout.
// A non-positive timeout means unbounded (unlike wtime.CountdownTimer,
// where a zero timeout has already expired).
func Dial(endpoint wrpc.Endpoint, timeout time.Duration) (*Connection, error) {
	var (
		c   net.Conn
		err error
	)
	if timeout > 0 {
		c, err = net.DialTimeout("tcp", endpoint.Address(), timeout)
	} else {
		c, err = net.Dial("tcp", endpoint.Address())
	}
	if err != nil {
		return nil, err
	}
	return &Connection{endpoint: endpoint, conn: c, status: StatusConnected, lastUsed: time.Now()}, nil
}

// Wrap adapts an already-connected net.Conn into a Connection, for callers
// that obtained the socket some other way (tests, or a health-check probe
// reusing an existing connection rather than dialing a fresh one).
func Wrap(endpoint wrpc.Endpoint, conn net.Conn) *Connection {
	return &Connection{endpoint: endpoint, conn: conn, status: StatusConnected, lastUsed: time.Now()}
}

func (c *Connection) Endpoint() wrpc.Endpoint { return c.endpoint }
func (c *Connection) Status() Status          { return c.status }
func (c *Connection) Raw() net.Conn           { return c.conn }
func (c *Connection) Touch()                  { c.lastUsed = time.Now() }
func (c *Connection) IdleSince() time.Time    { return c.lastUsed }

// Write writes b to the socket, returning once deadline is reached if it
// has not completed. deadline.IsZero() means unbounded.
func (c *Connection) Write(b []byte, deadline time.Time) (int, error) {
	if !deadline.IsZero() {
		if err := c.conn.SetWriteDeadline(deadline); err != nil {
			return 0, err
		}
	}
	return c.conn.Write(b)
}

// Read reads into b under the same deadline convention as Write.
func (c *Connection) Read(b []byte, deadline time.Time) (int, error) {
	if !deadline.IsZero() {
		if err := c.conn.SetReadDeadline(deadline); err != nil {
			return 0, err
		}
	}
	return c.conn.Read(b)
}

// Healthy does a one-byte read with a 1ms deadline to detect whether the
// peer has closed the connection; a byte that does arrive is consumed and
// discarded. It is the raw-net.Conn
// analogue of an isConnectionHealthy probe built on grpc.ClientConn.
// GetState (no state machine to query here, so we probe instead).
func (c *Connection) Healthy() bool {
	if c.status != StatusConnected {
		return false
	}
	one := make([]byte, 1)
	_ = c.conn.SetReadDeadline(time.Now().Add(time.Millisecond))
	_, err := c.conn.Read(one)
	_ = c.conn.SetReadDeadline(time.Time{})
	if err == nil {
		return true // unexpected data, but socket is alive
	}
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return true // no data pending, which is the expected healthy state
	}
	return false
}

// Close closes the socket. Idempotent.
func (c *Connection) Close() error {
	if c.status == StatusClosed {
		return nil
	}
	c.status = StatusClosed
	return c.conn.Close()
}

// Pool is a bounded free list of idle connections for one endpoint,
// grounded on frpc/connectionPool.go's ServiceConnectionPool, narrowed
// from "least active connection of N" (meaningful for long-lived
// multiplexed gRPC streams) to a plain idle free list (the right shape
// for this module's one-connection-per-attempt model).
type Pool struct {
	endpoint wrpc.Endpoint
	capacity int
	creator  func() (*Connection, error)

	mu   sync.Mutex
	idle []*Connection

	idleTimeout time.Duration
	stopCh      chan struct{}
	stopOnce    sync.Once
}

// NewPool builds a Pool bounded to capacity idle connections, using
// creator to dial new ones on demand.
func NewPool(endpoint wrpc.Endpoint, capacity int, creator func() (*Connection, error)) *Pool {
	if capacity < 1 {
		capacity = 1
	}
	return &Pool{
		endpoint: endpoint,
		capacity: capacity,
		creator:  creator,
		stopCh:   make(chan struct{}),
	}
}

// Endpoint returns the endpoint this pool serves.
func (p *Pool) Endpoint() wrpc.Endpoint { return p.endpoint }

// Fetch returns a cached idle connection if one is available, otherwise
// dials a new one via creator.
func (p *Pool) Fetch() (*Connection, error) {
	p.mu.Lock()
	for len(p.idle) > 0 {
		n := len(p.idle) - 1
		c := p.idle[n]
		p.idle[n] = nil
		p.idle = p.idle[:n]
		p.mu.Unlock()
		if c.Healthy() {
			return c, nil
		}
		_ = c.Close()
		p.mu.Lock()
	}
	p.mu.Unlock()
	return p.creator()
}

// GiveBack returns c to the pool if there is room, otherwise closes it.
func (p *Pool) GiveBack(c *Connection) {
	if c == nil {
		return
	}
	c.Touch()
	p.mu.Lock()
	if len(p.idle) >= p.capacity {
		p.mu.Unlock()
		_ = c.Close()
		return
	}
	p.idle = append(p.idle, c)
	p.mu.Unlock()
}

// Len reports the current idle connection count.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle)
}

// StartIdleEviction launches a background ticker closing idle connections
// older than idleTimeout, adapted from a cleanupExpiredConnections-style
// sweep. Goes beyond a fixed free list with no eviction, justified in
// DESIGN.md: leaked *net.Conn file descriptors are real GC pressure any
// long-running Go process must account for.
func (p *Pool) StartIdleEviction(interval, idleTimeout time.Duration) {
	p.idleTimeout = idleTimeout
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.evictIdle()
			case <-p.stopCh:
				return
			}
		}
	}()
}

func (p *Pool) evictIdle() {
	cutoff := time.Now().Add(-p.idleTimeout)
	p.mu.Lock()
	kept := p.idle[:0]
	var toClose []*Connection
	for _, c := range p.idle {
		if c.IdleSince().Before(cutoff) {
			toClose = append(toClose, c)
		} else {
			kept = append(kept, c)
		}
	}
	p.idle = kept
	p.mu.Unlock()
	for _, c := range toClose {
		_ = c.Close()
	}
}

// Close closes every idle connection and stops background eviction.
func (p *Pool) Close() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.mu.Lock()
	conns := p.idle
	p.idle = nil
	p.mu.Unlock()
	for _, c := range conns {
		_ = c.Close()
	}
}
