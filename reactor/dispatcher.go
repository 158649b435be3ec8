package reactor

import (
	"fmt"
	"net"
	"sync"
	"time"

	wrpc "github.com/source-build/go-wrpc"
	"github.com/source-build/go-wrpc/message"
)

// ReadFunc performs the blocking protocol read that fulfills a readiness
// registration; normally message.Reader.ReadFrom bound to a channel's
// configured protocol.
type ReadFunc func(conn net.Conn, deadline time.Time) (*message.Response, error)

type listenerKey struct {
	sessionID string
	fd        uintptr
}

// dispatcher owns one shard of (session_id, fd) registrations and bounds
// how many reads it runs concurrently, the idiomatic-Go stand-in for one
// epoll-instance event-loop thread's events-per-wait array size.
type dispatcher struct {
	index int

	mu     sync.Mutex
	active map[listenerKey]struct{}

	sem chan struct{}
}

func newDispatcher(index, maxConcurrent int) *dispatcher {
	if maxConcurrent <= 0 {
		maxConcurrent = 32
	}
	return &dispatcher{
		index:  index,
		active: make(map[listenerKey]struct{}),
		sem:    make(chan struct{}, maxConcurrent),
	}
}

// addListener registers (sessionID, fd) in edge-triggered one-shot mode:
// it spawns exactly one goroutine that performs the blocking read and
// dispatches exactly one notification, then the registration is gone —
// a caller must addListener again to re-arm, matching the one-notification-
// per-registration ordering guarantee expected of every dispatcher.
func (d *dispatcher) addListener(addresser *Addresser, sessionID string, conn net.Conn, deadline time.Time, read ReadFunc) error {
	fd := fdOf(conn)
	key := listenerKey{sessionID, fd}

	d.mu.Lock()
	if _, exists := d.active[key]; exists {
		d.mu.Unlock()
		return fmt.Errorf("%w: (%s, fd %d) already registered", wrpc.ErrInvalidArgument, sessionID, fd)
	}
	d.active[key] = struct{}{}
	d.mu.Unlock()

	d.sem <- struct{}{}
	go func() {
		defer func() { <-d.sem }()
		resp, err := read(conn, deadline)

		d.mu.Lock()
		delete(d.active, key)
		d.mu.Unlock()

		handle, ok := addresser.lookup(sessionID)
		if !ok {
			return // unknown/removed session id: no-op.
		}
		if err != nil {
			handle.OnError(fd, err)
			return
		}
		handle.OnReadable(fd, resp)
	}()
	return nil
}

// removeListener deregisters (sessionID, fd) if still pending; idempotent.
// It cannot interrupt an in-flight blocking read — the caller is expected
// to force that by closing or deadline-expiring the underlying
// connection, which is exactly what session cancellation does in wconn.
func (d *dispatcher) removeListener(sessionID string, conn net.Conn) {
	key := listenerKey{sessionID, fdOf(conn)}
	d.mu.Lock()
	delete(d.active, key)
	d.mu.Unlock()
}
