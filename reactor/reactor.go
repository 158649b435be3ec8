package reactor

import (
	"net"
	"time"
)

// Reactor owns N dispatcher shards, assigning each registration to
// dispatcher `fd mod N`. The default is a single dispatcher.
type Reactor struct {
	dispatchers []*dispatcher
	addresser   *Addresser
}

// Options configures dispatcher count and per-dispatcher concurrency
// (the events-per-wait knob).
type Options struct {
	DispatcherCount int
	EventsPerWait   int
}

func DefaultOptions() Options {
	return Options{DispatcherCount: 1, EventsPerWait: 32}
}

func New(addresser *Addresser, opts Options) *Reactor {
	n := opts.DispatcherCount
	if n <= 0 {
		n = 1
	}
	dispatchers := make([]*dispatcher, n)
	for i := range dispatchers {
		dispatchers[i] = newDispatcher(i, opts.EventsPerWait)
	}
	return &Reactor{dispatchers: dispatchers, addresser: addresser}
}

func (r *Reactor) shardFor(conn net.Conn) *dispatcher {
	fd := fdOf(conn)
	return r.dispatchers[fd%uintptr(len(r.dispatchers))]
}

// AddListener registers sessionID against conn for a one-shot readiness
// dispatch, performing the read via readFn once conn becomes ready (or
// errors/times out).
func (r *Reactor) AddListener(sessionID string, conn net.Conn, deadline time.Time, readFn ReadFunc) error {
	return r.shardFor(conn).addListener(r.addresser, sessionID, conn, deadline, readFn)
}

// RemoveListener deregisters sessionID from conn's dispatcher; idempotent.
func (r *Reactor) RemoveListener(sessionID string, conn net.Conn) {
	r.shardFor(conn).removeListener(sessionID, conn)
}

// Addresser returns the session addresser this reactor dispatches
// through, so channel/session code can Register/Remove session handles.
func (r *Reactor) Addresser() *Addresser {
	return r.addresser
}
