// Package reactor implements an event dispatcher and session addresser:
// N dispatcher objects, each responsible for a subset of connections
// keyed by `fd mod N`, delivering an edge-triggered, one-shot readiness
// notification back to the owning session.
//
// Go's net package already multiplexes socket readiness through its own
// runtime-integrated poller, so there's no raw epoll loop to port here.
// This keeps the N-dispatchers/fd-sharded-ownership/strictly-one-shot/
// weak-dispatch shape, but performs the actual wait via a
// dispatcher-owned goroutine blocking in the protocol Reader rather than
// a raw readiness multiplexer: the goroutine unblocking (with a response
// or an error) *is* the edge-triggered one-shot event.
package reactor

import (
	"reflect"
	"sync"
	"syscall"

	"net"

	"github.com/source-build/go-wrpc/message"
)

// SessionHandle is the narrow capability set the reactor dispatches into.
// A session (or its attempt) implements this without the reactor needing
// to import session directly, avoiding an import cycle.
type SessionHandle interface {
	OnReadable(fd uintptr, resp *message.Response)
	OnError(fd uintptr, err error)
}

// Addresser is the process-wide session-id -> handle map used to route
// reactor events back to the owning session. It intentionally stores plain
// pointers rather than attempting a GC-level weak reference (Go's stdlib
// has no portable weak pointer usable here pre-1.24, and this module
// targets go1.21 for atomic.Pointer[T] elsewhere — see DESIGN.md Open
// Question 4): the "weak handle" invariant is instead enforced
// behaviorally. A session must call Remove on its own terminal transition;
// nothing but the session's own strong references (held by the caller and
// by Detach) keep it alive, so the addresser never *extends* a session's
// lifetime on its own — it must never revive a session that is already
// dying.
type Addresser struct {
	mu       sync.RWMutex
	sessions map[string]SessionHandle
}

func NewAddresser() *Addresser {
	return &Addresser{sessions: make(map[string]SessionHandle)}
}

// Register associates id with handle. ids are expected to be unique for
// the process lifetime (callers use google/uuid); Register overwrites any
// prior association for the same id without complaint, since a reused id
// would itself be a caller bug outside this type's remit to detect.
func (a *Addresser) Register(id string, handle SessionHandle) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sessions[id] = handle
}

// Remove is idempotent.
func (a *Addresser) Remove(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.sessions, id)
}

func (a *Addresser) lookup(id string) (SessionHandle, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	h, ok := a.sessions[id]
	return h, ok
}

// fdOf extracts a raw file descriptor for dispatcher sharding when conn
// exposes one (*net.TCPConn and friends); otherwise it falls back to the
// connection's pointer identity, which is sufficient for sharding (never
// interpreted as an actual fd) and keeps in-memory test doubles such as
// net.Pipe working.
func fdOf(conn net.Conn) uintptr {
	if sc, ok := conn.(syscall.Conn); ok {
		if raw, err := sc.SyscallConn(); err == nil {
			var fd uintptr
			if ctrlErr := raw.Control(func(f uintptr) { fd = f }); ctrlErr == nil {
				return fd
			}
		}
	}
	return reflect.ValueOf(conn).Pointer()
}
