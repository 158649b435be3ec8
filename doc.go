// Package wrpc is the core of a client-side RPC runtime: endpoint
// selection, connection pooling, load balancing, retries and backup
// requests, and an event-driven response reader sit on top of the
// primitives exposed by its subpackages (wtime, objpool, blockqueue,
// taskqueue, workerpool, reactor, reload).
//
// A caller builds a Channel bound to one downstream address, obtains a
// session.Controller from it per call, and drives the call through
// Submit/Join or an asynchronous callback.
package wrpc
