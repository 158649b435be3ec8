package session

import (
	"fmt"
	"net"
	"time"

	wrpc "github.com/source-build/go-wrpc"
	"github.com/source-build/go-wrpc/flog"
	"github.com/source-build/go-wrpc/message"
	"github.com/source-build/go-wrpc/wconn"
	"go.uber.org/zap"
)

type attemptKind string

const (
	attemptPrimary attemptKind = "primary"
	attemptBackup  attemptKind = "backup"
)

// attempt is one in-flight request over one connection. It implements
// reactor.SessionHandle directly so the reactor can dispatch to it without
// the Controller having to disambiguate which of its (up to two)
// concurrent attempts a given fd belongs to.
type attempt struct {
	ctrl     *Controller
	kind     attemptKind
	conn     *wconn.Connection
	endpoint wrpc.Endpoint

	startedAt   time.Time
	connectCost time.Duration
	writeCost   time.Duration
}

func (a *attempt) addresserID() string {
	return a.ctrl.id + "#" + string(a.kind)
}

// OnReadable implements reactor.SessionHandle: the blocking protocol read
// returned a complete response.
func (a *attempt) OnReadable(fd uintptr, resp *message.Response) {
	a.ctrl.completeAttempt(a, resp, wrpc.CodeSuccess, nil)
}

// OnError implements reactor.SessionHandle: the blocking protocol read
// returned an error (closed connection, deadline, malformed wire data).
func (a *attempt) OnError(fd uintptr, err error) {
	a.ctrl.completeAttempt(a, nil, classifyError(err), err)
}

func classifyError(err error) wrpc.ReturnCode {
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return wrpc.CodeTimeout
	}
	return wrpc.CodeRecvFail
}

// issueAttempt selects an endpoint, fetches a connection, writes the
// request, and registers the attempt with the reactor for asynchronous
// response dispatch. It returns once issuance either succeeded (the
// caller should now wait for OnReadable/OnError) or failed outright.
func (c *Controller) issueAttempt(kind attemptKind) (wrpc.ReturnCode, error) {
	c.mu.Lock()
	retryCount := c.retryCount
	tried := append([]wrpc.Endpoint(nil), c.tried...)
	c.mu.Unlock()

	lbCtx := &wrpc.LoadBalancerContext{
		RetryCount:    retryCount,
		Tried:         tried,
		CorrelationID: c.id,
	}
	ep, err := c.downstream.SelectEndpoint(lbCtx)
	if err != nil {
		return wrpc.CodeNoChoosableEndPoint, fmt.Errorf("%w: %v", wrpc.ErrNoChoosableEndPoint, err)
	}

	// Mark ep tried as soon as it's chosen, not only on eventual success:
	// a connect/send failure must not make the next retry pick between the
	// same endpoints with the same "untried" information.
	c.mu.Lock()
	c.tried = append(c.tried, ep)
	c.mu.Unlock()

	start := time.Now()
	conn, err := c.downstream.FetchConnection(ep, c.opts.ConnectTimeout)
	connectCost := time.Since(start)
	if err != nil {
		c.downstream.Feedback(wrpc.FeedbackInfo{Endpoint: ep, Code: wrpc.CodeConnectFail, ConnectCost: connectCost})
		return wrpc.CodeConnectFail, fmt.Errorf("%w: %v", wrpc.ErrDisconnected, err)
	}

	a := &attempt{ctrl: c, kind: kind, conn: conn, endpoint: ep, startedAt: time.Now(), connectCost: connectCost}

	deadline := c.totalDeadline

	writeStart := time.Now()
	if err := c.downstream.Protocol().WriteTo(conn.Raw(), c.req, deadline); err != nil {
		a.writeCost = time.Since(writeStart)
		c.downstream.GiveBackConnection(ep, conn, true)
		c.downstream.Feedback(wrpc.FeedbackInfo{Endpoint: ep, Code: wrpc.CodeSendFail, ConnectCost: connectCost, WriteCost: a.writeCost})
		return wrpc.CodeSendFail, fmt.Errorf("%w: %v", wrpc.ErrDisconnected, err)
	}
	a.writeCost = time.Since(writeStart)

	c.mu.Lock()
	if kind == attemptPrimary {
		c.primary = a
	} else {
		c.backup = a
		c.hasBackup = true
	}
	c.mu.Unlock()

	readFn := func(conn net.Conn, deadline time.Time) (*message.Response, error) {
		return c.downstream.Protocol().ReadFrom(conn, deadline)
	}
	c.downstream.Reactor().Addresser().Register(a.addresserID(), a)
	if err := c.downstream.Reactor().AddListener(a.addresserID(), conn.Raw(), deadline, readFn); err != nil {
		c.downstream.Reactor().Addresser().Remove(a.addresserID())
		c.downstream.GiveBackConnection(ep, conn, true)
		return wrpc.CodeEpollFail, fmt.Errorf("%w: %v", wrpc.ErrDisconnected, err)
	}
	return wrpc.CodeSuccess, nil
}

// cancelAttempt unregisters a from the reactor and forces its connection
// closed so any blocking read unblocks with an error; the dispatch that
// follows finds the addresser entry already gone and no-ops, per
// reactor's documented "dispatch to a removed session is a no-op".
func (c *Controller) cancelAttempt(a *attempt, code wrpc.ReturnCode) {
	if a == nil {
		return
	}
	c.downstream.Reactor().RemoveListener(a.addresserID(), a.conn.Raw())
	c.downstream.Reactor().Addresser().Remove(a.addresserID())
	_ = a.conn.Close()
	c.downstream.Feedback(wrpc.FeedbackInfo{Endpoint: a.endpoint, Code: code})
}

func (c *Controller) markDoneLocked(a *attempt) {
	if a == nil {
		return
	}
	if a.kind == attemptPrimary {
		c.primaryDone = true
	} else {
		c.backupDone = true
	}
}

// siblingDoneLocked reports whether the attempt opposite a has already
// completed (or never existed), i.e. whether nothing further can rescue
// this session.
func (c *Controller) siblingDoneLocked(a *attempt) (sibling *attempt, done bool) {
	if a.kind == attemptPrimary {
		sibling = c.backup
		done = !c.hasBackup || c.backupDone
	} else {
		sibling = c.primary
		done = c.primaryDone
	}
	return sibling, done
}

// completeAttempt is the single entry point for an attempt reaching a
// terminal outcome, whether via OnReadable/OnError or a forced cancel's
// eventual dispatch. It applies the retry/backup/terminal transition rules.
func (c *Controller) completeAttempt(a *attempt, resp *message.Response, code wrpc.ReturnCode, _ error) {
	c.downstream.Reactor().Addresser().Remove(a.addresserID())

	totalCost := time.Since(a.startedAt)
	c.downstream.Feedback(wrpc.FeedbackInfo{
		Endpoint:    a.endpoint,
		Code:        code,
		ConnectCost: a.connectCost,
		WriteCost:   a.writeCost,
		TotalCost:   totalCost,
	})

	forceClose := code != wrpc.CodeSuccess || c.opts.ConnectionType != wrpc.ConnectionPooled
	c.downstream.GiveBackConnection(a.endpoint, a.conn, forceClose)

	c.mu.Lock()
	if c.status.Terminal() {
		c.mu.Unlock()
		return
	}

	if code == wrpc.CodeSuccess {
		sibling, _ := c.siblingDoneLocked(a)
		c.markDoneLocked(a)
		c.mu.Unlock()
		c.cancelAttempt(sibling, wrpc.CodeBackupSuccess)
		c.finish(wrpc.CodeSuccess, resp)
		return
	}

	if !code.Retryable() || a.kind == attemptBackup {
		c.markDoneLocked(a)
		sibling, siblingDone := c.siblingDoneLocked(a)
		c.mu.Unlock()
		if sibling == nil || siblingDone {
			c.finish(code, nil)
		}
		return
	}

	// a.kind == attemptPrimary and code is retryable.
	if !c.canRetryLocked() {
		c.markDoneLocked(a)
		sibling, siblingDone := c.siblingDoneLocked(a)
		c.mu.Unlock()
		if sibling == nil || siblingDone {
			c.finish(code, nil)
		}
		return
	}
	c.retryCount++
	retryCount := c.retryCount
	c.mu.Unlock()

	flog.Debug("[session]: retrying", zap.String("log_id", c.logID), zap.Int("retry_count", retryCount), zap.String("code", code.String()))
	issued, lastCode := c.attemptLoop()
	if !issued {
		c.mu.Lock()
		c.markDoneLocked(a)
		sibling, siblingDone := c.siblingDoneLocked(a)
		c.mu.Unlock()
		if sibling == nil || siblingDone {
			c.finish(lastCode, nil)
		}
	}
}
