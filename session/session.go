// Package session implements the RPC session controller and request
// attempt: the state machine that spawns one primary attempt and
// optionally one backup attempt, integrates with the reactor for
// asynchronous response dispatch, and synchronizes submit/join/
// detach/cancel against concurrent completion.
//
// No direct prior analogue exists for this part (a plain RPC client
// issues one synchronous call per request with no backup-request or
// reactor-dispatch machinery); this is a state-transition table plus
// retry rule built fresh, using the same mutex+condvar synchronization
// idiom the rest of this module uses throughout (blockqueue,
// taskqueue.Timer, wconn.Pool).
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pochard/commons/randstr"
	wrpc "github.com/source-build/go-wrpc"
	"github.com/source-build/go-wrpc/background"
	"github.com/source-build/go-wrpc/flog"
	"github.com/source-build/go-wrpc/message"
	"github.com/source-build/go-wrpc/reactor"
	"github.com/source-build/go-wrpc/wconn"
	"go.uber.org/zap"
)

// Downstream is the narrow capability set a Controller needs from its
// owning channel. It lives here, not in package channel, so that channel
// can import session without session importing channel back.
type Downstream interface {
	Options() wrpc.ChannelOptions
	Protocol() message.Protocol
	SelectEndpoint(ctx *wrpc.LoadBalancerContext) (wrpc.Endpoint, error)
	FetchConnection(ep wrpc.Endpoint, timeout time.Duration) (*wconn.Connection, error)
	GiveBackConnection(ep wrpc.Endpoint, conn *wconn.Connection, forceClose bool)
	Feedback(info wrpc.FeedbackInfo)
	Reactor() *reactor.Reactor
	Scheduler() *background.Scheduler
}

// Status is a session's lifecycle stage.
type Status int

const (
	StatusInit Status = iota
	StatusSubmitting
	StatusRunning
	StatusSuccess
	StatusFailed
	StatusTimeout
	StatusCanceled
)

func (s Status) Terminal() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusTimeout, StatusCanceled:
		return true
	default:
		return false
	}
}

func (s Status) String() string {
	switch s {
	case StatusInit:
		return "INIT"
	case StatusSubmitting:
		return "SUBMITTING"
	case StatusRunning:
		return "RUNNING"
	case StatusSuccess:
		return "SUCCESS"
	case StatusFailed:
		return "FAILED"
	case StatusTimeout:
		return "TIMEOUT"
	case StatusCanceled:
		return "CANCELED"
	default:
		return "UNKNOWN"
	}
}

// Callback runs exactly once per session on terminal transition.
type Callback func(req *message.Request, resp *message.Response, code wrpc.ReturnCode)

// Controller is the RPC session state machine and its data model.
type Controller struct {
	id         string
	logID      string
	downstream Downstream
	opts       wrpc.ChannelOptions
	req        *message.Request

	mu       sync.Mutex
	cond     *sync.Cond
	status   Status
	callback Callback

	retryCount int
	hasBackup  bool
	tried      []wrpc.Endpoint

	primary, backup         *attempt
	primaryDone, backupDone bool

	terminalCode wrpc.ReturnCode
	response     *message.Response

	totalDeadline time.Time

	// selfRef holds a strong reference to this Controller only while
	// Detach()ed, so completion can proceed with no external handle
	// keeping it alive; dropped on terminal transition.
	selfRef *Controller
}

// New constructs a Controller for one RPC call against downstream.
func New(downstream Downstream, req *message.Request) *Controller {
	c := &Controller{
		id: uuid.NewString(),
		// logID is a short numeric id suitable for grepping across log
		// lines for one session, distinct from the UUID correlation id
		// used internally for retry bookkeeping.
		logID:      randstr.RandomNumeric(16),
		downstream: downstream,
		opts:       downstream.Options(),
		req:        req,
		status:     StatusInit,
	}
	c.cond = sync.NewCond(&c.mu)
	return c
}

func (c *Controller) ID() string { return c.id }

// LogID returns the numeric log-correlation id assigned at construction,
// for callers threading it into their own request logging.
func (c *Controller) LogID() string { return c.logID }

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Submit issues the primary attempt synchronously and returns once
// issuance either succeeded or exhausted its retry budget; it does not
// wait for the response — call Join for that.
func (c *Controller) Submit() error {
	return c.submit(nil)
}

// SubmitWithCallback is Submit plus a callback invoked exactly once on
// terminal transition.
func (c *Controller) SubmitWithCallback(cb Callback) error {
	return c.submit(cb)
}

// SubmitAsync enqueues Submit onto the background scheduler and returns
// immediately.
func (c *Controller) SubmitAsync(cb Callback) {
	c.mu.Lock()
	c.status = StatusSubmitting
	c.mu.Unlock()
	c.downstream.Scheduler().PushNow(func() {
		_ = c.submit(cb)
	})
}

func (c *Controller) submit(cb Callback) error {
	c.mu.Lock()
	if c.status != StatusInit && c.status != StatusSubmitting {
		c.mu.Unlock()
		return fmt.Errorf("%w: session already submitted", wrpc.ErrInvalidArgument)
	}
	c.status = StatusRunning
	c.callback = cb
	if c.opts.TotalTimeout > 0 {
		c.totalDeadline = time.Now().Add(c.opts.TotalTimeout)
	}
	c.mu.Unlock()

	issued, code := c.attemptLoop()
	if !issued {
		c.finish(code, nil)
		return fmt.Errorf("%w: primary issuance failed with %s", wrpc.ErrDisconnected, code)
	}

	if c.opts.TotalTimeout > 0 {
		c.scheduleTimeout()
	}
	if c.opts.BackupRequestTimeout > 0 {
		c.scheduleBackup()
	}
	return nil
}

// attemptLoop repeatedly issues a primary attempt, consuming retry budget
// on each connect/send-stage failure, until one issuance succeeds or the
// retry budget/deadline is exhausted.
func (c *Controller) attemptLoop() (issued bool, lastCode wrpc.ReturnCode) {
	for {
		code, err := c.issueAttempt(attemptPrimary)
		if err == nil {
			return true, wrpc.CodeSuccess
		}
		lastCode = code
		if !code.Retryable() {
			return false, code
		}
		c.mu.Lock()
		if !c.canRetryLocked() {
			c.mu.Unlock()
			return false, code
		}
		c.retryCount++
		c.mu.Unlock()
	}
}

func (c *Controller) canRetryLocked() bool {
	if c.retryCount >= c.opts.MaxRetryNum {
		return false
	}
	if !c.totalDeadline.IsZero() && !time.Now().Before(c.totalDeadline) {
		return false
	}
	return true
}

// Join blocks until the session reaches a terminal state, then returns its
// code. The reactor already dispatches on its own goroutines, so there is
// no separate inline-task drain to perform here — join is a plain
// condition-variable wait. See DESIGN.md.
func (c *Controller) Join() wrpc.ReturnCode {
	c.mu.Lock()
	for !c.status.Terminal() {
		c.cond.Wait()
	}
	code := c.terminalCode
	c.mu.Unlock()
	return code
}

// Response returns the response read on SUCCESS, or nil otherwise.
func (c *Controller) Response() *message.Response {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.response
}

// Detach retains a strong self-reference so the session may complete
// without any external handle.
func (c *Controller) Detach() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.selfRef == nil && !c.status.Terminal() {
		c.selfRef = c
	}
}

// Cancel transitions a non-terminal session to CANCELED, unregisters its
// attempts from the reactor, and closes their connections.
func (c *Controller) Cancel(runCallback bool) {
	c.mu.Lock()
	if c.status.Terminal() {
		c.mu.Unlock()
		return
	}
	c.status = StatusCanceled
	c.terminalCode = wrpc.CodeCanceled
	primary, backup := c.primary, c.backup
	cb := c.callback
	if !runCallback {
		cb = nil
	}
	req := c.req
	selfRef := c.selfRef
	c.selfRef = nil
	c.mu.Unlock()

	c.cancelAttempt(primary, wrpc.CodeCanceled)
	c.cancelAttempt(backup, wrpc.CodeCanceled)

	flog.Info("[session]: canceled", zap.String("log_id", c.logID))
	c.mu.Lock()
	c.cond.Broadcast()
	c.mu.Unlock()

	if cb != nil {
		cb(req, nil, wrpc.CodeCanceled)
	}
	_ = selfRef
}

func (c *Controller) scheduleTimeout() {
	c.downstream.Scheduler().PushAt(c.totalDeadline, func() {
		c.mu.Lock()
		if c.status.Terminal() {
			c.mu.Unlock()
			return
		}
		primary, backup := c.primary, c.backup
		c.mu.Unlock()

		c.cancelAttempt(primary, wrpc.CodeTimeout)
		c.cancelAttempt(backup, wrpc.CodeTimeout)
		c.finish(wrpc.CodeTimeout, nil)
	})
}

func (c *Controller) scheduleBackup() {
	delay := c.opts.BackupRequestTimeout
	if !c.totalDeadline.IsZero() {
		if remaining := time.Until(c.totalDeadline); remaining < delay {
			delay = remaining
		}
	}
	if delay <= 0 {
		return
	}
	c.downstream.Scheduler().PushDelay(delay, func() {
		c.mu.Lock()
		if c.status.Terminal() || c.backup != nil || !c.canRetryLocked() {
			c.mu.Unlock()
			return
		}
		c.retryCount++
		c.mu.Unlock()
		flog.Debug("[session]: backup request fired", zap.String("log_id", c.logID))
		// A failed backup issuance isn't fatal: the primary may still
		// succeed, so its error is deliberately discarded here.
		_, _ = c.issueAttempt(attemptBackup)
	})
}

// finish performs the one-time terminal transition, invoking the
// callback and waking joiners exactly once.
func (c *Controller) finish(code wrpc.ReturnCode, resp *message.Response) {
	c.mu.Lock()
	if c.status.Terminal() {
		c.mu.Unlock()
		return
	}
	switch code {
	case wrpc.CodeSuccess:
		c.status = StatusSuccess
	case wrpc.CodeTimeout:
		c.status = StatusTimeout
	case wrpc.CodeCanceled:
		c.status = StatusCanceled
	default:
		c.status = StatusFailed
	}
	c.terminalCode = code
	c.response = resp
	cb := c.callback
	req := c.req
	selfRef := c.selfRef
	c.selfRef = nil
	c.mu.Unlock()

	c.cond.Broadcast()
	flog.Debug("[session]: finished", zap.String("log_id", c.logID), zap.String("status", c.status.String()), zap.String("code", code.String()))
	if cb != nil {
		cb(req, resp, code)
	}
	_ = selfRef
}
