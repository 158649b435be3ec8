package wrpc

import "time"

// LoadBalancerContext carries per-attempt state across retries within one
// session, grounded on fapi.ServiceGroup's selection bookkeeping generalized
// to a per-call record instead of a per-group one.
type LoadBalancerContext struct {
	// Hash is the request fingerprint used by hash-based strategies.
	Hash uint64
	// RetryCount is the number of attempts already issued before this one
	// (0 on the first attempt).
	RetryCount int
	// Data is strategy-private scratch, e.g. the round-robin balancer
	// stashes its chosen starting offset here on the first attempt so
	// later retries advance from the same base.
	Data uint64
	// Tried lists endpoints already attempted this session, in order.
	Tried []Endpoint
	// CorrelationID identifies the session for logging/tracing.
	CorrelationID string
}

// FeedbackInfo is the per-attempt result handed back to the load balancer
// and to structured attempt logging, grounded on fapi.Service health/weight
// bookkeeping generalized into an explicit result record.
type FeedbackInfo struct {
	Endpoint    Endpoint
	Code        ReturnCode
	ConnectCost time.Duration
	WriteCost   time.Duration
	ReadCost    time.Duration
	TotalCost   time.Duration
}
