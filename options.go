package wrpc

import "time"

// ConnectionType selects what happens to a connection once an attempt
// finishes with it.
type ConnectionType int

const (
	// ConnectionShort closes the connection after every call.
	ConnectionShort ConnectionType = iota
	// ConnectionPooled returns the connection to its endpoint's pool.
	ConnectionPooled
)

func (c ConnectionType) String() string {
	if c == ConnectionPooled {
		return "POOLED"
	}
	return "SHORT"
}

// ChannelOptions configures one Channel. Fields are used as given: nothing
// replaces a zero value with DefaultChannelOptions' corresponding field, so
// a zero interval or timeout disables what it controls where its field
// says so.
type ChannelOptions struct {
	// Protocol names the request-writer/response-reader strategy pair
	// registered in the message package (e.g. "http", "redis", "nshead").
	Protocol string
	// LoadBalancer names the primary selection strategy registered in the
	// balancer package (e.g. "round_robin", "hash_mod", "consistent_hash").
	LoadBalancer string
	// RetryPolicy optionally names a distinct balancer strategy used once
	// RetryCount > 0. Empty or equal to LoadBalancer reuses the same
	// instance.
	RetryPolicy string
	// ConnectionType selects SHORT vs POOLED connection handling.
	ConnectionType ConnectionType
	// MaxConnectionPerEndpoint bounds idle connections kept per endpoint.
	MaxConnectionPerEndpoint int
	// MaxErrorCountPerEndpoint is the consecutive-failure threshold after
	// which a NORMAL endpoint transitions to DEAD. <=0 disables the
	// transition.
	MaxErrorCountPerEndpoint int
	// UpdateEndPointsInterval is the naming-service refresh period.
	UpdateEndPointsInterval time.Duration
	// HealthCheckInterval is the dead-endpoint probe period.
	HealthCheckInterval time.Duration
	// TotalTimeout bounds the whole session, dominating every sub-timeout.
	TotalTimeout time.Duration
	// ConnectTimeout bounds connection acquisition for one attempt when the
	// connection is dialed directly (SHORT connections, or an endpoint the
	// endpoint manager does not track). A POOLED endpoint's pool dials its
	// new connections without a timeout.
	ConnectTimeout time.Duration
	// BackupRequestTimeout is the delay after submit at which a backup
	// attempt is issued, if the session is still RUNNING. <=0 disables
	// backup requests.
	BackupRequestTimeout time.Duration
	// MaxRetryNum bounds the number of retry attempts beyond the initial
	// attempt. A backup attempt is issued only while this budget remains,
	// and it uses up one unit of it.
	MaxRetryNum int
}

// DefaultChannelOptions returns the process-wide defaults: one reactor
// thread's worth of background cadence, short-but-sane timeouts, and
// pooled connections.
func DefaultChannelOptions() ChannelOptions {
	return ChannelOptions{
		ConnectionType:           ConnectionPooled,
		MaxConnectionPerEndpoint: 8,
		MaxErrorCountPerEndpoint: 3,
		UpdateEndPointsInterval:  30 * time.Second,
		HealthCheckInterval:      5 * time.Second,
		TotalTimeout:             1 * time.Second,
		ConnectTimeout:           200 * time.Millisecond,
		BackupRequestTimeout:     0,
		MaxRetryNum:              0,
	}
}

// RuntimeOptions are process-wide tuning knobs, independent of any single
// Channel. A zero-value RuntimeOptions is not usable; call
// DefaultRuntimeOptions.
type RuntimeOptions struct {
	ReactorThreads        int
	BackgroundWorkers     int
	ReactorEventArraySize int
	HealthCheckConnectTO  time.Duration
	HeaderSizeLimit       int
}

func DefaultRuntimeOptions() RuntimeOptions {
	return RuntimeOptions{
		ReactorThreads:        1,
		BackgroundWorkers:     1,
		ReactorEventArraySize: 32,
		HealthCheckConnectTO:  500 * time.Millisecond,
		HeaderSizeLimit:       64 * 1024,
	}
}
