package wrpc

import "errors"

// Sentinel errors surfaced across package boundaries. Strategy and
// transport code should wrap these with fmt.Errorf("%w: ...") rather than
// constructing new unrelated error values, so callers can errors.Is them.
var (
	ErrNoChoosableEndPoint = errors.New("wrpc: no choosable endpoint")
	ErrMessageNotMatch     = errors.New("wrpc: response does not match expected framing")
	ErrParseMessage        = errors.New("wrpc: failed to parse message")
	ErrInvalidArgument     = errors.New("wrpc: invalid argument")
	ErrNotSupported        = errors.New("wrpc: not supported")
	ErrCanceled            = errors.New("wrpc: canceled")
	ErrDisconnected        = errors.New("wrpc: disconnected")
	ErrBackupSuccess       = errors.New("wrpc: sibling attempt succeeded first")
	ErrPoolExhausted       = errors.New("wrpc: connection pool exhausted")
	ErrBufferInUse         = errors.New("wrpc: inactive slot still has outstanding readers")
	ErrLoadFailed          = errors.New("wrpc: resource loader returned nil")
	ErrProtocolNotFound    = errors.New("wrpc: protocol strategy not registered")
	ErrStrategyNotFound    = errors.New("wrpc: named strategy not registered")
	ErrNamingBackend       = errors.New("wrpc: naming backend lookup failed")
)
