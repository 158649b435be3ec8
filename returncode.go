package wrpc

// ReturnCode is the terminal or per-attempt result code threaded through
// feedback, retry decisions, and the user callback. Numeric values are not
// part of any wire format and may be renumbered freely.
type ReturnCode int

const (
	// CodeSuccess is the only code reported when a response was read.
	CodeSuccess ReturnCode = iota
	CodeConnectFail
	CodeSendFail
	CodeRecvFail
	CodeTimeout
	CodeInternalError
	CodeUnknown
	CodeEpollFail
	CodeDisconnected
	CodeInvalidArgument
	CodeCanceled
	CodeBackupSuccess
	CodeNoChoosableEndPoint
	CodeMessageNotMatch
	CodeParseMessageFail
	CodeNotSupported
)

var codeNames = map[ReturnCode]string{
	CodeSuccess:             "SUCCESS",
	CodeConnectFail:         "CONNECT_FAIL",
	CodeSendFail:            "SEND_FAIL",
	CodeRecvFail:            "RECV_FAIL",
	CodeTimeout:             "TIMEOUT",
	CodeInternalError:       "INTERNAL_ERROR",
	CodeUnknown:             "UNKNOWN",
	CodeEpollFail:           "EPOLL_FAIL",
	CodeDisconnected:        "DISCONNECTED",
	CodeInvalidArgument:     "INVALID_ARGUMENT",
	CodeCanceled:            "CANCELED",
	CodeBackupSuccess:       "BACKUP_SUCCESS",
	CodeNoChoosableEndPoint: "NO_CHOOSABLE_END_POINT",
	CodeMessageNotMatch:     "MESSAGE_NOT_MATCH",
	CodeParseMessageFail:    "PARSE_MESSAGE_FAIL",
	CodeNotSupported:        "NOT_SUPPORTED",
}

func (c ReturnCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return "UNKNOWN"
}

// retryable holds the codes eligible for a retry attempt: transport-layer
// failures and bounded timeouts.
var retryable = map[ReturnCode]bool{
	CodeConnectFail:   true,
	CodeSendFail:      true,
	CodeRecvFail:      true,
	CodeTimeout:       true,
	CodeInternalError: true,
	CodeUnknown:       true,
	CodeEpollFail:     true,
}

// Retryable reports whether an attempt that failed with this code may be
// retried, subject to the session's remaining retry budget and deadline.
func (c ReturnCode) Retryable() bool {
	return retryable[c]
}

// Terminal reports whether this code can only appear as a session's final
// status rather than as a per-attempt failure.
func (c ReturnCode) Terminal() bool {
	switch c {
	case CodeSuccess, CodeTimeout, CodeCanceled, CodeNoChoosableEndPoint:
		return true
	default:
		return false
	}
}
