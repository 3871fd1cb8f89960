package wsrpc

import "time"

// Close status codes used by Connection.Close. These mirror the subset of
// RFC 6455 codes this library actually produces; gorilla/websocket defines
// the full table.
const (
	StatusNormalClosure = 1000
	StatusMessageTooBig = 1009
	StatusInternalError = 1011
)

// Default configuration values (spec.md §6 Configuration surface).
const (
	// DefaultTerminationDelay is how long a RemoteBinder call waits for a
	// response before failing with a *CallError of KindCancellation. Values
	// <= 0 passed to binder construction disable the timeout (indefinite
	// wait).
	DefaultTerminationDelay = 30 * time.Second

	// DefaultMaxMessageSize is the size limit, in bytes, of a single frame
	// on send or receive: a frame of this many bytes or more closes the
	// connection with StatusMessageTooBig.
	DefaultMaxMessageSize = 64 * 1024
)

// Standard error messages, written verbatim into response envelopes or
// Connection.Close reasons.
const (
	ErrMsgMessageTooBig     = "message too big"
	ErrMsgInternalError     = "internal server error"
	ErrMsgConnectionClosed  = "connection closed"
	ErrMsgSendFailed        = "send failed"
	ErrMsgMethodNotFoundFmt = "method not found: %s"
)
