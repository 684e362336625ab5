// Package rpcerrors defines the error taxonomy shared by the client and
// server dispatch engines, so callers can distinguish outcomes with
// errors.Is/errors.As instead of matching on message strings.
package rpcerrors

import "fmt"

// Sentinel errors for the RPC error taxonomy. errors.Is matches these
// directly; HandlerError carries extra context and supports errors.As.
var (
	ErrNoEndpoints      = fmt.Errorf("rpc: no endpoints for service")
	ErrSendTimeout      = fmt.Errorf("rpc: deadline elapsed while sending request")
	ErrReplyTimeout     = fmt.Errorf("rpc: deadline elapsed awaiting reply")
	ErrRateLimited      = fmt.Errorf("rpc: request denied by rate limiter")
	ErrServiceNotFound  = fmt.Errorf("rpc: service not found")
	ErrOverloaded       = fmt.Errorf("rpc: worker queue saturated")
	ErrMalformedFrame   = fmt.Errorf("rpc: malformed frame")
	ErrSerialization    = fmt.Errorf("rpc: serialization failed")
	ErrCancelled        = fmt.Errorf("rpc: cancelled")
	ErrClosed           = fmt.Errorf("rpc: engine closed")
	ErrDuplicateHandler = fmt.Errorf("rpc: service already registered")
	ErrDuplicateID      = fmt.Errorf("rpc: correlation id already pending")
)

// HandlerError wraps the error a user-supplied unary handler returned; the
// server sends its Error() text as the wire ERROR payload. The client
// engine does not rebuild a HandlerError from that frame: it returns the
// payload text as a plain error.
type HandlerError struct {
	Service string
	Method  string
	Message string
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("rpc: handler error in %s.%s: %s", e.Service, e.Method, e.Message)
}

// NewHandlerError builds a HandlerError from a service/method pair and the
// underlying cause.
func NewHandlerError(service, method string, cause error) *HandlerError {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return &HandlerError{Service: service, Method: method, Message: msg}
}
