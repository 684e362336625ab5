// Package middleware provides a request/response interceptor chain for
// unary handler invocations on the server: logging, rate limiting,
// timeouts, and retries all compose as a Middleware wrapping the next
// HandlerFunc in the chain. Streaming handlers bypass this chain
// entirely — the sink, not a single returned message,
// is the unit of delivery for a streaming call, so there is no single
// response value here to intercept.
package middleware

import (
	"context"

	"aeronrpc/message"
)

// HandlerFunc processes one decoded RPCMessage and returns the message
// to send back — a RESPONSE on success, an ERROR otherwise. req.Type is
// always TypeRequest; resp.Type is TypeResponse or TypeError.
type HandlerFunc func(ctx context.Context, req *message.RPCMessage) *message.RPCMessage

// Middleware wraps a HandlerFunc to add cross-cutting behavior.
type Middleware func(next HandlerFunc) HandlerFunc

// Chain composes middlewares into one, applied in the order given:
// Chain(A, B, C)(handler) == A(B(C(handler))), so A's before-logic runs
// first and its after-logic runs last — the familiar onion model.
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

// errorResponse builds an ERROR RPCMessage replying to req, preserving
// its RequestID for client-side correlation.
func errorResponse(req *message.RPCMessage, text string) *message.RPCMessage {
	return &message.RPCMessage{
		RequestID:   req.RequestID,
		Type:        message.TypeError,
		ServiceName: req.ServiceName,
		MethodName:  req.MethodName,
		Payload:     []byte(text),
	}
}
