package middleware

import (
	"context"
	"time"

	"aeronrpc/message"
)

// TimeoutMiddleware bounds how long the wrapped handler may run,
// replying with an ERROR if it overruns.
func TimeoutMiddleware(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.RPCMessage) *message.RPCMessage {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			done := make(chan *message.RPCMessage, 1)
			go func() {
				done <- next(ctx, req)
			}()

			select {
			case resp := <-done:
				return resp
			case <-ctx.Done():
				return errorResponse(req, "request timed out")
			}
		}
	}
}
