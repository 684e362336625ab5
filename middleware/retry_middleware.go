package middleware

import (
	"context"
	"log"
	"strings"
	"time"

	"aeronrpc/message"
)

// RetryMiddleware re-invokes the wrapped handler when it replies with an
// ERROR whose payload looks transient (a downstream timeout or refused
// connection inside the handler itself, not a network issue on this
// RPC's own wire — the server never retries a request it never
// received). Non-transient errors return immediately.
func RetryMiddleware(maxRetries int, baseDelay time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.RPCMessage) *message.RPCMessage {
			resp := next(ctx, req)
			for i := 0; i < maxRetries; i++ {
				if resp.Type != message.TypeError {
					return resp
				}
				text := string(resp.Payload)
				if !strings.Contains(text, "timeout") && !strings.Contains(text, "connection refused") {
					return resp
				}
				log.Printf("retry %d for %s.%s after: %s", i+1, req.ServiceName, req.MethodName, text)
				time.Sleep(baseDelay * time.Duration(1<<i))
				resp = next(ctx, req)
			}
			return resp
		}
	}
}
