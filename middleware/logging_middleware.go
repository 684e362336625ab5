package middleware

import (
	"context"
	"log"
	"time"

	"aeronrpc/message"
)

// LoggingMiddleware logs service.method, duration, and any ERROR
// payload for every request that passes through it.
func LoggingMiddleware() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.RPCMessage) *message.RPCMessage {
			start := time.Now()
			resp := next(ctx, req)
			duration := time.Since(start)
			log.Printf("%s.%s duration=%s", req.ServiceName, req.MethodName, duration)
			if resp.Type == message.TypeError {
				log.Printf("%s.%s error=%s", req.ServiceName, req.MethodName, resp.Payload)
			}
			return resp
		}
	}
}
