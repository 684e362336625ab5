package middleware

import (
	"context"

	"golang.org/x/time/rate"

	"aeronrpc/message"
)

// RateLimitMiddleware enforces a coarse, handler-scoped ceiling via
// golang.org/x/time/rate — distinct from ratelimit.TokenBucket's exact,
// no-partial-spend semantics required per-client at the client engine.
// This middleware is for the server side: attach it to one registered
// handler to cap that handler's own throughput independent of whatever
// the server's global admission gate allows through.
func RateLimitMiddleware(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.RPCMessage) *message.RPCMessage {
			if !limiter.Allow() {
				return errorResponse(req, "rate limit exceeded")
			}
			return next(ctx, req)
		}
	}
}
