// Package middleware wraps the service-side request handler.
//
// Onion model: Chain(A, B, C)(h) → A(B(C(h))); A sees the request first and the
// response last. A handler always returns a response envelope, even for notifications;
// the server drops those instead of writing them.
package middleware

import (
	"context"

	"chemrpc/message"
)

type HandlerFunc func(ctx context.Context, req *message.Request) *message.Response

type Middleware func(next HandlerFunc) HandlerFunc

// Chain 将多个中间件组合成一个中间件
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
