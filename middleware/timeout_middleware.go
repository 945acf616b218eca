package middleware

import (
	"context"
	"time"

	"chemrpc/message"
)

// TimeOutMiddleware answers -32603 when the handler does not finish within timeout.
// The handler keeps running in the background with a cancelled ctx.
func TimeOutMiddleware(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) *message.Response {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			done := make(chan *message.Response, 1)
			go func() {
				done <- next(ctx, req)
			}()

			select {
			case resp := <-done:
				return resp
			case <-ctx.Done():
				return message.NewErrorResponse(req.ID, message.ErrInternal("request timed out"))
			}
		}
	}
}
