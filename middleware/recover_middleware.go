package middleware

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"chemrpc/message"
)

// RecoverMiddleware turns a panicking handler into a -32603 response so one bad
// request does not take the connection (or the process) down.
func RecoverMiddleware(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) (resp *message.Response) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("handler panicked", zap.String("method", req.Method), zap.Any("panic", r), zap.Stack("stack"))
					resp = message.NewErrorResponse(req.ID, message.ErrInternal(fmt.Sprint(r)))
				}
			}()
			return next(ctx, req)
		}
	}
}
