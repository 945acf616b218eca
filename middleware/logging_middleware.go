package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"

	"chemrpc/message"
)

// LoggingMiddleware logs every request with its duration, and the error member if any.
func LoggingMiddleware(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) *message.Response {
			start := time.Now()
			resp := next(ctx, req)

			fields := []zap.Field{
				zap.String("method", req.Method),
				zap.Duration("duration", time.Since(start)),
				zap.Bool("notification", req.IsNotification()),
			}
			if req.ID != nil {
				fields = append(fields, zap.Stringer("id", req.ID))
			}
			if resp != nil && resp.Error != nil {
				logger.Info("request failed", append(fields, zap.Int("code", resp.Error.Code), zap.String("error", resp.Error.Message))...)
				return resp
			}
			logger.Debug("request handled", fields...)
			return resp
		}
	}
}
