// Package middleware provides Service decorators that observe requests
// without changing them.
package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"userService/internal/executor"
	"userService/internal/service"
)

// Log writes one line per request once its response is ready:
//
//	[2024-05-01T10:00:00.123456Z] GET /users 1532 μs
//
// The elapsed time covers the whole asynchronous call, and logging happens on
// the goroutine that observes the result, never on the caller's.
type Log struct {
	inner  service.Service
	logger *zap.Logger
}

func NewLog(inner service.Service, logger *zap.Logger) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{inner: inner, logger: logger}
}

// WithLog is NewLog as a service.Middleware.
func WithLog(logger *zap.Logger) service.Middleware {
	return func(next service.Service) service.Service { return NewLog(next, logger) }
}

func (l *Log) Call(ctx context.Context, req *service.Request) *executor.Future[*service.Response] {
	start := time.Now()
	requestID := uuid.NewString()
	method, uri := req.Method, req.URI

	return executor.Then(l.inner.Call(ctx, req), func(resp *service.Response, err error) (*service.Response, error) {
		elapsed := time.Since(start)
		fields := []zap.Field{
			zap.String("request_id", requestID),
			zap.String("method", method),
			zap.String("uri", uri),
			zap.Int64("elapsed_us", elapsed.Microseconds()),
		}
		if resp != nil {
			fields = append(fields, zap.Int("status", resp.Status))
			if resp.Err != nil {
				fields = append(fields, zap.Error(resp.Err))
			}
		}
		if err != nil {
			fields = append(fields, zap.Error(err))
		}
		l.logger.Info(fmt.Sprintf("[%s] %s %s %d μs",
			time.Now().UTC().Format(time.RFC3339Nano), method, uri, elapsed.Microseconds()), fields...)
		return resp, err
	})
}
