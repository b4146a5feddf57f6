package grpcserver

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// NewUnaryLogInterceptor logs every unary call with its code and latency.
// Methods listed in quiet (health checks, typically) are logged at debug.
func NewUnaryLogInterceptor(logger *zap.Logger, quiet ...string) grpc.UnaryServerInterceptor {
	skip := make(map[string]struct{}, len(quiet))
	for _, m := range quiet {
		skip[strings.TrimSpace(m)] = struct{}{}
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Int64("elapsed_us", time.Since(start).Microseconds()),
		}
		if err != nil {
			fields = append(fields, zap.Error(err))
		}
		if _, ok := skip[info.FullMethod]; ok {
			logger.Debug("grpc call", fields...)
		} else {
			logger.Info("grpc call", fields...)
		}
		return resp, err
	}
}
