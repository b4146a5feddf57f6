// Package grpcserver serves the users Service over gRPC next to the standard
// health service. The users service has no generated stubs: its single
// method uses well-known protobuf types and is registered by hand.
package grpcserver

import (
	"context"
	"net"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"userService/internal/service"
)

const healthCheckMethod = "/grpc.health.v1.Health/Check"

// Server is a bound gRPC listener.
type Server struct {
	srv    *grpc.Server
	lis    net.Listener
	health *health.Server
	logger *zap.Logger
}

// Listen binds addr and registers the health and users services. users is
// the same Service chain the HTTP transport drives.
func Listen(addr string, users service.Service, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	srv := grpc.NewServer(grpc.UnaryInterceptor(NewUnaryLogInterceptor(logger, healthCheckMethod)))

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(userServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)

	RegisterUserServiceServer(srv, &UserServer{Users: users})

	return &Server{srv: srv, lis: lis, health: hs, logger: logger}, nil
}

// Addr is the bound address.
func (s *Server) Addr() net.Addr { return s.lis.Addr() }

// Serve blocks until Shutdown.
func (s *Server) Serve() error {
	s.logger.Info("grpc server listening", zap.String("addr", s.lis.Addr().String()))
	if err := s.srv.Serve(s.lis); err != nil && err != grpc.ErrServerStopped {
		return err
	}
	return nil
}

// Shutdown marks the server not serving and stops it gracefully, forcing
// the stop when ctx expires first.
func (s *Server) Shutdown(ctx context.Context) error {
	s.health.Shutdown()
	done := make(chan struct{})
	go func() { s.srv.GracefulStop(); close(done) }()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.srv.Stop()
		return ctx.Err()
	}
}
