// Package httpserver exposes Services over HTTP. net/http owns the wire
// protocol and the per-connection goroutines; handlers only wait on the
// Service's Future.
package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"userService/internal/errs"
	"userService/internal/handler"
	"userService/internal/service"
)

// Routes maps the fixed paths. Every path not listed goes to Users.
type Routes struct {
	Users   service.Service
	Health  service.Service // optional, served at /healthz
	Metrics http.Handler    // optional, served at /metrics
}

// NewHandler builds the mux for routes.
func NewHandler(routes Routes, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	mux := http.NewServeMux()
	mux.Handle("/", Adapt(routes.Users, logger))
	if routes.Health != nil {
		mux.Handle("/healthz", Adapt(routes.Health, logger))
	}
	if routes.Metrics != nil {
		mux.Handle("/metrics", routes.Metrics)
	}
	return mux
}

// Adapt serves a Service as an http.Handler. The response is written exactly
// as the Service produced it.
func Adapt(svc service.Service, logger *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := &service.Request{
			Method:     r.Method,
			URI:        r.URL.RequestURI(),
			Header:     r.Header.Clone(),
			RemoteAddr: r.RemoteAddr,
		}
		resp, err := svc.Call(r.Context(), req).Await(r.Context())
		if err != nil {
			if r.Context().Err() != nil {
				// Client went away; nobody is left to answer.
				return
			}
			resp = handler.ErrorResponse(errs.KindOf(err), err)
		}
		if resp == nil {
			logger.Error("service returned no response", zap.String("uri", req.URI))
			resp = handler.ErrorResponse(errs.KindUnknown, nil)
		}

		for k, vs := range resp.Header {
			for _, v := range vs {
				w.Header().Add(k, v)
			}
		}
		w.WriteHeader(resp.Status)
		if _, err := w.Write(resp.Body); err != nil {
			logger.Debug("write response", zap.Error(err))
		}
	})
}

// Server is a bound HTTP listener.
type Server struct {
	srv    *http.Server
	lis    net.Listener
	logger *zap.Logger
}

// Listen binds addr. Binding failures are returned, not deferred to Serve.
func Listen(addr string, h http.Handler, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		srv: &http.Server{
			Handler:           h,
			ReadHeaderTimeout: 10 * time.Second,
			ErrorLog:          zap.NewStdLog(logger),
		},
		lis:    lis,
		logger: logger,
	}, nil
}

// Addr is the bound address.
func (s *Server) Addr() net.Addr { return s.lis.Addr() }

// Serve blocks until Shutdown. A clean shutdown returns nil.
func (s *Server) Serve() error {
	s.logger.Info("http server listening", zap.String("addr", s.lis.Addr().String()))
	if err := s.srv.Serve(s.lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests
// until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
