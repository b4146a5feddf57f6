// Package service defines the request/response contract shared by the
// transports, the middleware and the endpoint.
package service

import (
	"context"
	"net/http"

	"userService/internal/executor"
)

// Request is what a transport hands to a Service. Middleware reads it but
// never changes it.
type Request struct {
	Method     string
	URI        string
	Header     http.Header
	RemoteAddr string
}

// Response is the outcome of a Service call.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
	// Err is the failure behind a non-2xx Status, kept for logging. It is
	// never written to the client.
	Err error
}

// Service turns a Request into a Response that becomes available later.
type Service interface {
	Call(ctx context.Context, req *Request) *executor.Future[*Response]
}

// Func adapts a plain function to Service.
type Func func(ctx context.Context, req *Request) *executor.Future[*Response]

func (f Func) Call(ctx context.Context, req *Request) *executor.Future[*Response] {
	return f(ctx, req)
}

// Middleware decorates a Service.
type Middleware func(Service) Service

// Chain wraps s with mws. The first middleware is the outermost one.
func Chain(s Service, mws ...Middleware) Service {
	for i := len(mws) - 1; i >= 0; i-- {
		s = mws[i](s)
	}
	return s
}
