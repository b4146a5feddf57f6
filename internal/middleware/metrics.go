package middleware

import (
	"context"
	"strconv"
	"time"

	"userService/internal/executor"
	"userService/internal/metrics"
	"userService/internal/service"
)

// Metrics counts requests and observes their latency.
type Metrics struct {
	inner service.Service
	reg   *metrics.Registry
}

func NewMetrics(inner service.Service, reg *metrics.Registry) *Metrics {
	return &Metrics{inner: inner, reg: reg}
}

// WithMetrics is NewMetrics as a service.Middleware.
func WithMetrics(reg *metrics.Registry) service.Middleware {
	return func(next service.Service) service.Service { return NewMetrics(next, reg) }
}

func (m *Metrics) Call(ctx context.Context, req *service.Request) *executor.Future[*service.Response] {
	start := time.Now()
	method := req.Method

	return executor.Then(m.inner.Call(ctx, req), func(resp *service.Response, err error) (*service.Response, error) {
		status := "error"
		if err == nil && resp != nil {
			status = strconv.Itoa(resp.Status)
		}
		m.reg.Duration.WithLabelValues(method).Observe(time.Since(start).Seconds())
		m.reg.Requests.WithLabelValues(method, status).Inc()
		return resp, err
	})
}
