// Package metrics exposes Prometheus collectors for the request pipeline:
// request counts and latency, pool occupancy and executor load.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"userService/internal/executor"
	"userService/internal/pool"
)

const namespace = "user_service"

// Registry owns a private Prometheus registry so that tests and multiple
// servers in one process do not collide.
type Registry struct {
	reg *prometheus.Registry

	Requests *prometheus.CounterVec
	Duration *prometheus.HistogramVec
}

// NewRegistry creates the request collectors plus the Go runtime and process
// collectors.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)
	return &Registry{
		reg: reg,
		Requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Requests served, by method and status.",
		}, []string{"method", "status"}),
		Duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Time until the response was ready.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}
}

// Gatherer returns the underlying registry for inspection.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

// Handler serves the registry in the Prometheus text format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// PoolStats is satisfied by *pool.Pool.
type PoolStats interface {
	Stats() pool.Stats
}

// ObservePool exports the pool's counters, read at scrape time.
func (r *Registry) ObservePool(p PoolStats) {
	factory := promauto.With(r.reg)
	gauge := func(name, help string, read func(pool.Stats) float64) {
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "pool", Name: name, Help: help,
		}, func() float64 { return read(p.Stats()) })
	}
	counter := func(name, help string, read func(pool.Stats) float64) {
		factory.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "pool", Name: name, Help: help,
		}, func() float64 { return read(p.Stats()) })
	}
	gauge("max_size", "Connection limit.", func(s pool.Stats) float64 { return float64(s.MaxSize) })
	gauge("idle", "Idle connections.", func(s pool.Stats) float64 { return float64(s.Idle) })
	gauge("in_use", "Checked-out connections.", func(s pool.Stats) float64 { return float64(s.InUse) })
	counter("created_total", "Connections opened.", func(s pool.Stats) float64 { return float64(s.Created) })
	counter("discarded_total", "Connections closed instead of reused.", func(s pool.Stats) float64 { return float64(s.Discarded) })
	counter("waits_total", "Acquisitions that had to wait.", func(s pool.Stats) float64 { return float64(s.WaitCount) })
	counter("timeouts_total", "Acquisitions that gave up.", func(s pool.Stats) float64 { return float64(s.Timeouts) })
}

// ExecutorStats is satisfied by *executor.Executor.
type ExecutorStats interface {
	Stats() executor.Stats
}

// ObserveExecutor exports the executor's load, read at scrape time.
func (r *Registry) ObserveExecutor(e ExecutorStats) {
	factory := promauto.With(r.reg)
	gauge := func(name, help string, read func(executor.Stats) float64) {
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "executor", Name: name, Help: help,
		}, func() float64 { return read(e.Stats()) })
	}
	counter := func(name, help string, read func(executor.Stats) float64) {
		factory.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "executor", Name: name, Help: help,
		}, func() float64 { return read(e.Stats()) })
	}
	gauge("workers", "Worker goroutines.", func(s executor.Stats) float64 { return float64(s.Workers) })
	gauge("queued", "Tasks waiting for a worker.", func(s executor.Stats) float64 { return float64(s.Queued) })
	gauge("running", "Tasks being executed.", func(s executor.Stats) float64 { return float64(s.Running) })
	counter("completed_total", "Tasks finished.", func(s executor.Stats) float64 { return float64(s.Completed) })
	counter("panicked_total", "Tasks that panicked.", func(s executor.Stats) float64 { return float64(s.Panicked) })
	counter("rejected_total", "Submissions refused.", func(s executor.Stats) float64 { return float64(s.Rejected) })
}
