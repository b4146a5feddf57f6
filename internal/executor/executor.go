// Package executor runs blocking work on a fixed set of long-lived worker
// goroutines and hands the outcome back as a Future, so request goroutines
// only ever wait on a channel.
package executor

import (
	"runtime/debug"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"userService/internal/errs"
)

const defaultWorkers = 10

// Config controls the size of the worker set and of the queue in front of it.
type Config struct {
	Workers   int // number of worker goroutines, defaults to 10
	QueueSize int // 0 keeps the queue unbounded; >0 rejects submissions beyond it
}

// Stats is a point-in-time view of the executor.
type Stats struct {
	Workers   int
	Queued    int
	Running   int64
	Completed int64
	Panicked  int64
	Rejected  int64
}

// Executor is a fixed-size worker pool with a FIFO queue.
type Executor struct {
	logger   *zap.Logger
	workers  int
	maxQueue int

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []func()
	closed bool

	wg sync.WaitGroup

	running   atomic.Int64
	completed atomic.Int64
	panicked  atomic.Int64
	rejected  atomic.Int64
}

// New starts cfg.Workers worker goroutines. They live until Close.
func New(cfg Config, logger *zap.Logger) *Executor {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.QueueSize < 0 {
		cfg.QueueSize = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Executor{
		logger:   logger.With(zap.String("component", "executor")),
		workers:  cfg.Workers,
		maxQueue: cfg.QueueSize,
	}
	e.cond = sync.NewCond(&e.mu)

	for i := 0; i < e.workers; i++ {
		e.wg.Add(1)
		go e.worker()
	}

	e.logger.Info("executor started",
		zap.Int("workers", e.workers),
		zap.Int("queue_size", e.maxQueue))
	return e
}

// Submit schedules fn on a worker and returns a Future for its result.
// Submitting to a closed executor, or to a full bounded queue, yields an
// already failed Future.
func Submit[T any](e *Executor, fn func() (T, error)) *Future[T] {
	f := newFuture[T]()
	task := func() {
		e.running.Add(1)
		defer func() {
			e.running.Add(-1)
			e.completed.Add(1)
			if r := recover(); r != nil {
				e.panicked.Add(1)
				e.logger.Error("offloaded work panicked",
					zap.Any("panic", r),
					zap.ByteString("stack", debug.Stack()))
				var zero T
				f.resolve(zero, errs.Errorf(errs.KindWorkerPanic, "executor.submit", "panic: %v", r))
			}
		}()
		f.resolve(fn())
	}

	if err := e.enqueue(task); err != nil {
		var zero T
		f.resolve(zero, err)
	}
	return f
}

func (e *Executor) enqueue(task func()) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return errs.E(errs.KindClosed, "executor.submit", nil)
	}
	if e.maxQueue > 0 && len(e.queue) >= e.maxQueue {
		e.rejected.Add(1)
		return errs.Errorf(errs.KindQueueFull, "executor.submit", "queue holds %d tasks", len(e.queue))
	}
	e.queue = append(e.queue, task)
	e.cond.Signal()
	return nil
}

func (e *Executor) worker() {
	defer e.wg.Done()
	for {
		e.mu.Lock()
		for len(e.queue) == 0 && !e.closed {
			e.cond.Wait()
		}
		if len(e.queue) == 0 {
			e.mu.Unlock()
			return
		}
		task := e.queue[0]
		e.queue[0] = nil
		e.queue = e.queue[1:]
		e.mu.Unlock()

		task()
	}
}

// Stats returns counters for metrics and tests.
func (e *Executor) Stats() Stats {
	e.mu.Lock()
	queued := len(e.queue)
	e.mu.Unlock()
	return Stats{
		Workers:   e.workers,
		Queued:    queued,
		Running:   e.running.Load(),
		Completed: e.completed.Load(),
		Panicked:  e.panicked.Load(),
		Rejected:  e.rejected.Load(),
	}
}

// Close stops accepting work, lets the workers drain what is already queued
// and waits for them to exit. It is safe to call more than once.
func (e *Executor) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.cond.Broadcast()
	e.mu.Unlock()

	e.wg.Wait()
	e.logger.Info("executor stopped",
		zap.Int64("completed", e.completed.Load()),
		zap.Int64("panicked", e.panicked.Load()))
}
