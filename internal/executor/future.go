package executor

import (
	"context"
	"sync"

	"userService/internal/errs"
)

// Future is the read side of a value that is produced asynchronously. It is
// resolved exactly once; later resolutions are ignored.
type Future[T any] struct {
	done chan struct{}
	once sync.Once
	val  T
	err  error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolved returns a Future that already holds v.
func Resolved[T any](v T) *Future[T] {
	f := newFuture[T]()
	f.resolve(v, nil)
	return f
}

// Failed returns a Future that already holds err.
func Failed[T any](err error) *Future[T] {
	f := newFuture[T]()
	var zero T
	f.resolve(zero, err)
	return f
}

func (f *Future[T]) resolve(v T, err error) bool {
	resolved := false
	f.once.Do(func() {
		f.val, f.err = v, err
		close(f.done)
		resolved = true
	})
	return resolved
}

// Done is closed once the Future is resolved.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Result blocks until the Future is resolved and returns its outcome.
func (f *Future[T]) Result() (T, error) {
	<-f.done
	return f.val, f.err
}

// Await waits for the Future or for ctx, whichever comes first. Giving up on
// the wait does not cancel the work behind the Future.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Then returns a Future resolved with fn's result once f resolves. fn runs on
// a fresh goroutine, never on the caller's. A panic in fn resolves the
// returned Future with a worker_panic error.
func Then[T, U any](f *Future[T], fn func(T, error) (U, error)) *Future[U] {
	next := newFuture[U]()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				var zero U
				next.resolve(zero, errs.Errorf(errs.KindWorkerPanic, "executor.then", "panic: %v", r))
			}
		}()
		v, err := f.Result()
		next.resolve(fn(v, err))
	}()
	return next
}
