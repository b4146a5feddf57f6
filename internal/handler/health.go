package handler

import (
	"context"
	"net/http"
	"time"

	"userService/internal/errs"
	"userService/internal/executor"
	"userService/internal/service"
)

// Pinger is satisfied by *pool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

const healthTimeout = 2 * time.Second

// Health reports whether a pooled connection answers. The ping runs on the
// executor like any other database work.
type Health struct {
	db   Pinger
	exec *executor.Executor
}

func NewHealth(db Pinger, exec *executor.Executor) *Health {
	return &Health{db: db, exec: exec}
}

func (h *Health) Call(ctx context.Context, _ *service.Request) *executor.Future[*service.Response] {
	pingCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), healthTimeout)
	pending := executor.Submit(h.exec, func() (struct{}, error) {
		defer cancel()
		return struct{}{}, h.db.Ping(pingCtx)
	})
	return executor.Then(pending, func(_ struct{}, err error) (*service.Response, error) {
		if err != nil {
			cancel()
			kind := errs.KindOf(err)
			if kind == errs.KindUnknown {
				kind = errs.KindPoolManager
			}
			return ErrorResponse(kind, err), nil
		}
		return &service.Response{
			Status: http.StatusOK,
			Header: jsonHeader(),
			Body:   []byte(`{"status":"ok"}`),
		}, nil
	})
}
