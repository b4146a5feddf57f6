// Package handler holds the endpoint Services.
package handler

import (
	"context"
	"net/http"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"userService/internal/errs"
	"userService/internal/executor"
	"userService/internal/service"
	"userService/models"
	"userService/repository"
)

// UsersEndpoint answers every request with the full user list as JSON. The
// blocking read runs on the executor; the returned Future never fails,
// failures become error responses.
type UsersEndpoint struct {
	users  repository.UserRepositoryI
	exec   *executor.Executor
	logger *zap.Logger
}

func NewUsersEndpoint(users repository.UserRepositoryI, exec *executor.Executor, logger *zap.Logger) *UsersEndpoint {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UsersEndpoint{users: users, exec: exec, logger: logger.With(zap.String("component", "users"))}
}

func (h *UsersEndpoint) Call(ctx context.Context, _ *service.Request) *executor.Future[*service.Response] {
	// The read is not cancelled when the client goes away.
	workCtx := context.WithoutCancel(ctx)
	pending := executor.Submit(h.exec, func() ([]models.User, error) {
		return h.users.List(workCtx)
	})
	return executor.Then(pending, func(users []models.User, err error) (*service.Response, error) {
		if err != nil {
			return h.fail(err), nil
		}
		if users == nil {
			users = []models.User{}
		}
		body, err := json.Marshal(users)
		if err != nil {
			return h.fail(errs.E(errs.KindSerialization, "users.encode", err)), nil
		}
		return &service.Response{
			Status: http.StatusOK,
			Header: jsonHeader(),
			Body:   body,
		}, nil
	})
}

func (h *UsersEndpoint) fail(err error) *service.Response {
	kind := errs.KindOf(err)
	h.logger.Warn("request failed", zap.String("kind", string(kind)), zap.Error(err))
	return ErrorResponse(kind, err)
}

type errorBody struct {
	Error string `json:"error"`
}

// ErrorResponse builds the JSON error response for kind.
func ErrorResponse(kind errs.Kind, cause error) *service.Response {
	body, err := json.Marshal(errorBody{Error: string(kind)})
	if err != nil {
		body = []byte(`{"error":"unknown"}`)
	}
	return &service.Response{
		Status: errs.HTTPStatus(kind),
		Header: jsonHeader(),
		Body:   body,
		Err:    cause,
	}
}

func jsonHeader() http.Header {
	h := make(http.Header, 1)
	h.Set("Content-Type", "application/json")
	return h
}
