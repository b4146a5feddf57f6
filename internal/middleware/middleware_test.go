package middleware

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"userService/internal/executor"
	"userService/internal/metrics"
	"userService/internal/service"
)

var lineRe = regexp.MustCompile(`^\[[^\]]+\] GET /users \d+ μs$`)

func observed() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.InfoLevel)
	return zap.New(core), logs
}

func fixed(resp *service.Response) service.Service {
	return service.Func(func(context.Context, *service.Request) *executor.Future[*service.Response] {
		return executor.Resolved(resp)
	})
}

func await(t *testing.T, f *executor.Future[*service.Response]) (*service.Response, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return f.Await(ctx)
}

func usersRequest() *service.Request {
	return &service.Request{Method: http.MethodGet, URI: "/users", Header: http.Header{}}
}

func TestLog_PassesResponseThroughAndLogsOnce(t *testing.T) {
	logger, logs := observed()
	want := &service.Response{Status: http.StatusOK, Body: []byte("[]")}

	got, err := await(t, NewLog(fixed(want), logger).Call(context.Background(), usersRequest()))
	require.NoError(t, err)
	assert.Same(t, want, got)

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Regexp(t, lineRe, entries[0].Message)
	fields := entries[0].ContextMap()
	assert.Equal(t, "GET", fields["method"])
	assert.Equal(t, "/users", fields["uri"])
	assert.EqualValues(t, 200, fields["status"])
	assert.Contains(t, fields, "elapsed_us")
	assert.NotEmpty(t, fields["request_id"])
}

func TestLog_ElapsedCoversAsyncWork(t *testing.T) {
	logger, logs := observed()
	slow := service.Func(func(context.Context, *service.Request) *executor.Future[*service.Response] {
		pending := executor.Resolved(struct{}{})
		return executor.Then(pending, func(struct{}, error) (*service.Response, error) {
			time.Sleep(20 * time.Millisecond)
			return &service.Response{Status: http.StatusOK}, nil
		})
	})

	_, err := await(t, NewLog(slow, logger).Call(context.Background(), usersRequest()))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return logs.Len() == 1 }, time.Second, 5*time.Millisecond)
	elapsed, ok := logs.All()[0].ContextMap()["elapsed_us"].(int64)
	require.True(t, ok)
	assert.GreaterOrEqual(t, elapsed, int64(20000))
}

func TestLog_PropagatesErrorsUnchanged(t *testing.T) {
	logger, logs := observed()
	boom := errors.New("boom")
	failing := service.Func(func(context.Context, *service.Request) *executor.Future[*service.Response] {
		return executor.Failed[*service.Response](boom)
	})

	_, err := await(t, NewLog(failing, logger).Call(context.Background(), usersRequest()))
	assert.Same(t, boom, err)
	require.Len(t, logs.All(), 1)
	assert.Equal(t, "boom", logs.All()[0].ContextMap()["error"])
}

func TestLog_Stacks(t *testing.T) {
	logger, logs := observed()
	want := &service.Response{Status: http.StatusNotFound}
	s := service.Chain(fixed(want), WithLog(logger), WithLog(logger))

	got, err := await(t, s.Call(context.Background(), usersRequest()))
	require.NoError(t, err)
	assert.Same(t, want, got)
	assert.Equal(t, 2, logs.Len())
}

func TestMetrics_CountsByStatus(t *testing.T) {
	reg := metrics.NewRegistry()
	ok := NewMetrics(fixed(&service.Response{Status: http.StatusOK}), reg)
	unavailable := NewMetrics(fixed(&service.Response{Status: http.StatusServiceUnavailable}), reg)

	for i := 0; i < 3; i++ {
		_, err := await(t, ok.Call(context.Background(), usersRequest()))
		require.NoError(t, err)
	}
	_, err := await(t, unavailable.Call(context.Background(), usersRequest()))
	require.NoError(t, err)

	assert.Equal(t, 3.0, promtest.ToFloat64(reg.Requests.WithLabelValues("GET", "200")))
	assert.Equal(t, 1.0, promtest.ToFloat64(reg.Requests.WithLabelValues("GET", "503")))
	assert.Equal(t, 1, promtest.CollectAndCount(reg.Duration))
}
