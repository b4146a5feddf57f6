package httpserver

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"userService/internal/db"
	"userService/internal/executor"
	"userService/internal/handler"
	"userService/internal/metrics"
	"userService/internal/middleware"
	"userService/internal/pool"
	"userService/internal/service"
	"userService/internal/testutil"
	"userService/models"
	"userService/repository"
)

type stack struct {
	server *httptest.Server
	logs   *observer.ObservedLogs
}

func newStack(t *testing.T, p *pool.Pool[db.Conn]) stack {
	t.Helper()
	core, logs := observer.New(zap.InfoLevel)
	logger := zap.New(core)

	exec := executor.New(executor.Config{Workers: 4}, zaptest.NewLogger(t))
	t.Cleanup(exec.Close)
	reg := metrics.NewRegistry()
	reg.ObservePool(p)
	reg.ObserveExecutor(exec)

	mws := []service.Middleware{middleware.WithLog(logger), middleware.WithMetrics(reg)}
	users := service.Chain(handler.NewUsersEndpoint(repository.NewUserRepository(p), exec, zaptest.NewLogger(t)), mws...)
	health := service.Chain(handler.NewHealth(p, exec), mws...)

	srv := httptest.NewServer(NewHandler(Routes{Users: users, Health: health, Metrics: reg.Handler()}, zaptest.NewLogger(t)))
	t.Cleanup(srv.Close)
	return stack{server: srv, logs: logs}
}

func get(t *testing.T, url string) (int, string, http.Header) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body), resp.Header
}

func TestServer_ListsUsers(t *testing.T) {
	p, keeper := testutil.OpenInMemoryPool(t, "http_users", pool.Config{MaxSize: 2})
	testutil.SeedUsers(t, keeper,
		models.User{ID: 1, Email: "a@x", Password: "h1"},
		models.User{ID: 2, Email: "b@x", Password: "h2"},
	)
	s := newStack(t, p)

	status, body, header := get(t, s.server.URL+"/users?page=1")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "application/json", header.Get("Content-Type"))
	assert.Equal(t, `[{"id":1,"email":"a@x","password":"h1"},{"id":2,"email":"b@x","password":"h2"}]`, body)

	require.Eventually(t, func() bool { return s.logs.Len() == 1 }, time.Second, 5*time.Millisecond)
	entry := s.logs.All()[0]
	assert.Regexp(t, `^\[[^\]]+\] GET /users\?page=1 \d+ μs$`, entry.Message)
	assert.EqualValues(t, 200, entry.ContextMap()["status"])
}

func TestServer_EmptyTable(t *testing.T) {
	p, _ := testutil.OpenInMemoryPool(t, "http_empty", pool.Config{MaxSize: 1})
	s := newStack(t, p)

	status, body, _ := get(t, s.server.URL+"/")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "[]", body)
}

func TestServer_UnreachableDatabaseKeepsServing(t *testing.T) {
	s := newStack(t, testutil.UnreachablePool(t, pool.Config{MaxSize: 1}))

	for i := 0; i < 3; i++ {
		status, body, _ := get(t, s.server.URL+"/")
		assert.Equal(t, http.StatusServiceUnavailable, status)
		assert.JSONEq(t, `{"error":"pool_manager"}`, body)
	}
	status, _, _ := get(t, s.server.URL+"/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, status)
}

func TestServer_ConcurrentRequestsShareSmallPool(t *testing.T) {
	p, keeper := testutil.OpenInMemoryPool(t, "http_concurrent", pool.Config{MaxSize: 1, ConnectionTimeout: 10 * time.Second})
	testutil.SeedUsers(t, keeper, models.User{ID: 1, Email: "a@x", Password: "h1"})
	s := newStack(t, p)

	var wg sync.WaitGroup
	codes := make([]int, 16)
	for i := range codes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := http.Get(s.server.URL + "/")
			if err != nil {
				t.Errorf("get: %v", err)
				return
			}
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			codes[i] = resp.StatusCode
		}(i)
	}
	wg.Wait()
	for i, c := range codes {
		assert.Equal(t, http.StatusOK, c, "request %d", i)
	}
	assert.LessOrEqual(t, p.Stats().Created, int64(1))
}

func TestServer_HealthAndMetrics(t *testing.T) {
	p, _ := testutil.OpenInMemoryPool(t, "http_health", pool.Config{MaxSize: 1})
	s := newStack(t, p)

	status, body, _ := get(t, s.server.URL+"/healthz")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"status":"ok"}`, body)

	get(t, s.server.URL+"/")
	status, body, _ = get(t, s.server.URL+"/metrics")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `user_service_http_requests_total{method="GET",status="200"} 2`)
	assert.Contains(t, body, "user_service_pool_max_size 1")
}

func TestAdapt_FailedFutureBecomesErrorResponse(t *testing.T) {
	failing := service.Func(func(context.Context, *service.Request) *executor.Future[*service.Response] {
		return executor.Failed[*service.Response](assert.AnError)
	})
	rec := httptest.NewRecorder()
	Adapt(failing, zaptest.NewLogger(t)).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/x", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"unknown"}`, rec.Body.String())
}

func TestListen_ServeAndShutdown(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	srv, err := Listen("127.0.0.1:0", h, zaptest.NewLogger(t))
	require.NoError(t, err)

	_, err = Listen(srv.Addr().String(), h, zaptest.NewLogger(t))
	assert.Error(t, err, "binding a used port fails at Listen")

	done := make(chan error, 1)
	go func() { done <- srv.Serve() }()

	resp, err := http.Get("http://" + srv.Addr().String() + "/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
	assert.NoError(t, <-done)
}
