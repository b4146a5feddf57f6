package errs

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
)

func TestKindOf_WrappedChain(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := fmt.Errorf("list users: %w", E(KindPoolManager, "pool.acquire", cause))

	assert.Equal(t, KindPoolManager, KindOf(err))
	assert.True(t, Is(err, KindPoolManager))
	assert.False(t, Is(err, KindQuery))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, KindUnknown, KindOf(cause))
	assert.False(t, Is(nil, KindUnknown))
}

func TestError_Message(t *testing.T) {
	assert.Equal(t, "pool.acquire: pool_timeout", E(KindPoolTimeout, "pool.acquire", nil).Error())
	assert.Equal(t, "query: boom", E(KindQuery, "", errors.New("boom")).Error())
	assert.Equal(t, "closed", E(KindClosed, "", nil).Error())
	assert.Equal(t, "map: row_mapping: column email missing",
		Errorf(KindRowMapping, "map", "column %s missing", "email").Error())
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		kind Kind
		http int
		grpc codes.Code
	}{
		{KindPoolTimeout, http.StatusServiceUnavailable, codes.DeadlineExceeded},
		{KindPoolManager, http.StatusServiceUnavailable, codes.Unavailable},
		{KindQueueFull, http.StatusServiceUnavailable, codes.ResourceExhausted},
		{KindQuery, http.StatusInternalServerError, codes.Internal},
		{KindRowMapping, http.StatusInternalServerError, codes.Internal},
		{KindSerialization, http.StatusInternalServerError, codes.Internal},
		{KindWorkerPanic, http.StatusInternalServerError, codes.Internal},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.http, HTTPStatus(tt.kind))
			assert.Equal(t, tt.grpc, GRPCCode(tt.kind))
		})
	}
}
