// Package errs categorizes failures of the request pipeline so that every
// transport can map them to a status without inspecting driver errors.
package errs

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
)

// Kind is the category of a pipeline failure.
type Kind string

const (
	KindUnknown       Kind = "unknown"
	KindConfig        Kind = "config"
	KindPoolTimeout   Kind = "pool_timeout"
	KindPoolManager   Kind = "pool_manager"
	KindQuery         Kind = "query"
	KindRowMapping    Kind = "row_mapping"
	KindSerialization Kind = "serialization"
	KindWorkerPanic   Kind = "worker_panic"
	KindQueueFull     Kind = "queue_full"
	KindClosed        Kind = "closed"
)

// Error carries a Kind, the operation that failed and the underlying cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// E builds an *Error. A nil cause is allowed for failures that have no
// underlying error (timeouts, closed components).
func E(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds an *Error whose cause is a formatted message.
func Errorf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the outermost *Error in err's chain, or
// KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps a kind to the status written by the HTTP transport.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindPoolTimeout, KindPoolManager, KindQueueFull, KindClosed:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// GRPCCode maps a kind to a gRPC status code.
func GRPCCode(kind Kind) codes.Code {
	switch kind {
	case KindPoolTimeout:
		return codes.DeadlineExceeded
	case KindPoolManager, KindClosed:
		return codes.Unavailable
	case KindQueueFull:
		return codes.ResourceExhausted
	case KindConfig:
		return codes.FailedPrecondition
	default:
		return codes.Internal
	}
}
