package request

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	// ErrSuperseded is returned by Execute when a newer invocation was issued
	// before this one resolved.
	ErrSuperseded = errors.New("request superseded by a newer invocation")

	// ErrCanceled marks an invocation stopped through Abort or Handle.Cancel.
	ErrCanceled = errors.New("request canceled")

	// ErrNilOperation is recorded when a Call returns no operation.
	ErrNilOperation = errors.New("call returned nil operation")
)

// IsCancellation reports whether err carries a cancellation signature:
// ErrCanceled, context.Canceled, or a gRPC status with codes.Canceled.
func IsCancellation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrCanceled) || errors.Is(err, context.Canceled) {
		return true
	}
	if st, ok := status.FromError(err); ok && st.Code() == codes.Canceled {
		return true
	}
	return false
}
