package progress

import (
	"context"
	"net/http"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// MetadataID is the outgoing gRPC metadata key holding the correlation id.
const MetadataID = "progress-id"

// WithID attaches a correlation id to an outgoing gRPC context.
func WithID(ctx context.Context, id string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, MetadataID, id)
}

// UnaryClientInterceptor reports start and end of unary calls that carry
// MetadataID. Unary calls have no intermediate progress; a successful call
// jumps to 100. codes.ResourceExhausted is treated as a size rejection.
func UnaryClientInterceptor(reg *Registry) grpc.UnaryClientInterceptor {
	return func(
		ctx context.Context,
		method string,
		req, reply interface{},
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		opts ...grpc.CallOption,
	) error {
		id := idFromOutgoing(ctx)
		if id == "" || reg == nil {
			return invoker(ctx, method, req, reply, cc, opts...)
		}

		reg.NotifyStart(StartEvent{ID: id})
		err := invoker(ctx, method, req, reply, cc, opts...)
		reg.NotifyEnd(EndEvent{ID: id, StatusCode: httpStatus(err), Err: err})
		return err
	}
}

func idFromOutgoing(ctx context.Context) string {
	md, ok := metadata.FromOutgoingContext(ctx)
	if !ok {
		return ""
	}
	if v := md.Get(MetadataID); len(v) > 0 {
		return v[0]
	}
	return ""
}

func httpStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	switch status.Code(err) {
	case codes.ResourceExhausted:
		return http.StatusRequestEntityTooLarge
	case codes.InvalidArgument:
		return http.StatusBadRequest
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
