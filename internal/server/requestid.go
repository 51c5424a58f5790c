package server

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// RequestIDHeader is the metadata key carrying the request id. The HTTP
// gateway forwards X-Request-Id under this key.
const RequestIDHeader = "x-request-id"

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const requestIDContextKey contextKey = "request_id"

// maxRequestIDLength caps client-supplied ids before they reach the logs
const maxRequestIDLength = 128

// RequestIDFromContext returns the id assigned by the request id interceptor
func RequestIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDContextKey).(string)
	return id, ok
}

// requestID reads the caller's id from metadata, or makes a new one
func requestID(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(RequestIDHeader); len(values) > 0 {
			id := strings.TrimSpace(values[0])
			if id != "" && len(id) <= maxRequestIDLength {
				return id
			}
		}
	}
	return uuid.NewString()
}

// requestIDUnaryInterceptor stores the request id in the context and echoes
// it in the response header
func requestIDUnaryInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		id := requestID(ctx)
		if err := grpc.SetHeader(ctx, metadata.Pairs(RequestIDHeader, id)); err != nil {
			logger.Debug("failed to set request id header", "method", info.FullMethod, "request_id", id, "error", err)
		}
		return handler(context.WithValue(ctx, requestIDContextKey, id), req)
	}
}

// requestIDStreamInterceptor is the stream form of requestIDUnaryInterceptor
func requestIDStreamInterceptor(logger *slog.Logger) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		id := requestID(ss.Context())
		if err := ss.SetHeader(metadata.Pairs(RequestIDHeader, id)); err != nil {
			logger.Debug("failed to set request id header", "method", info.FullMethod, "request_id", id, "error", err)
		}
		return handler(srv, &wrappedServerStream{
			ServerStream: ss,
			ctx:          context.WithValue(ss.Context(), requestIDContextKey, id),
		})
	}
}

// wrappedServerStream wraps a grpc.ServerStream with a modified context
type wrappedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

// Context returns the wrapped context
func (w *wrappedServerStream) Context() context.Context {
	return w.ctx
}
