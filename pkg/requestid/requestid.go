// Package requestid carries the correlation identifier of a request.
package requestid

import (
	"context"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"
)

type ctxKey string

const requestIDKey = ctxKey("request-id")

// RequestIDHeader is the HTTP header used to propagate the request id to remote
// collaborators and to read it back from their responses.
const RequestIDHeader = "X-Request-Id"

// InitID returns the ID to be used to identify the request.
// If trace is enabled, returns trace ID; otherwise returns a new ULID.
func InitID(ctx context.Context) string {
	spanCtx := trace.SpanContextFromContext(ctx)
	if spanCtx.TraceID().IsValid() {
		return spanCtx.TraceID().String()
	}
	return ulid.Make().String()
}

// ContextWithRequestID stores id on the context.
func ContextWithRequestID(parent context.Context, id string) context.Context {
	return context.WithValue(parent, requestIDKey, id)
}

// FromContext returns the request id stored on ctx, if any.
func FromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey).(string)
	return id, ok && id != ""
}

// Ensure returns a context that carries a request id, creating one when absent.
func Ensure(ctx context.Context) (context.Context, string) {
	if id, ok := FromContext(ctx); ok {
		return ctx, id
	}
	id := InitID(ctx)
	return ContextWithRequestID(ctx, id), id
}
