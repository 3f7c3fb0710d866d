package analyses

import "context"

// traceKey carries the ID of the HTTP request or queue message that started an analysis,
// so service logs line up with the access log and the worker's log.
type traceKey struct{}

// WithRequestID tags ctx with the request ID that started the analysis.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, traceKey{}, requestID)
}

func requestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(traceKey{}).(string)
	return id
}

// detached keeps the request ID of ctx but drops its deadline and cancellation.
// The in-process run outlives the create request that scheduled it.
func detached(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}
