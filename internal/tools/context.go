package tools

import "context"

type contextKey string

const requestIDKey contextKey = "request_id"

// WithRequestID adds the inbound request ID to the context so that tool
// side effects (audit entries, announcements) can be correlated with it.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the request ID from the context.
// Returns "" if not set.
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}
