package types

import "context"

// contextKey is used for storing values in context.Context.
type contextKey string

const (
	keyRequestID contextKey = "request_id"
	keyUserID    contextKey = "user_id"
	keyScopes    contextKey = "scopes"
)

// WithRequestID adds a request ID to context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, keyRequestID, requestID)
}

// RequestID extracts the request ID from context.
func RequestID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyRequestID).(string)
	return v, ok && v != ""
}

// WithUserID adds a user ID to context.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, keyUserID, userID)
}

// UserID extracts the user ID from context.
func UserID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyUserID).(string)
	return v, ok && v != ""
}

// WithScopes adds raw permission scope strings to context.
func WithScopes(ctx context.Context, scopes []string) context.Context {
	return context.WithValue(ctx, keyScopes, scopes)
}

// Scopes extracts raw permission scope strings from context.
func Scopes(ctx context.Context) ([]string, bool) {
	v, ok := ctx.Value(keyScopes).([]string)
	return v, ok && len(v) > 0
}
