package types

import "context"

// contextKey is a private type to avoid collisions with other packages'
// context values.
type contextKey string

const (
	requestIDKey contextKey = "request_id"
	orgIDKey     contextKey = "organization_id"
)

// WithRequestID stores the request correlation ID in the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// GetRequestID returns the request ID stored in the context, or "" if absent.
func GetRequestID(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// WithOrganizationID stores the authenticated tenant ID in the context.
func WithOrganizationID(ctx context.Context, orgID string) context.Context {
	return context.WithValue(ctx, orgIDKey, orgID)
}

// GetOrganizationID returns the tenant ID stored in the context, or "" if
// the request is unauthenticated.
func GetOrganizationID(ctx context.Context) string {
	if v, ok := ctx.Value(orgIDKey).(string); ok {
		return v
	}
	return ""
}
