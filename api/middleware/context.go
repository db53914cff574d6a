package middleware

import "context"

type contextKey string

const (
	ctxUserID   contextKey = "user_id"
	ctxRole     contextKey = "actor_role"
	ctxAccessID contextKey = "access_id"
	ctxClientID contextKey = "client_id"
)

func stringValue(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

func UserIDFromContext(ctx context.Context) string   { return stringValue(ctx, ctxUserID) }
func RoleFromContext(ctx context.Context) string     { return stringValue(ctx, ctxRole) }
func AccessIDFromContext(ctx context.Context) string { return stringValue(ctx, ctxAccessID) }

// ClientIDFromContext returns the storefront device id sent in X-Client-Id.
func ClientIDFromContext(ctx context.Context) string { return stringValue(ctx, ctxClientID) }

// WithUserID injects the user identifier into the context.
func WithUserID(ctx context.Context, userID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxUserID, userID)
}

// WithRole injects the actor role; tests use it to fake an authenticated request.
func WithRole(ctx context.Context, role string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxRole, role)
}

func WithClientID(ctx context.Context, clientID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxClientID, clientID)
}
