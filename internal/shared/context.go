package shared

import "context"

type actorContextKey struct{}

type tenantContextKey struct{}

// ContextWithActor stores the authenticated user id in context. Identity is
// established upstream; this package only transports it.
func ContextWithActor(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, actorContextKey{}, userID)
}

// ActorFromContext extracts the authenticated user id, empty when absent.
func ActorFromContext(ctx context.Context) string {
	userID, _ := ctx.Value(actorContextKey{}).(string)
	return userID
}

// ContextWithTenant stores the tenant id in context.
func ContextWithTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantContextKey{}, tenantID)
}

// TenantFromContext extracts the tenant id, empty when absent.
func TenantFromContext(ctx context.Context) string {
	tenantID, _ := ctx.Value(tenantContextKey{}).(string)
	return tenantID
}
