package rbac

import "context"

type principalContextKey struct{}

// ContextWithPrincipal stores the authenticated actor in ctx.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext returns the actor stored by ContextWithPrincipal.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(Principal)
	return p, ok && p != nil
}

func actorID(ctx context.Context) string {
	if p, ok := PrincipalFromContext(ctx); ok {
		return p.PrincipalID()
	}
	return ""
}
