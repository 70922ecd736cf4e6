package auth

import "context"

type contextKey string

const principalContextKey contextKey = "principal"

// Method records how a principal authenticated.
type Method string

const (
	MethodJWT    Method = "jwt"
	MethodAPIKey Method = "api_key"
)

// Principal is the authenticated identity a request acts for.
type Principal struct {
	UserID      string
	Permissions PermissionSet
	Method      Method
	KeyID       string
}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey).(Principal)
	return p, ok
}
