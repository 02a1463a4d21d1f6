package auth

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/ehr/careguard/internal/platform/apperr"
	"github.com/ehr/careguard/internal/platform/policy"
)

type contextKey string

const (
	actorKey  contextKey = "actor"
	claimsKey contextKey = "claims"
)

// ContextWithActor attaches the resolved caller to ctx.
func ContextWithActor(ctx context.Context, actor policy.Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFromContext returns the caller attached by the auth middleware.
func ActorFromContext(ctx context.Context) (policy.Actor, bool) {
	a, ok := ctx.Value(actorKey).(policy.Actor)
	return a, ok
}

// RequireActor returns the caller or a 401 error for handlers mounted
// outside the auth middleware by mistake.
func RequireActor(c echo.Context) (policy.Actor, error) {
	a, ok := ActorFromContext(c.Request().Context())
	if !ok {
		return policy.Actor{}, apperr.Unauthorized("authentication required")
	}
	return a, nil
}

func contextWithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// ClaimsFromContext returns the verified token claims, if the request was
// authenticated with a bearer token.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey).(*Claims)
	return c, ok
}
