package guard

import (
	"context"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/careguard/internal/platform/apperr"
	"github.com/ehr/careguard/internal/platform/auth"
	"github.com/ehr/careguard/internal/platform/policy"
)

type resourceKey struct{}

// ContextWithResource attaches the checked projection to ctx.
func ContextWithResource(ctx context.Context, res *policy.Resource) context.Context {
	return context.WithValue(ctx, resourceKey{}, res)
}

// ResourceFromContext returns the projection attached by Require.
func ResourceFromContext(ctx context.Context) (*policy.Resource, bool) {
	res, ok := ctx.Value(resourceKey{}).(*policy.Resource)
	return res, ok && res != nil
}

// Require checks action on the resource named by path parameter param
// before the handler runs.
func Require(g *Guard, rt policy.ResourceType, action policy.Action, param string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			actor, id, err := actorAndID(c, param, rt)
			if err != nil {
				return err
			}
			r := g.Check(c.Request().Context(), actor, action, rt, id)
			if !r.Allowed() {
				return r.Error()
			}
			c.SetRequest(c.Request().WithContext(ContextWithResource(c.Request().Context(), r.Resource)))
			return next(c)
		}
	}
}

// RequireCreate checks creation of child under the parent named by param.
// The parent projection is attached to the request context.
func RequireCreate(g *Guard, child, parentType policy.ResourceType, param string) echo.MiddlewareFunc {
	return RequireChild(g, child, policy.ActionCreate, parentType, param)
}

// RequireChild checks action on the children of type child under the parent
// named by param.
func RequireChild(g *Guard, child policy.ResourceType, action policy.Action, parentType policy.ResourceType, param string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			actor, id, err := actorAndID(c, param, parentType)
			if err != nil {
				return err
			}
			r := g.CheckChild(c.Request().Context(), actor, action, child, parentType, id)
			if !r.Allowed() {
				return r.Error()
			}
			c.SetRequest(c.Request().WithContext(ContextWithResource(c.Request().Context(), r.Resource)))
			return next(c)
		}
	}
}

func actorAndID(c echo.Context, param string, rt policy.ResourceType) (policy.Actor, uuid.UUID, error) {
	actor, err := auth.RequireActor(c)
	if err != nil {
		return policy.Actor{}, uuid.Nil, err
	}
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		return policy.Actor{}, uuid.Nil, apperr.Validation("invalid %s id", rt)
	}
	return actor, id, nil
}
