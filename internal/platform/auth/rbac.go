package auth

import (
	"github.com/labstack/echo/v4"

	"github.com/ehr/careguard/internal/platform/apperr"
	"github.com/ehr/careguard/internal/platform/policy"
)

// RequirePermission rejects callers whose role holds no grant for action on
// rt under any scope. It replaces per-route role lists: the rule table is the
// single source. Resource-level scoping is still done by the guard.
func RequirePermission(ev *policy.Evaluator, rt policy.ResourceType, action policy.Action) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			actor, err := RequireActor(c)
			if err != nil {
				return err
			}
			if d := ev.Permits(actor, rt, action); !d.Allowed {
				return apperr.Forbidden("%s", d.Reason)
			}
			return next(c)
		}
	}
}
