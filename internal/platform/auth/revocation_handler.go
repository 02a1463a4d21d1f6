package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ehr/careguard/internal/platform/apperr"
	"github.com/ehr/careguard/pkg/response"
)

// RegisterRoutes mounts the session endpoints on an authenticated group.
func RegisterRoutes(g *echo.Group, revocations *RevocationList) {
	g.GET("/auth/me", handleMe)
	g.POST("/auth/logout", handleLogout(revocations))
}

func handleMe(c echo.Context) error {
	actor, err := RequireActor(c)
	if err != nil {
		return err
	}
	return response.OK(c, http.StatusOK, "", actor)
}

// handleLogout revokes the presented token until its expiry.
func handleLogout(revocations *RevocationList) echo.HandlerFunc {
	return func(c echo.Context) error {
		claims, ok := ClaimsFromContext(c.Request().Context())
		if !ok || claims.ID == "" || claims.ExpiresAt == nil {
			return apperr.Validation("token cannot be revoked: no jti or exp claim")
		}
		if err := revocations.Revoke(c.Request().Context(), claims.ID, claims.ExpiresAt.Time); err != nil {
			return apperr.Infrastructure(err, "token revocation failed")
		}
		return response.OK(c, http.StatusOK, "logged out", nil)
	}
}
