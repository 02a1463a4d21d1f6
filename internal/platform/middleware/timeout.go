package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ehr/careguard/pkg/response"
)

// RequestTimeout sets a deadline on each request context. Store calls and
// channel sends observe the deadline and return early; if the handler then
// fails or returns without writing, the client gets a 504 envelope.
func RequestTimeout(timeout time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()

			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)
			if errors.Is(ctx.Err(), context.DeadlineExceeded) && !c.Response().Committed {
				return response.Fail(c, http.StatusGatewayTimeout, "TIMEOUT", "request processing exceeded the allowed time limit")
			}
			return err
		}
	}
}
