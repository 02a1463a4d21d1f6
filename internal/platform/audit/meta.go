package audit

import (
	"context"

	"github.com/labstack/echo/v4"
)

// RequestMeta is the transport context copied into every event.
type RequestMeta struct {
	IPAddress string
	UserAgent string
	RequestID string
}

type metaKey struct{}

func WithRequestMeta(ctx context.Context, m RequestMeta) context.Context {
	return context.WithValue(ctx, metaKey{}, m)
}

func MetaFromContext(ctx context.Context) RequestMeta {
	m, _ := ctx.Value(metaKey{}).(RequestMeta)
	return m
}

// Middleware captures client address, user agent and request id for the
// recorder. It must run after the request id middleware.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			rid := c.Response().Header().Get(echo.HeaderXRequestID)
			if rid == "" {
				rid = req.Header.Get(echo.HeaderXRequestID)
			}
			ctx := WithRequestMeta(req.Context(), RequestMeta{
				IPAddress: c.RealIP(),
				UserAgent: req.UserAgent(),
				RequestID: rid,
			})
			c.SetRequest(req.WithContext(ctx))
			return next(c)
		}
	}
}
