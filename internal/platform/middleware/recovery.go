package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"runtime"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// ErrPanic wraps a recovered handler panic. The error handler renders it as
// a generic 500 envelope.
var ErrPanic = errors.New("handler panic")

// Recovery turns a panic into an ErrPanic error so the request still flows
// through the error handler and the access log. It must sit inside Logger.
func Recovery(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				if r == http.ErrAbortHandler {
					panic(r)
				}

				var stack [4096]byte
				n := runtime.Stack(stack[:], false)

				evt := logger.Error().
					Str("request_id", requestID(c)).
					Str("method", c.Request().Method).
					Str("path", c.Request().URL.Path).
					Str("panic", fmt.Sprintf("%v", r)).
					Str("stack", string(stack[:n]))
				if actor, ok := c.Get("actor_id").(string); ok && actor != "" {
					evt = evt.Str("actor_id", actor)
				}
				evt.Msg("panic recovered")

				err = fmt.Errorf("%w: %v", ErrPanic, r)
			}()
			return next(c)
		}
	}
}

func requestID(c echo.Context) string {
	if rid, ok := c.Get("request_id").(string); ok {
		return rid
	}
	return c.Request().Header.Get(RequestIDHeader)
}
