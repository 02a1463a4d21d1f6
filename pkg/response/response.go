// Package response renders the JSON envelope shared by every endpoint.
package response

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/careguard/internal/platform/apperr"
	"github.com/ehr/careguard/pkg/pagination"
)

// Envelope is the body of every API response.
type Envelope struct {
	Success    bool             `json:"success"`
	Message    string           `json:"message,omitempty"`
	Data       any              `json:"data,omitempty"`
	Error      *ErrorBody       `json:"error,omitempty"`
	Pagination *pagination.Meta `json:"pagination,omitempty"`
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// OK writes a successful envelope.
func OK(c echo.Context, status int, message string, data any) error {
	return c.JSON(status, Envelope{Success: true, Message: message, Data: data})
}

// Page writes a successful envelope with a pagination block.
func Page(c echo.Context, data any, meta *pagination.Meta) error {
	return c.JSON(http.StatusOK, Envelope{Success: true, Data: data, Pagination: meta})
}

// Fail writes an error envelope.
func Fail(c echo.Context, status int, code, message string) error {
	return c.JSON(status, Envelope{
		Success: false,
		Message: message,
		Error:   &ErrorBody{Code: code, Message: message},
	})
}

// ErrorHandler converts apperr and echo errors into the envelope. 5xx
// responses are logged with the request id; the cause never reaches the
// client.
func ErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := http.StatusInternalServerError
		code := "INTERNAL_ERROR"
		message := "internal server error"

		var ae *apperr.Error
		var he *echo.HTTPError
		switch {
		case errors.As(err, &ae):
			status = ae.Kind.HTTPStatus()
			code = ae.Kind.String()
			message = ae.Message
		case errors.As(err, &he):
			status = he.Code
			code = codeForStatus(he.Code)
			message = fmt.Sprint(he.Message)
		}

		if status >= http.StatusInternalServerError {
			logger.Error().Err(err).
				Str("request_id", c.Response().Header().Get(echo.HeaderXRequestID)).
				Str("path", c.Request().URL.Path).
				Int("status", status).
				Msg("request failed")
		}

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(status)
			return
		}
		_ = Fail(c, status, code, message)
	}
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return apperr.KindValidation.String()
	case http.StatusUnauthorized:
		return apperr.KindUnauthorized.String()
	case http.StatusForbidden:
		return apperr.KindForbidden.String()
	case http.StatusNotFound:
		return apperr.KindNotFound.String()
	case http.StatusConflict:
		return apperr.KindConflict.String()
	case http.StatusTooManyRequests:
		return "RATE_LIMITED"
	case http.StatusGatewayTimeout:
		return "TIMEOUT"
	case http.StatusServiceUnavailable:
		return apperr.KindInfrastructure.String()
	default:
		if status >= 500 {
			return "INTERNAL_ERROR"
		}
		return "REQUEST_ERROR"
	}
}
