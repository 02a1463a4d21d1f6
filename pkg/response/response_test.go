package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/careguard/internal/platform/apperr"
	"github.com/ehr/careguard/pkg/pagination"
)

func decode(t *testing.T, rec *httptest.ResponseRecorder) Envelope {
	t.Helper()
	var env Envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("failed to decode envelope: %v", err)
	}
	return env
}

func TestErrorHandler_AppErr(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	ErrorHandler(zerolog.Nop())(apperr.Forbidden("facility mismatch"), c)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	env := decode(t, rec)
	if env.Success {
		t.Error("expected success=false")
	}
	if env.Error == nil || env.Error.Code != "FORBIDDEN" {
		t.Errorf("expected FORBIDDEN code, got %+v", env.Error)
	}
	if env.Error.Message != "facility mismatch" {
		t.Errorf("unexpected message %q", env.Error.Message)
	}
}

func TestErrorHandler_HidesInfrastructureCause(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := apperr.Infrastructure(http.ErrHandlerTimeout, "patient store unavailable")
	ErrorHandler(zerolog.Nop())(err, c)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	env := decode(t, rec)
	if env.Error.Message != "patient store unavailable" {
		t.Errorf("expected sanitized message, got %q", env.Error.Message)
	}
}

func TestErrorHandler_EchoHTTPError(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	ErrorHandler(zerolog.Nop())(echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header"), c)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if env := decode(t, rec); env.Error.Code != "UNAUTHORIZED" {
		t.Errorf("expected UNAUTHORIZED, got %s", env.Error.Code)
	}
}

func TestPage(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	meta := pagination.NewMeta(pagination.Params{Page: 1, Limit: 2}, 5)
	if err := Page(c, []string{"a", "b"}, meta); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	env := decode(t, rec)
	if !env.Success || env.Pagination == nil {
		t.Fatalf("expected paginated success envelope, got %+v", env)
	}
	if env.Pagination.TotalPages != 3 {
		t.Errorf("expected 3 pages, got %d", env.Pagination.TotalPages)
	}
}
