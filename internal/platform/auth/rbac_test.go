package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/careguard/internal/platform/apperr"
	"github.com/ehr/careguard/internal/platform/policy"
)

func newActorContext(actor *policy.Actor) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if actor != nil {
		req = req.WithContext(ContextWithActor(req.Context(), *actor))
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestRequirePermission_Allowed(t *testing.T) {
	facility := uuid.New()
	c, rec := newActorContext(&policy.Actor{ID: uuid.New(), Role: policy.RoleAdmin, FacilityID: &facility})

	mw := RequirePermission(policy.NewEvaluator(nil), policy.ResourceNotification, policy.ActionBroadcast)
	err := mw(func(c echo.Context) error { return c.String(http.StatusOK, "ok") })(c)

	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestRequirePermission_Denied(t *testing.T) {
	facility := uuid.New()
	c, _ := newActorContext(&policy.Actor{ID: uuid.New(), Role: policy.RoleNurse, FacilityID: &facility})

	mw := RequirePermission(policy.NewEvaluator(nil), policy.ResourceNotification, policy.ActionBroadcast)
	err := mw(func(c echo.Context) error { return c.String(http.StatusOK, "ok") })(c)

	if apperr.KindOf(err) != apperr.KindForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestRequirePermission_NoActor(t *testing.T) {
	c, _ := newActorContext(nil)

	mw := RequirePermission(policy.NewEvaluator(nil), policy.ResourcePatient, policy.ActionRead)
	err := mw(func(c echo.Context) error { return c.String(http.StatusOK, "ok") })(c)

	if apperr.KindOf(err) != apperr.KindUnauthorized {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}
