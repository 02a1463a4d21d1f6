package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/careguard/internal/platform/cache"
)

func TestRevocationList(t *testing.T) {
	ctx := context.Background()
	r := NewRevocationList(cache.NewMemory())

	if err := r.Revoke(ctx, "jti-1", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	revoked, err := r.IsRevoked(ctx, "jti-1")
	if err != nil || !revoked {
		t.Errorf("expected jti-1 revoked, got %v, %v", revoked, err)
	}

	revoked, _ = r.IsRevoked(ctx, "jti-2")
	if revoked {
		t.Error("expected jti-2 not revoked")
	}
}

func TestRevocationList_SkipsExpired(t *testing.T) {
	ctx := context.Background()
	mem := cache.NewMemory()
	r := NewRevocationList(mem)

	_ = r.Revoke(ctx, "old", time.Now().Add(-time.Minute))
	if mem.Len() != 0 {
		t.Error("expected expired token not to be stored")
	}
}

func TestLogoutHandler(t *testing.T) {
	r := NewRevocationList(cache.NewMemory())
	claims := &Claims{RegisteredClaims: jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req = req.WithContext(contextWithClaims(req.Context(), claims))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := handleLogout(r)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body["success"] != true {
		t.Errorf("expected success envelope, got %v", body)
	}

	revoked, _ := r.IsRevoked(context.Background(), claims.ID)
	if !revoked {
		t.Error("expected token to be revoked after logout")
	}
}

func TestLogoutHandler_NoClaims(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := handleLogout(NewRevocationList(cache.NewMemory()))(c); err == nil {
		t.Fatal("expected error without token claims")
	}
}
