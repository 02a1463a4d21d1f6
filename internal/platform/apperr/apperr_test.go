package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

func TestFromStore(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"pgx no rows", pgx.ErrNoRows, KindNotFound},
		{"gorm not found", gorm.ErrRecordNotFound, KindNotFound},
		{"wrapped no rows", fmt.Errorf("scan: %w", pgx.ErrNoRows), KindNotFound},
		{"pg unique violation", &pgconn.PgError{Code: "23505"}, KindConflict},
		{"sqlite unique violation", errors.New("constraint failed: UNIQUE constraint failed: insurance_policy.policy_number (2067)"), KindConflict},
		{"deadline", context.DeadlineExceeded, KindInfrastructure},
		{"other", errors.New("connection refused"), KindInfrastructure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromStore(tt.err, "patient")
			if KindOf(got) != tt.want {
				t.Errorf("expected kind %v, got %v", tt.want, KindOf(got))
			}
		})
	}
}

func TestFromStore_Nil(t *testing.T) {
	if FromStore(nil, "patient") != nil {
		t.Error("expected nil for nil input")
	}
}

func TestFromStore_KeepsClassifiedError(t *testing.T) {
	orig := Forbidden("not yours")
	if got := FromStore(orig, "patient"); got != orig {
		t.Errorf("expected classified error to pass through, got %v", got)
	}
}

func TestIs_MatchesByKind(t *testing.T) {
	err := fmt.Errorf("load: %w", NotFound("medical record not found"))
	if !errors.Is(err, ErrNotFound) {
		t.Error("expected errors.Is to match ErrNotFound")
	}
	if errors.Is(err, ErrForbidden) {
		t.Error("did not expect match against ErrForbidden")
	}
}

func TestKind_HTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		KindNotFound:       http.StatusNotFound,
		KindForbidden:      http.StatusForbidden,
		KindValidation:     http.StatusBadRequest,
		KindConflict:       http.StatusConflict,
		KindUnauthorized:   http.StatusUnauthorized,
		KindInfrastructure: http.StatusServiceUnavailable,
	}
	for k, want := range cases {
		if got := k.HTTPStatus(); got != want {
			t.Errorf("%s: expected %d, got %d", k, want, got)
		}
	}
}
