package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ehr/careguard/internal/platform/audit"
	"github.com/ehr/careguard/internal/platform/guard"
	"github.com/ehr/careguard/internal/platform/policy"
	"github.com/ehr/careguard/pkg/response"
)

// Platform is the shared machinery domain handlers run on, backed by one
// SQLite file.
type Platform struct {
	DB        *gorm.DB
	Seed      *Seeder
	Evaluator *policy.Evaluator
	Guard     *guard.Guard
	Audit     *audit.SQLiteStore
	Recorder  *audit.Recorder
}

func NewPlatform(t *testing.T) *Platform {
	t.Helper()
	gdb := OpenSQLite(t)
	ev := policy.NewEvaluator(nil)
	store := audit.NewSQLiteStore(gdb)
	return &Platform{
		DB:        gdb,
		Seed:      NewSeeder(t, gdb),
		Evaluator: ev,
		Guard:     guard.New(guard.NewSQLiteProjectionStore(gdb), ev, guard.Options{Timeout: time.Second, Logger: zerolog.Nop()}),
		Audit:     store,
		Recorder:  audit.NewRecorder(store, zerolog.Nop(), audit.RecorderOptions{}),
	}
}

// Server returns an echo instance with the envelope error handler and an
// /api/v1 group authenticated as *actor. Reassigning *actor between requests
// switches the caller.
func (p *Platform) Server(actor *policy.Actor) (*echo.Echo, *echo.Group) {
	e := echo.New()
	e.HTTPErrorHandler = response.ErrorHandler(zerolog.Nop())
	return e, e.Group("/api/v1", ActAs(actor))
}

// AuditEvents lists every recorded event, newest first.
func (p *Platform) AuditEvents(t *testing.T, f audit.Filter) []*audit.Event {
	t.Helper()
	f.Limit = 200
	events, err := p.Audit.List(context.Background(), f)
	require.NoError(t, err)
	return events
}

// Do sends a JSON request and returns the recorder.
func Do(e *echo.Echo, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

// Envelope decodes the response body, unmarshalling data into out when
// non-nil.
func Envelope(t *testing.T, rec *httptest.ResponseRecorder, out any) response.Envelope {
	t.Helper()
	var raw struct {
		response.Envelope
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw), rec.Body.String())
	if out != nil && len(raw.Data) > 0 {
		require.NoError(t, json.Unmarshal(raw.Data, out), string(raw.Data))
	}
	return raw.Envelope
}

// Expect asserts the status code, printing the body on mismatch.
func Expect(t *testing.T, rec *httptest.ResponseRecorder, status int) {
	t.Helper()
	require.Equal(t, status, rec.Code, rec.Body.String())
}
