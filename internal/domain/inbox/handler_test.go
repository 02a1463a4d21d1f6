package inbox

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehr/careguard/internal/domain/directory"
	"github.com/ehr/careguard/internal/platform/audit"
	"github.com/ehr/careguard/internal/platform/notification"
	"github.com/ehr/careguard/internal/platform/policy"
	"github.com/ehr/careguard/internal/testutil"
)

type failingStore struct{}

func (failingStore) CreateBatch(context.Context, []*notification.Record) error {
	return errors.New("disk I/O error")
}

type fixture struct {
	p      *testutil.Platform
	e      *echo.Echo
	actor  policy.Actor
	repo   Repository
	email  *notification.MockEmailSender
	f1, f2 uuid.UUID
}

func newFixture(t *testing.T, store notification.Store) *fixture {
	t.Helper()
	p := testutil.NewPlatform(t)
	people := directory.NewService(directory.NewUserRepoSQLite(p.DB), directory.NewPatientRepoSQLite(p.DB),
		directory.NewProviderRepoSQLite(p.DB), p.Evaluator, p.Recorder, zerolog.Nop())
	f := &fixture{
		p:     p,
		repo:  NewRepoSQLite(p.DB),
		email: &notification.MockEmailSender{},
		f1:    p.Seed.Facility("F1"),
		f2:    p.Seed.Facility("F2"),
	}
	if store == nil {
		store = f.repo
	}
	dispatcher := notification.NewDispatcher(store, f.email, &notification.MockSMSSender{}, notification.Options{Logger: zerolog.Nop()})
	resolver := notification.NewResolver(people, p.Evaluator, zerolog.Nop())
	svc := NewService(f.repo, resolver, dispatcher, p.Recorder, zerolog.Nop())

	e, api := p.Server(&f.actor)
	NewHandler(svc, p.Guard).RegisterRoutes(api)
	f.e = e
	return f
}

// seed stores notifications for recipient directly, bypassing the dispatcher.
func (f *fixture) seed(t *testing.T, recipient uuid.UUID, titles ...string) []uuid.UUID {
	t.Helper()
	var ids []uuid.UUID
	var records []*notification.Record
	for i, title := range titles {
		n := &notification.Record{
			ID:          uuid.New(),
			RecipientID: recipient,
			Type:        notification.TypeSystem,
			Title:       title,
			Message:     title + " body",
			Priority:    notification.PriorityNormal,
			CreatedAt:   time.Now().UTC().Add(time.Duration(i) * time.Second),
		}
		ids = append(ids, n.ID)
		records = append(records, n)
	}
	require.NoError(t, f.repo.CreateBatch(context.Background(), records))
	return ids
}

func TestBroadcast_AdminReachesOnlyActiveUsersOfOwnFacility(t *testing.T) {
	f := newFixture(t, nil)
	admin := f.p.Seed.User(policy.RoleAdmin, &f.f1)
	doctor := f.p.Seed.User(policy.RoleDoctor, &f.f1)
	_, patient := f.p.Seed.Patient(&f.f1)
	gone := f.p.Seed.User(policy.RoleNurse, &f.f1)
	f.p.Seed.SetStatus(gone.ID, "INACTIVE")
	foreign := f.p.Seed.User(policy.RoleDoctor, &f.f2)
	f.p.Seed.User(policy.RoleSuperAdmin, nil)

	f.actor = admin
	rec := testutil.Do(f.e, http.MethodPost, "/api/v1/notifications/broadcast", map[string]any{
		"title":    "Fire drill",
		"message":  "Drill at 10:00.",
		"channels": []string{"email"},
	})
	testutil.Expect(t, rec, http.StatusCreated)
	var res notification.Result
	testutil.Envelope(t, rec, &res)

	got := map[uuid.UUID]bool{}
	for _, n := range res.Created {
		got[n.RecipientID] = true
		assert.Equal(t, notification.TypeBroadcast, n.Type)
		assert.Equal(t, "Fire drill", n.Title)
	}
	assert.Equal(t, map[uuid.UUID]bool{admin.ID: true, doctor.ID: true, patient.ID: true}, got)
	assert.Empty(t, res.ChannelErrors)
	assert.Len(t, f.email.Calls(), 3)

	events := f.p.AuditEvents(t, audit.Filter{ResourceType: string(policy.ResourceNotification)})
	require.Len(t, events, 3)
	for _, e := range events {
		assert.Equal(t, audit.ActionBroadcast, e.Action)
		assert.Equal(t, admin.ID, *e.ActorID)
	}

	f.actor = foreign
	rec = testutil.Do(f.e, http.MethodGet, "/api/v1/notifications", nil)
	testutil.Expect(t, rec, http.StatusOK)
	var items []notification.Record
	testutil.Envelope(t, rec, &items)
	assert.Empty(t, items)
}

func TestBroadcast_Rejected(t *testing.T) {
	f := newFixture(t, nil)
	admin := f.p.Seed.User(policy.RoleAdmin, &f.f1)

	tests := []struct {
		name  string
		actor policy.Actor
		body  map[string]any
		want  int
	}{
		{"doctor cannot broadcast", f.p.Seed.User(policy.RoleDoctor, &f.f1), map[string]any{"title": "t", "message": "m"}, http.StatusForbidden},
		{"foreign facility", admin, map[string]any{"title": "t", "message": "m", "facility_id": f.f2}, http.StatusForbidden},
		{"unknown role", admin, map[string]any{"title": "t", "message": "m", "roles": []string{"JANITOR"}}, http.StatusBadRequest},
		{"blank title", admin, map[string]any{"title": " ", "message": "m"}, http.StatusBadRequest},
		{"missing message", admin, map[string]any{"title": "t"}, http.StatusBadRequest},
		{"expired", admin, map[string]any{"title": "t", "message": "m", "expires_at": time.Now().Add(-time.Hour)}, http.StatusBadRequest},
		{"unknown channel", admin, map[string]any{"title": "t", "message": "m", "channels": []string{"pager"}}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.actor = tt.actor
			testutil.Expect(t, testutil.Do(f.e, http.MethodPost, "/api/v1/notifications/broadcast", tt.body), tt.want)
		})
	}
	assert.Empty(t, f.p.AuditEvents(t, audit.Filter{}))
}

func TestBroadcast_RoleTargeting(t *testing.T) {
	f := newFixture(t, nil)
	f.p.Seed.User(policy.RoleDoctor, &f.f1)
	f.p.Seed.User(policy.RoleDoctor, &f.f2)
	f.p.Seed.User(policy.RoleNurse, &f.f2)
	f.actor = f.p.Seed.User(policy.RoleSuperAdmin, nil)

	rec := testutil.Do(f.e, http.MethodPost, "/api/v1/notifications/broadcast", map[string]any{
		"title": "Rounds", "message": "Rounds moved.", "roles": []string{"DOCTOR"}, "priority": "HIGH",
	})
	testutil.Expect(t, rec, http.StatusCreated)
	var res notification.Result
	testutil.Envelope(t, rec, &res)
	require.Len(t, res.Created, 2)
	assert.Equal(t, notification.PriorityHigh, res.Created[0].Priority)
	assert.Empty(t, f.email.Calls())
}

func TestBroadcast_StoreFailureFailsRequest(t *testing.T) {
	f := newFixture(t, failingStore{})
	f.p.Seed.User(policy.RoleNurse, &f.f1)
	f.actor = f.p.Seed.User(policy.RoleAdmin, &f.f1)

	rec := testutil.Do(f.e, http.MethodPost, "/api/v1/notifications/broadcast", map[string]any{"title": "t", "message": "m", "channels": []string{"email"}})
	testutil.Expect(t, rec, http.StatusServiceUnavailable)
	assert.Empty(t, f.email.Calls())
	assert.Empty(t, f.p.AuditEvents(t, audit.Filter{}))
}

func TestInbox_ReadFlow(t *testing.T) {
	f := newFixture(t, nil)
	me := f.p.Seed.User(policy.RoleNurse, &f.f1)
	other := f.p.Seed.User(policy.RoleNurse, &f.f1)
	ids := f.seed(t, me.ID, "one", "two", "three")
	f.seed(t, other.ID, "theirs")

	expired := &notification.Record{
		ID: uuid.New(), RecipientID: me.ID, Type: notification.TypeSystem, Title: "old", Message: "old",
		Priority: notification.PriorityLow, CreatedAt: time.Now().UTC().Add(-48 * time.Hour),
	}
	past := time.Now().UTC().Add(-time.Hour)
	expired.ExpiresAt = &past
	require.NoError(t, f.repo.CreateBatch(context.Background(), []*notification.Record{expired}))

	f.actor = me
	rec := testutil.Do(f.e, http.MethodGet, "/api/v1/notifications?limit=2", nil)
	testutil.Expect(t, rec, http.StatusOK)
	var items []notification.Record
	env := testutil.Envelope(t, rec, &items)
	require.Len(t, items, 2)
	assert.Equal(t, "three", items[0].Title)
	assert.Equal(t, 3, env.Pagination.Total)

	var count map[string]int
	testutil.Envelope(t, testutil.Do(f.e, http.MethodGet, "/api/v1/notifications/unread-count", nil), &count)
	assert.Equal(t, 3, count["count"])

	rec = testutil.Do(f.e, http.MethodPatch, "/api/v1/notifications/"+ids[0].String()+"/read", nil)
	testutil.Expect(t, rec, http.StatusOK)
	var n notification.Record
	testutil.Envelope(t, rec, &n)
	assert.True(t, n.IsRead)
	require.NotNil(t, n.ReadAt)
	testutil.Expect(t, testutil.Do(f.e, http.MethodPatch, "/api/v1/notifications/"+ids[0].String()+"/read", nil), http.StatusOK)

	rec = testutil.Do(f.e, http.MethodGet, "/api/v1/notifications?unread=true", nil)
	testutil.Expect(t, rec, http.StatusOK)
	env = testutil.Envelope(t, rec, &items)
	assert.Equal(t, 2, env.Pagination.Total)

	var updated map[string]int
	rec = testutil.Do(f.e, http.MethodPatch, "/api/v1/notifications/read-all", nil)
	testutil.Expect(t, rec, http.StatusOK)
	testutil.Envelope(t, rec, &updated)
	assert.Equal(t, 2, updated["updated"])

	testutil.Envelope(t, testutil.Do(f.e, http.MethodGet, "/api/v1/notifications/unread-count", nil), &count)
	assert.Equal(t, 0, count["count"])

	events := f.p.AuditEvents(t, audit.Filter{ResourceType: string(policy.ResourceNotification)})
	require.Len(t, events, 3)
	for _, e := range events {
		assert.Equal(t, audit.ActionMarkRead, e.Action)
	}

	f.actor = other
	testutil.Expect(t, testutil.Do(f.e, http.MethodPatch, "/api/v1/notifications/"+ids[1].String()+"/read", nil), http.StatusForbidden)
	testutil.Expect(t, testutil.Do(f.e, http.MethodDelete, "/api/v1/notifications/"+ids[1].String(), nil), http.StatusForbidden)

	f.actor = me
	testutil.Expect(t, testutil.Do(f.e, http.MethodDelete, "/api/v1/notifications/"+ids[1].String(), nil), http.StatusOK)
	testutil.Expect(t, testutil.Do(f.e, http.MethodDelete, "/api/v1/notifications/"+ids[1].String(), nil), http.StatusNotFound)
	testutil.Expect(t, testutil.Do(f.e, http.MethodPatch, "/api/v1/notifications/"+uuid.NewString()+"/read", nil), http.StatusNotFound)

	rec = testutil.Do(f.e, http.MethodGet, "/api/v1/notifications", nil)
	env = testutil.Envelope(t, rec, &items)
	assert.Equal(t, 2, env.Pagination.Total)
}

func TestInbox_AdminReadsFacilityNotifications(t *testing.T) {
	f := newFixture(t, nil)
	nurse := f.p.Seed.User(policy.RoleNurse, &f.f1)
	ids := f.seed(t, nurse.ID, "shift")

	f.actor = f.p.Seed.User(policy.RoleAdmin, &f.f2)
	testutil.Expect(t, testutil.Do(f.e, http.MethodDelete, "/api/v1/notifications/"+ids[0].String(), nil), http.StatusForbidden)

	f.actor = f.p.Seed.User(policy.RoleAdmin, &f.f1)
	testutil.Expect(t, testutil.Do(f.e, http.MethodDelete, "/api/v1/notifications/"+ids[0].String(), nil), http.StatusOK)
}
