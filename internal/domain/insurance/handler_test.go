package insurance

import (
	"context"
	"net/http"
	"sync"
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

type memNotifications struct {
	mu      sync.Mutex
	records []*notification.Record
}

func (s *memNotifications) CreateBatch(_ context.Context, records []*notification.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, records...)
	return nil
}

func (s *memNotifications) All() []*notification.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*notification.Record(nil), s.records...)
}

type fixture struct {
	p      *testutil.Platform
	e      *echo.Echo
	actor  policy.Actor
	notes  *memNotifications
	email  *notification.MockEmailSender
	f1, f2 uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	p := testutil.NewPlatform(t)
	people := directory.NewService(directory.NewUserRepoSQLite(p.DB), directory.NewPatientRepoSQLite(p.DB),
		directory.NewProviderRepoSQLite(p.DB), p.Evaluator, p.Recorder, zerolog.Nop())
	f := &fixture{
		p:     p,
		notes: &memNotifications{},
		email: &notification.MockEmailSender{},
		f1:    p.Seed.Facility("F1"),
		f2:    p.Seed.Facility("F2"),
	}
	dispatcher := notification.NewDispatcher(f.notes, f.email, &notification.MockSMSSender{}, notification.Options{Logger: zerolog.Nop()})
	svc := NewService(NewPolicyRepoSQLite(p.DB), NewClaimRepoSQLite(p.DB), p.Recorder, dispatcher, people, zerolog.Nop())

	e, api := p.Server(&f.actor)
	NewHandler(svc, p.Guard).RegisterRoutes(api)
	f.e = e
	return f
}

func policyBody(number string) map[string]any {
	return map[string]any{
		"provider_name": "Acme Health",
		"policy_number": number,
		"coverage_type": "MEDICAL",
		"start_date":    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func claimBody(number string) map[string]any {
	return map[string]any{
		"claim_number": number,
		"service_date": time.Now().Add(-48 * time.Hour).UTC(),
		"amount_cents": 12500,
	}
}

func (f *fixture) createPolicy(t *testing.T, patientID uuid.UUID, number string) uuid.UUID {
	t.Helper()
	rec := testutil.Do(f.e, http.MethodPost, "/api/v1/patients/"+patientID.String()+"/insurance-policies", policyBody(number))
	testutil.Expect(t, rec, http.StatusCreated)
	var p Policy
	testutil.Envelope(t, rec, &p)
	return p.ID
}

func (f *fixture) createClaim(t *testing.T, policyID uuid.UUID, number string) uuid.UUID {
	t.Helper()
	rec := testutil.Do(f.e, http.MethodPost, "/api/v1/insurance-policies/"+policyID.String()+"/claims", claimBody(number))
	testutil.Expect(t, rec, http.StatusCreated)
	var c Claim
	testutil.Envelope(t, rec, &c)
	assert.Equal(t, ClaimSubmitted, c.Status)
	return c.ID
}

func (f *fixture) setStatus(claimID uuid.UUID, status ClaimStatus) int {
	return testutil.Do(f.e, http.MethodPatch, "/api/v1/insurance-claims/"+claimID.String()+"/status",
		map[string]any{"status": status}).Code
}

func TestClaimStatus_Transitions(t *testing.T) {
	tests := []struct {
		from, to ClaimStatus
		want     bool
	}{
		{ClaimSubmitted, ClaimInReview, true},
		{ClaimSubmitted, ClaimApproved, true},
		{ClaimSubmitted, ClaimDenied, true},
		{ClaimSubmitted, ClaimPaid, false},
		{ClaimInReview, ClaimApproved, true},
		{ClaimInReview, ClaimSubmitted, false},
		{ClaimApproved, ClaimPaid, true},
		{ClaimApproved, ClaimDenied, false},
		{ClaimDenied, ClaimApproved, false},
		{ClaimPaid, ClaimSubmitted, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.want {
			t.Errorf("%s -> %s = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestPolicies_AccessByRoleAndFacility(t *testing.T) {
	f := newFixture(t)
	p1, u1 := f.p.Seed.Patient(&f.f1)
	p2, _ := f.p.Seed.Patient(&f.f1)

	f.actor = f.p.Seed.User(policy.RoleStaff, &f.f1)
	id := f.createPolicy(t, p1, "POL-100")

	events := f.p.AuditEvents(t, audit.Filter{ResourceType: string(policy.ResourceInsurancePolicy)})
	require.Len(t, events, 1)
	assert.Equal(t, audit.ActionCreate, events[0].Action)
	assert.Equal(t, "POL-100", events[0].Details["policy_number"])

	rec := testutil.Do(f.e, http.MethodPost, "/api/v1/patients/"+p2.String()+"/insurance-policies", policyBody("POL-100"))
	testutil.Expect(t, rec, http.StatusConflict)

	f.actor = f.p.Seed.User(policy.RoleStaff, &f.f2)
	testutil.Expect(t, testutil.Do(f.e, http.MethodGet, "/api/v1/insurance-policies/"+id.String(), nil), http.StatusForbidden)

	f.actor = f.p.Seed.User(policy.RoleDoctor, &f.f1)
	testutil.Expect(t, testutil.Do(f.e, http.MethodGet, "/api/v1/insurance-policies/"+id.String(), nil), http.StatusOK)
	testutil.Expect(t, testutil.Do(f.e, http.MethodPost, "/api/v1/patients/"+p1.String()+"/insurance-policies", policyBody("POL-200")), http.StatusForbidden)

	f.actor = f.p.Seed.User(policy.RoleNurse, &f.f1)
	testutil.Expect(t, testutil.Do(f.e, http.MethodGet, "/api/v1/insurance-policies/"+id.String(), nil), http.StatusForbidden)

	f.actor = u1
	f.createPolicy(t, p1, "POL-101")
	testutil.Expect(t, testutil.Do(f.e, http.MethodPost, "/api/v1/patients/"+p2.String()+"/insurance-policies", policyBody("POL-300")), http.StatusForbidden)

	rec = testutil.Do(f.e, http.MethodGet, "/api/v1/patients/"+p1.String()+"/insurance-policies", nil)
	testutil.Expect(t, rec, http.StatusOK)
	var items []Policy
	env := testutil.Envelope(t, rec, &items)
	assert.Len(t, items, 2)
	assert.Equal(t, 2, env.Pagination.Total)

	testutil.Expect(t, testutil.Do(f.e, http.MethodGet, "/api/v1/insurance-policies/"+uuid.NewString(), nil), http.StatusNotFound)
}

func TestPolicies_CreateValidation(t *testing.T) {
	f := newFixture(t)
	patientID, _ := f.p.Seed.Patient(&f.f1)
	f.actor = f.p.Seed.User(policy.RoleAdmin, &f.f1)
	path := "/api/v1/patients/" + patientID.String() + "/insurance-policies"

	tests := []struct {
		name   string
		mutate func(map[string]any)
	}{
		{"missing provider", func(b map[string]any) { b["provider_name"] = " " }},
		{"missing number", func(b map[string]any) { delete(b, "policy_number") }},
		{"unknown coverage", func(b map[string]any) { b["coverage_type"] = "PET" }},
		{"missing start", func(b map[string]any) { delete(b, "start_date") }},
		{"end before start", func(b map[string]any) { b["end_date"] = time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := policyBody("POL-X")
			tt.mutate(body)
			testutil.Expect(t, testutil.Do(f.e, http.MethodPost, path, body), http.StatusBadRequest)
		})
	}
	assert.Empty(t, f.p.AuditEvents(t, audit.Filter{}))
}

func TestPolicies_UpdateAndDelete(t *testing.T) {
	f := newFixture(t)
	patientID, _ := f.p.Seed.Patient(&f.f1)
	f.actor = f.p.Seed.User(policy.RoleAdmin, &f.f1)
	withClaim := f.createPolicy(t, patientID, "POL-1")
	empty := f.createPolicy(t, patientID, "POL-2")
	f.createClaim(t, withClaim, "CLM-1")

	rec := testutil.Do(f.e, http.MethodPut, "/api/v1/insurance-policies/"+empty.String(),
		map[string]any{"provider_name": "Beta Mutual", "is_active": false})
	testutil.Expect(t, rec, http.StatusOK)
	var p Policy
	testutil.Envelope(t, rec, &p)
	assert.Equal(t, "Beta Mutual", p.ProviderName)
	assert.False(t, p.IsActive)
	assert.Equal(t, "POL-2", p.PolicyNumber)

	rec = testutil.Do(f.e, http.MethodPost, "/api/v1/insurance-policies/"+empty.String()+"/claims", claimBody("CLM-2"))
	testutil.Expect(t, rec, http.StatusBadRequest)

	f.actor = f.p.Seed.User(policy.RoleStaff, &f.f1)
	testutil.Expect(t, testutil.Do(f.e, http.MethodDelete, "/api/v1/insurance-policies/"+empty.String(), nil), http.StatusForbidden)

	f.actor = f.p.Seed.User(policy.RoleAdmin, &f.f1)
	testutil.Expect(t, testutil.Do(f.e, http.MethodDelete, "/api/v1/insurance-policies/"+withClaim.String(), nil), http.StatusConflict)
	testutil.Expect(t, testutil.Do(f.e, http.MethodDelete, "/api/v1/insurance-policies/"+empty.String(), nil), http.StatusOK)
	testutil.Expect(t, testutil.Do(f.e, http.MethodGet, "/api/v1/insurance-policies/"+empty.String(), nil), http.StatusNotFound)

	events := f.p.AuditEvents(t, audit.Filter{ResourceType: string(policy.ResourceInsurancePolicy), ResourceID: empty.String()})
	require.Len(t, events, 3)
}

func TestClaims_LifecycleNotifiesHolder(t *testing.T) {
	f := newFixture(t)
	patientID, holder := f.p.Seed.Patient(&f.f1)

	f.actor = holder
	policyID := f.createPolicy(t, patientID, "POL-7")
	claimID := f.createClaim(t, policyID, "CLM-7")
	assert.Equal(t, http.StatusForbidden, f.setStatus(claimID, ClaimApproved))

	rec := testutil.Do(f.e, http.MethodPost, "/api/v1/insurance-policies/"+policyID.String()+"/claims", claimBody("CLM-7"))
	testutil.Expect(t, rec, http.StatusConflict)

	staff := f.p.Seed.User(policy.RoleStaff, &f.f1)
	f.actor = staff
	rec = testutil.Do(f.e, http.MethodPatch, "/api/v1/insurance-claims/"+claimID.String()+"/status",
		map[string]any{"status": ClaimInReview})
	testutil.Expect(t, rec, http.StatusOK)
	var body claimResponse
	testutil.Envelope(t, rec, &body)
	assert.Equal(t, ClaimInReview, body.Status)
	require.NotNil(t, body.Notifications)
	assert.Equal(t, 1, body.Notifications.Created)

	assert.Equal(t, http.StatusConflict, f.setStatus(claimID, ClaimPaid))
	assert.Equal(t, http.StatusBadRequest, f.setStatus(claimID, "LOST"))
	assert.Equal(t, http.StatusOK, f.setStatus(claimID, ClaimApproved))
	assert.Equal(t, http.StatusOK, f.setStatus(claimID, ClaimPaid))
	assert.Equal(t, http.StatusConflict, f.setStatus(claimID, ClaimDenied))

	notes := f.notes.All()
	require.Len(t, notes, 3)
	for _, n := range notes {
		assert.Equal(t, holder.ID, n.RecipientID)
		assert.Equal(t, notification.TypeClaimStatus, n.Type)
		assert.Equal(t, staff.ID, *n.SenderID)
	}
	assert.Equal(t, "Claim CLM-7 updated", notes[0].Title)
	assert.Contains(t, notes[2].Message, "changed to paid")
	require.Len(t, f.email.Calls(), 3)
	assert.Equal(t, "user1@example.org", f.email.Calls()[0].To)

	moves := map[string]string{}
	for _, e := range f.p.AuditEvents(t, audit.Filter{ResourceType: string(policy.ResourceInsuranceClaim)}) {
		assert.Equal(t, "CLM-7", e.Details["claim_number"])
		if e.Action != audit.ActionStatus {
			continue
		}
		moves[e.Details["from"].(string)] = e.Details["to"].(string)
	}
	assert.Equal(t, map[string]string{"SUBMITTED": "IN_REVIEW", "IN_REVIEW": "APPROVED", "APPROVED": "PAID"}, moves)

	f.actor = f.p.Seed.User(policy.RoleStaff, &f.f2)
	testutil.Expect(t, testutil.Do(f.e, http.MethodGet, "/api/v1/insurance-claims/"+claimID.String(), nil), http.StatusForbidden)
	f.actor = holder
	rec = testutil.Do(f.e, http.MethodGet, "/api/v1/insurance-claims/"+claimID.String(), nil)
	testutil.Expect(t, rec, http.StatusOK)
	var c Claim
	testutil.Envelope(t, rec, &c)
	assert.Equal(t, ClaimPaid, c.Status)
	assert.Equal(t, int64(12500), c.AmountCents)
}

func TestClaims_CreateValidation(t *testing.T) {
	f := newFixture(t)
	patientID, _ := f.p.Seed.Patient(&f.f1)
	f.actor = f.p.Seed.User(policy.RoleStaff, &f.f1)
	policyID := f.createPolicy(t, patientID, "POL-9")
	path := "/api/v1/insurance-policies/" + policyID.String() + "/claims"

	tests := []struct {
		name   string
		mutate func(map[string]any)
	}{
		{"missing number", func(b map[string]any) { b["claim_number"] = "" }},
		{"zero amount", func(b map[string]any) { b["amount_cents"] = 0 }},
		{"negative amount", func(b map[string]any) { b["amount_cents"] = -5 }},
		{"future service", func(b map[string]any) { b["service_date"] = time.Now().Add(72 * time.Hour) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := claimBody("CLM-X")
			tt.mutate(body)
			testutil.Expect(t, testutil.Do(f.e, http.MethodPost, path, body), http.StatusBadRequest)
		})
	}
	testutil.Expect(t, testutil.Do(f.e, http.MethodPost, "/api/v1/insurance-policies/"+uuid.NewString()+"/claims", claimBody("CLM-Y")), http.StatusNotFound)
}
