//go:build integration

package integration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/ehr/careguard/internal/domain/directory"
	"github.com/ehr/careguard/internal/domain/inbox"
	"github.com/ehr/careguard/internal/domain/insurance"
	"github.com/ehr/careguard/internal/platform/apperr"
	"github.com/ehr/careguard/internal/platform/audit"
	"github.com/ehr/careguard/internal/platform/guard"
	"github.com/ehr/careguard/internal/platform/notification"
	"github.com/ehr/careguard/internal/platform/policy"
)

func TestMigrator_StatusAfterUp(t *testing.T) {
	ctx := context.Background()
	var n int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM goose_db_version WHERE version_id > 0`).Scan(&n); err != nil {
		t.Fatalf("read goose version table: %v", err)
	}
	if n == 0 {
		t.Fatal("expected applied migrations")
	}
}

func TestUserRepoPG_StatusAndDirectory(t *testing.T) {
	ctx := context.Background()
	f1 := createFacility(t, ctx)
	f2 := createFacility(t, ctx)
	doctor := createUser(t, ctx, policy.RoleDoctor, &f1)
	nurse := createUser(t, ctx, policy.RoleNurse, &f1)
	createUser(t, ctx, policy.RoleDoctor, &f2)

	users := directory.NewUserRepoPG(pool)

	if err := users.UpdateRole(ctx, nurse, policy.RoleStaff); err != nil {
		t.Fatalf("UpdateRole: %v", err)
	}
	if err := users.UpdateRole(ctx, uuid.New(), policy.RoleStaff); !errors.Is(err, pgx.ErrNoRows) {
		t.Fatalf("UpdateRole on missing user: got %v, want pgx.ErrNoRows", err)
	}

	active, err := users.ListActive(ctx, notification.UserQuery{FacilityID: &f1})
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("expected 2 active users in facility, got %d", len(active))
	}

	if err := users.SetStatus(ctx, doctor, directory.StatusDeleted, time.Now().UTC()); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if _, err := users.GetByID(ctx, doctor); !errors.Is(err, pgx.ErrNoRows) {
		t.Fatalf("deleted user should not be found, got %v", err)
	}

	staff, err := users.ListActive(ctx, notification.UserQuery{FacilityID: &f1, Roles: []policy.Role{policy.RoleStaff}})
	if err != nil {
		t.Fatalf("ListActive by role: %v", err)
	}
	if len(staff) != 1 || staff[0].ID != nurse {
		t.Fatalf("expected the re-roled nurse only, got %+v", staff)
	}
}

func TestPGProjectionStore_ClaimResolvesToPatient(t *testing.T) {
	ctx := context.Background()
	facility := createFacility(t, ctx)
	patientID, userID := createPatient(t, ctx, facility)

	policies := insurance.NewPolicyRepoPG(pool)
	claims := insurance.NewClaimRepoPG(pool)

	p := &insurance.Policy{PatientID: patientID, ProviderName: "Acme Health", PolicyNumber: "POL-" + uuid.NewString()[:8],
		CoverageType: insurance.CoverageMedical, StartDate: day(-30), IsActive: true}
	if err := policies.Create(ctx, p); err != nil {
		t.Fatalf("create policy: %v", err)
	}
	c := &insurance.Claim{PolicyID: p.ID, ClaimNumber: "CLM-" + uuid.NewString()[:8], ServiceDate: day(-1),
		AmountCents: 12500, Status: insurance.ClaimSubmitted}
	if err := claims.Create(ctx, c); err != nil {
		t.Fatalf("create claim: %v", err)
	}

	store := guard.NewPGProjectionStore(pool)
	res, err := store.FetchProjection(ctx, policy.ResourceInsuranceClaim, c.ID)
	if err != nil {
		t.Fatalf("FetchProjection: %v", err)
	}
	if res.OwnerUserID == nil || *res.OwnerUserID != userID {
		t.Errorf("owner: got %v, want %s", res.OwnerUserID, userID)
	}
	if res.FacilityID == nil || *res.FacilityID != facility {
		t.Errorf("facility: got %v, want %s", res.FacilityID, facility)
	}

	_, err = store.FetchProjection(ctx, policy.ResourceInsuranceClaim, uuid.New())
	if apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("missing claim: got %v, want not found", err)
	}
}

func TestInsuranceRepoPG_PolicyAndClaimLifecycle(t *testing.T) {
	ctx := context.Background()
	facility := createFacility(t, ctx)
	patientID, _ := createPatient(t, ctx, facility)

	policies := insurance.NewPolicyRepoPG(pool)
	claims := insurance.NewClaimRepoPG(pool)

	number := "POL-" + uuid.NewString()[:8]
	p := &insurance.Policy{PatientID: patientID, ProviderName: "Acme Health", PolicyNumber: number,
		CoverageType: insurance.CoverageDental, StartDate: day(-10), IsActive: true}
	if err := policies.Create(ctx, p); err != nil {
		t.Fatalf("create policy: %v", err)
	}

	dup := &insurance.Policy{PatientID: patientID, ProviderName: "Other", PolicyNumber: number,
		CoverageType: insurance.CoverageDental, StartDate: day(-10), IsActive: true}
	err := policies.Create(ctx, dup)
	if apperr.KindOf(apperr.FromStore(err, "insurance policy")) != apperr.KindConflict {
		t.Fatalf("duplicate policy number: got %v, want conflict", err)
	}

	p.ProviderName = "Acme Health Plus"
	p.IsActive = false
	if err := policies.Update(ctx, p); err != nil {
		t.Fatalf("update policy: %v", err)
	}
	items, total, err := policies.ListByPatient(ctx, patientID, 10, 0)
	if err != nil {
		t.Fatalf("list policies: %v", err)
	}
	if total != 1 || len(items) != 1 || items[0].ProviderName != "Acme Health Plus" || items[0].IsActive {
		t.Fatalf("unexpected listing: total=%d items=%+v", total, items)
	}

	c := &insurance.Claim{PolicyID: p.ID, ClaimNumber: "CLM-" + uuid.NewString()[:8], ServiceDate: day(-2),
		AmountCents: 9900, Status: insurance.ClaimSubmitted}
	if err := claims.Create(ctx, c); err != nil {
		t.Fatalf("create claim: %v", err)
	}

	c.Status = insurance.ClaimInReview
	ok, err := claims.UpdateStatus(ctx, c, insurance.ClaimSubmitted)
	if err != nil || !ok {
		t.Fatalf("first transition: ok=%v err=%v", ok, err)
	}
	// A writer holding the stale status loses.
	c.Status = insurance.ClaimApproved
	ok, err = claims.UpdateStatus(ctx, c, insurance.ClaimSubmitted)
	if err != nil {
		t.Fatalf("stale transition: %v", err)
	}
	if ok {
		t.Fatal("stale transition should not apply")
	}
	got, err := claims.GetByID(ctx, c.ID)
	if err != nil {
		t.Fatalf("get claim: %v", err)
	}
	if got.Status != insurance.ClaimInReview {
		t.Fatalf("status: got %s, want %s", got.Status, insurance.ClaimInReview)
	}

	n, err := claims.CountByPolicy(ctx, p.ID)
	if err != nil || n != 1 {
		t.Fatalf("CountByPolicy: n=%d err=%v", n, err)
	}
	if err := policies.Delete(ctx, uuid.New()); !errors.Is(err, pgx.ErrNoRows) {
		t.Fatalf("delete missing policy: got %v", err)
	}
}

func TestInboxRepoPG_ExpiryAndReadState(t *testing.T) {
	ctx := context.Background()
	facility := createFacility(t, ctx)
	recipient := createUser(t, ctx, policy.RoleNurse, &facility)
	now := time.Now().UTC()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	repo := inbox.NewRepoPG(pool)
	records := []*notification.Record{
		{ID: uuid.New(), RecipientID: recipient, Type: notification.TypeSystem, Title: "a", Message: "a",
			Priority: notification.PriorityNormal, CreatedAt: now.Add(-3 * time.Minute)},
		{ID: uuid.New(), RecipientID: recipient, Type: notification.TypeSystem, Title: "b", Message: "b",
			Priority: notification.PriorityHigh, ExpiresAt: &future, CreatedAt: now.Add(-2 * time.Minute)},
		{ID: uuid.New(), RecipientID: recipient, Type: notification.TypeBroadcast, Title: "expired", Message: "c",
			Priority: notification.PriorityLow, ExpiresAt: &past, CreatedAt: now.Add(-time.Minute)},
	}
	if err := repo.CreateBatch(ctx, records); err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}

	items, total, err := repo.ListByRecipient(ctx, recipient, false, now, 10, 0)
	if err != nil {
		t.Fatalf("ListByRecipient: %v", err)
	}
	if total != 2 || len(items) != 2 || items[0].Title != "b" {
		t.Fatalf("expected b then a without the expired record, got total=%d items=%+v", total, items)
	}

	changed, err := repo.MarkRead(ctx, records[0].ID, now)
	if err != nil || !changed {
		t.Fatalf("MarkRead: changed=%v err=%v", changed, err)
	}
	changed, err = repo.MarkRead(ctx, records[0].ID, now)
	if err != nil || changed {
		t.Fatalf("second MarkRead should be a no-op: changed=%v err=%v", changed, err)
	}

	unread, err := repo.CountUnread(ctx, recipient, now)
	if err != nil || unread != 1 {
		t.Fatalf("CountUnread: n=%d err=%v", unread, err)
	}

	updated, err := repo.MarkAllRead(ctx, recipient, now)
	if err != nil {
		t.Fatalf("MarkAllRead: %v", err)
	}
	if len(updated) != 1 || updated[0].ID != records[1].ID {
		t.Fatalf("MarkAllRead should touch only the unread live record, got %+v", updated)
	}

	if err := repo.Delete(ctx, records[2].ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := repo.Delete(ctx, records[2].ID); !errors.Is(err, pgx.ErrNoRows) {
		t.Fatalf("second Delete: got %v, want pgx.ErrNoRows", err)
	}
}

func TestAuditPGStore_RecordAndPage(t *testing.T) {
	ctx := context.Background()
	facility := createFacility(t, ctx)
	actorID := createUser(t, ctx, policy.RoleAdmin, &facility)
	resourceID := uuid.NewString()

	store := audit.NewPGStore(pool)
	rec := audit.NewRecorder(store, zerolog.Nop(), audit.RecorderOptions{})

	rec.Record(ctx, audit.Event{ActorID: &actorID, Action: audit.ActionCreate,
		ResourceType: policy.ResourceInsurancePolicy, ResourceID: resourceID,
		Details: map[string]any{"policy_number": "POL-1"}})
	rec.RecordBatch(ctx, []audit.Event{
		{ActorID: &actorID, Action: audit.ActionUpdate, ResourceType: policy.ResourceInsurancePolicy, ResourceID: resourceID},
		{ActorID: &actorID, Action: audit.ActionDelete, ResourceType: policy.ResourceInsurancePolicy, ResourceID: resourceID},
	})

	events, err := store.List(ctx, audit.Filter{ActorID: &actorID, Limit: 2})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected a page of 2, got %d", len(events))
	}
	if events[0].Action != audit.ActionDelete || events[1].Action != audit.ActionUpdate {
		t.Fatalf("expected newest first, got %s, %s", events[0].Action, events[1].Action)
	}

	older, err := store.List(ctx, audit.Filter{ActorID: &actorID, Before: events[1].ID})
	if err != nil {
		t.Fatalf("List before cursor: %v", err)
	}
	if len(older) != 1 || older[0].Action != audit.ActionCreate {
		t.Fatalf("expected the create event, got %+v", older)
	}
	if older[0].Details["policy_number"] != "POL-1" {
		t.Errorf("details not round-tripped: %v", older[0].Details)
	}

	if _, err := pool.Exec(ctx, `UPDATE audit_event SET action = 'tampered' WHERE id = $1`, older[0].ID); err == nil {
		t.Fatal("audit events must be append-only")
	}
}
