package main

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/ehr/careguard/internal/config"
	"github.com/ehr/careguard/internal/platform/policy"
)

// ---------------------------------------------------------------------------
// resolveSigningKey tests
// ---------------------------------------------------------------------------

func TestResolveSigningKey_Hex(t *testing.T) {
	want := make([]byte, 32)
	for i := range want {
		want[i] = byte(i)
	}
	key, err := resolveSigningKey("hex:" + hex.EncodeToString(want))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hex.EncodeToString(key) != hex.EncodeToString(want) {
		t.Errorf("key mismatch: got %x, want %x", key, want)
	}
}

func TestResolveSigningKey_Raw(t *testing.T) {
	raw := "0123456789abcdef0123456789abcdef-raw"
	key, err := resolveSigningKey(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(key) != raw {
		t.Errorf("got %q, want %q", key, raw)
	}
}

func TestResolveSigningKey_Invalid(t *testing.T) {
	for _, v := range []string{"hex:not-valid-hex!!!", "hex:" + hex.EncodeToString([]byte("short"))} {
		if _, err := resolveSigningKey(v); err == nil {
			t.Errorf("resolveSigningKey(%q): expected error", v)
		}
	}
}

func TestResolveSigningKey_Empty(t *testing.T) {
	key, err := resolveSigningKey("")
	if err != nil || key != nil {
		t.Errorf("got (%v, %v), want (nil, nil)", key, err)
	}
}

// ---------------------------------------------------------------------------
// devActor tests
// ---------------------------------------------------------------------------

func TestDevActor(t *testing.T) {
	cfg := &config.Config{
		DevActorID:    "6f1c1f7e-4b7a-4a53-9a53-0f1b0c9f2d11",
		DevActorRole:  "admin",
		DevFacilityID: "0b7e1d8a-2c51-4bb3-8f0e-8d1f8f2e9c44",
	}
	actor, err := devActor(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if actor.Role != policy.RoleAdmin {
		t.Errorf("role = %s, want ADMIN", actor.Role)
	}
	if actor.FacilityID == nil || actor.FacilityID.String() != cfg.DevFacilityID {
		t.Errorf("facility = %v, want %s", actor.FacilityID, cfg.DevFacilityID)
	}
}

func TestDevActor_Invalid(t *testing.T) {
	tests := []config.Config{
		{DevActorID: "nope", DevActorRole: "ADMIN"},
		{DevActorID: "6f1c1f7e-4b7a-4a53-9a53-0f1b0c9f2d11", DevActorRole: "WIZARD"},
		{DevActorID: "6f1c1f7e-4b7a-4a53-9a53-0f1b0c9f2d11", DevActorRole: "ADMIN", DevFacilityID: "F1"},
	}
	for i := range tests {
		if _, err := devActor(&tests[i]); err == nil {
			t.Errorf("case %d: expected error", i)
		}
	}
}

// ---------------------------------------------------------------------------
// policy command helpers
// ---------------------------------------------------------------------------

func TestLoadRules_DefaultAndFile(t *testing.T) {
	rules, err := loadRules("")
	if err != nil {
		t.Fatalf("default rules: %v", err)
	}
	if !rules.Permits(policy.RoleSuperAdmin, policy.ResourceAuditEvent, policy.ActionRead) {
		t.Error("default rules should let SUPER_ADMIN read audit events")
	}

	path := filepath.Join(t.TempDir(), "rules.yaml")
	body := "roles:\n  STAFF:\n    patient: [{actions: [read], scopes: [facility]}]\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	rules, err = loadRules(path)
	if err != nil {
		t.Fatalf("file rules: %v", err)
	}
	if rules.Permits(policy.RoleSuperAdmin, policy.ResourcePatient, policy.ActionRead) {
		t.Error("roles missing from the file should be denied")
	}

	if _, err := loadRules(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestDecisionInput(t *testing.T) {
	const f1 = "0b7e1d8a-2c51-4bb3-8f0e-8d1f8f2e9c44"
	const f2 = "9d2e7c55-1111-4a2b-8c3d-4e5f60718293"

	tests := []struct {
		name           string
		role, resource string
		action, owner  string
		actorF, resF   string
		allowed        bool
	}{
		{"admin same facility", "ADMIN", "patient", "read", "", f1, f1, true},
		{"admin other facility", "ADMIN", "patient", "read", "", f1, f2, false},
		{"patient owner", "patient", "medical_record", "read", "yes", "", "", true},
		{"patient not owner", "PATIENT", "medical_record", "read", "", "", "", false},
		{"staff audit", "STAFF", "audit_event", "read", "", f1, f1, false},
	}
	ev := policy.NewEvaluator(policy.DefaultRules())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actor, res, act, err := decisionInput(tt.role, tt.resource, tt.action, tt.owner, tt.actorF, tt.resF)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := ev.Evaluate(actor, act, res).Allowed; got != tt.allowed {
				t.Errorf("allowed = %v, want %v", got, tt.allowed)
			}
		})
	}

	if _, _, _, err := decisionInput("ADMIN", "spaceship", "read", "", "", ""); err == nil {
		t.Error("expected error for unknown resource type")
	}
	if _, _, _, err := decisionInput("ADMIN", "patient", "teleport", "", "", ""); err == nil {
		t.Error("expected error for unknown action")
	}
}
