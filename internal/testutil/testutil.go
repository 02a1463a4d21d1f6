// Package testutil builds migrated SQLite stores and seed data for package
// tests.
package testutil

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ehr/careguard/internal/platform/auth"
	"github.com/ehr/careguard/internal/platform/db"
	"github.com/ehr/careguard/internal/platform/policy"
)

// OpenSQLite returns a migrated store in t's temp dir.
func OpenSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := db.OpenSQLite(filepath.Join(t.TempDir(), "careguard.db"))
	require.NoError(t, err)
	m, err := db.NewSQLiteMigrator(gdb)
	require.NoError(t, err)
	_, err = m.Up(context.Background())
	require.NoError(t, err)
	return gdb
}

// Seeder inserts fixture rows with raw SQL so tests do not depend on the
// repositories under test.
type Seeder struct {
	t   *testing.T
	db  *gorm.DB
	seq int
}

func NewSeeder(t *testing.T, gdb *gorm.DB) *Seeder {
	return &Seeder{t: t, db: gdb}
}

func (s *Seeder) next() int {
	s.seq++
	return s.seq
}

func (s *Seeder) exec(q string, args ...any) {
	s.t.Helper()
	require.NoError(s.t, s.db.Exec(q, args...).Error)
}

func nullable(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return id.String()
}

func (s *Seeder) Facility(name string) uuid.UUID {
	s.t.Helper()
	id := uuid.New()
	s.exec(`INSERT INTO facility (id, name) VALUES (?, ?)`, id.String(), name)
	return id
}

// User inserts an ACTIVE user and returns it as an actor.
func (s *Seeder) User(role policy.Role, facility *uuid.UUID) policy.Actor {
	s.t.Helper()
	id := uuid.New()
	n := s.next()
	s.exec(`INSERT INTO app_user (id, email, phone, first_name, last_name, role, facility_id) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id.String(), fmt.Sprintf("user%d@example.org", n), fmt.Sprintf("+1555000%04d", n),
		"First", fmt.Sprintf("Last%d", n), string(role), nullable(facility))
	return policy.Actor{ID: id, Role: role, FacilityID: facility}
}

func (s *Seeder) SetStatus(userID uuid.UUID, status string) {
	s.t.Helper()
	s.exec(`UPDATE app_user SET status = ? WHERE id = ?`, status, userID.String())
}

// Patient inserts a PATIENT user and its patient row.
func (s *Seeder) Patient(facility *uuid.UUID) (patientID uuid.UUID, user policy.Actor) {
	s.t.Helper()
	user = s.User(policy.RolePatient, facility)
	patientID = uuid.New()
	s.exec(`INSERT INTO patient (id, user_id, facility_id, mrn) VALUES (?, ?, ?, ?)`,
		patientID.String(), user.ID.String(), nullable(facility), fmt.Sprintf("MRN-%04d", s.next()))
	return patientID, user
}

// Provider inserts a user with role and its provider row.
func (s *Seeder) Provider(role policy.Role, facility *uuid.UUID) (providerID uuid.UUID, user policy.Actor) {
	s.t.Helper()
	user = s.User(role, facility)
	providerID = uuid.New()
	n := s.next()
	s.exec(`INSERT INTO provider (id, user_id, facility_id, specialty, license_number, npi, bio) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		providerID.String(), user.ID.String(), nullable(facility), "Cardiology",
		fmt.Sprintf("LIC-%04d", n), fmt.Sprintf("NPI%07d", n), "Heart doctor")
	return providerID, user
}

// ActAs returns middleware that authenticates every request as actor.
func ActAs(actor *policy.Actor) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := auth.ContextWithActor(c.Request().Context(), *actor)
			c.SetRequest(c.Request().WithContext(ctx))
			c.Set("actor_id", actor.ID.String())
			return next(c)
		}
	}
}
