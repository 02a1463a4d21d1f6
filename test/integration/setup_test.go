//go:build integration

// Package integration runs the Postgres store implementations against a
// throwaway postgres:16 container. Run with: go test -tags integration ./test/integration/
package integration

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/careguard/internal/platform/db"
	"github.com/ehr/careguard/internal/platform/policy"
)

var pool *pgxpool.Pool

func TestMain(m *testing.M) {
	ctx := context.Background()

	connStr, cleanup, err := startPostgresContainer(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "start postgres container: %v\n", err)
		os.Exit(1)
	}

	pool, err = db.NewPool(ctx, connStr, 10, 1)
	if err != nil {
		cleanup()
		fmt.Fprintf(os.Stderr, "create pool: %v\n", err)
		os.Exit(1)
	}

	migrator, err := db.NewPostgresMigrator(pool)
	if err == nil {
		_, err = migrator.Up(ctx)
	}
	if err != nil {
		pool.Close()
		cleanup()
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()
	pool.Close()
	cleanup()
	os.Exit(code)
}

// fixture rows are inserted with plain SQL; the stores under test only read
// and update them.

func createFacility(t *testing.T, ctx context.Context) uuid.UUID {
	t.Helper()
	id := uuid.New()
	if _, err := pool.Exec(ctx, `INSERT INTO facility (id, name) VALUES ($1, $2)`, id, "Facility "+id.String()[:8]); err != nil {
		t.Fatalf("create facility: %v", err)
	}
	return id
}

func createUser(t *testing.T, ctx context.Context, role policy.Role, facilityID *uuid.UUID) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := pool.Exec(ctx,
		`INSERT INTO app_user (id, email, first_name, last_name, role, facility_id)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		id, id.String()[:8]+"@example.org", "Test", string(role), string(role), facilityID)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return id
}

// createPatient inserts a PATIENT user and its patient row. It returns the
// patient id and the user id.
func createPatient(t *testing.T, ctx context.Context, facilityID uuid.UUID) (uuid.UUID, uuid.UUID) {
	t.Helper()
	userID := createUser(t, ctx, policy.RolePatient, &facilityID)
	id := uuid.New()
	_, err := pool.Exec(ctx,
		`INSERT INTO patient (id, user_id, facility_id, mrn) VALUES ($1, $2, $3, $4)`,
		id, userID, facilityID, "MRN-"+id.String()[:8])
	if err != nil {
		t.Fatalf("create patient: %v", err)
	}
	return id, userID
}

func day(offset int) time.Time {
	return time.Now().UTC().Truncate(24*time.Hour).AddDate(0, 0, offset)
}
