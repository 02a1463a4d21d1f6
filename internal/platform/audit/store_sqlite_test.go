package audit

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehr/careguard/internal/platform/db"
	"github.com/ehr/careguard/internal/platform/policy"
)

func newSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	gdb, err := db.OpenSQLite(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	m, err := db.NewSQLiteMigrator(gdb)
	require.NoError(t, err)
	_, err = m.Up(context.Background())
	require.NoError(t, err)
	return NewSQLiteStore(gdb)
}

func TestSQLiteStore_AppendAndList(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)
	actor := uuid.New()
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	var ids []string
	for i := 0; i < 3; i++ {
		at := t0.Add(time.Duration(i) * time.Second)
		e := &Event{
			ID:           newID(at),
			ActorID:      &actor,
			Action:       ActionCreate,
			ResourceType: policy.ResourceInsurancePolicy,
			ResourceID:   "pol-1",
			Details:      map[string]any{"policy_number": "POL-1"},
			RequestID:    "req",
			CreatedAt:    at,
		}
		require.NoError(t, s.Append(ctx, e))
		ids = append(ids, e.ID)
	}
	require.NoError(t, s.AppendBatch(ctx, []*Event{{
		ID:           newID(t0.Add(time.Minute)),
		Action:       ActionDelete,
		ResourceType: policy.ResourcePatient,
		ResourceID:   "p-1",
		Details:      map[string]any{},
		CreatedAt:    t0.Add(time.Minute),
	}}))

	all, err := s.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, policy.ResourcePatient, all[0].ResourceType, "newest first")
	assert.Nil(t, all[0].ActorID)

	byActor, err := s.List(ctx, Filter{ActorID: &actor, Limit: 2})
	require.NoError(t, err)
	require.Len(t, byActor, 2)
	assert.Equal(t, ids[2], byActor[0].ID)
	assert.Equal(t, "POL-1", byActor[0].Details["policy_number"])

	older, err := s.List(ctx, Filter{ActorID: &actor, Before: byActor[1].ID})
	require.NoError(t, err)
	require.Len(t, older, 1)
	assert.Equal(t, ids[0], older[0].ID)

	byResource, err := s.List(ctx, Filter{ResourceType: string(policy.ResourcePatient), ResourceID: "p-1"})
	require.NoError(t, err)
	assert.Len(t, byResource, 1)
}
