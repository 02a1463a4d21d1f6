package db

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteMigrator_UpAndStatus(t *testing.T) {
	ctx := context.Background()
	gdb, err := OpenSQLite(filepath.Join(t.TempDir(), "careguard.db"))
	require.NoError(t, err)

	m, err := NewSQLiteMigrator(gdb)
	require.NoError(t, err)

	n, err := m.Up(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 1)

	status, err := m.Status(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, status)
	for _, s := range status {
		assert.True(t, s.Applied, "migration %d should be applied", s.Version)
		assert.NotNil(t, s.AppliedAt)
	}

	// A second run is a no-op.
	n, err = m.Up(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	require.NoError(t, PingSQLite(ctx, gdb))
}

func TestSQLite_AuditEventIsAppendOnly(t *testing.T) {
	ctx := context.Background()
	gdb, err := OpenSQLite(filepath.Join(t.TempDir(), "careguard.db"))
	require.NoError(t, err)
	m, err := NewSQLiteMigrator(gdb)
	require.NoError(t, err)
	_, err = m.Up(ctx)
	require.NoError(t, err)

	require.NoError(t, gdb.Exec(`INSERT INTO audit_event (id, action, resource_type, created_at) VALUES ('01J0000000000000000000000A', 'create', 'patient', CURRENT_TIMESTAMP)`).Error)
	assert.Error(t, gdb.Exec(`UPDATE audit_event SET action = 'delete'`).Error)
	assert.Error(t, gdb.Exec(`DELETE FROM audit_event`).Error)
}
