package guard

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ehr/careguard/internal/platform/apperr"
	"github.com/ehr/careguard/internal/platform/policy"
)

// SQLiteProjectionStore reads projections from the embedded store.
type SQLiteProjectionStore struct {
	db *gorm.DB
}

func NewSQLiteProjectionStore(db *gorm.DB) *SQLiteProjectionStore {
	return &SQLiteProjectionStore{db: db}
}

func (s *SQLiteProjectionStore) FetchProjection(ctx context.Context, rt policy.ResourceType, id uuid.UUID) (*policy.Resource, error) {
	q, err := projectionQuery(rt)
	if err != nil {
		return nil, apperr.Infrastructure(err, "unsupported resource type")
	}

	res := &policy.Resource{Type: rt}
	var role string
	row := s.db.WithContext(ctx).Raw(q, id.String()).Row()
	if err := row.Scan(&res.ID, &res.OwnerUserID, &res.FacilityID, &role); err != nil {
		return nil, apperr.FromStore(err, string(rt))
	}
	res.SubjectRole = policy.Role(role)
	return res, nil
}
