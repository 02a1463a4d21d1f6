package guard

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/careguard/internal/platform/apperr"
	"github.com/ehr/careguard/internal/platform/db"
	"github.com/ehr/careguard/internal/platform/policy"
)

// PGProjectionStore reads projections from PostgreSQL.
type PGProjectionStore struct {
	pool *pgxpool.Pool
}

func NewPGProjectionStore(pool *pgxpool.Pool) *PGProjectionStore {
	return &PGProjectionStore{pool: pool}
}

func (s *PGProjectionStore) FetchProjection(ctx context.Context, rt policy.ResourceType, id uuid.UUID) (*policy.Resource, error) {
	q, err := projectionQuery(rt)
	if err != nil {
		return nil, apperr.Infrastructure(err, "unsupported resource type")
	}
	q = strings.Replace(q, "?", "$1", 1)

	res := &policy.Resource{Type: rt}
	var role string
	err = db.Conn(ctx, s.pool).QueryRow(ctx, q, id).Scan(&res.ID, &res.OwnerUserID, &res.FacilityID, &role)
	if err != nil {
		return nil, apperr.FromStore(err, string(rt))
	}
	res.SubjectRole = policy.Role(role)
	return res, nil
}
