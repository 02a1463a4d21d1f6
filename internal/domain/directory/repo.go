package directory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/careguard/internal/platform/notification"
	"github.com/ehr/careguard/internal/platform/policy"
)

type UserRepository interface {
	// GetByID returns users in any status except DELETED.
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	UpdateRole(ctx context.Context, id uuid.UUID, role policy.Role) error
	SetStatus(ctx context.Context, id uuid.UUID, status UserStatus, at time.Time) error
	ListActive(ctx context.Context, q notification.UserQuery) ([]*User, error)
	GetActiveByIDs(ctx context.Context, ids []uuid.UUID) ([]*User, error)
}

type PatientRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
}

type ProviderRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Provider, error)
	List(ctx context.Context, f ProviderFilter, limit, offset int) ([]*Provider, int, error)
	Update(ctx context.Context, p *Provider) error
}
