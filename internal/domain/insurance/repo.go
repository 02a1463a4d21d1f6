package insurance

import (
	"context"

	"github.com/google/uuid"
)

type PolicyRepository interface {
	Create(ctx context.Context, p *Policy) error
	GetByID(ctx context.Context, id uuid.UUID) (*Policy, error)
	Update(ctx context.Context, p *Policy) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Policy, int, error)
}

type ClaimRepository interface {
	Create(ctx context.Context, c *Claim) error
	GetByID(ctx context.Context, id uuid.UUID) (*Claim, error)
	// UpdateStatus moves the claim from one status to another and reports
	// whether it was still in from.
	UpdateStatus(ctx context.Context, c *Claim, from ClaimStatus) (bool, error)
	CountByPolicy(ctx context.Context, policyID uuid.UUID) (int, error)
}
