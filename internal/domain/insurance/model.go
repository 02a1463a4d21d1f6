package insurance

import (
	"time"

	"github.com/google/uuid"
)

type CoverageType string

const (
	CoverageMedical  CoverageType = "MEDICAL"
	CoverageDental   CoverageType = "DENTAL"
	CoverageVision   CoverageType = "VISION"
	CoveragePharmacy CoverageType = "PHARMACY"
)

func (c CoverageType) Valid() bool {
	switch c {
	case CoverageMedical, CoverageDental, CoverageVision, CoveragePharmacy:
		return true
	}
	return false
}

type Policy struct {
	ID           uuid.UUID    `json:"id"`
	PatientID    uuid.UUID    `json:"patient_id"`
	ProviderName string       `json:"provider_name"`
	PolicyNumber string       `json:"policy_number"`
	GroupNumber  *string      `json:"group_number,omitempty"`
	CoverageType CoverageType `json:"coverage_type"`
	StartDate    time.Time    `json:"start_date"`
	EndDate      *time.Time   `json:"end_date,omitempty"`
	IsActive     bool         `json:"is_active"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

func (Policy) TableName() string { return "insurance_policy" }

type CreatePolicyRequest struct {
	ProviderName string       `json:"provider_name"`
	PolicyNumber string       `json:"policy_number"`
	GroupNumber  *string      `json:"group_number"`
	CoverageType CoverageType `json:"coverage_type"`
	StartDate    time.Time    `json:"start_date"`
	EndDate      *time.Time   `json:"end_date"`
}

// UpdatePolicyRequest carries editable fields. The policy number is fixed
// once issued; nil fields are left unchanged.
type UpdatePolicyRequest struct {
	ProviderName *string       `json:"provider_name"`
	GroupNumber  *string       `json:"group_number"`
	CoverageType *CoverageType `json:"coverage_type"`
	EndDate      *time.Time    `json:"end_date"`
	IsActive     *bool         `json:"is_active"`
}

type ClaimStatus string

const (
	ClaimSubmitted ClaimStatus = "SUBMITTED"
	ClaimInReview  ClaimStatus = "IN_REVIEW"
	ClaimApproved  ClaimStatus = "APPROVED"
	ClaimDenied    ClaimStatus = "DENIED"
	ClaimPaid      ClaimStatus = "PAID"
)

var claimTransitions = map[ClaimStatus][]ClaimStatus{
	ClaimSubmitted: {ClaimInReview, ClaimApproved, ClaimDenied},
	ClaimInReview:  {ClaimApproved, ClaimDenied},
	ClaimApproved:  {ClaimPaid},
}

func (s ClaimStatus) Valid() bool {
	switch s {
	case ClaimSubmitted, ClaimInReview, ClaimApproved, ClaimDenied, ClaimPaid:
		return true
	}
	return false
}

// CanTransition reports whether a claim in status s may move to next.
func (s ClaimStatus) CanTransition(next ClaimStatus) bool {
	for _, allowed := range claimTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type Claim struct {
	ID          uuid.UUID   `json:"id"`
	PolicyID    uuid.UUID   `json:"policy_id"`
	ClaimNumber string      `json:"claim_number"`
	ServiceDate time.Time   `json:"service_date"`
	AmountCents int64       `json:"amount_cents"`
	Status      ClaimStatus `json:"status"`
	Description *string     `json:"description,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

func (Claim) TableName() string { return "insurance_claim" }

type CreateClaimRequest struct {
	ClaimNumber string    `json:"claim_number"`
	ServiceDate time.Time `json:"service_date"`
	AmountCents int64     `json:"amount_cents"`
	Description *string   `json:"description"`
}

type StatusRequest struct {
	Status ClaimStatus `json:"status"`
}
