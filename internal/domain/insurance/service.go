package insurance

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/careguard/internal/platform/apperr"
	"github.com/ehr/careguard/internal/platform/audit"
	"github.com/ehr/careguard/internal/platform/notification"
	"github.com/ehr/careguard/internal/platform/policy"
)

type Service struct {
	policies PolicyRepository
	claims   ClaimRepository
	audit    *audit.Recorder
	notifier *notification.Dispatcher
	people   notification.RecipientLookup
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(policies PolicyRepository, claims ClaimRepository, rec *audit.Recorder,
	notifier *notification.Dispatcher, people notification.RecipientLookup, logger zerolog.Logger) *Service {
	return &Service{
		policies: policies,
		claims:   claims,
		audit:    rec,
		notifier: notifier,
		people:   people,
		logger:   logger,
		now:      time.Now,
	}
}

// -- Policies --

func policySpec(action string) audit.Spec[*Policy] {
	return audit.Spec[*Policy]{
		Action:       action,
		ResourceType: policy.ResourceInsurancePolicy,
		ResourceID:   func(p *Policy) string { return p.ID.String() },
		Details: func(p *Policy) map[string]any {
			return map[string]any{"policy_number": p.PolicyNumber, "patient_id": p.PatientID.String()}
		},
	}
}

func (s *Service) CreatePolicy(ctx context.Context, patientID uuid.UUID, in CreatePolicyRequest) (*Policy, error) {
	in.ProviderName = strings.TrimSpace(in.ProviderName)
	in.PolicyNumber = strings.TrimSpace(in.PolicyNumber)
	if in.ProviderName == "" {
		return nil, apperr.Validation("provider_name is required")
	}
	if in.PolicyNumber == "" {
		return nil, apperr.Validation("policy_number is required")
	}
	if !in.CoverageType.Valid() {
		return nil, apperr.Validation("unknown coverage_type %q", in.CoverageType)
	}
	if in.StartDate.IsZero() {
		return nil, apperr.Validation("start_date is required")
	}
	if in.EndDate != nil && in.EndDate.Before(in.StartDate) {
		return nil, apperr.Validation("end_date is before start_date")
	}
	return audit.Mutate(ctx, s.audit, policySpec(audit.ActionCreate), func(ctx context.Context) (*Policy, error) {
		p := &Policy{
			PatientID:    patientID,
			ProviderName: in.ProviderName,
			PolicyNumber: in.PolicyNumber,
			GroupNumber:  in.GroupNumber,
			CoverageType: in.CoverageType,
			StartDate:    in.StartDate.UTC(),
			EndDate:      in.EndDate,
			IsActive:     true,
		}
		if err := s.policies.Create(ctx, p); err != nil {
			return nil, apperr.FromStore(err, "insurance policy")
		}
		return p, nil
	})
}

func (s *Service) GetPolicy(ctx context.Context, id uuid.UUID) (*Policy, error) {
	p, err := s.policies.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.FromStore(err, "insurance policy")
	}
	return p, nil
}

func (s *Service) ListPolicies(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Policy, int, error) {
	items, total, err := s.policies.ListByPatient(ctx, patientID, limit, offset)
	if err != nil {
		return nil, 0, apperr.FromStore(err, "insurance policy")
	}
	if items == nil {
		items = []*Policy{}
	}
	return items, total, nil
}

func (s *Service) UpdatePolicy(ctx context.Context, id uuid.UUID, in UpdatePolicyRequest) (*Policy, error) {
	if in.ProviderName != nil {
		name := strings.TrimSpace(*in.ProviderName)
		if name == "" {
			return nil, apperr.Validation("provider_name must not be empty")
		}
		in.ProviderName = &name
	}
	if in.CoverageType != nil && !in.CoverageType.Valid() {
		return nil, apperr.Validation("unknown coverage_type %q", *in.CoverageType)
	}
	return audit.Mutate(ctx, s.audit, policySpec(audit.ActionUpdate), func(ctx context.Context) (*Policy, error) {
		p, err := s.GetPolicy(ctx, id)
		if err != nil {
			return nil, err
		}
		if in.ProviderName != nil {
			p.ProviderName = *in.ProviderName
		}
		if in.GroupNumber != nil {
			p.GroupNumber = in.GroupNumber
		}
		if in.CoverageType != nil {
			p.CoverageType = *in.CoverageType
		}
		if in.EndDate != nil {
			if in.EndDate.Before(p.StartDate) {
				return nil, apperr.Validation("end_date is before start_date")
			}
			p.EndDate = in.EndDate
		}
		if in.IsActive != nil {
			p.IsActive = *in.IsActive
		}
		if err := s.policies.Update(ctx, p); err != nil {
			return nil, apperr.FromStore(err, "insurance policy")
		}
		return p, nil
	})
}

// DeletePolicy removes a policy that has no claims filed against it.
func (s *Service) DeletePolicy(ctx context.Context, id uuid.UUID) error {
	_, err := audit.Mutate(ctx, s.audit, policySpec(audit.ActionDelete), func(ctx context.Context) (*Policy, error) {
		p, err := s.GetPolicy(ctx, id)
		if err != nil {
			return nil, err
		}
		n, err := s.claims.CountByPolicy(ctx, id)
		if err != nil {
			return nil, apperr.FromStore(err, "insurance claim")
		}
		if n > 0 {
			return nil, apperr.Conflict("policy has %d claims", n)
		}
		if err := s.policies.Delete(ctx, id); err != nil {
			return nil, apperr.FromStore(err, "insurance policy")
		}
		return p, nil
	})
	return err
}

// -- Claims --

func claimSpec(action string, details func(*Claim) map[string]any) audit.Spec[*Claim] {
	return audit.Spec[*Claim]{
		Action:       action,
		ResourceType: policy.ResourceInsuranceClaim,
		ResourceID:   func(c *Claim) string { return c.ID.String() },
		Details:      details,
	}
}

// CreateClaim files a claim against an active policy. New claims start SUBMITTED.
func (s *Service) CreateClaim(ctx context.Context, policyID uuid.UUID, in CreateClaimRequest) (*Claim, error) {
	in.ClaimNumber = strings.TrimSpace(in.ClaimNumber)
	if in.ClaimNumber == "" {
		return nil, apperr.Validation("claim_number is required")
	}
	if in.AmountCents <= 0 {
		return nil, apperr.Validation("amount_cents must be positive")
	}
	if in.ServiceDate.IsZero() {
		return nil, apperr.Validation("service_date is required")
	}
	if in.ServiceDate.After(s.now()) {
		return nil, apperr.Validation("service_date is in the future")
	}

	details := func(c *Claim) map[string]any {
		return map[string]any{"claim_number": c.ClaimNumber, "amount_cents": c.AmountCents}
	}
	return audit.Mutate(ctx, s.audit, claimSpec(audit.ActionCreate, details), func(ctx context.Context) (*Claim, error) {
		p, err := s.GetPolicy(ctx, policyID)
		if err != nil {
			return nil, err
		}
		if !p.IsActive {
			return nil, apperr.Validation("policy %s is inactive", p.PolicyNumber)
		}
		c := &Claim{
			PolicyID:    policyID,
			ClaimNumber: in.ClaimNumber,
			ServiceDate: in.ServiceDate.UTC(),
			AmountCents: in.AmountCents,
			Status:      ClaimSubmitted,
			Description: in.Description,
		}
		if err := s.claims.Create(ctx, c); err != nil {
			return nil, apperr.FromStore(err, "insurance claim")
		}
		return c, nil
	})
}

func (s *Service) GetClaim(ctx context.Context, id uuid.UUID) (*Claim, error) {
	c, err := s.claims.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.FromStore(err, "insurance claim")
	}
	return c, nil
}

// UpdateClaimStatus moves a claim along its lifecycle and notifies the
// policy holder. claim is the projection the route guard resolved.
func (s *Service) UpdateClaimStatus(ctx context.Context, actor policy.Actor, claim policy.Resource, to ClaimStatus) (*Claim, *notification.Summary, error) {
	if !to.Valid() {
		return nil, nil, apperr.Validation("unknown status %q", to)
	}
	var from ClaimStatus
	details := func(c *Claim) map[string]any {
		return map[string]any{"claim_number": c.ClaimNumber, "from": string(from), "to": string(c.Status)}
	}
	c, err := audit.Mutate(ctx, s.audit, claimSpec(audit.ActionStatus, details), func(ctx context.Context) (*Claim, error) {
		c, err := s.GetClaim(ctx, claim.ID)
		if err != nil {
			return nil, err
		}
		from = c.Status
		if !from.CanTransition(to) {
			return nil, apperr.Conflict("claim cannot move from %s to %s", from, to)
		}
		c.Status = to
		ok, err := s.claims.UpdateStatus(ctx, c, from)
		if err != nil {
			return nil, apperr.FromStore(err, "insurance claim")
		}
		if !ok {
			return nil, apperr.Conflict("claim was changed concurrently")
		}
		return c, nil
	})
	if err != nil {
		return nil, nil, err
	}
	return c, s.notifyHolder(ctx, actor, claim, c), nil
}

func (s *Service) notifyHolder(ctx context.Context, actor policy.Actor, claim policy.Resource, c *Claim) *notification.Summary {
	if claim.OwnerUserID == nil || *claim.OwnerUserID == actor.ID || s.people == nil {
		return nil
	}
	rs, err := s.people.LookupRecipients(ctx, *claim.OwnerUserID)
	if err != nil {
		s.logger.Error().Err(err).Str("claim_id", c.ID.String()).Msg("recipient lookup failed")
		return nil
	}
	if len(rs) == 0 {
		return nil
	}
	return s.notifier.Notify(ctx, notification.Request{
		Recipients: rs,
		SenderID:   &actor.ID,
		Type:       notification.TypeClaimStatus,
		Channels:   []notification.Channel{notification.ChannelEmail},
		TemplateID: notification.TemplateClaimStatus,
		TemplateData: map[string]string{
			"claim_number": c.ClaimNumber,
			"status":       strings.ToLower(strings.ReplaceAll(string(c.Status), "_", " ")),
		},
	})
}
