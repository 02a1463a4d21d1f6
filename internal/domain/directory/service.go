package directory

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

// ActorCache drops a memoized actor after its role or status changes.
type ActorCache interface {
	Invalidate(ctx context.Context, userID uuid.UUID) error
}

type Service struct {
	users     UserRepository
	patients  PatientRepository
	providers ProviderRepository
	ev        *policy.Evaluator
	audit     *audit.Recorder
	actors    ActorCache
	logger    zerolog.Logger
	now       func() time.Time
}

func NewService(users UserRepository, patients PatientRepository, providers ProviderRepository,
	ev *policy.Evaluator, rec *audit.Recorder, logger zerolog.Logger) *Service {
	return &Service{
		users:     users,
		patients:  patients,
		providers: providers,
		ev:        ev,
		audit:     rec,
		logger:    logger,
		now:       time.Now,
	}
}

// UseActorCache registers the cache to invalidate on role and status
// changes. The cache wraps this service, so it is attached after
// construction.
func (s *Service) UseActorCache(c ActorCache) { s.actors = c }

func (s *Service) invalidate(ctx context.Context, id uuid.UUID) {
	if s.actors == nil {
		return
	}
	if err := s.actors.Invalidate(ctx, id); err != nil {
		s.logger.Warn().Err(err).Str("user_id", id.String()).Msg("actor cache invalidation failed")
	}
}

// -- Users --

func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.FromStore(err, "user")
	}
	return u, nil
}

// ResolveActor implements auth.ActorSource. Only ACTIVE users authenticate.
func (s *Service) ResolveActor(ctx context.Context, id uuid.UUID) (policy.Actor, error) {
	u, err := s.GetUser(ctx, id)
	if err != nil {
		return policy.Actor{}, err
	}
	if u.Status != StatusActive {
		return policy.Actor{}, apperr.Unauthorized("user %s is %s", id, strings.ToLower(string(u.Status)))
	}
	return u.Actor(), nil
}

// ChangeRole assigns role to user id. The actor must be allowed to manage
// both the user's current role (checked by the route guard) and the new one.
func (s *Service) ChangeRole(ctx context.Context, actor policy.Actor, id uuid.UUID, role policy.Role) (*User, error) {
	if !role.Valid() {
		return nil, apperr.Validation("unknown role %q", role)
	}
	var from policy.Role
	u, err := audit.Mutate(ctx, s.audit, audit.Spec[*User]{
		Action:       audit.ActionRoleChange,
		ResourceType: policy.ResourceUser,
		ResourceID:   func(u *User) string { return u.ID.String() },
		Details: func(u *User) map[string]any {
			return map[string]any{"email": u.Email, "from": string(from), "to": string(u.Role)}
		},
	}, func(ctx context.Context) (*User, error) {
		u, err := s.GetUser(ctx, id)
		if err != nil {
			return nil, err
		}
		from = u.Role
		target := policy.Resource{Type: policy.ResourceUser, ID: u.ID, FacilityID: u.FacilityID, SubjectRole: role}
		if d := s.ev.CanManageUserResource(actor, target, policy.ActionManage); !d.Allowed {
			return nil, apperr.Forbidden("may not assign role %s: %s", role, d.Reason)
		}
		if from == role {
			return nil, apperr.Conflict("user already has role %s", role)
		}
		if err := s.users.UpdateRole(ctx, id, role); err != nil {
			return nil, apperr.FromStore(err, "user")
		}
		u.Role = role
		u.UpdatedAt = s.now().UTC()
		return u, nil
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, id)
	return u, nil
}

func (s *Service) Deactivate(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.setStatus(ctx, id, StatusInactive, audit.ActionDeactivate)
}

func (s *Service) Reactivate(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.setStatus(ctx, id, StatusActive, audit.ActionReactivate)
}

// Delete soft-deletes the user. Deleted users disappear from every lookup.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.setStatus(ctx, id, StatusDeleted, audit.ActionDelete)
}

func (s *Service) setStatus(ctx context.Context, id uuid.UUID, status UserStatus, action string) (*User, error) {
	u, err := audit.Mutate(ctx, s.audit, audit.Spec[*User]{
		Action:       action,
		ResourceType: policy.ResourceUser,
		ResourceID:   func(u *User) string { return u.ID.String() },
		Details: func(u *User) map[string]any {
			return map[string]any{"email": u.Email, "status": string(u.Status)}
		},
	}, func(ctx context.Context) (*User, error) {
		u, err := s.GetUser(ctx, id)
		if err != nil {
			return nil, err
		}
		if u.Status == status {
			return nil, apperr.Conflict("user is already %s", strings.ToLower(string(status)))
		}
		at := s.now().UTC()
		if err := s.users.SetStatus(ctx, id, status, at); err != nil {
			return nil, apperr.FromStore(err, "user")
		}
		u.Status = status
		u.UpdatedAt = at
		if status == StatusDeleted {
			u.DeletedAt = &at
		}
		return u, nil
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, id)
	return u, nil
}

// ListActiveUsers implements notification.Directory.
func (s *Service) ListActiveUsers(ctx context.Context, q notification.UserQuery) ([]notification.Recipient, error) {
	users, err := s.users.ListActive(ctx, q)
	if err != nil {
		return nil, apperr.FromStore(err, "user")
	}
	return recipients(users), nil
}

// LookupRecipients implements notification.RecipientLookup.
func (s *Service) LookupRecipients(ctx context.Context, ids ...uuid.UUID) ([]notification.Recipient, error) {
	users, err := s.users.GetActiveByIDs(ctx, ids)
	if err != nil {
		return nil, apperr.FromStore(err, "user")
	}
	return recipients(users), nil
}

func recipients(users []*User) []notification.Recipient {
	out := make([]notification.Recipient, 0, len(users))
	for _, u := range users {
		r := notification.Recipient{UserID: u.ID, Name: u.FullName(), Email: u.Email, FacilityID: u.FacilityID, Role: u.Role}
		if u.Phone != nil {
			r.Phone = *u.Phone
		}
		out = append(out, r)
	}
	return out
}

// -- Patients --

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := s.patients.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.FromStore(err, "patient")
	}
	return p, nil
}

var validGenders = map[string]bool{"male": true, "female": true, "other": true, "unknown": true}

func (s *Service) UpdatePatient(ctx context.Context, id uuid.UUID, in PatientUpdate) (*Patient, error) {
	if in.Gender != nil && !validGenders[*in.Gender] {
		return nil, apperr.Validation("gender must be one of male, female, other, unknown")
	}
	if in.DateOfBirth != nil && in.DateOfBirth.After(s.now()) {
		return nil, apperr.Validation("date_of_birth is in the future")
	}
	return audit.Mutate(ctx, s.audit, audit.Spec[*Patient]{
		Action:       audit.ActionUpdate,
		ResourceType: policy.ResourcePatient,
		ResourceID:   func(p *Patient) string { return p.ID.String() },
		Details:      func(p *Patient) map[string]any { return map[string]any{"mrn": p.MRN} },
	}, func(ctx context.Context) (*Patient, error) {
		p, err := s.GetPatient(ctx, id)
		if err != nil {
			return nil, err
		}
		if in.DateOfBirth != nil {
			p.DateOfBirth = in.DateOfBirth
		}
		if in.Gender != nil {
			p.Gender = in.Gender
		}
		if in.Address != nil {
			p.Address = in.Address
		}
		if in.EmergencyContact != nil {
			p.EmergencyContact = in.EmergencyContact
		}
		if err := s.patients.Update(ctx, p); err != nil {
			return nil, apperr.FromStore(err, "patient")
		}
		return p, nil
	})
}

// -- Providers --

// view selects the variant actor may see: the full profile when the policy
// grants read on this provider, the public card otherwise.
func (s *Service) view(actor policy.Actor, p *Provider) ProviderView {
	proj := p.Projection()
	if !s.ev.CanAccess(actor, proj).Allowed {
		return publicView(p)
	}
	return fullView(p, s.ev.CanManageProvider(actor, proj).Allowed)
}

func (s *Service) GetProvider(ctx context.Context, actor policy.Actor, id uuid.UUID) (ProviderView, error) {
	p, err := s.providers.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.FromStore(err, "provider")
	}
	return s.view(actor, p), nil
}

func (s *Service) ListProviders(ctx context.Context, actor policy.Actor, f ProviderFilter, limit, offset int) ([]ProviderView, int, error) {
	items, total, err := s.providers.List(ctx, f, limit, offset)
	if err != nil {
		return nil, 0, apperr.FromStore(err, "provider")
	}
	views := make([]ProviderView, 0, len(items))
	for _, p := range items {
		views = append(views, s.view(actor, p))
	}
	return views, total, nil
}

func (s *Service) UpdateProvider(ctx context.Context, actor policy.Actor, id uuid.UUID, in ProviderUpdate) (FullProviderView, error) {
	if in.Specialty != nil && strings.TrimSpace(*in.Specialty) == "" {
		return FullProviderView{}, apperr.Validation("specialty must not be empty")
	}
	if in.LicenseNumber != nil && strings.TrimSpace(*in.LicenseNumber) == "" {
		return FullProviderView{}, apperr.Validation("license_number must not be empty")
	}
	p, err := audit.Mutate(ctx, s.audit, audit.Spec[*Provider]{
		Action:       audit.ActionUpdate,
		ResourceType: policy.ResourceProvider,
		ResourceID:   func(p *Provider) string { return p.ID.String() },
		Details: func(p *Provider) map[string]any {
			return map[string]any{"name": providerName(p), "license_number": p.LicenseNumber}
		},
	}, func(ctx context.Context) (*Provider, error) {
		p, err := s.providers.GetByID(ctx, id)
		if err != nil {
			return nil, apperr.FromStore(err, "provider")
		}
		if d := s.ev.CanManageProvider(actor, p.Projection()); !d.Allowed {
			return nil, apperr.Forbidden("%s", d.Reason)
		}
		if in.Specialty != nil {
			p.Specialty = strings.TrimSpace(*in.Specialty)
		}
		if in.Bio != nil {
			p.Bio = in.Bio
		}
		if in.AcceptingPatients != nil {
			p.AcceptingPatients = *in.AcceptingPatients
		}
		if in.LicenseNumber != nil {
			p.LicenseNumber = strings.TrimSpace(*in.LicenseNumber)
		}
		if in.NPI != nil {
			p.NPI = in.NPI
		}
		if err := s.providers.Update(ctx, p); err != nil {
			return nil, apperr.FromStore(err, "provider")
		}
		return p, nil
	})
	if err != nil {
		return FullProviderView{}, err
	}
	return fullView(p, true), nil
}
