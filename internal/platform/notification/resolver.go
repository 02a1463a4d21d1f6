package notification

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/careguard/internal/platform/apperr"
	"github.com/ehr/careguard/internal/platform/policy"
)

// UserQuery selects active users. A nil FacilityID matches every facility
// and empty Roles matches every role.
type UserQuery struct {
	Roles      []policy.Role
	FacilityID *uuid.UUID
}

// Directory lists users with status ACTIVE.
type Directory interface {
	ListActiveUsers(ctx context.Context, q UserQuery) ([]Recipient, error)
}

// RecipientLookup resolves addresses for known users. Unknown or inactive
// ids are omitted.
type RecipientLookup interface {
	LookupRecipients(ctx context.Context, ids ...uuid.UUID) ([]Recipient, error)
}

// Targeting is the caller's broadcast audience.
type Targeting struct {
	Roles      []policy.Role `json:"roles"`
	FacilityID *uuid.UUID    `json:"facility_id,omitempty"`
}

// Resolver turns a broadcast audience into recipients the actor may reach.
type Resolver struct {
	dir    Directory
	ev     *policy.Evaluator
	logger zerolog.Logger
}

func NewResolver(dir Directory, ev *policy.Evaluator, logger zerolog.Logger) *Resolver {
	return &Resolver{dir: dir, ev: ev, logger: logger}
}

// ResolveBroadcast returns the active users matching t that actor may
// broadcast to. Facility-scoped actors are pinned to their own facility; an
// explicit foreign facility is rejected rather than silently narrowed.
func (r *Resolver) ResolveBroadcast(ctx context.Context, actor policy.Actor, t Targeting) ([]Recipient, error) {
	if d := r.ev.Permits(actor, policy.ResourceNotification, policy.ActionBroadcast); !d.Allowed {
		return nil, apperr.Forbidden("%s", d.Reason)
	}
	for _, role := range t.Roles {
		if !role.Valid() {
			return nil, apperr.Validation("unknown role %q", role)
		}
	}

	q := UserQuery{Roles: t.Roles, FacilityID: t.FacilityID}
	if !r.ev.Rules().PermitsUnscoped(actor.Role, policy.ResourceNotification, policy.ActionBroadcast) {
		if actor.FacilityID == nil {
			return nil, apperr.Forbidden("actor has no facility")
		}
		if t.FacilityID != nil && *t.FacilityID != *actor.FacilityID {
			return nil, apperr.Forbidden("cannot broadcast outside own facility")
		}
		q.FacilityID = actor.FacilityID
	}

	candidates, err := r.dir.ListActiveUsers(ctx, q)
	if err != nil {
		return nil, apperr.FromStore(err, "users")
	}

	out := make([]Recipient, 0, len(candidates))
	for _, c := range candidates {
		res := policy.Resource{
			Type:        policy.ResourceNotification,
			OwnerUserID: &c.UserID,
			FacilityID:  c.FacilityID,
		}
		if d := r.ev.Evaluate(actor, policy.ActionBroadcast, res); !d.Allowed {
			r.logger.Warn().
				Str("actor_id", actor.ID.String()).
				Str("recipient_id", c.UserID.String()).
				Str("reason", d.Reason).
				Msg("broadcast recipient dropped by policy")
			continue
		}
		out = append(out, c)
	}
	return out, nil
}
