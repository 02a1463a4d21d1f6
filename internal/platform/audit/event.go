// Package audit records who did what to which protected resource. Events
// are append-only and written after the mutation they describe has
// committed. Recording is best-effort: a failed write is logged and counted
// but never fails the request that triggered it.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/careguard/internal/platform/policy"
)

// Actions recorded by the domain services.
const (
	ActionCreate     = "create"
	ActionUpdate     = "update"
	ActionDelete     = "delete"
	ActionDeactivate = "deactivate"
	ActionReactivate = "reactivate"
	ActionRoleChange = "role_change"
	ActionStatus     = "status_change"
	ActionBroadcast  = "broadcast"
	ActionMarkRead   = "mark_read"
)

type Event struct {
	ID           string              `json:"id"`
	ActorID      *uuid.UUID          `json:"actor_id,omitempty"`
	Action       string              `json:"action"`
	ResourceType policy.ResourceType `json:"resource_type"`
	ResourceID   string              `json:"resource_id"`
	Details      map[string]any      `json:"details,omitempty"`
	IPAddress    string              `json:"ip_address,omitempty"`
	UserAgent    string              `json:"user_agent,omitempty"`
	RequestID    string              `json:"request_id,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
}

// Filter narrows List. Before is an event id cursor; results are strictly
// older than it. Limit is clamped by the store.
type Filter struct {
	ActorID      *uuid.UUID
	ResourceType string
	ResourceID   string
	Before       string
	Limit        int
}

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

func (f Filter) limit() int {
	switch {
	case f.Limit <= 0:
		return defaultListLimit
	case f.Limit > maxListLimit:
		return maxListLimit
	default:
		return f.Limit
	}
}

// Store persists events. It has no update or delete.
type Store interface {
	Append(ctx context.Context, ev *Event) error
	AppendBatch(ctx context.Context, evs []*Event) error
	List(ctx context.Context, f Filter) ([]*Event, error)
}
