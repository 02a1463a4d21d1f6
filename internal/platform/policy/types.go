// Package policy decides whether an actor may perform an action on a
// resource. It is pure: no I/O, no caching, no errors. Every decision is
// computed from the actor, the resource projection and the rule table.
package policy

import (
	"fmt"

	"github.com/google/uuid"
)

type Role string

const (
	RoleSuperAdmin Role = "SUPER_ADMIN"
	RoleAdmin      Role = "ADMIN"
	RoleDoctor     Role = "DOCTOR"
	RoleNurse      Role = "NURSE"
	RoleProvider   Role = "PROVIDER"
	RolePatient    Role = "PATIENT"
	RoleStaff      Role = "STAFF"
)

var allRoles = []Role{RoleSuperAdmin, RoleAdmin, RoleDoctor, RoleNurse, RoleProvider, RolePatient, RoleStaff}

// AllRoles returns every known role.
func AllRoles() []Role {
	out := make([]Role, len(allRoles))
	copy(out, allRoles)
	return out
}

func (r Role) Valid() bool {
	for _, known := range allRoles {
		if r == known {
			return true
		}
	}
	return false
}

func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

type ResourceType string

const (
	ResourcePatient         ResourceType = "patient"
	ResourceProvider        ResourceType = "provider"
	ResourceMedicalRecord   ResourceType = "medical_record"
	ResourceInsurancePolicy ResourceType = "insurance_policy"
	ResourceInsuranceClaim  ResourceType = "insurance_claim"
	ResourceNotification    ResourceType = "notification"
	ResourceAppointment     ResourceType = "appointment"
	ResourceUser            ResourceType = "user"
	ResourceAuditEvent      ResourceType = "audit_event"
)

var allResourceTypes = []ResourceType{
	ResourcePatient, ResourceProvider, ResourceMedicalRecord, ResourceInsurancePolicy,
	ResourceInsuranceClaim, ResourceNotification, ResourceAppointment, ResourceUser,
	ResourceAuditEvent,
}

// AllResourceTypes returns every protected resource type.
func AllResourceTypes() []ResourceType {
	out := make([]ResourceType, len(allResourceTypes))
	copy(out, allResourceTypes)
	return out
}

func (t ResourceType) Valid() bool {
	for _, known := range allResourceTypes {
		if t == known {
			return true
		}
	}
	return false
}

type Action string

const (
	ActionRead       Action = "read"
	ActionCreate     Action = "create"
	ActionUpdate     Action = "update"
	ActionDelete     Action = "delete"
	ActionDeactivate Action = "deactivate"
	ActionManage     Action = "manage"
	ActionBroadcast  Action = "broadcast"
)

var allActions = []Action{ActionRead, ActionCreate, ActionUpdate, ActionDelete, ActionDeactivate, ActionManage, ActionBroadcast}

func (a Action) Valid() bool {
	for _, known := range allActions {
		if a == known {
			return true
		}
	}
	return false
}

// Scope restricts a grant to a subset of resources.
type Scope string

const (
	// ScopeAny matches every resource.
	ScopeAny Scope = "any"
	// ScopeFacility matches resources in the actor's facility. A missing
	// facility on either side never matches.
	ScopeFacility Scope = "facility"
	// ScopeOwner matches resources owned by the actor.
	ScopeOwner Scope = "owner"
)

func (s Scope) Valid() bool {
	return s == ScopeAny || s == ScopeFacility || s == ScopeOwner
}

// Actor is the authenticated caller.
type Actor struct {
	ID         uuid.UUID  `json:"id"`
	Role       Role       `json:"role"`
	FacilityID *uuid.UUID `json:"facility_id,omitempty"`
}

// Resource is the minimal projection of a protected entity needed for a
// decision. SubjectRole is only set for user resources.
type Resource struct {
	Type        ResourceType `json:"type"`
	ID          uuid.UUID    `json:"id"`
	OwnerUserID *uuid.UUID   `json:"owner_user_id,omitempty"`
	FacilityID  *uuid.UUID   `json:"facility_id,omitempty"`
	SubjectRole Role         `json:"subject_role,omitempty"`
}

// Decision is the outcome of one evaluation. It is never persisted.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}

func allow(format string, args ...any) Decision {
	return Decision{Allowed: true, Reason: fmt.Sprintf(format, args...)}
}

func deny(format string, args ...any) Decision {
	return Decision{Allowed: false, Reason: fmt.Sprintf(format, args...)}
}
