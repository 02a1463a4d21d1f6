package policy

// Evaluator applies a rule table to decisions. The zero value is not usable;
// construct with NewEvaluator.
type Evaluator struct {
	rules *Rules
}

// NewEvaluator returns an evaluator over rules, or over the built-in table
// when rules is nil.
func NewEvaluator(rules *Rules) *Evaluator {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Evaluator{rules: rules}
}

// Rules returns the table the evaluator applies.
func (e *Evaluator) Rules() *Rules { return e.rules }

// CanAccess is the read-level decision.
func (e *Evaluator) CanAccess(actor Actor, res Resource) Decision {
	return e.Evaluate(actor, ActionRead, res)
}

// Permits is the resource-free pre-check used by collection endpoints.
func (e *Evaluator) Permits(actor Actor, rt ResourceType, action Action) Decision {
	if !actor.Role.Valid() {
		return deny("unknown role %q", actor.Role)
	}
	if !e.rules.Permits(actor.Role, rt, action) {
		return deny("role %s may not %s %s", actor.Role, action, rt)
	}
	return allow("role %s may %s %s", actor.Role, action, rt)
}

// Evaluate decides whether actor may perform action on res.
func (e *Evaluator) Evaluate(actor Actor, action Action, res Resource) Decision {
	if !actor.Role.Valid() {
		return deny("unknown role %q", actor.Role)
	}
	if IsSelfAction(actor, action, res) {
		return deny("cannot %s own account", action)
	}
	if res.Type == ResourceUser && res.ID != actor.ID && isUserAdministration(action) && res.SubjectRole != "" {
		if !CanManageUser(actor.Role, res.SubjectRole) {
			return deny("role %s may not manage %s accounts", actor.Role, res.SubjectRole)
		}
	}

	grants := e.rules.Grants(actor.Role, res.Type)
	if len(grants) == 0 {
		return deny("role %s has no access to %s", actor.Role, res.Type)
	}

	reason := ""
	for _, g := range grants {
		if !g.permits(action) {
			continue
		}
		for _, s := range g.Scopes {
			ok, why := matchScope(s, actor, res)
			if ok {
				return allow("role %s may %s %s (%s scope)", actor.Role, action, res.Type, s)
			}
			reason = why
		}
	}
	if reason == "" {
		return deny("role %s may not %s %s", actor.Role, action, res.Type)
	}
	return deny("%s", reason)
}

// EvaluateCreate decides creation of a child under parent. The child has no
// identity yet, so it inherits the parent's owner and facility.
func (e *Evaluator) EvaluateCreate(actor Actor, child ResourceType, parent Resource) Decision {
	return e.EvaluateChild(actor, ActionCreate, child, parent)
}

// EvaluateChild decides action on the children of type child under parent,
// such as listing a patient's medical records.
func (e *Evaluator) EvaluateChild(actor Actor, action Action, child ResourceType, parent Resource) Decision {
	return e.Evaluate(actor, action, Resource{
		Type:        child,
		OwnerUserID: parent.OwnerUserID,
		FacilityID:  parent.FacilityID,
	})
}

// CanManageProvider decides edits to a provider profile: SUPER_ADMIN always,
// ADMIN within the facility, DOCTOR and PROVIDER only their own profile.
func (e *Evaluator) CanManageProvider(actor Actor, provider Resource) Decision {
	if provider.Type != ResourceProvider {
		return deny("resource is not a provider")
	}
	return e.Evaluate(actor, ActionUpdate, provider)
}

// CanManageUserResource decides an administrative action on the user target.
// target.SubjectRole is the role being administered; an unknown role denies.
func (e *Evaluator) CanManageUserResource(actor Actor, target Resource, action Action) Decision {
	if target.Type != ResourceUser {
		return deny("resource is not a user")
	}
	if !isUserAdministration(action) {
		return deny("%s is not a user administration action", action)
	}
	if target.SubjectRole == "" {
		return deny("target role unknown")
	}
	return e.Evaluate(actor, action, target)
}

// CanManageUser is the role-pair rule for user administration.
func CanManageUser(actorRole, targetRole Role) bool {
	switch actorRole {
	case RoleSuperAdmin:
		return true
	case RoleAdmin:
		return targetRole != RoleSuperAdmin && targetRole != RoleAdmin
	default:
		return false
	}
}

// IsSelfAction reports an attempt to deactivate, delete or re-role one's own
// account. Such actions are denied regardless of role.
func IsSelfAction(actor Actor, action Action, res Resource) bool {
	return res.Type == ResourceUser && res.ID == actor.ID && isUserManagement(action)
}

func isUserManagement(a Action) bool {
	return a == ActionDeactivate || a == ActionDelete || a == ActionManage
}

// Editing another user's account is subject to the role-pair rule as well.
func isUserAdministration(a Action) bool {
	return a == ActionUpdate || isUserManagement(a)
}

func matchScope(s Scope, actor Actor, res Resource) (bool, string) {
	switch s {
	case ScopeAny:
		return true, ""
	case ScopeFacility:
		if actor.FacilityID == nil {
			return false, "actor has no facility"
		}
		if res.FacilityID == nil {
			return false, "resource facility unknown"
		}
		if *actor.FacilityID != *res.FacilityID {
			return false, "facility mismatch"
		}
		return true, ""
	case ScopeOwner:
		if res.OwnerUserID == nil || *res.OwnerUserID != actor.ID {
			return false, "not the owner"
		}
		return true, ""
	default:
		return false, "unknown scope"
	}
}
