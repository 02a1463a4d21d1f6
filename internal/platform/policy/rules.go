package policy

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultRulesYAML []byte

// Grant allows a set of actions on resources matching any of its scopes.
type Grant struct {
	Actions []Action `yaml:"actions"`
	Scopes  []Scope  `yaml:"scopes"`
}

func (g Grant) permits(a Action) bool {
	for _, ga := range g.Actions {
		if ga == a {
			return true
		}
	}
	return false
}

// Rules is a validated rule table. It is immutable after loading and safe
// for concurrent use.
type Rules struct {
	grants map[Role]map[ResourceType][]Grant
}

type ruleFile struct {
	Roles map[Role]map[ResourceType][]Grant `yaml:"roles"`
}

// LoadRules parses and validates a YAML rule table.
func LoadRules(r io.Reader) (*Rules, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f ruleFile
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("policy: decode rules: %w", err)
	}
	if len(f.Roles) == 0 {
		return nil, fmt.Errorf("policy: rule table has no roles")
	}

	for role, types := range f.Roles {
		if !role.Valid() {
			return nil, fmt.Errorf("policy: unknown role %q", role)
		}
		for rt, grants := range types {
			if !rt.Valid() {
				return nil, fmt.Errorf("policy: %s: unknown resource type %q", role, rt)
			}
			for i, g := range grants {
				if err := validateGrant(role, g); err != nil {
					return nil, fmt.Errorf("policy: %s/%s grant %d: %w", role, rt, i, err)
				}
			}
		}
	}

	return &Rules{grants: f.Roles}, nil
}

func validateGrant(role Role, g Grant) error {
	if len(g.Actions) == 0 {
		return fmt.Errorf("no actions")
	}
	if len(g.Scopes) == 0 {
		return fmt.Errorf("no scopes")
	}
	for _, a := range g.Actions {
		if !a.Valid() {
			return fmt.Errorf("unknown action %q", a)
		}
	}
	for _, s := range g.Scopes {
		if !s.Valid() {
			return fmt.Errorf("unknown scope %q", s)
		}
		// ADMIN authority is bounded by facility; ownership must never widen it.
		if role == RoleAdmin && s != ScopeFacility {
			return fmt.Errorf("ADMIN grants must use facility scope, got %q", s)
		}
		if role == RolePatient && s != ScopeOwner {
			return fmt.Errorf("PATIENT grants must use owner scope, got %q", s)
		}
	}
	return nil
}

// DefaultRules returns the rule table compiled into the binary.
func DefaultRules() *Rules {
	r, err := LoadRules(bytes.NewReader(defaultRulesYAML))
	if err != nil {
		panic(err)
	}
	return r
}

// Grants returns the grants of role on resource type rt.
func (r *Rules) Grants(role Role, rt ResourceType) []Grant {
	if r == nil {
		return nil
	}
	return r.grants[role][rt]
}

// Permits reports whether role holds action on rt under any scope. It is a
// coarse pre-check for endpoints that do not target a single resource.
func (r *Rules) Permits(role Role, rt ResourceType, action Action) bool {
	for _, g := range r.Grants(role, rt) {
		if g.permits(action) {
			return true
		}
	}
	return false
}

// PermitsUnscoped reports whether role holds action on rt under the any
// scope, i.e. without facility or owner restriction.
func (r *Rules) PermitsUnscoped(role Role, rt ResourceType, action Action) bool {
	for _, g := range r.Grants(role, rt) {
		if !g.permits(action) {
			continue
		}
		for _, s := range g.Scopes {
			if s == ScopeAny {
				return true
			}
		}
	}
	return false
}

// Roles returns the roles present in the table, sorted.
func (r *Rules) Roles() []Role {
	out := make([]Role, 0, len(r.grants))
	for role := range r.grants {
		out = append(out, role)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// MarshalYAML renders the effective table.
func (r *Rules) MarshalYAML() (any, error) {
	return ruleFile{Roles: r.grants}, nil
}
