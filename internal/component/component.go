// Package component describes the processing stages of a federated job:
// their kinds, declared ports, base parameters and per-role or per-party
// parameter overrides. The package never interprets parameter values beyond
// the coarse type checks of a kind's schema.
package component

import (
	"fmt"
	"sort"
	"strings"
)

// Component is a named node of a job graph.
type Component struct {
	name        string
	kind        *Kind
	params      Params
	roleParams  map[string]Params
	partyParams map[string]map[int64]Params
	frozen      bool
}

// New creates a component of the given kind. The kind defaults are applied
// under params.
func New(name string, kind *Kind, params Params) (*Component, error) {
	if strings.TrimSpace(name) == "" || strings.ContainsAny(name, ". \t\n") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if kind == nil {
		return nil, fmt.Errorf("component %s: %w: nil kind", name, ErrUnknownKind)
	}
	return &Component{
		name:        name,
		kind:        kind,
		params:      kind.Defaults.Merge(params),
		roleParams:  make(map[string]Params),
		partyParams: make(map[string]map[int64]Params),
	}, nil
}

func (c *Component) Name() string { return c.name }

func (c *Component) Kind() *Kind { return c.kind }

// Params returns a copy of the base parameters.
func (c *Component) Params() Params { return c.params.Clone() }

// SetRoleParams records an override applied when the job runs under role.
// Repeated calls for the same role are merged key by key.
func (c *Component) SetRoleParams(role string, params Params) error {
	if c.frozen {
		return fmt.Errorf("component %s: %w", c.name, ErrFrozen)
	}
	if role == "" {
		return fmt.Errorf("component %s: empty role", c.name)
	}
	c.roleParams[role] = c.roleParams[role].Merge(params)
	return nil
}

// SetPartyParams records an override for one party of role. It is applied
// after the role override.
func (c *Component) SetPartyParams(role string, party int64, params Params) error {
	if c.frozen {
		return fmt.Errorf("component %s: %w", c.name, ErrFrozen)
	}
	if role == "" {
		return fmt.Errorf("component %s: empty role", c.name)
	}
	parties, ok := c.partyParams[role]
	if !ok {
		parties = make(map[int64]Params)
		c.partyParams[role] = parties
	}
	parties[party] = parties[party].Merge(params)
	return nil
}

// RoleParams returns a copy of the override for role, if any.
func (c *Component) RoleParams(role string) (Params, bool) {
	p, ok := c.roleParams[role]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

// PartyParams returns a copy of the override for one party of role, if any.
func (c *Component) PartyParams(role string, party int64) (Params, bool) {
	p, ok := c.partyParams[role][party]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

// OverrideRoles returns every role named by a role or party override, sorted.
func (c *Component) OverrideRoles() []string {
	seen := make(map[string]bool)
	for role := range c.roleParams {
		seen[role] = true
	}
	for role := range c.partyParams {
		seen[role] = true
	}
	roles := make([]string, 0, len(seen))
	for role := range seen {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	return roles
}

// OverrideParties returns the parties of role carrying an override, sorted.
func (c *Component) OverrideParties(role string) []int64 {
	parties := make([]int64, 0, len(c.partyParams[role]))
	for party := range c.partyParams[role] {
		parties = append(parties, party)
	}
	sort.Slice(parties, func(i, j int) bool { return parties[i] < parties[j] })
	return parties
}

// Freeze makes the component's parameters immutable.
func (c *Component) Freeze() { c.frozen = true }

func (c *Component) Frozen() bool { return c.frozen }
