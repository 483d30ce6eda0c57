// Package compiler lowers a built pipeline graph into its two submittable
// artifacts, the structure and the runtime configuration, rendered as
// canonical JSON. Compilation freezes the graph and is otherwise pure.
package compiler

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mtzanidakis/fedpipe/internal/component"
	"github.com/mtzanidakis/fedpipe/internal/pipeline"
)

var (
	ErrAlreadyCompiled = errors.New("graph already compiled")
	ErrUnresolvedInput = errors.New("unresolved input")
	ErrRoleNotBound    = errors.New("override for unbound role")
	ErrPartyNotBound   = errors.New("override for unbound party")
	ErrNoRoleBinding   = errors.New("no role binding")
	ErrInvalidParams   = errors.New("invalid parameters")
	ErrEmptyGraph      = errors.New("graph has no components")
)

// Job is a compiled, immutable job description.
type Job struct {
	structure Structure
	runtime   Runtime

	structureBytes []byte
	runtimeBytes   []byte
	digest         string
}

// Compile validates g, freezes it and returns its artifacts. A graph can be
// compiled once; a failed compile leaves the graph mutable.
func Compile(g *pipeline.Graph) (*Job, error) {
	if g == nil {
		return nil, fmt.Errorf("compile: nil graph")
	}
	if g.Frozen() {
		return nil, ErrAlreadyCompiled
	}
	components := g.Components()
	if len(components) == 0 {
		return nil, ErrEmptyGraph
	}
	roles := g.RoleBinding()
	if roles == nil {
		return nil, ErrNoRoleBinding
	}

	for _, c := range components {
		if err := checkInputs(g, c); err != nil {
			return nil, err
		}
	}
	for _, c := range components {
		if err := checkParams(roles, c); err != nil {
			return nil, err
		}
	}

	plan := g.Plan()
	structure := buildStructure(g, plan)
	runtime := buildRuntime(roles, components)

	job, err := newJob(structure, runtime)
	if err != nil {
		return nil, err
	}

	g.Freeze()
	slog.Debug("pipeline compiled", "components", len(components), "tiers", len(plan.Tiers), "digest", job.digest)
	return job, nil
}

func checkInputs(g *pipeline.Graph, c *component.Component) error {
	for _, in := range c.Kind().Inputs {
		if !in.Required {
			continue
		}
		if _, ok := g.Source(c.Name(), in.Name); !ok {
			return &pipeline.DefinitionError{Err: ErrUnresolvedInput, Component: c.Name(), Port: in.Name}
		}
	}
	return nil
}

func checkParams(roles *pipeline.RoleBinding, c *component.Component) error {
	kind := c.Kind()
	if err := kind.Validate(c.Params()); err != nil {
		return &pipeline.DefinitionError{Err: ErrInvalidParams, Component: c.Name(), Msg: err.Error()}
	}

	for _, role := range c.OverrideRoles() {
		if !roles.HasRole(role) {
			return &pipeline.DefinitionError{Err: ErrRoleNotBound, Component: c.Name(), Role: role}
		}
		if p, ok := c.RoleParams(role); ok {
			if err := kind.Validate(p); err != nil {
				return &pipeline.DefinitionError{Err: ErrInvalidParams, Component: c.Name(), Role: role, Msg: err.Error()}
			}
		}
		for _, party := range c.OverrideParties(role) {
			if !roles.HasParty(role, party) {
				return &pipeline.DefinitionError{
					Err:       ErrPartyNotBound,
					Component: c.Name(),
					Role:      role,
					Party:     pipeline.PartyString(party),
				}
			}
			p, _ := c.PartyParams(role, party)
			if err := kind.Validate(p); err != nil {
				return &pipeline.DefinitionError{
					Err:       ErrInvalidParams,
					Component: c.Name(),
					Role:      role,
					Party:     pipeline.PartyString(party),
					Msg:       err.Error(),
				}
			}
		}
	}
	return nil
}

func buildStructure(g *pipeline.Graph, plan *pipeline.Plan) Structure {
	s := Structure{Tiers: plan.Tiers}
	for _, c := range g.Components() {
		sc := StructureComponent{
			Name:    c.Name(),
			Kind:    c.Kind().Name,
			Outputs: append([]component.Port(nil), c.Kind().Outputs...),
			Params:  c.Params(),
		}
		for _, in := range c.Kind().Inputs {
			from, ok := g.Source(c.Name(), in.Name)
			if !ok {
				continue
			}
			sc.Inputs = append(sc.Inputs, StructureInput{Port: in.Name, Type: in.Type, From: from})
		}
		s.Components = append(s.Components, sc)
	}
	return s
}

func buildRuntime(roles *pipeline.RoleBinding, components []*component.Component) Runtime {
	role, party := roles.Initiator()
	r := Runtime{
		Initiator: Initiator{Role: role, PartyID: party},
		Roles:     roles.Bindings(),
	}
	for _, c := range components {
		rc := RuntimeComponent{Name: c.Name()}
		for _, role := range roles.Roles() {
			rp := RoleParam{Role: role, Params: Resolve(c, role)}
			for _, party := range c.OverrideParties(role) {
				rp.Parties = append(rp.Parties, PartyParam{PartyID: party, Params: ResolveParty(c, role, party)})
			}
			rc.Roles = append(rc.Roles, rp)
		}
		r.Components = append(r.Components, rc)
	}
	return r
}

// Resolve returns the effective parameters of c under role: the base set with
// the role override applied key by key.
func Resolve(c *component.Component, role string) component.Params {
	override, _ := c.RoleParams(role)
	return c.Params().Merge(override)
}

// ResolveParty applies the party override on top of Resolve.
func ResolveParty(c *component.Component, role string, party int64) component.Params {
	override, _ := c.PartyParams(role, party)
	return Resolve(c, role).Merge(override)
}

func newJob(s Structure, r Runtime) (*Job, error) {
	sb, err := encode(s)
	if err != nil {
		return nil, fmt.Errorf("encode structure: %w", err)
	}
	rb, err := encode(r)
	if err != nil {
		return nil, fmt.Errorf("encode runtime: %w", err)
	}
	return &Job{
		structure:      s,
		runtime:        r,
		structureBytes: sb,
		runtimeBytes:   rb,
		digest:         digest(sb, rb),
	}, nil
}

func digest(structure, runtime []byte) string {
	h := sha256.New()
	h.Write(structure)
	h.Write([]byte{0})
	h.Write(runtime)
	return hex.EncodeToString(h.Sum(nil))
}

// Structure returns the canonical structure artifact.
func (j *Job) Structure() []byte {
	return append([]byte(nil), j.structureBytes...)
}

// Runtime returns the canonical runtime-configuration artifact.
func (j *Job) Runtime() []byte {
	return append([]byte(nil), j.runtimeBytes...)
}

// Digest is the hex SHA-256 of both artifacts.
func (j *Job) Digest() string { return j.digest }

// Components returns the component names in declaration order.
func (j *Job) Components() []string {
	names := make([]string, len(j.structure.Components))
	for i, c := range j.structure.Components {
		names[i] = c.Name
	}
	return names
}

func (j *Job) HasComponent(name string) bool {
	for _, c := range j.structure.Components {
		if c.Name == name {
			return true
		}
	}
	return false
}

// Tiers returns a copy of the execution tiers.
func (j *Job) Tiers() [][]string {
	out := make([][]string, len(j.structure.Tiers))
	for i, tier := range j.structure.Tiers {
		out[i] = append([]string(nil), tier...)
	}
	return out
}

// Initiator returns the initiator role and party.
func (j *Job) Initiator() (string, int64) {
	return j.runtime.Initiator.Role, j.runtime.Initiator.PartyID
}

// Params returns the resolved parameters of a component for one party.
func (j *Job) Params(name, role string, party int64) (component.Params, error) {
	for _, rc := range j.runtime.Components {
		if rc.Name != name {
			continue
		}
		p, ok := rc.Params(role, party)
		if !ok {
			return nil, &pipeline.DefinitionError{Err: ErrRoleNotBound, Component: name, Role: role}
		}
		return p, nil
	}
	return nil, &pipeline.DefinitionError{Err: pipeline.ErrNotFound, Component: name}
}

// WithExecution returns the runtime artifact with the backend and run mode
// filled in.
func (j *Job) WithExecution(backend, runMode string) ([]byte, error) {
	r := j.runtime
	r.Backend = backend
	r.RunMode = runMode
	data, err := encode(r)
	if err != nil {
		return nil, fmt.Errorf("encode runtime: %w", err)
	}
	return data, nil
}
