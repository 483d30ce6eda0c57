package compiler

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/mtzanidakis/fedpipe/internal/component"
	"github.com/mtzanidakis/fedpipe/internal/pipeline"
)

var ErrMalformed = errors.New("malformed artifact")

// ParseStructure rebuilds an unfrozen graph from a structure artifact. The
// graph carries the components, wiring and base parameters; role bindings
// and overrides live in the runtime artifact and are not restored.
func ParseStructure(data []byte, reg *component.Registry) (*pipeline.Graph, error) {
	s, err := DecodeStructure(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return s.Graph(reg)
}

// Graph rebuilds the graph described by s.
func (s *Structure) Graph(reg *component.Registry) (*pipeline.Graph, error) {
	g := pipeline.New()
	for _, sc := range s.Components {
		c, err := reg.New(sc.Name, sc.Kind, sc.Params)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		bindings := make([]pipeline.Binding, 0, len(sc.Inputs))
		for _, in := range sc.Inputs {
			bindings = append(bindings, pipeline.Binding{Input: in.Port, From: in.From})
		}
		if err := g.AddComponent(c, bindings...); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
		}
	}

	if plan := g.Plan(); !reflect.DeepEqual(normalizeTiers(plan.Tiers), normalizeTiers(s.Tiers)) {
		return nil, fmt.Errorf("%w: tiers do not match wiring", ErrMalformed)
	}
	return g, nil
}

func normalizeTiers(tiers [][]string) [][]string {
	if len(tiers) == 0 {
		return nil
	}
	return tiers
}

// ParseJob rebuilds a job from its two artifacts, as stored by a bundle or
// the run store. Both artifacts are validated against each other and
// re-encoded canonically.
func ParseJob(structure, runtime []byte, reg *component.Registry) (*Job, error) {
	s, err := DecodeStructure(structure)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	r, err := DecodeRuntime(runtime)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if _, err := s.Graph(reg); err != nil {
		return nil, err
	}

	bindings := make([]pipeline.RoleParties, len(r.Roles))
	copy(bindings, r.Roles)
	binding, err := pipeline.NewRoleBinding(r.Initiator.Role, r.Initiator.PartyID, bindings...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	if len(r.Components) != len(s.Components) {
		return nil, fmt.Errorf("%w: runtime lists %d components, structure %d", ErrMalformed, len(r.Components), len(s.Components))
	}
	for i, rc := range r.Components {
		if rc.Name != s.Components[i].Name {
			return nil, fmt.Errorf("%w: runtime component %d is %s, structure has %s", ErrMalformed, i, rc.Name, s.Components[i].Name)
		}
		for _, rp := range rc.Roles {
			if !binding.HasRole(rp.Role) {
				return nil, fmt.Errorf("%w: %w", ErrMalformed, &pipeline.DefinitionError{Err: ErrRoleNotBound, Component: rc.Name, Role: rp.Role})
			}
			for _, pp := range rp.Parties {
				if !binding.HasParty(rp.Role, pp.PartyID) {
					return nil, fmt.Errorf("%w: %w", ErrMalformed, &pipeline.DefinitionError{
						Err:       ErrPartyNotBound,
						Component: rc.Name,
						Role:      rp.Role,
						Party:     pipeline.PartyString(pp.PartyID),
					})
				}
			}
		}
	}

	// Execution selection belongs to a submission, not to the job.
	r.Backend = ""
	r.RunMode = ""
	return newJob(*s, *r)
}
