// Package pipeline builds federated job graphs: components registered in
// execution order, the wires between their ports, and the role binding of
// the participating parties.
//
// Every wire's producer must already be registered when the wire is declared,
// so an accumulated graph can never contain a cycle. A Graph is owned by a
// single caller and is not safe for concurrent mutation. It is frozen by
// compilation; after that every mutating call fails with ErrGraphFrozen.
package pipeline

import (
	"github.com/mtzanidakis/fedpipe/internal/component"
)

// Graph is the insertion-ordered set of components of one job.
type Graph struct {
	components []*component.Component
	index      map[string]int
	wiring     *wiring
	roles      *RoleBinding
	frozen     bool
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		index:  make(map[string]int),
		wiring: newWiring(),
	}
}

// AddComponent registers c and wires its inputs. A component frozen by an
// earlier compile cannot be reused. The graph is left unchanged
// when any binding is rejected.
func (g *Graph) AddComponent(c *component.Component, bindings ...Binding) error {
	if c == nil {
		return &DefinitionError{Err: ErrNilComponent}
	}
	name := c.Name()
	if g.frozen {
		return &DefinitionError{Err: ErrGraphFrozen, Component: name}
	}
	if c.Frozen() {
		return &DefinitionError{Err: component.ErrFrozen, Component: name, Msg: "already compiled in another graph"}
	}
	if _, exists := g.index[name]; exists {
		return &DefinitionError{Err: ErrDuplicateName, Component: name}
	}

	wires := make([]Wire, 0, len(bindings))
	seen := make(map[string]bool, len(bindings))
	for _, b := range bindings {
		wire, err := g.checkBinding(c, b)
		if err != nil {
			return err
		}
		if seen[b.Input] {
			return &DefinitionError{Err: ErrInputBound, Component: name, Port: b.Input}
		}
		seen[b.Input] = true
		wires = append(wires, wire)
	}

	g.index[name] = len(g.components)
	g.components = append(g.components, c)
	for _, w := range wires {
		g.wiring.add(w)
	}
	return nil
}

func (g *Graph) checkBinding(c *component.Component, b Binding) (Wire, error) {
	name := c.Name()
	if b.From.Component == name {
		return Wire{}, &DefinitionError{Err: ErrSelfLoop, Component: name, Port: b.Input}
	}

	in, ok := c.Kind().Input(b.Input)
	if !ok {
		return Wire{}, &DefinitionError{
			Err:       ErrPortMismatch,
			Component: name,
			Port:      b.Input,
			Msg:       "not a declared input of kind " + c.Kind().Name,
		}
	}

	i, ok := g.index[b.From.Component]
	if !ok {
		return Wire{}, &DefinitionError{
			Err:       ErrUnknownProducer,
			Component: name,
			Port:      b.Input,
			Msg:       "producer " + b.From.Component + " is not registered",
		}
	}
	producer := g.components[i]
	out, ok := producer.Kind().Output(b.From.Port)
	if !ok {
		return Wire{}, &DefinitionError{
			Err:       ErrPortMismatch,
			Component: producer.Name(),
			Port:      b.From.Port,
			Msg:       "not a declared output of kind " + producer.Kind().Name,
		}
	}
	if in.Type != out.Type {
		return Wire{}, &DefinitionError{
			Err:       ErrPortMismatch,
			Component: name,
			Port:      b.Input,
			Msg:       "input type " + string(in.Type) + " cannot take " + string(out.Type) + " from " + b.From.String(),
		}
	}

	return Wire{From: b.From, To: Endpoint{Component: name, Port: b.Input}}, nil
}

// Component returns the component registered under name.
func (g *Graph) Component(name string) (*component.Component, error) {
	i, ok := g.index[name]
	if !ok {
		return nil, &DefinitionError{Err: ErrNotFound, Component: name}
	}
	return g.components[i], nil
}

// Components returns the components in declaration order.
func (g *Graph) Components() []*component.Component {
	return append([]*component.Component(nil), g.components...)
}

// Names returns the component names in declaration order.
func (g *Graph) Names() []string {
	names := make([]string, len(g.components))
	for i, c := range g.components {
		names[i] = c.Name()
	}
	return names
}

// Wires returns every wire in declaration order.
func (g *Graph) Wires() []Wire {
	return g.wiring.all()
}

// Source returns the producer output bound to the input port of component.
func (g *Graph) Source(component, input string) (Endpoint, bool) {
	return g.wiring.source(Endpoint{Component: component, Port: input})
}

// Consumers returns the inputs fed by the given output port.
func (g *Graph) Consumers(component, output string) []Endpoint {
	return g.wiring.consumers(Endpoint{Component: component, Port: output})
}

// SetRoleBinding binds the participating roles and designates the initiator.
// It replaces any previous binding.
func (g *Graph) SetRoleBinding(initiatorRole string, initiatorParty int64, roles ...RoleParties) error {
	if g.frozen {
		return &DefinitionError{Err: ErrGraphFrozen, Role: initiatorRole}
	}
	b, err := NewRoleBinding(initiatorRole, initiatorParty, roles...)
	if err != nil {
		return err
	}
	g.roles = b
	return nil
}

// RoleBinding returns the current binding, or nil when none was set.
func (g *Graph) RoleBinding() *RoleBinding {
	return g.roles
}

// Freeze makes the graph and its components immutable. It is called by the
// compiler once a job has been produced.
func (g *Graph) Freeze() {
	g.frozen = true
	for _, c := range g.components {
		c.Freeze()
	}
}

func (g *Graph) Frozen() bool { return g.frozen }
