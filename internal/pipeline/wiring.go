package pipeline

import "fmt"

// Endpoint addresses one port of one component.
type Endpoint struct {
	Component string `json:"component"`
	Port      string `json:"port"`
}

func (e Endpoint) String() string {
	return fmt.Sprintf("%s.%s", e.Component, e.Port)
}

// Wire is a directed edge from a producer output to a consumer input.
type Wire struct {
	From Endpoint `json:"from"`
	To   Endpoint `json:"to"`
}

// Binding connects an input port of the component being added to an
// already registered producer output.
type Binding struct {
	Input string
	From  Endpoint
}

// Bind is shorthand for a Binding of input to producer's output port.
func Bind(input, producer, output string) Binding {
	return Binding{Input: input, From: Endpoint{Component: producer, Port: output}}
}

// wiring records every wire in declaration order, indexed both ways.
type wiring struct {
	wires    []Wire
	inbound  map[Endpoint]Wire
	outbound map[Endpoint][]Endpoint
}

func newWiring() *wiring {
	return &wiring{
		inbound:  make(map[Endpoint]Wire),
		outbound: make(map[Endpoint][]Endpoint),
	}
}

func (w *wiring) add(wire Wire) {
	w.wires = append(w.wires, wire)
	w.inbound[wire.To] = wire
	w.outbound[wire.From] = append(w.outbound[wire.From], wire.To)
}

func (w *wiring) source(to Endpoint) (Endpoint, bool) {
	wire, ok := w.inbound[to]
	return wire.From, ok
}

func (w *wiring) consumers(from Endpoint) []Endpoint {
	return append([]Endpoint(nil), w.outbound[from]...)
}

func (w *wiring) all() []Wire {
	return append([]Wire(nil), w.wires...)
}
