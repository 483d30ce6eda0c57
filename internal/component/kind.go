package component

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownKind   = errors.New("unknown component kind")
	ErrDuplicateKind = errors.New("duplicate component kind")
	ErrInvalidKind   = errors.New("invalid component kind")
	ErrUnknownParam  = errors.New("unknown parameter")
	ErrParamType     = errors.New("parameter type mismatch")
	ErrInvalidName   = errors.New("invalid component name")
	ErrFrozen        = errors.New("component is frozen")
)

// PortType is the semantic type of a port. Wires only connect ports of the
// same type.
type PortType string

const (
	PortData  PortType = "data"
	PortModel PortType = "model"
)

// Port is a named connection point on a component.
type Port struct {
	Name     string   `json:"name"`
	Type     PortType `json:"type"`
	Required bool     `json:"required,omitempty"`
}

// Kind describes a component type: its ports, default parameters and the
// parameter keys it accepts.
type Kind struct {
	Name     string
	Inputs   []Port
	Outputs  []Port
	Defaults Params
	Schema   map[string]ParamType
}

// Input returns the declared input port with the given name.
func (k *Kind) Input(name string) (Port, bool) {
	return findPort(k.Inputs, name)
}

// Output returns the declared output port with the given name.
func (k *Kind) Output(name string) (Port, bool) {
	return findPort(k.Outputs, name)
}

func findPort(ports []Port, name string) (Port, bool) {
	for _, p := range ports {
		if p.Name == name {
			return p, true
		}
	}
	return Port{}, false
}

// ParamError reports a parameter key rejected by a kind's schema.
type ParamError struct {
	Kind string
	Key  string
	Want ParamType
	Err  error
}

func (e *ParamError) Error() string {
	if e.Want != "" {
		return fmt.Sprintf("%s: kind %s: key %q: want %s", e.Err, e.Kind, e.Key, e.Want)
	}
	return fmt.Sprintf("%s: kind %s: key %q", e.Err, e.Kind, e.Key)
}

func (e *ParamError) Unwrap() error { return e.Err }

// Validate checks every key of p against the kind's schema, in sorted key
// order so the first reported error is stable.
func (k *Kind) Validate(p Params) error {
	for _, key := range p.Keys() {
		want, ok := k.Schema[key]
		if !ok {
			return &ParamError{Kind: k.Name, Key: key, Err: ErrUnknownParam}
		}
		if !want.Accepts(p[key]) {
			return &ParamError{Kind: k.Name, Key: key, Want: want, Err: ErrParamType}
		}
	}
	return nil
}

func (k *Kind) check() error {
	if k == nil || k.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidKind)
	}
	seen := make(map[string]bool)
	for _, p := range k.Inputs {
		if p.Name == "" || seen["in:"+p.Name] {
			return fmt.Errorf("%w: %s: bad input port %q", ErrInvalidKind, k.Name, p.Name)
		}
		seen["in:"+p.Name] = true
	}
	for _, p := range k.Outputs {
		if p.Name == "" || seen["out:"+p.Name] {
			return fmt.Errorf("%w: %s: bad output port %q", ErrInvalidKind, k.Name, p.Name)
		}
		seen["out:"+p.Name] = true
	}
	if err := k.Validate(k.Defaults); err != nil {
		return fmt.Errorf("%w: %s defaults: %v", ErrInvalidKind, k.Name, err)
	}
	return nil
}
