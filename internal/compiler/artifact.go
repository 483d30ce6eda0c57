package compiler

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/mtzanidakis/fedpipe/internal/component"
	"github.com/mtzanidakis/fedpipe/internal/pipeline"
)

// Structure is the structural artifact: the graph, each component's kind,
// ports, wiring and base parameters, plus the execution tiers.
type Structure struct {
	Components []StructureComponent `json:"components"`
	Tiers      [][]string           `json:"tiers"`
}

type StructureComponent struct {
	Name    string           `json:"name"`
	Kind    string           `json:"kind"`
	Inputs  []StructureInput `json:"inputs,omitempty"`
	Outputs []component.Port `json:"outputs,omitempty"`
	Params  component.Params `json:"params"`
}

// StructureInput is one bound input port and the producer output feeding it.
type StructureInput struct {
	Port string             `json:"port"`
	Type component.PortType `json:"type"`
	From pipeline.Endpoint  `json:"from"`
}

// Runtime is the runtime-configuration artifact: role binding, execution
// selection and the resolved parameters of every component for every role.
type Runtime struct {
	Initiator  Initiator              `json:"initiator"`
	Roles      []pipeline.RoleParties `json:"roles"`
	Backend    string                 `json:"backend,omitempty"`
	RunMode    string                 `json:"run_mode,omitempty"`
	Components []RuntimeComponent     `json:"components"`
}

type Initiator struct {
	Role    string `json:"role"`
	PartyID int64  `json:"party_id"`
}

type RuntimeComponent struct {
	Name  string      `json:"name"`
	Roles []RoleParam `json:"roles"`
}

// RoleParam holds base parameters merged with the role override. Parties
// lists only parties that carry their own override, fully resolved.
type RoleParam struct {
	Role    string           `json:"role"`
	Params  component.Params `json:"params"`
	Parties []PartyParam     `json:"parties,omitempty"`
}

type PartyParam struct {
	PartyID int64            `json:"party_id"`
	Params  component.Params `json:"params"`
}

// Params returns the resolved parameters of the runtime component for one
// party of role. Parties without their own override get the role set.
func (rc RuntimeComponent) Params(role string, party int64) (component.Params, bool) {
	for _, rp := range rc.Roles {
		if rp.Role != role {
			continue
		}
		for _, pp := range rp.Parties {
			if pp.PartyID == party {
				return pp.Params.Clone(), true
			}
		}
		return rp.Params.Clone(), true
	}
	return nil, false
}

// encode renders v as indented JSON. encoding/json sorts map keys, and every
// ordered collection in the artifacts is a slice, so equal values always
// encode to equal bytes.
func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decode parses an artifact, keeping numbers as json.Number so a decoded
// artifact re-encodes to the same literals.
func decode(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return fmt.Errorf("trailing data after artifact")
	}
	return nil
}

// DecodeStructure parses a structure artifact.
func DecodeStructure(data []byte) (*Structure, error) {
	var s Structure
	if err := decode(data, &s); err != nil {
		return nil, fmt.Errorf("decode structure: %w", err)
	}
	return &s, nil
}

// DecodeRuntime parses a runtime-configuration artifact.
func DecodeRuntime(data []byte) (*Runtime, error) {
	var r Runtime
	if err := decode(data, &r); err != nil {
		return nil, fmt.Errorf("decode runtime: %w", err)
	}
	return &r, nil
}
