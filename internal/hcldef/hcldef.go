// Package hcldef reads pipeline definitions written in HCL and builds the
// corresponding job graph.
//
//	initiator {
//	  role  = "guest"
//	  party = 9999
//	}
//	role "guest" { parties = [9999] }
//	role "host"  { parties = [10000] }
//
//	component "reader" "reader_0" {
//	  override "guest" {
//	    params = { table = { name = "breast_hetero_guest", namespace = "experiment" } }
//	  }
//	}
//	component "dataio" "dataio_0" {
//	  params = { with_label = true }
//	  input "data" { from = "reader_0.data" }
//	}
package hcldef

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/mtzanidakis/fedpipe/internal/component"
	"github.com/mtzanidakis/fedpipe/internal/pipeline"
	"github.com/zclconf/go-cty/cty"
)

// Definition is a decoded pipeline file.
type Definition struct {
	Initiator  *Initiator
	Roles      []pipeline.RoleParties
	Components []Component
}

type Initiator struct {
	Role  string
	Party int64
}

// Component is one component block, in file order.
type Component struct {
	Kind      string
	Name      string
	Params    component.Params
	Inputs    []pipeline.Binding
	Overrides []Override
}

// Override is a role-wide override when Party is nil, otherwise a party one.
type Override struct {
	Role   string
	Party  *int64
	Params component.Params
}

type fileRoot struct {
	Initiator  *initiatorBlock   `hcl:"initiator,block"`
	Roles      []*roleBlock      `hcl:"role,block"`
	Components []*componentBlock `hcl:"component,block"`
}

type initiatorBlock struct {
	Role  string `hcl:"role"`
	Party int64  `hcl:"party"`
}

type roleBlock struct {
	Name    string  `hcl:"name,label"`
	Parties []int64 `hcl:"parties"`
}

type componentBlock struct {
	Kind      string           `hcl:"kind,label"`
	Name      string           `hcl:"name,label"`
	Params    hcl.Expression   `hcl:"params,optional"`
	Inputs    []*inputBlock    `hcl:"input,block"`
	Overrides []*overrideBlock `hcl:"override,block"`
}

type inputBlock struct {
	Port string `hcl:"port,label"`
	From string `hcl:"from"`
}

type overrideBlock struct {
	Role   string         `hcl:"role,label"`
	Party  *int64         `hcl:"party,optional"`
	Params hcl.Expression `hcl:"params"`
}

// Load parses the definition file at path.
func Load(path string) (*Definition, error) {
	parser := hclparse.NewParser()
	f, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", path, diags)
	}
	return decode(f, path)
}

// Parse parses a definition held in memory. filename is used in diagnostics.
func Parse(src []byte, filename string) (*Definition, error) {
	parser := hclparse.NewParser()
	f, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", filename, diags)
	}
	return decode(f, filename)
}

func decode(f *hcl.File, filename string) (*Definition, error) {
	var root fileRoot
	if diags := gohcl.DecodeBody(f.Body, nil, &root); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", filename, diags)
	}

	def := &Definition{}
	if root.Initiator != nil {
		def.Initiator = &Initiator{Role: root.Initiator.Role, Party: root.Initiator.Party}
	}
	for _, r := range root.Roles {
		def.Roles = append(def.Roles, pipeline.RoleParties{Role: r.Name, Parties: r.Parties})
	}

	for _, cb := range root.Components {
		c := Component{Kind: cb.Kind, Name: cb.Name}

		if isExprDefined(cb.Params) {
			p, err := evalParams(cb.Params)
			if err != nil {
				return nil, fmt.Errorf("%s: component %s: params: %w", filename, cb.Name, err)
			}
			c.Params = p
		}

		for _, in := range cb.Inputs {
			producer, output, ok := strings.Cut(in.From, ".")
			if !ok || producer == "" || output == "" {
				return nil, fmt.Errorf("%s: component %s: input %s: from must be \"component.port\", got %q", filename, cb.Name, in.Port, in.From)
			}
			c.Inputs = append(c.Inputs, pipeline.Bind(in.Port, producer, output))
		}

		for _, ob := range cb.Overrides {
			p, err := evalParams(ob.Params)
			if err != nil {
				return nil, fmt.Errorf("%s: component %s: override %s: %w", filename, cb.Name, ob.Role, err)
			}
			c.Overrides = append(c.Overrides, Override{Role: ob.Role, Party: ob.Party, Params: p})
		}

		def.Components = append(def.Components, c)
	}
	return def, nil
}

// Build creates the graph described by def. Roles declared in the file win;
// otherwise roles is used. Either may be absent, leaving the graph unbound.
func (def *Definition) Build(reg *component.Registry, roles *pipeline.RoleBinding) (*pipeline.Graph, error) {
	g := pipeline.New()

	switch {
	case len(def.Roles) > 0:
		role, party := "", int64(0)
		if def.Initiator != nil {
			role, party = def.Initiator.Role, def.Initiator.Party
		} else if len(def.Roles[0].Parties) > 0 {
			role, party = def.Roles[0].Role, def.Roles[0].Parties[0]
		}
		if err := g.SetRoleBinding(role, party, def.Roles...); err != nil {
			return nil, err
		}
	case roles != nil:
		role, party := roles.Initiator()
		if def.Initiator != nil {
			role, party = def.Initiator.Role, def.Initiator.Party
		}
		if err := g.SetRoleBinding(role, party, roles.Bindings()...); err != nil {
			return nil, err
		}
	}

	for _, dc := range def.Components {
		c, err := reg.New(dc.Name, dc.Kind, dc.Params)
		if err != nil {
			return nil, err
		}
		for _, o := range dc.Overrides {
			if o.Party == nil {
				err = c.SetRoleParams(o.Role, o.Params)
			} else {
				err = c.SetPartyParams(o.Role, *o.Party, o.Params)
			}
			if err != nil {
				return nil, fmt.Errorf("component %s: %w", dc.Name, err)
			}
		}
		if err := g.AddComponent(c, dc.Inputs...); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// isExprDefined reports whether an optional attribute was written in the
// source. Omitted attributes decode to a zero-width placeholder expression.
func isExprDefined(expr hcl.Expression) bool {
	if expr == nil {
		return false
	}
	r := expr.Range()
	return r.End.Byte > r.Start.Byte
}

func evalParams(expr hcl.Expression) (component.Params, error) {
	val, diags := expr.Value(nil)
	if diags.HasErrors() {
		return nil, diags
	}
	native, err := ctyToNative(val)
	if err != nil {
		return nil, err
	}
	if native == nil {
		return component.Params{}, nil
	}
	m, ok := native.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("params must be an object, got %s", val.Type().FriendlyName())
	}
	return component.Params(m), nil
}

// ctyToNative converts a cty value to plain Go values. Whole numbers that fit
// become int64, other numbers float64.
func ctyToNative(v cty.Value) (any, error) {
	if v.IsNull() || !v.IsKnown() {
		return nil, nil
	}

	ty := v.Type()
	switch {
	case ty == cty.String:
		return v.AsString(), nil

	case ty == cty.Number:
		bf := v.AsBigFloat()
		if bf.IsInt() {
			if i, acc := bf.Int64(); acc == big.Exact {
				return i, nil
			}
		}
		f, _ := bf.Float64()
		return f, nil

	case ty == cty.Bool:
		return v.True(), nil

	case ty.IsListType() || ty.IsTupleType() || ty.IsSetType():
		out := make([]any, 0, v.LengthInt())
		it := v.ElementIterator()
		for it.Next() {
			_, elem := it.Element()
			n, err := ctyToNative(elem)
			if err != nil {
				return nil, err
			}
			out = append(out, n)
		}
		return out, nil

	case ty.IsObjectType() || ty.IsMapType():
		out := make(map[string]any)
		it := v.ElementIterator()
		for it.Next() {
			key, elem := it.Element()
			n, err := ctyToNative(elem)
			if err != nil {
				return nil, fmt.Errorf("in attribute '%s': %w", key.AsString(), err)
			}
			out[key.AsString()] = n
		}
		return out, nil

	default:
		return nil, fmt.Errorf("unsupported cty type: %s", ty.FriendlyName())
	}
}
