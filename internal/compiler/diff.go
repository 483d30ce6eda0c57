package compiler

import (
	"reflect"

	"github.com/mtzanidakis/fedpipe/internal/pipeline"
)

// JobDiff describes what changed between two compiled jobs.
type JobDiff struct {
	ComponentsAdded   []string
	ComponentsRemoved []string
	KindChanged       []string
	WiringChanged     []string
	ParamsChanged     []string // base parameters
	OverridesChanged  []string // resolved per-role or per-party parameters

	RolesChanged     bool
	InitiatorChanged bool
}

// HasChanges reports whether the jobs differ at all.
func (d *JobDiff) HasChanges() bool {
	return len(d.ComponentsAdded) > 0 ||
		len(d.ComponentsRemoved) > 0 ||
		len(d.KindChanged) > 0 ||
		len(d.WiringChanged) > 0 ||
		len(d.ParamsChanged) > 0 ||
		len(d.OverridesChanged) > 0 ||
		d.RolesChanged ||
		d.InitiatorChanged
}

// Diff compares two jobs component by component. Names are reported in the
// declaration order of the job they appear in.
func Diff(old, new *Job) JobDiff {
	var d JobDiff
	if old.digest == new.digest {
		return d
	}

	oldIdx := indexStructure(old.structure)
	newIdx := indexStructure(new.structure)
	oldRt := indexRuntime(old.runtime)
	newRt := indexRuntime(new.runtime)

	for _, c := range new.structure.Components {
		prev, ok := oldIdx[c.Name]
		if !ok {
			d.ComponentsAdded = append(d.ComponentsAdded, c.Name)
			continue
		}
		if prev.Kind != c.Kind {
			d.KindChanged = append(d.KindChanged, c.Name)
		}
		if !reflect.DeepEqual(inputEndpoints(prev), inputEndpoints(c)) {
			d.WiringChanged = append(d.WiringChanged, c.Name)
		}
		if !equalParams(prev.Params, c.Params) {
			d.ParamsChanged = append(d.ParamsChanged, c.Name)
		}
		if !reflect.DeepEqual(oldRt[c.Name], newRt[c.Name]) {
			d.OverridesChanged = append(d.OverridesChanged, c.Name)
		}
	}
	for _, c := range old.structure.Components {
		if _, ok := newIdx[c.Name]; !ok {
			d.ComponentsRemoved = append(d.ComponentsRemoved, c.Name)
		}
	}

	if !reflect.DeepEqual(old.runtime.Roles, new.runtime.Roles) {
		d.RolesChanged = true
	}
	if old.runtime.Initiator != new.runtime.Initiator {
		d.InitiatorChanged = true
	}
	return d
}

func indexStructure(s Structure) map[string]StructureComponent {
	idx := make(map[string]StructureComponent, len(s.Components))
	for _, c := range s.Components {
		idx[c.Name] = c
	}
	return idx
}

// indexRuntime keeps the canonical bytes of each runtime component so values
// decoded as json.Number compare equal to freshly compiled ones.
func indexRuntime(r Runtime) map[string]string {
	idx := make(map[string]string, len(r.Components))
	for _, c := range r.Components {
		data, err := encode(c)
		if err != nil {
			continue
		}
		idx[c.Name] = string(data)
	}
	return idx
}

func inputEndpoints(c StructureComponent) map[string]pipeline.Endpoint {
	out := make(map[string]pipeline.Endpoint, len(c.Inputs))
	for _, in := range c.Inputs {
		out[in.Port] = in.From
	}
	return out
}

func equalParams(a, b any) bool {
	ea, errA := encode(a)
	eb, errB := encode(b)
	return errA == nil && errB == nil && string(ea) == string(eb)
}
