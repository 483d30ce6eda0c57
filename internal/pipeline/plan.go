package pipeline

import "fmt"

// Plan groups components into tiers: every producer of a component sits in
// an earlier tier. Within a tier components keep declaration order.
type Plan struct {
	Tiers    [][]string
	Upstream map[string][]string // component -> distinct producers, declaration order
}

// Tier returns the tier index of name, or -1.
func (p *Plan) Tier(name string) int {
	for i, tier := range p.Tiers {
		for _, n := range tier {
			if n == name {
				return i
			}
		}
	}
	return -1
}

// BuildPlan derives the tiers of an arbitrary component list and wire set.
// It rejects wires naming unknown components and cyclic wiring, so it can
// validate graphs decoded from artifacts as well as built ones.
func BuildPlan(names []string, wires []Wire) (*Plan, error) {
	order := make(map[string]int, len(names))
	for i, n := range names {
		if _, dup := order[n]; dup {
			return nil, &DefinitionError{Err: ErrDuplicateName, Component: n}
		}
		order[n] = i
	}

	downstream := make(map[string][]string)
	upstream := make(map[string][]string)
	inDegree := make(map[string]int, len(names))
	linked := make(map[[2]string]bool)
	for _, w := range wires {
		from, to := w.From.Component, w.To.Component
		if _, ok := order[from]; !ok {
			return nil, &DefinitionError{Err: ErrUnknownProducer, Component: to, Port: w.To.Port, Msg: "producer " + from + " is not registered"}
		}
		if _, ok := order[to]; !ok {
			return nil, &DefinitionError{Err: ErrNotFound, Component: to}
		}
		if from == to {
			return nil, &DefinitionError{Err: ErrSelfLoop, Component: to, Port: w.To.Port}
		}
		if linked[[2]string{from, to}] {
			continue
		}
		linked[[2]string{from, to}] = true
		downstream[from] = append(downstream[from], to)
		upstream[to] = append(upstream[to], from)
		inDegree[to]++
	}

	// Kahn's algorithm; the queue is scanned in declaration order so the
	// resulting tiers are deterministic.
	depth := make(map[string]int, len(names))
	var queue []string
	for _, n := range names {
		if inDegree[n] == 0 {
			queue = append(queue, n)
		}
	}
	processed := 0
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		processed++
		for _, next := range downstream[n] {
			if d := depth[n] + 1; d > depth[next] {
				depth[next] = d
			}
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}
	if processed != len(names) {
		return nil, fmt.Errorf("build plan: %w", ErrCycle)
	}

	maxDepth := -1
	for _, n := range names {
		if depth[n] > maxDepth {
			maxDepth = depth[n]
		}
	}
	tiers := make([][]string, maxDepth+1)
	for _, n := range names {
		tiers[depth[n]] = append(tiers[depth[n]], n)
	}

	return &Plan{Tiers: tiers, Upstream: upstream}, nil
}

// Plan returns the execution tiers of the graph.
func (g *Graph) Plan() *Plan {
	p, err := BuildPlan(g.Names(), g.Wires())
	if err != nil {
		// Declaration order makes a built graph acyclic.
		panic(fmt.Sprintf("internal error: plan of built graph: %v", err))
	}
	return p
}
