package graph

import (
	"gonum.org/v1/gonum/graph/topo"
)

// TopologicalSort returns node names in dependency order (a dependency
// always precedes its dependents). It fails if the graph contains a cycle.
func (gr *Graph) TopologicalSort() ([]string, error) {
	gr.mu.RLock()
	defer gr.mu.RUnlock()

	sorted, err := topo.Sort(gr.g)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(sorted))
	for i, n := range sorted {
		out[i] = gr.names[n.ID()]
	}
	// topo.Sort orders so that for edge u->v, u appears before v; our edges
	// mean "from depends on to", so dependencies must precede dependents —
	// reverse.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// DetectCycles returns every strongly-connected component of size > 1 (a
// true cycle), as sets of node names. An empty result means the graph is a
// DAG.
func (gr *Graph) DetectCycles() [][]string {
	gr.mu.RLock()
	defer gr.mu.RUnlock()

	_, err := topo.Sort(gr.g)
	unorderable, ok := err.(topo.Unorderable)
	if !ok {
		return nil
	}
	var out [][]string
	for _, comp := range unorderable {
		if len(comp) < 2 && !hasSelfLoop(gr, comp[0].ID()) {
			continue
		}
		names := make([]string, len(comp))
		for i, n := range comp {
			names[i] = gr.names[n.ID()]
		}
		out = append(out, names)
	}
	return out
}

func hasSelfLoop(gr *Graph, id int64) bool {
	return gr.g.HasEdgeFromTo(id, id)
}

// HasCycle reports whether the graph currently contains a dependency cycle.
func (gr *Graph) HasCycle() bool {
	return len(gr.DetectCycles()) > 0
}
