// Package conflict detects version, circular, and missing-dependency
// conflicts purely from internal/graph queries, and proposes resolutions in
// priority order. It is plain graph-traversal logic, hand-rolled the same
// way internal/graph's own AllPaths/PathsTo are, with no I/O, parsing, or
// serialization surface for a third-party library to serve.
package conflict

import (
	paker "github.com/Cyxuan0311/Paker-sub001"
	"github.com/Cyxuan0311/Paker-sub001/internal/graph"
)

// Kind identifies one of the three conflict kinds this package detects.
type Kind int

const (
	KindVersion Kind = iota
	KindCircular
	KindMissing
)

func (k Kind) String() string {
	switch k {
	case KindVersion:
		return "version"
	case KindCircular:
		return "circular"
	case KindMissing:
		return "missing"
	default:
		return "unknown"
	}
}

// Resolution is one proposed way to resolve a Conflict.
type Resolution struct {
	Description string
	// Apply, if non-nil, carries out this resolution against the graph.
	// Resolutions that only "report" (propose an abstraction boundary,
	// defer to operator) leave Apply nil.
	Apply func(g *graph.Graph) error
}

// Conflict is one detected conflict: kind, primary package, conflicting
// versions, the dependency paths producing it, a textual suggestion, and
// the ordered resolutions an operator (or unattended policy) may choose
// between.
type Conflict struct {
	Kind        Kind
	Package     string
	Versions    []string
	Paths       [][]string
	Suggestion  string
	Resolutions []Resolution
}

// Policy controls unattended resolution: when AutoResolve is set, the first
// proposed resolution with an Apply func is applied automatically rather
// than left for an operator to choose.
type Policy struct {
	AutoResolve bool
}

// Engine detects and resolves conflicts on a graph.
type Engine struct {
	graph  *graph.Graph
	policy Policy
}

// New constructs an Engine over g.
func New(g *graph.Graph, policy Policy) *Engine {
	return &Engine{graph: g, policy: policy}
}

// DetectVersionConflicts finds, for every package reachable by more than one
// path from a root, whether the constraints gathered along each path can be
// jointly satisfied by a single version. A conflict is reported only when
// no such version exists among the package's own recorded versions (its
// node's current version and any sibling constraints).
func (e *Engine) DetectVersionConflicts() []Conflict {
	var out []Conflict
	for _, name := range e.graph.Names() {
		paths := e.graph.PathsTo(name)
		if len(paths) < 2 {
			continue
		}
		constraints := e.pathConstraints(name, paths)
		if len(constraints) < 2 {
			continue
		}
		node := e.graph.GetNode(name)
		if node == nil {
			continue
		}
		if node.Version == "" {
			continue
		}
		candidates := []string{node.Version}
		for _, c := range constraints {
			if c.Version != "" {
				candidates = append(candidates, c.Version)
			}
		}
		if _, ok := paker.HighestSatisfying(candidates, constraints); ok {
			continue
		}
		out = append(out, Conflict{
			Kind:       KindVersion,
			Package:    name,
			Versions:   versionOperands(constraints),
			Paths:      paths,
			Suggestion: "no single version of " + name + " satisfies every path's constraint",
			Resolutions: []Resolution{
				{Description: "pick the highest version satisfying the most constraints and downgrade dissenting paths"},
				{Description: "pick the most recent stable (non-prerelease) release"},
				{Description: "require operator intervention"},
			},
		})
	}
	return out
}

func (e *Engine) pathConstraints(name string, paths [][]string) []paker.Constraint {
	var out []paker.Constraint
	seen := make(map[string]bool)
	for _, path := range paths {
		if len(path) < 2 {
			continue
		}
		parentName := path[len(path)-2]
		if seen[parentName] {
			continue
		}
		seen[parentName] = true
		parent := e.graph.GetNode(parentName)
		if parent == nil {
			continue
		}
		if c, ok := parent.Constraints[name]; ok {
			out = append(out, c)
		}
	}
	return out
}

// versionOperands extracts the bare version each constraint names (e.g.
// "8.1.1" out of ">=8.1.1"), not the rendered constraint string — callers
// report the conflicting versions themselves, not the operators on them.
func versionOperands(constraints []paker.Constraint) []string {
	out := make([]string, len(constraints))
	for i, c := range constraints {
		out[i] = c.Version
	}
	return out
}

// DetectCircular reports one Conflict per cycle found on the graph.
func (e *Engine) DetectCircular() []Conflict {
	cycles := e.graph.DetectCycles()
	out := make([]Conflict, 0, len(cycles))
	for _, cycle := range cycles {
		cycle := cycle
		out = append(out, Conflict{
			Kind:       KindCircular,
			Package:    cycle[0],
			Paths:      [][]string{cycle},
			Suggestion: "circular dependency among " + joinNames(cycle),
			Resolutions: []Resolution{
				{
					Description: "remove the last edge of the cycle",
					Apply: func(g *graph.Graph) error {
						from, to, ok := closingEdge(g, cycle)
						if !ok {
							return nil
						}
						g.RemoveEdge(from, to)
						return nil
					},
				},
				{Description: "propose an abstraction boundary (report only)"},
				{Description: "defer to operator"},
			},
		})
	}
	return out
}

// closingEdge finds one real edge between two members of cycle (an SCC's
// node set, in no particular order), so the "remove the last edge" proposal
// removes an edge that actually exists rather than assuming cycle is
// already a walk-ordered sequence.
func closingEdge(g *graph.Graph, cycle []string) (from, to string, ok bool) {
	for _, u := range cycle {
		for _, dep := range g.Dependencies(u) {
			for _, v := range cycle {
				if dep == v {
					return u, v, true
				}
			}
		}
	}
	return "", "", false
}

func joinNames(names []string) string {
	s := ""
	for i, n := range names {
		if i > 0 {
			s += " -> "
		}
		s += n
	}
	return s
}

// MissingDependencyChecker supplies the repository lookup the resolver
// maintains, so the conflict engine can propose a fallback name without
// importing internal/resolver (which itself depends on internal/parser and
// would create an import cycle back through a Services-level consumer).
type MissingDependencyChecker interface {
	SourceURL(name string) (string, bool)
}

// DetectMissing finds every dependency edge whose target has no node and no
// repository URL. repo, if non-nil, is consulted for a name the repository
// map does recognise.
func (e *Engine) DetectMissing(repo MissingDependencyChecker) []Conflict {
	var out []Conflict
	for _, name := range e.graph.Names() {
		node := e.graph.GetNode(name)
		if node == nil {
			continue
		}
		for dep := range node.Dependencies {
			if e.graph.GetNode(dep) != nil {
				continue
			}
			if repo != nil {
				if _, hasURL := repo.SourceURL(dep); hasURL {
					continue
				}
			}
			resolutions := []Resolution{
				{Description: "treat as optional if the manifest marks it so"},
				{Description: "propose a fallback name from the repository map"},
				{Description: "defer to operator"},
			}
			out = append(out, Conflict{
				Kind:        KindMissing,
				Package:     dep,
				Paths:       [][]string{{name, dep}},
				Suggestion:  "dependency " + dep + " of " + name + " has no node and no repository URL",
				Resolutions: resolutions,
			})
		}
	}
	return out
}

// DetectAll runs every detector and concatenates the results.
func (e *Engine) DetectAll(repo MissingDependencyChecker) []Conflict {
	var out []Conflict
	out = append(out, e.DetectVersionConflicts()...)
	out = append(out, e.DetectCircular()...)
	out = append(out, e.DetectMissing(repo)...)
	return out
}

// Resolve applies c's first proposed resolution automatically when
// e.policy.AutoResolve is set and that resolution is applicable (has a
// non-nil Apply); otherwise it returns the conflict unresolved for an
// operator to choose from c.Resolutions.
func (e *Engine) Resolve(c Conflict) (applied bool, err error) {
	if !e.policy.AutoResolve {
		return false, nil
	}
	for _, r := range c.Resolutions {
		if r.Apply == nil {
			continue
		}
		if err := r.Apply(e.graph); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// ResolveChoice applies the resolution at index i of c.Resolutions,
// regardless of policy — the interactive path where an operator is
// presented with the proposed resolutions and picks one.
func (e *Engine) ResolveChoice(c Conflict, i int) error {
	if i < 0 || i >= len(c.Resolutions) {
		return paker.Errorf(paker.KindNotFound, "conflict.ResolveChoice", "resolution index %d out of range", i)
	}
	r := c.Resolutions[i]
	if r.Apply == nil {
		return nil // report-only or defer-to-operator resolutions have no graph action
	}
	return r.Apply(e.graph)
}
