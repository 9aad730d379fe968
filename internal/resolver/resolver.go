// Package resolver walks outward from a seed package, invoking the parser
// on each unresolved node and reconciling constraints on shared
// dependencies. Unlike a build system with one fixed manifest schema,
// Paker's edges come from six heterogeneous manifest formats, and versions
// are chosen rather than pinned by the manifest.
package resolver

import (
	"log"
	"sort"
	"strconv"
	"sync"

	paker "github.com/Cyxuan0311/Paker-sub001"
	"github.com/Cyxuan0311/Paker-sub001/internal/graph"
	"github.com/Cyxuan0311/Paker-sub001/internal/parser"
	"golang.org/x/xerrors"
)

// VersionLister optionally extends a repository entry with the set of
// versions known to exist upstream. Not every source can supply this (a bare
// URL with no index): an empty answer falls back to the graph's recorded
// version, while an error fails version selection.
type VersionLister interface {
	ListVersions(name string) ([]string, error)
}

// Remote is one entry of a project manifest's "remotes" list.
type Remote struct {
	Name string
	URL  string
}

// ConflictReporter mirrors the conflict engine's entry point; the resolver
// surfaces an unsatisfiable constraint set through it rather than deciding
// a resolution itself.
type ConflictReporter interface {
	ReportVersionConflict(name string, constraints map[string]paker.Constraint) error
}

// Config configures a Resolver.
type Config struct {
	Incremental bool // route parsing through the parser's cache
	Log         *log.Logger
}

func (c Config) withDefaults() Config {
	if c.Log == nil {
		c.Log = log.Default()
	}
	return c
}

// Resolver produces a complete, consistent dependency graph from a seed.
type Resolver struct {
	cfg       Config
	graph     *graph.Graph
	parser    *parser.Parser
	conflicts ConflictReporter
	lister    VersionLister

	mu   sync.Mutex
	repo map[string]string // name -> source URL
}

// New constructs a Resolver. builtins seeds the repository lookup map;
// remotes extends it, overwriting any builtin with the same name.
func New(g *graph.Graph, p *parser.Parser, conflicts ConflictReporter, builtins map[string]string, remotes []Remote, cfg Config) *Resolver {
	cfg = cfg.withDefaults()
	repo := make(map[string]string, len(builtins)+len(remotes))
	for name, url := range builtins {
		repo[name] = url
	}
	for _, r := range remotes {
		repo[r.Name] = r.URL
	}
	return &Resolver{cfg: cfg, graph: g, parser: p, conflicts: conflicts, repo: repo}
}

// SetVersionLister installs an optional upstream version enumerator.
func (r *Resolver) SetVersionLister(l VersionLister) { r.lister = l }

// SourceURL looks up name's registered source URL, if any.
func (r *Resolver) SourceURL(name string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	url, ok := r.repo[name]
	return url, ok
}

// RegisterSource adds or overwrites name's source URL at runtime.
func (r *Resolver) RegisterSource(name, url string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.repo[name] = url
}

// Resolve seeds the graph with name@versionConstraint and walks outward
// until every reachable node is resolved. version may be a concrete version
// or a constraint string understood by paker.ParseConstraint.
func (r *Resolver) Resolve(name, version string) error {
	visited := make(map[string]bool)
	return r.resolveNode(name, version, visited)
}

func (r *Resolver) resolveNode(name, versionConstraint string, visited map[string]bool) error {
	if visited[name] {
		return nil
	}
	visited[name] = true

	resolved, err := r.selectVersion(name, versionConstraint)
	if err != nil {
		return xerrors.Errorf("resolver.Resolve: selecting version for %q: %w", name, err)
	}

	// Incremental mode routes through the parser's own strategy selector;
	// disabled mode forces a full re-parse of every node.
	if r.cfg.Incremental {
		if err := r.parser.ParsePackage(name, resolved); err != nil {
			return xerrors.Errorf("resolver.Resolve: parsing %q: %w", name, err)
		}
	} else if err := r.parser.ParsePackageWithStrategy(name, resolved, parser.FullParse); err != nil {
		return xerrors.Errorf("resolver.Resolve: parsing %q: %w", name, err)
	}

	if n := r.graph.GetNode(name); n != nil {
		n.Version = resolved
		if n.Constraints == nil {
			n.Constraints = make(map[string]paker.Constraint)
		}
	}

	for _, dep := range r.graph.Dependencies(name) {
		if err := r.resolveNode(dep, paker.AnyVersion, visited); err != nil {
			return err
		}
	}
	return nil
}

// selectVersion gathers every constraint recorded against name across the
// graph (plus the caller's own constraint), enumerates known versions, and
// picks the highest satisfying all of them. No satisfying version routes to
// the conflict engine.
func (r *Resolver) selectVersion(name, callerConstraint string) (string, error) {
	constraints := r.gatherConstraints(name, callerConstraint)
	candidates, err := r.knownVersions(name)
	if err != nil {
		return "", err
	}

	best, ok := paker.HighestSatisfying(candidates, constraints)
	if ok {
		return best, nil
	}

	if r.conflicts != nil {
		cmap := make(map[string]paker.Constraint, len(constraints))
		for i, c := range constraints {
			key := name
			if i > 0 {
				key = name + "#" + strconv.Itoa(i)
			}
			cmap[key] = c
		}
		if err := r.conflicts.ReportVersionConflict(name, cmap); err != nil {
			return "", err
		}
	}
	return "", paker.Errorf(paker.KindConstraintUnsatisfiable, "resolver.selectVersion",
		"no version of %q satisfies the accumulated constraints", name)
}

// gatherConstraints collects name's constraint across every node in the
// graph that depends on it, plus callerConstraint.
func (r *Resolver) gatherConstraints(name, callerConstraint string) []paker.Constraint {
	var out []paker.Constraint
	if callerConstraint != "" && callerConstraint != paker.AnyVersion {
		out = append(out, paker.ParseConstraint(callerConstraint))
	}
	for _, parentName := range r.graph.Dependents(name) {
		parent := r.graph.GetNode(parentName)
		if parent == nil {
			continue
		}
		if c, ok := parent.Constraints[name]; ok {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		out = append(out, paker.AnyConstraint)
	}
	return out
}

// knownVersions enumerates the versions considered for name: the version
// lister's answer when available, else whatever version is already on the
// graph's node for name (already-installed packages resolve to themselves).
func (r *Resolver) knownVersions(name string) ([]string, error) {
	if r.lister != nil {
		versions, err := r.lister.ListVersions(name)
		if err != nil {
			return nil, xerrors.Errorf("resolver.knownVersions: %w", err)
		}
		if len(versions) > 0 {
			sort.Slice(versions, func(i, j int) bool { return paker.CompareVersions(versions[i], versions[j]) < 0 })
			return versions, nil
		}
	}
	if n := r.graph.GetNode(name); n != nil && n.Version != "" {
		return []string{n.Version}, nil
	}
	if _, ok := r.SourceURL(name); !ok {
		return nil, paker.Errorf(paker.KindNotFound, "resolver.knownVersions",
			"%q has no repository URL and no installed version", name)
	}
	return nil, paker.Errorf(paker.KindConstraintUnsatisfiable, "resolver.knownVersions",
		"%q has a repository URL but no known versions to select from", name)
}
