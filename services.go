package paker

import (
	"context"
	"log"

	"github.com/Cyxuan0311/Paker-sub001/internal/asyncio"
	"github.com/Cyxuan0311/Paker-sub001/internal/cache"
	"github.com/Cyxuan0311/Paker-sub001/internal/clock"
	"github.com/Cyxuan0311/Paker-sub001/internal/conflict"
	"github.com/Cyxuan0311/Paker-sub001/internal/env"
	"github.com/Cyxuan0311/Paker-sub001/internal/graph"
	"github.com/Cyxuan0311/Paker-sub001/internal/history"
	"github.com/Cyxuan0311/Paker-sub001/internal/parser"
	"github.com/Cyxuan0311/Paker-sub001/internal/resolver"
)

// ServicesConfig configures a Services aggregate. Every field is optional;
// the zero value produces a usable, single-project instance rooted at the
// current working directory.
type ServicesConfig struct {
	ProjectPath     string
	Placement       cache.PlacementStrategy
	Storage         cache.StorageStrategy
	GitHubToken     string
	Incremental     bool
	AutoResolve     bool
	MaxCacheEntries int
	MaxHistory      int
	Log             *log.Logger
	Clock           clock.Clock
}

func (c ServicesConfig) withDefaults() ServicesConfig {
	if c.Log == nil {
		c.Log = log.Default()
	}
	if c.Clock == nil {
		c.Clock = clock.Real{}
	}
	return c
}

// Services owns one instance each of the async engine, cache store, path
// resolver, dependency graph, parser, resolver, conflict engine, and
// history manager. Callers construct one Services value and thread it
// through every operation rather than reaching for package-level globals.
type Services struct {
	cfg ServicesConfig

	AsyncIO  *asyncio.Engine
	Cache    *cache.Store
	Graph    *graph.Graph
	Parser   *parser.Parser
	Resolver *resolver.Resolver
	Conflict *conflict.Engine
	History  *history.History
}

// NewServices wires every component together, resolving the narrow
// interfaces each package exposes (resolver.ConflictReporter,
// conflict.MissingDependencyChecker, history.Restorer,
// history.ConstraintChecker) to the concrete siblings that satisfy them.
func NewServices(cfg ServicesConfig, builtinRepo map[string]string, remotes []resolver.Remote) (*Services, error) {
	cfg = cfg.withDefaults()

	aio := asyncio.New(asyncio.Config{Log: cfg.Log})

	store, err := cache.New(cache.Config{
		ProjectPath: cfg.ProjectPath,
		Placement:   cfg.Placement,
		Storage:     cfg.Storage,
		GitHubToken: cfg.GitHubToken,
		Log:         cfg.Log,
		Clock:       cfg.Clock,
	}, aio)
	if err != nil {
		return nil, Wrap(KindIO, "paker.NewServices", err)
	}

	g := graph.New(cfg.MaxCacheEntries)

	locator := &cacheLocator{store: store}
	p := parser.New(g, locator, parser.Config{Log: cfg.Log, Clock: cfg.Clock})

	conflictEngine := conflict.New(g, conflict.Policy{AutoResolve: cfg.AutoResolve})

	res := resolver.New(g, p, &conflictReporter{engine: conflictEngine, log: cfg.Log}, builtinRepo, remotes,
		resolver.Config{Incremental: cfg.Incremental, Log: cfg.Log})
	res.SetVersionLister(&githubVersionLister{gh: store.GitHubResolver(), resolver: res})

	h := history.New(env.ProjectHistoryPath(cfg.ProjectPath), env.ProjectBackupsDir(cfg.ProjectPath),
		history.Config{MaxEntries: cfg.MaxHistory, Log: cfg.Log, Clock: cfg.Clock})

	return &Services{
		cfg:      cfg,
		AsyncIO:  aio,
		Cache:    store,
		Graph:    g,
		Parser:   p,
		Resolver: res,
		Conflict: conflictEngine,
		History:  h,
	}, nil
}

// Restorer adapts s.Cache to history.Restorer, binding ctx so rollback
// doesn't need to thread a context through the history package's API.
func (s *Services) Restorer(ctx context.Context) history.Restorer {
	return &cacheRestorer{store: s.Cache, ctx: ctx}
}

// ConstraintChecker adapts s.Graph to history.ConstraintChecker.
func (s *Services) ConstraintChecker() history.ConstraintChecker {
	return &constraintChecker{graph: s.Graph}
}

// cacheLocator adapts the cache store to parser.DirLocator: a package's
// manifest lives wherever the cache placed its installed bytes.
type cacheLocator struct {
	store *cache.Store
}

func (l *cacheLocator) PackageDir(name, version string) (string, error) {
	path, ok := l.store.CachedPath(name, version)
	if !ok {
		return "", Errorf(KindNotFound, "paker.cacheLocator", "%s@%s is not present in the cache", name, version)
	}
	return path, nil
}

// conflictReporter adapts conflict.Engine to resolver.ConflictReporter: a
// version conflict the resolver itself could not satisfy is routed through
// the same detection/resolution machinery used for graph-detected
// conflicts, rather than the resolver inventing its own reporting path.
type conflictReporter struct {
	engine *conflict.Engine
	log    *log.Logger
}

func (c *conflictReporter) ReportVersionConflict(name string, constraints map[string]Constraint) error {
	versions := make([]string, 0, len(constraints))
	for _, con := range constraints {
		versions = append(versions, con.Version)
	}
	cf := conflict.Conflict{
		Kind:       conflict.KindVersion,
		Package:    name,
		Versions:   versions,
		Suggestion: "resolver found no version of " + name + " satisfying the accumulated constraints",
	}
	applied, err := c.engine.Resolve(cf)
	if err != nil {
		return err
	}
	if applied {
		c.log.Printf("paker: auto-resolved version conflict on %s", name)
		return nil
	}
	return Errorf(KindConflict, "paker.ReportVersionConflict", "unresolved version conflict on %s: %v", name, versions)
}

// githubVersionLister adapts cache.GitHubResolver to resolver.VersionLister
// for GitHub-hosted sources, looking up name's registered URL through the
// same resolver it is installed on.
type githubVersionLister struct {
	gh       *cache.GitHubResolver
	resolver *resolver.Resolver
}

func (l *githubVersionLister) ListVersions(name string) ([]string, error) {
	url, ok := l.resolver.SourceURL(name)
	if !ok || !cache.IsGitHubSource(url) {
		return nil, nil
	}
	return l.gh.ListVersions(context.Background(), url)
}

// cacheRestorer adapts cache.Store to history.Restorer, binding a fixed
// context since Store.Install is context-aware but rollback is a one-shot,
// operator-driven operation rather than something worth cancelling.
type cacheRestorer struct {
	store *cache.Store
	ctx   context.Context
}

func (r *cacheRestorer) Install(name, version, sourceURL string) (bool, error) {
	return r.store.Install(r.ctx, name, version, sourceURL)
}

func (r *cacheRestorer) RestoreSnapshot(name, version, backupPath, sourceURL string) error {
	return r.store.RestoreSnapshot(name, version, backupPath, sourceURL)
}

// constraintChecker adapts internal/graph to history.ConstraintChecker: a
// rollback of name to candidateVersion is unsafe if any dependent's
// recorded constraint on name would reject candidateVersion, the same
// constraint-gathering logic internal/conflict and internal/resolver each
// perform locally.
type constraintChecker struct {
	graph *graph.Graph
}

func (c *constraintChecker) DependentsViolatedBy(name, candidateVersion string) []string {
	var violators []string
	for _, parentName := range c.graph.Dependents(name) {
		parent := c.graph.GetNode(parentName)
		if parent == nil {
			continue
		}
		if con, ok := parent.Constraints[name]; ok && !con.Satisfies(candidateVersion) {
			violators = append(violators, parentName)
		}
	}
	return violators
}
