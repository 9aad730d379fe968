// Package parser extracts each package's direct dependency set from its
// manifest, with a content-hash-keyed cache that lets repeated invocations
// skip redundant work. It populates an internal/graph.Graph directly rather
// than handing back an intermediate representation.
package parser

import (
	"crypto/sha256"
	"encoding/hex"
	"log"
	"sync"
	"time"

	"github.com/Cyxuan0311/Paker-sub001/internal/clock"
	"github.com/Cyxuan0311/Paker-sub001/internal/graph"
	"golang.org/x/xerrors"
)

// Strategy is one of the four automatic parse strategies.
type Strategy int

const (
	FullParse Strategy = iota
	Incremental
	Predictive
	CachedOnly
)

func (s Strategy) String() string {
	switch s {
	case FullParse:
		return "full"
	case Incremental:
		return "incremental"
	case Predictive:
		return "predictive"
	case CachedOnly:
		return "cached-only"
	default:
		return "unknown"
	}
}

// manifestReader is one format-specific dependency extractor.
type manifestReader interface {
	name() string
	detect(dir string) (manifestPath string, ok bool)
	parse(path string) (deps []string, raw []byte, err error)
	inferred() bool
}

// defaultReaders returns the readers in detection priority order: specific
// formats first, the structural heuristic last.
func defaultReaders() []manifestReader {
	return []manifestReader{
		cmakeReader{},
		pkgConfigReader{},
		jsonManifestReader{},
		requirementsReader{},
		autotoolsReader{},
		structuralFallbackReader{},
	}
}

// DirLocator maps a package identity to the directory its manifest lives
// in. The resolver supplies this; the parser has no opinion on where
// package sources live on disk.
type DirLocator interface {
	PackageDir(name, version string) (string, error)
}

// Config configures a Parser.
type Config struct {
	MaxCacheEntries int // default 512
	CacheTTL        time.Duration // default 30 minutes
	MaxParallel     int // default 4
	Log             *log.Logger
	Clock           clock.Clock
}

func (c Config) withDefaults() Config {
	if c.MaxCacheEntries <= 0 {
		c.MaxCacheEntries = 512
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = 30 * time.Minute
	}
	if c.MaxParallel <= 0 {
		c.MaxParallel = 4
	}
	if c.Log == nil {
		c.Log = log.Default()
	}
	if c.Clock == nil {
		c.Clock = clock.Real{}
	}
	return c
}

// Parser extracts dependency sets and populates a graph.
type Parser struct {
	cfg     Config
	graph   *graph.Graph
	cache   *ParseCache
	locator DirLocator
	readers []manifestReader

	stats statsState
}

// New constructs a Parser that populates g, using locator to find each
// package's manifest directory.
func New(g *graph.Graph, locator DirLocator, cfg Config) *Parser {
	cfg = cfg.withDefaults()
	return &Parser{
		cfg:     cfg,
		graph:   g,
		cache:   newParseCache(cfg.MaxCacheEntries, cfg.CacheTTL, cfg.Clock),
		locator: locator,
		readers: defaultReaders(),
	}
}

// selectStrategy picks a parse strategy from elapsed time since last use,
// then usage frequency, then cache presence.
func (p *Parser) selectStrategy(name string) Strategy {
	entry, ok := p.cache.get(name)
	if !ok {
		return FullParse
	}
	if p.cfg.Clock.Now().Sub(entry.LastUsed) > 30*time.Minute {
		return FullParse
	}
	switch {
	case entry.Frequency > 0.8:
		return Predictive
	case entry.Frequency > 0.3:
		return Incremental
	default:
		return FullParse
	}
}

// ParsePackage extracts name's direct dependencies, populating the graph
// with a node for name and edges to each dependency.
func (p *Parser) ParsePackage(name, version string) error {
	return p.parsePackage(name, version, p.selectStrategy(name))
}

// ParsePackageWithStrategy bypasses automatic selection, e.g. to force
// CachedOnly for diagnostics.
func (p *Parser) ParsePackageWithStrategy(name, version string, strategy Strategy) error {
	return p.parsePackage(name, version, strategy)
}

func (p *Parser) parsePackage(name, version string, strategy Strategy) error {
	p.stats.recordAttempt()

	if strategy == Predictive || strategy == CachedOnly {
		if entry, ok := p.cache.get(name); ok {
			if strategy == CachedOnly || p.cfg.Clock.Now().Sub(entry.LastParsed) <= p.cfg.CacheTTL {
				p.cache.touch(name)
				p.stats.recordCacheHit()
				return p.populateGraph(name, version, entry.Deps, entry.Inferred)
			}
			// Predictive's TTL lapsed: re-verify via a full parse.
			strategy = FullParse
		} else if strategy == CachedOnly {
			return xerrors.Errorf("parser.ParsePackage: %q: no cache entry and strategy is cached-only", name)
		} else {
			strategy = FullParse
		}
	}

	start := p.cfg.Clock.Now()
	dir, err := p.locator.PackageDir(name, version)
	if err != nil {
		return xerrors.Errorf("parser.ParsePackage: locating %q: %w", name, err)
	}

	reader, manifestPath, ok := p.detectReader(dir)
	if !ok {
		return xerrors.Errorf("parser.ParsePackage: no manifest reader recognises %q", dir)
	}

	deps, raw, err := reader.parse(manifestPath)
	if err != nil {
		return xerrors.Errorf("parser.ParsePackage: parsing %q: %w", manifestPath, err)
	}
	hash := contentHash(raw)
	defer func() { p.stats.recordParseDuration(p.cfg.Clock.Now().Sub(start)) }()

	if strategy == Incremental {
		if entry, ok := p.cache.get(name); ok && entry.Hash == hash {
			p.cache.touch(name)
			p.stats.recordCacheHit()
			p.stats.recordIncremental()
			return p.populateGraph(name, version, entry.Deps, entry.Inferred)
		}
	}

	p.stats.recordCacheMiss()
	p.stats.recordFullParse()
	p.cache.put(name, hash, deps, reader.inferred())
	return p.populateGraph(name, version, deps, reader.inferred())
}

func (p *Parser) detectReader(dir string) (manifestReader, string, bool) {
	for _, r := range p.readers {
		if path, ok := r.detect(dir); ok {
			return r, path, true
		}
	}
	return nil, "", false
}

func (p *Parser) populateGraph(name, version string, deps []string, inferred bool) error {
	if !p.graph.HasNode(name) {
		if err := p.graph.AddNode(&graph.Node{Name: name, Version: version}); err != nil && !p.graph.HasNode(name) {
			return err
		}
	}
	for _, d := range deps {
		if !p.graph.HasNode(d) {
			// A concurrent parse may add d between the check and the add.
			if err := p.graph.AddNode(&graph.Node{Name: d}); err != nil && !p.graph.HasNode(d) {
				return err
			}
		}
		if err := p.graph.AddEdge(name, d, inferred); err != nil {
			return err
		}
	}
	return nil
}

// ParsePackages parses each name, up to cfg.MaxParallel concurrently,
// returning the first error encountered (others still run to completion).
func (p *Parser) ParsePackages(names []string, version string) error {
	sem := make(chan struct{}, p.cfg.MaxParallel)
	var wg sync.WaitGroup
	errCh := make(chan error, len(names))
	for _, name := range names {
		name := name
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			errCh <- p.ParsePackage(name, version)
		}()
	}
	wg.Wait()
	close(errCh)
	var first error
	for err := range errCh {
		if err != nil && first == nil {
			first = err
		}
	}
	return first
}

func contentHash(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// Stats returns a snapshot of parser statistics.
func (p *Parser) Stats() Stats {
	return p.stats.snapshot()
}
