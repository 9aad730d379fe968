// Package cache implements the package cache store that owns package bytes
// on disk, indexed by (name, version), so multiple projects and multiple
// versions of the same package coexist without duplication. It is built on
// internal/pathresolver for placement, internal/asyncio for the actual
// bytes movement, and internal/archive for the Compressed storage strategy
// and rollback snapshot sharing.
package cache

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	paker "github.com/Cyxuan0311/Paker-sub001"
	"github.com/Cyxuan0311/Paker-sub001/internal/archive"
	"github.com/Cyxuan0311/Paker-sub001/internal/asyncio"
	"github.com/Cyxuan0311/Paker-sub001/internal/clock"
	"github.com/Cyxuan0311/Paker-sub001/internal/env"
	"github.com/Cyxuan0311/Paker-sub001/internal/pathresolver"
	"github.com/google/renameio"
	"golang.org/x/xerrors"
)

// Entry is one cached (name, version) pair's bookkeeping record. Every entry
// Install or RestoreSnapshot creates is active, and nothing in the store
// clears Active; entries whose backing path is gone are removed instead.
type Entry struct {
	Name        string
	Version     string
	Path        string
	Location    pathresolver.Location
	SourceURL   string
	Storage     StorageStrategy
	InstalledAt time.Time
	LastAccess  time.Time
	AccessCount int64
	SizeBytes   int64
	Active      bool
}

func (e *Entry) key() string { return e.Name + "@" + e.Version }

// Config configures a Store.
type Config struct {
	ProjectPath string
	Placement   PlacementStrategy
	Storage     StorageStrategy
	IndexPath   string // defaults to env.UserCacheIndexPath()
	GitHubToken string
	Log         *log.Logger
	Clock       clock.Clock
}

func (c Config) withDefaults() Config {
	if c.IndexPath == "" {
		c.IndexPath = env.UserCacheIndexPath()
	}
	if c.Log == nil {
		c.Log = log.Default()
	}
	if c.Clock == nil {
		c.Clock = clock.Real{}
	}
	return c
}

// GitHubResolver exposes the store's GitHub client so other components
// (the resolver's version lister, in particular) can share one
// authenticated client rather than each constructing their own.
func (s *Store) GitHubResolver() *GitHubResolver { return s.gh }

// Store is the cache's single source of truth for package bytes.
type Store struct {
	cfg      Config
	resolver *pathresolver.Resolver
	aio      *asyncio.Engine
	gh       *GitHubResolver

	mu      sync.RWMutex
	entries map[string]*Entry

	installing sync.Map // string -> chan struct{}
}

// New constructs a Store, loading any persisted index at cfg.IndexPath. A
// missing index file is not an error; a present-but-corrupt one is.
func New(cfg Config, aio *asyncio.Engine) (*Store, error) {
	cfg = cfg.withDefaults()
	s := &Store{
		cfg:      cfg,
		resolver: pathresolver.New(cfg.ProjectPath),
		aio:      aio,
		gh:       NewGitHubResolver(context.Background(), cfg.GitHubToken),
		entries:  make(map[string]*Entry),
	}
	if err := s.loadIndex(); err != nil {
		return nil, xerrors.Errorf("cache.New: %w", err)
	}
	return s, nil
}

// indexEntry is the on-disk shape of one cached version: a name→version→
// object map, not a flat list, so the document reads as a lookup table
// keyed the way operators query it. Timestamps are seconds since epoch,
// not RFC3339, matching how cache consumers compare them against
// Clock.Now().Unix() for eviction.
type indexEntry struct {
	CachePath      string `json:"cache_path"`
	RepositoryURL  string `json:"repository_url"`
	SizeBytes      int64  `json:"size_bytes"`
	AccessCount    int64  `json:"access_count"`
	IsActive       bool   `json:"is_active"`
	InstallTime    int64  `json:"install_time"`
	LastAccessTime int64  `json:"last_access"`

	// location and storage round-trip through the document too, so a
	// reload doesn't lose placement or storage-strategy information the
	// store itself needs.
	Location int `json:"location"`
	Storage  int `json:"storage"`
}

// indexDocument is name -> version -> indexEntry.
type indexDocument map[string]map[string]indexEntry

func (s *Store) loadIndex() error {
	b, err := os.ReadFile(s.cfg.IndexPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return xerrors.Errorf("cache.loadIndex: %w", err)
	}
	var doc indexDocument
	if err := json.Unmarshal(b, &doc); err != nil {
		return xerrors.Errorf("cache.loadIndex: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, versions := range doc {
		for version, ie := range versions {
			e := &Entry{
				Name:        name,
				Version:     version,
				Path:        ie.CachePath,
				Location:    pathresolver.Location(ie.Location),
				SourceURL:   ie.RepositoryURL,
				Storage:     StorageStrategy(ie.Storage),
				InstalledAt: time.Unix(ie.InstallTime, 0).UTC(),
				LastAccess:  time.Unix(ie.LastAccessTime, 0).UTC(),
				AccessCount: ie.AccessCount,
				SizeBytes:   ie.SizeBytes,
				Active:      ie.IsActive,
			}
			// An active entry implies its directory exists; drop any
			// whose path has gone missing out from under us.
			if _, err := os.Lstat(e.Path); err != nil {
				continue
			}
			s.entries[e.key()] = e
		}
	}
	return nil
}

// persistIndex serialises the in-memory index to a single document at
// cfg.IndexPath via renameio, so a crash mid-write never corrupts it.
func (s *Store) persistIndex() error {
	s.mu.RLock()
	doc := make(indexDocument, len(s.entries))
	for _, e := range s.entries {
		versions, ok := doc[e.Name]
		if !ok {
			versions = make(map[string]indexEntry)
			doc[e.Name] = versions
		}
		versions[e.Version] = indexEntry{
			CachePath:      e.Path,
			RepositoryURL:  e.SourceURL,
			SizeBytes:      e.SizeBytes,
			AccessCount:    e.AccessCount,
			IsActive:       e.Active,
			InstallTime:    e.InstalledAt.Unix(),
			LastAccessTime: e.LastAccess.Unix(),
			Location:       int(e.Location),
			Storage:        int(e.Storage),
		}
	}
	s.mu.RUnlock()

	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return xerrors.Errorf("cache.persistIndex: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.cfg.IndexPath), 0755); err != nil {
		return xerrors.Errorf("cache.persistIndex: %w", err)
	}
	if err := renameio.WriteFile(s.cfg.IndexPath, b, 0644); err != nil {
		return xerrors.Errorf("cache.persistIndex: %w", err)
	}
	return nil
}

// ExactPresent implements pathresolver.PresenceChecker.
func (s *Store) ExactPresent(loc pathresolver.Location, name, version string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[name+"@"+version]
	if !ok || e.Location != loc {
		return "", false
	}
	return e.Path, true
}

// NamePresent implements pathresolver.PresenceChecker.
func (s *Store) NamePresent(loc pathresolver.Location, name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.entries {
		if e.Location == loc && e.Name == name {
			return true
		}
	}
	return false
}

// IsCached reports whether (name, version) is cached. version == "" or
// paker.AnyVersion matches any cached version of name.
func (s *Store) IsCached(name, version string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if version != "" && version != paker.AnyVersion {
		_, ok := s.entries[name+"@"+version]
		return ok
	}
	for _, e := range s.entries {
		if e.Name == name {
			return true
		}
	}
	return false
}

// CachedPath returns the path of (name, version) if cached. version == ""
// or paker.AnyVersion returns the most recently installed matching version.
func (s *Store) CachedPath(name, version string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if version != "" && version != paker.AnyVersion {
		e, ok := s.entries[name+"@"+version]
		if !ok {
			return "", false
		}
		return e.Path, true
	}
	var best *Entry
	for _, e := range s.entries {
		if e.Name != name {
			continue
		}
		if best == nil || e.InstalledAt.After(best.InstalledAt) {
			best = e
		}
	}
	if best == nil {
		return "", false
	}
	return best.Path, true
}

// Touch records an access against (name, version), for the Unused eviction
// policy and LRU-by-size eviction.
func (s *Store) Touch(name, version string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[name+"@"+version]; ok {
		e.LastAccess = s.cfg.Clock.Now()
		e.AccessCount++
	}
}

// Install fetches and installs (name, version) from sourceURL if not
// already cached, updating the index. Concurrent installers of the same
// key serialize on the first installer's result rather than racing.
func (s *Store) Install(ctx context.Context, name, version, sourceURL string) (bool, error) {
	key := name + "@" + version

	done := make(chan struct{})
	actual, loaded := s.installing.LoadOrStore(key, done)
	if loaded {
		<-actual.(chan struct{})
		return s.IsCached(name, version), nil
	}
	defer func() {
		s.installing.Delete(key)
		close(done)
	}()

	if s.IsCached(name, version) {
		return true, nil
	}

	restricted := restrictedResolver(s.resolver, s.cfg.Placement)
	loc, dest, ok := restricted.SelectForInstall(s, name, version)
	if !ok {
		return false, paker.Errorf(paker.KindPermission, "cache.Install", "no writable cache location for %s", key)
	}

	strategy := s.cfg.Storage
	installDest := dest
	if strategy == Compressed {
		installDest = dest + ".tar.gz"
	}
	if err := install(ctx, s.aio, s.gh, strategy, sourceURL, version, installDest); err != nil {
		return false, paker.Wrap(paker.KindIO, "cache.Install", err)
	}

	size := dirSize(installDest)
	now := s.cfg.Clock.Now()
	e := &Entry{
		Name: name, Version: version, Path: installDest, Location: loc,
		SourceURL: sourceURL, Storage: strategy,
		InstalledAt: now, LastAccess: now, SizeBytes: size, Active: true,
	}
	s.mu.Lock()
	s.entries[key] = e
	s.mu.Unlock()

	if err := s.persistIndex(); err != nil {
		s.cfg.Log.Printf("cache: %v", err)
	}
	return true, nil
}

func dirSize(path string) int64 {
	fi, err := os.Stat(path)
	if err != nil {
		return 0
	}
	if !fi.IsDir() {
		return fi.Size()
	}
	var total int64
	filepathWalk(path, func(_ string, size int64) { total += size })
	return total
}

func filepathWalk(root string, visit func(path string, size int64)) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return
	}
	for _, e := range entries {
		p := filepath.Join(root, e.Name())
		if e.IsDir() {
			filepathWalk(p, visit)
			continue
		}
		if fi, err := e.Info(); err == nil {
			visit(p, fi.Size())
		}
	}
}

// Remove deletes (name, version) from the cache and the index. version ==
// "" or paker.AnyVersion removes every cached version of name.
func (s *Store) Remove(name, version string) bool {
	s.mu.Lock()
	var keys []string
	if version != "" && version != paker.AnyVersion {
		if _, ok := s.entries[name+"@"+version]; ok {
			keys = append(keys, name+"@"+version)
		}
	} else {
		for k, e := range s.entries {
			if e.Name == name {
				keys = append(keys, k)
			}
		}
	}
	removed := false
	for _, k := range keys {
		e := s.entries[k]
		os.RemoveAll(e.Path)
		delete(s.entries, k)
		removed = true
	}
	s.mu.Unlock()

	if removed {
		if err := s.persistIndex(); err != nil {
			s.cfg.Log.Printf("cache: %v", err)
		}
	}
	return removed
}

// RestoreSnapshot unpacks a history snapshot archive for (name, version)
// into a freshly selected cache location and records it in the index,
// giving internal/history's single-package rollback strategy a cache-native
// way to restore a prior version without reaching into the store's internal
// layout itself.
func (s *Store) RestoreSnapshot(name, version, backupPath, sourceURL string) error {
	restricted := restrictedResolver(s.resolver, s.cfg.Placement)
	loc, dest, ok := restricted.SelectForInstall(s, name, version)
	if !ok {
		return paker.Errorf(paker.KindPermission, "cache.RestoreSnapshot", "no writable cache location for %s@%s", name, version)
	}
	if err := archive.Unpack(backupPath, dest); err != nil {
		return paker.Wrap(paker.KindIO, "cache.RestoreSnapshot", err)
	}

	size := dirSize(dest)
	now := s.cfg.Clock.Now()
	key := name + "@" + version
	s.mu.Lock()
	s.entries[key] = &Entry{
		Name: name, Version: version, Path: dest, Location: loc,
		SourceURL: sourceURL, Storage: ShallowClone,
		InstalledAt: now, LastAccess: now, SizeBytes: size, Active: true,
	}
	s.mu.Unlock()

	if err := s.persistIndex(); err != nil {
		s.cfg.Log.Printf("cache: %v", err)
	}
	return nil
}

// PackageList returns every cached entry.
func (s *Store) PackageList() []paker.PackageID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]paker.PackageID, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, paker.PackageID{Name: e.Name, Version: e.Version})
	}
	return out
}

// Statistics summarizes the cache's contents.
type Statistics struct {
	TotalEntries int
	TotalBytes   int64
	ByLocation   map[pathresolver.Location]int
}

// Statistics computes a Statistics snapshot.
func (s *Store) Statistics() Statistics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := Statistics{ByLocation: make(map[pathresolver.Location]int)}
	for _, e := range s.entries {
		stats.TotalEntries++
		stats.TotalBytes += e.SizeBytes
		stats.ByLocation[e.Location]++
	}
	return stats
}

// ValidateIntegrity prunes any index entry whose backing path has gone
// missing, repairing the "entry implies directory exists" invariant.
func (s *Store) ValidateIntegrity() (repaired int, err error) {
	s.mu.Lock()
	for k, e := range s.entries {
		if _, statErr := os.Lstat(e.Path); statErr != nil {
			delete(s.entries, k)
			repaired++
		}
	}
	s.mu.Unlock()
	if repaired > 0 {
		err = s.persistIndex()
	}
	return repaired, err
}

// Optimize re-persists the index, compacting out anything ValidateIntegrity
// would have pruned, and is the hook future de-duplication passes attach
// to.
func (s *Store) Optimize() error {
	if _, err := s.ValidateIntegrity(); err != nil {
		return err
	}
	return s.persistIndex()
}

// PackageCount implements pathresolver.LocationStatsProvider.
func (s *Store) PackageCount(loc pathresolver.Location) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, e := range s.entries {
		if e.Location == loc {
			n++
		}
	}
	return n
}

// TotalBytes implements pathresolver.LocationStatsProvider.
func (s *Store) TotalBytes(loc pathresolver.Location) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total int64
	for _, e := range s.entries {
		if e.Location == loc {
			total += e.SizeBytes
		}
	}
	return total
}
