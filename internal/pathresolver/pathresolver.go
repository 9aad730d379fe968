// Package pathresolver scores and selects among the cache's candidate
// storage locations: given a package and version, it produces the best
// cache location for a new install, or enumerates existing candidate
// locations in priority order. It never touches package bytes itself; the
// cache store (internal/cache) supplies presence information through the
// PresenceChecker interface and materializes whatever location this
// package selects.
package pathresolver

import (
	"os"
	"path/filepath"
	"time"

	"github.com/Cyxuan0311/Paker-sub001/internal/env"
	"golang.org/x/sys/unix"
)

// Location is one of the four cache roots the resolver scores between.
type Location int

const (
	LocationUserCache Location = iota
	LocationGlobalCache
	LocationProjectCache
	LocationProjectLinks
)

func (l Location) String() string {
	switch l {
	case LocationUserCache:
		return "user-cache"
	case LocationGlobalCache:
		return "global-cache"
	case LocationProjectCache:
		return "project-cache"
	case LocationProjectLinks:
		return "project-links"
	default:
		return "unknown"
	}
}

// basePriority gives each location's fixed base score before the
// available-space, home-directory, and presence adjustments are added.
func basePriority(l Location) int {
	switch l {
	case LocationUserCache:
		return 100
	case LocationGlobalCache:
		return 80
	case LocationProjectCache:
		return 60
	case LocationProjectLinks:
		return 40
	default:
		return 0
	}
}

// Candidate is one scoreable cache root.
type Candidate struct {
	Location Location
	Root     string
}

// PresenceChecker lets the resolver ask the cache store whether a package
// is already present at a candidate location, without owning cache state
// itself.
type PresenceChecker interface {
	// ExactPresent reports whether (name, version) is already cached at loc.
	ExactPresent(loc Location, name, version string) (path string, ok bool)
	// NamePresent reports whether any version of name is cached at loc.
	NamePresent(loc Location, name string) bool
}

// Resolver scores and selects among cache locations.
type Resolver struct {
	candidates []Candidate
}

// New builds the standard four candidates rooted at the user cache, global
// cache, and the given project's local cache/links directories.
func New(projectPath string) *Resolver {
	return &Resolver{candidates: []Candidate{
		{Location: LocationUserCache, Root: env.UserCacheRoot()},
		{Location: LocationGlobalCache, Root: env.GlobalCacheRoot},
		{Location: LocationProjectCache, Root: env.ProjectCacheDir(projectPath)},
		{Location: LocationProjectLinks, Root: env.ProjectLinksDir(projectPath)},
	}}
}

// Candidates returns the resolver's candidate locations, in priority order.
func (r *Resolver) Candidates() []Candidate {
	out := make([]Candidate, len(r.candidates))
	copy(out, r.candidates)
	return out
}

// Restrict returns a new Resolver considering only the given locations,
// preserving priority order. It is how the cache store's placement
// strategies (User-only/Global-only/Hybrid/Project-local) narrow the
// general four-location scoring down to the locations a strategy permits.
func (r *Resolver) Restrict(locs ...Location) *Resolver {
	allow := make(map[Location]bool, len(locs))
	for _, l := range locs {
		allow[l] = true
	}
	out := &Resolver{}
	for _, c := range r.candidates {
		if allow[c.Location] {
			out.candidates = append(out.candidates, c)
		}
	}
	return out
}

// PathFor returns the path a package would occupy at loc, without implying
// it exists.
func (r *Resolver) PathFor(loc Location, name, version string) string {
	for _, c := range r.candidates {
		if c.Location == loc {
			return filepath.Join(c.Root, name, version)
		}
	}
	return ""
}

// isWritable probes writability by attempting to create and remove a probe
// file, creating the directory if necessary. A location that cannot be
// created/written contributes score -inf, ruling it out entirely.
func isWritable(root string) bool {
	if err := os.MkdirAll(root, 0755); err != nil {
		return false
	}
	probe := filepath.Join(root, ".paker-write-probe")
	f, err := os.OpenFile(probe, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return false
	}
	f.Close()
	os.Remove(probe)
	return true
}

// availableGB returns the available space at root in gigabytes, or 0 if it
// cannot be determined (e.g. unsupported filesystem).
func availableGB(root string) float64 {
	var stat unix.Statfs_t
	if err := unix.Statfs(root, &stat); err != nil {
		return 0
	}
	avail := stat.Bavail * uint64(stat.Bsize)
	return float64(avail) / (1 << 30)
}

const negInf = -1 << 30

// score computes: base_priority(location) + min(50, available_GB_at(location))
// + 20·is_user_home(location) + 30·package_exists_there(name).
func (r *Resolver) score(c Candidate, pc PresenceChecker, name string) float64 {
	if !isWritable(c.Root) {
		return negInf
	}
	s := float64(basePriority(c.Location))
	gb := availableGB(c.Root)
	if gb > 50 {
		gb = 50
	}
	s += gb
	if c.Location == LocationUserCache {
		s += 20
	}
	if pc != nil && pc.NamePresent(c.Location, name) {
		s += 30
	}
	return s
}

// SelectForInstall selects a location for a new install: if the exact
// (name, version) pair is already present somewhere, that location is
// returned immediately (highest-priority match wins ties); otherwise the
// highest-scoring writable candidate is returned.
func (r *Resolver) SelectForInstall(pc PresenceChecker, name, version string) (Location, string, bool) {
	if pc != nil {
		for _, c := range r.candidates {
			if path, ok := pc.ExactPresent(c.Location, name, version); ok {
				return c.Location, path, true
			}
		}
	}

	bestScore := negInf - 1.0
	var best Candidate
	found := false
	for _, c := range r.candidates {
		s := r.score(c, pc, name)
		if s > bestScore {
			bestScore = s
			best = c
			found = true
		}
	}
	if !found || bestScore <= negInf {
		return 0, "", false
	}
	return best.Location, r.PathFor(best.Location, name, version), true
}

// PathStats reports per-location statistics. Package/byte counts come from
// the LocationStatsProvider since the resolver does not itself track cache
// contents.
type PathStats struct {
	TotalPackages  int
	TotalBytes     int64
	AvailableBytes int64
	LastCleanup    time.Time
}

// LocationStatsProvider supplies the package/byte counts the resolver
// cannot derive on its own.
type LocationStatsProvider interface {
	PackageCount(loc Location) int
	TotalBytes(loc Location) int64
}

// Stats computes PathStats for loc.
func (r *Resolver) Stats(loc Location, provider LocationStatsProvider, lastCleanup time.Time) PathStats {
	var root string
	for _, c := range r.candidates {
		if c.Location == loc {
			root = c.Root
		}
	}
	var stat unix.Statfs_t
	var avail int64
	if err := unix.Statfs(root, &stat); err == nil {
		avail = int64(stat.Bavail * uint64(stat.Bsize))
	}
	ps := PathStats{AvailableBytes: avail, LastCleanup: lastCleanup}
	if provider != nil {
		ps.TotalPackages = provider.PackageCount(loc)
		ps.TotalBytes = provider.TotalBytes(loc)
	}
	return ps
}
