package cache

import "github.com/Cyxuan0311/Paker-sub001/internal/pathresolver"

// PlacementStrategy is the cache-store-wide knob narrowing which of the
// path resolver's four candidate locations installs are allowed to land in.
type PlacementStrategy int

const (
	// PlacementUserOnly installs only under the user cache root.
	PlacementUserOnly PlacementStrategy = iota
	// PlacementGlobalOnly installs only under the system-wide cache root.
	PlacementGlobalOnly
	// PlacementHybrid lets the user and global cache roots compete on the
	// path resolver's score (see restrictedResolver).
	PlacementHybrid
	// PlacementProjectLocal installs only under the project's own
	// .paker/cache directory (the legacy layout).
	PlacementProjectLocal
)

func (p PlacementStrategy) String() string {
	switch p {
	case PlacementUserOnly:
		return "user-only"
	case PlacementGlobalOnly:
		return "global-only"
	case PlacementHybrid:
		return "hybrid"
	case PlacementProjectLocal:
		return "project-local"
	default:
		return "unknown"
	}
}

// restrictedResolver narrows r to the locations p permits. Hybrid keeps
// both the user and global locations in play under the path resolver's
// ordinary scoring: a non-writable user root always loses, and the user
// root's higher base priority and +20 bonus usually win, but a writable
// user root can still lose to a global root with more free space or one
// that already holds a version of the package.
func restrictedResolver(r *pathresolver.Resolver, p PlacementStrategy) *pathresolver.Resolver {
	switch p {
	case PlacementUserOnly:
		return r.Restrict(pathresolver.LocationUserCache)
	case PlacementGlobalOnly:
		return r.Restrict(pathresolver.LocationGlobalCache)
	case PlacementProjectLocal:
		return r.Restrict(pathresolver.LocationProjectCache)
	case PlacementHybrid:
		return r.Restrict(pathresolver.LocationUserCache, pathresolver.LocationGlobalCache)
	default:
		return r
	}
}
