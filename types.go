// Package paker implements the core package-acquisition and integrity
// subsystem for a C++ library package manager: a content-addressed cache
// with version coexistence, an asynchronous I/O engine, an incremental
// dependency resolver, conflict detection, and a version-history/rollback
// subsystem.
//
// The surrounding CLI, recommendation heuristics, and project-type
// classifier are out of scope; this package exposes operations, not a
// command line.
package paker

import (
	"strings"

	"golang.org/x/mod/semver"
)

// AnyVersion is the sentinel meaning "any version satisfies."
const AnyVersion = "*"

// PackageID identifies a package by name and version. Names are opaque
// strings unique within a repository namespace.
type PackageID struct {
	Name    string
	Version string
}

func (id PackageID) String() string {
	return id.Name + "@" + id.Version
}

// maybeV normalizes a version string to the "vX.Y.Z" form
// golang.org/x/mod/semver requires, since Paker's versions don't carry the
// leading "v" upstream projects' tags do.
func maybeV(v string) string {
	if v == "" || v == AnyVersion {
		return v
	}
	if strings.HasPrefix(v, "v") {
		return v
	}
	return "v" + v
}

// IsValidVersion reports whether v is a well-formed semver version (ignoring
// the AnyVersion sentinel, which is always considered valid).
func IsValidVersion(v string) bool {
	if v == AnyVersion {
		return true
	}
	return semver.IsValid(maybeV(v))
}

// CompareVersions orders two concrete (non-sentinel) semver versions the way
// semver.Compare does: build metadata is ignored, and a prerelease sorts
// before the unadorned release it precedes.
func CompareVersions(a, b string) int {
	return semver.Compare(maybeV(a), maybeV(b))
}

// Op is a version-constraint operator.
type Op int

const (
	OpAny Op = iota
	OpEQ
	OpGT
	OpGTE
	OpLT
	OpLTE
	OpNE
)

func (o Op) String() string {
	switch o {
	case OpEQ:
		return "="
	case OpGT:
		return ">"
	case OpGTE:
		return ">="
	case OpLT:
		return "<"
	case OpLTE:
		return "<="
	case OpNE:
		return "≠"
	default:
		return "*"
	}
}

// Constraint is a (op, version) requirement a package must satisfy.
type Constraint struct {
	Op      Op
	Version string
}

// AnyConstraint satisfies every version.
var AnyConstraint = Constraint{Op: OpAny}

// ParseConstraint parses a constraint string such as ">=1.2.3", "=2.0.0",
// "*", or a bare "1.2.3" (treated as "="). Any other string, including one
// with an unrecognized operator such as "~1.2", becomes an "=" constraint on
// the whole string, which Satisfies then matches by plain string equality;
// callers that need strictness should validate with IsValidVersion first.
func ParseConstraint(s string) Constraint {
	s = strings.TrimSpace(s)
	switch {
	case s == "" || s == AnyVersion:
		return AnyConstraint
	case strings.HasPrefix(s, ">="):
		return Constraint{Op: OpGTE, Version: strings.TrimSpace(s[2:])}
	case strings.HasPrefix(s, "<="):
		return Constraint{Op: OpLTE, Version: strings.TrimSpace(s[2:])}
	case strings.HasPrefix(s, "!=") || strings.HasPrefix(s, "≠"):
		return Constraint{Op: OpNE, Version: strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(s, "!="), "≠"))}
	case strings.HasPrefix(s, ">"):
		return Constraint{Op: OpGT, Version: strings.TrimSpace(s[1:])}
	case strings.HasPrefix(s, "<"):
		return Constraint{Op: OpLT, Version: strings.TrimSpace(s[1:])}
	case strings.HasPrefix(s, "="):
		return Constraint{Op: OpEQ, Version: strings.TrimSpace(s[1:])}
	default:
		return Constraint{Op: OpEQ, Version: s}
	}
}

// String renders the constraint back to its canonical textual form.
func (c Constraint) String() string {
	if c.Op == OpAny {
		return AnyVersion
	}
	return c.Op.String() + c.Version
}

// Satisfies reports whether version v meets the constraint, using semver
// comparison with build metadata ignored.
func (c Constraint) Satisfies(v string) bool {
	if c.Op == OpAny || v == AnyVersion {
		return true
	}
	if !IsValidVersion(v) || !IsValidVersion(c.Version) {
		return v == c.Version
	}
	cmp := CompareVersions(v, c.Version)
	switch c.Op {
	case OpEQ:
		return cmp == 0
	case OpGT:
		return cmp > 0
	case OpGTE:
		return cmp >= 0
	case OpLT:
		return cmp < 0
	case OpLTE:
		return cmp <= 0
	case OpNE:
		return cmp != 0
	default:
		return true
	}
}

// HighestSatisfying returns the highest version in candidates satisfying all
// of constraints, and true if one exists. Candidates need not be sorted.
func HighestSatisfying(candidates []string, constraints []Constraint) (string, bool) {
	best := ""
	found := false
	for _, v := range candidates {
		ok := true
		for _, c := range constraints {
			if !c.Satisfies(v) {
				ok = false
				break
			}
		}
		if !ok {
			continue
		}
		if !found || CompareVersions(v, best) > 0 {
			best = v
			found = true
		}
	}
	return best, found
}

// IsPrerelease reports whether v carries a "-prerelease" component.
func IsPrerelease(v string) bool {
	if v == AnyVersion {
		return false
	}
	return semver.Prerelease(maybeV(v)) != ""
}
