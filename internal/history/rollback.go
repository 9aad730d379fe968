package history

import (
	"time"

	paker "github.com/Cyxuan0311/Paker-sub001"
	"github.com/Cyxuan0311/Paker-sub001/internal/archive"
	"golang.org/x/xerrors"
)

// Strategy is one of the four rollback strategies History supports.
type Strategy int

const (
	SinglePackage Strategy = iota
	AllPackages
	DependencyAware
	Selective
)

func (s Strategy) String() string {
	switch s {
	case SinglePackage:
		return "single"
	case AllPackages:
		return "all"
	case DependencyAware:
		return "dependency-aware"
	case Selective:
		return "selective"
	default:
		return "unknown"
	}
}

// Restorer is the cache-side capability rollback needs: reinstall a known
// version from its source URL, or restore one from an archived snapshot.
// The root package's Services.Restorer adapts internal/cache.Store to it,
// so internal/history does not import internal/cache directly.
type Restorer interface {
	Install(name, version, sourceURL string) (bool, error)
	RestoreSnapshot(name, version, backupPath, sourceURL string) error
}

// Result reports the outcome of rolling back one package.
type Result struct {
	Package     string
	FromVersion string
	ToVersion   string
	Err         error
}

// safetyCheck runs the four-point check a rollback must pass: the target
// entry exists, dependents' constraints are not violated (both constraint
// points answered by one DependentsViolatedBy query), and any recorded
// snapshot still verifies. force skips only the constraint query; a missing
// entry or a corrupt snapshot still fails the check.
func (h *History) safetyCheck(name, targetVersion string, checker ConstraintChecker, force bool) (*Entry, error) {
	entry := h.findByVersion(name, targetVersion)
	if entry == nil {
		return nil, paker.Errorf(paker.KindNotFound, "history.safetyCheck",
			"no history entry records %s@%s", name, targetVersion)
	}
	if !force && checker != nil {
		if violators := checker.DependentsViolatedBy(name, targetVersion); len(violators) > 0 {
			return nil, paker.Errorf(paker.KindConflict, "history.safetyCheck",
				"rolling back %s to %s would violate constraints held by %v", name, targetVersion, violators)
		}
	}
	if entry.BackupPath != "" {
		if _, err := archive.Verify(entry.BackupPath); err != nil {
			return nil, paker.Wrap(paker.KindIntegrity, "history.safetyCheck", err)
		}
	}
	return entry, nil
}

// findByVersion returns the most recent entry recording name's transition
// to targetVersion, if any.
func (h *History) findByVersion(name, targetVersion string) *Entry {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := len(h.entries) - 1; i >= 0; i-- {
		e := h.entries[i]
		if e.PackageName == name && e.NewVersion == targetVersion {
			cp := e
			return &cp
		}
	}
	return nil
}

// RollbackSingle restores name to targetVersion: restore from the recorded
// snapshot if one exists, else reinstall the version from its recorded
// source URL.
func (h *History) RollbackSingle(r Restorer, checker ConstraintChecker, name, targetVersion string, force bool) Result {
	entry, err := h.safetyCheck(name, targetVersion, checker, force)
	if err != nil {
		return Result{Package: name, ToVersion: targetVersion, Err: err}
	}

	var restoreErr error
	if entry.BackupPath != "" {
		restoreErr = r.RestoreSnapshot(name, targetVersion, entry.BackupPath, entry.RepositoryURL)
	} else {
		_, restoreErr = r.Install(name, targetVersion, entry.RepositoryURL)
	}
	if restoreErr != nil {
		return Result{Package: name, ToVersion: targetVersion, Err: xerrors.Errorf("history.RollbackSingle: %w", restoreErr)}
	}

	recordErr := h.Record(Entry{
		PackageName: name, OldVersion: entry.NewVersion, NewVersion: targetVersion,
		RepositoryURL: entry.RepositoryURL, Reason: "rollback", IsRollback: true,
	})
	return Result{Package: name, FromVersion: entry.NewVersion, ToVersion: targetVersion, Err: recordErr}
}

// RollbackAll applies RollbackSingle to every package with an entry at or
// after cutoff.
func (h *History) RollbackAll(r Restorer, checker ConstraintChecker, cutoff time.Time, force bool) []Result {
	targets := h.lastVersionBeforeCutoffPerPackage(cutoff)
	results := make([]Result, 0, len(targets))
	for name, version := range targets {
		results = append(results, h.RollbackSingle(r, checker, name, version, force))
	}
	return results
}

// lastVersionBeforeCutoffPerPackage finds, for every package touched at or
// after cutoff, the version it held immediately before cutoff — the target
// "all packages" rolls back to.
func (h *History) lastVersionBeforeCutoffPerPackage(cutoff time.Time) map[string]string {
	h.mu.Lock()
	defer h.mu.Unlock()
	touchedSince := make(map[string]bool)
	for _, e := range h.entries {
		if !e.Timestamp.Before(cutoff) {
			touchedSince[e.PackageName] = true
		}
	}
	targets := make(map[string]string)
	for _, e := range h.entries {
		if touchedSince[e.PackageName] && e.Timestamp.Before(cutoff) {
			targets[e.PackageName] = e.NewVersion
		}
	}
	return targets
}

// RollbackDependencyAware rolls name back to targetVersion after checking
// its direct dependents: if any dependent's constraint would reject
// targetVersion (and force is not set), it returns no results and an error.
// Otherwise it performs one RollbackSingle of name. Dependents are not
// rolled back, and dependents of dependents are not examined.
func (h *History) RollbackDependencyAware(r Restorer, checker ConstraintChecker, name, targetVersion string, force bool) ([]Result, error) {
	if checker != nil && !force {
		if violators := checker.DependentsViolatedBy(name, targetVersion); len(violators) > 0 {
			return nil, paker.Errorf(paker.KindConflict, "history.RollbackDependencyAware",
				"rolling back %s to %s affects %v; pass force or resolve their constraints first", name, targetVersion, violators)
		}
	}
	return []Result{h.RollbackSingle(r, checker, name, targetVersion, force)}, nil
}

// RollbackSelective applies RollbackSingle to exactly the operator-named set.
func (h *History) RollbackSelective(r Restorer, checker ConstraintChecker, targets map[string]string, force bool) []Result {
	results := make([]Result, 0, len(targets))
	for name, version := range targets {
		results = append(results, h.RollbackSingle(r, checker, name, version, force))
	}
	return results
}

// RollbackEmergency bypasses the safety check entirely (force is implied)
// and restores directly from the newest available snapshot, for the case
// where the current constraint set itself is unrecoverable.
func (h *History) RollbackEmergency(r Restorer, name string) Result {
	h.mu.Lock()
	var entry *Entry
	for i := len(h.entries) - 1; i >= 0; i-- {
		e := h.entries[i]
		if e.PackageName == name && e.BackupPath != "" {
			cp := e
			entry = &cp
			break
		}
	}
	h.mu.Unlock()
	if entry == nil {
		return Result{Package: name, Err: paker.Errorf(paker.KindNotFound, "history.RollbackEmergency",
			"no snapshot available for %s", name)}
	}
	if err := r.RestoreSnapshot(name, entry.NewVersion, entry.BackupPath, entry.RepositoryURL); err != nil {
		return Result{Package: name, ToVersion: entry.NewVersion, Err: xerrors.Errorf("history.RollbackEmergency: %w", err)}
	}
	_ = h.Record(Entry{PackageName: name, NewVersion: entry.NewVersion, Reason: "emergency rollback", IsRollback: true})
	return Result{Package: name, ToVersion: entry.NewVersion}
}
