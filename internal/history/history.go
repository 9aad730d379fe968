// Package history implements an append-only log of every mutation to the
// cache or the graph, archival snapshots of replaced package directories
// sharing internal/archive's tar.gz helper, and four rollback strategies
// with a safety check gating all of them. Snapshots are written by
// archive.Pack directly at their final path, and archive.Verify's "list it
// to prove it is readable" integrity check is run on a snapshot before it
// is restored.
package history

import (
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/Cyxuan0311/Paker-sub001/internal/archive"
	"github.com/Cyxuan0311/Paker-sub001/internal/clock"
	"golang.org/x/xerrors"
)

const documentVersion = 1

// Entry is one history record.
type Entry struct {
	PackageName     string
	OldVersion      string
	NewVersion      string
	RepositoryURL   string
	Reason          string
	User            string
	CommitHash      string
	IsRollback      bool
	BackupPath      string
	BackupSizeBytes int64
	AffectedFiles   []string
	Timestamp       time.Time
}

// ConstraintChecker lets the dependency-aware rollback strategy ask whether
// a candidate version still satisfies what currently depends on it, without
// internal/history importing internal/graph directly (it only needs this one
// question answered).
type ConstraintChecker interface {
	// DependentsViolatedBy reports the names of packages whose recorded
	// constraint on name would reject candidateVersion.
	DependentsViolatedBy(name, candidateVersion string) []string
}

// Config configures a History.
type Config struct {
	MaxEntries int // compaction cap; 0 means unbounded
	Log        *log.Logger
	Clock      clock.Clock
}

func (c Config) withDefaults() Config {
	if c.Log == nil {
		c.Log = log.Default()
	}
	if c.Clock == nil {
		c.Clock = clock.Real{}
	}
	return c
}

// History is the append-only mutation log plus its archival snapshots.
type History struct {
	cfg     Config
	path    string // version_history.json
	backups string // backups/ directory

	mu      sync.Mutex
	entries []Entry
}

// New constructs a History persisting to historyPath, with snapshots under
// backupsDir.
func New(historyPath, backupsDir string, cfg Config) *History {
	return &History{cfg: cfg.withDefaults(), path: historyPath, backups: backupsDir}
}

// Record appends one entry: callers append on every successful install,
// upgrade, downgrade, or rollback.
func (h *History) Record(e Entry) error {
	h.mu.Lock()
	e.Timestamp = h.cfg.Clock.Now()
	h.entries = append(h.entries, e)
	h.mu.Unlock()
	return h.persist()
}

// Snapshot archives srcDir (the prior directory tree of a package being
// replaced) into h.backups and returns the backup path and size for
// inclusion in the corresponding Entry. Shares internal/archive's Pack with
// the cache store's Compressed storage strategy — the same helper, the same
// synchronous pack-then-index step that follows an asyncio fetch in
// internal/cache's Install.
func (h *History) Snapshot(name, version, srcDir string) (backupPath string, sizeBytes int64, err error) {
	if err := os.MkdirAll(h.backups, 0755); err != nil {
		return "", 0, xerrors.Errorf("history.Snapshot: %w", err)
	}
	ts := h.cfg.Clock.Now().Unix()
	dest := filepath.Join(h.backups, archiveName(name, version, ts))
	n, err := archive.Pack(srcDir, dest)
	if err != nil {
		return "", 0, xerrors.Errorf("history.Snapshot: %w", err)
	}
	return dest, n, nil
}

func archiveName(name, version string, ts int64) string {
	return name + "_" + version + "_" + strconv.FormatInt(ts, 10) + ".tgz"
}

// Entries returns a snapshot of the full log, oldest first.
func (h *History) Entries() []Entry {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Entry, len(h.entries))
	copy(out, h.entries)
	return out
}

// Statistics reports the aggregate figures over the log: total entries,
// distinct packages touched, rollbacks performed, the timestamp range, and
// total snapshot bytes.
type Statistics struct {
	TotalEntries      int
	PackagesTouched   int
	RollbacksPerformed int
	OldestTimestamp   time.Time
	NewestTimestamp   time.Time
	TotalSnapshotBytes int64
}

func (h *History) Statistics() Statistics {
	h.mu.Lock()
	defer h.mu.Unlock()
	var st Statistics
	packages := make(map[string]bool)
	for _, e := range h.entries {
		st.TotalEntries++
		packages[e.PackageName] = true
		if e.IsRollback {
			st.RollbacksPerformed++
		}
		st.TotalSnapshotBytes += e.BackupSizeBytes
		if st.OldestTimestamp.IsZero() || e.Timestamp.Before(st.OldestTimestamp) {
			st.OldestTimestamp = e.Timestamp
		}
		if e.Timestamp.After(st.NewestTimestamp) {
			st.NewestTimestamp = e.Timestamp
		}
	}
	st.PackagesTouched = len(packages)
	return st
}

// Compact removes the oldest entries (and their snapshot files) once the log
// exceeds h.cfg.MaxEntries.
func (h *History) Compact() (removed int, err error) {
	h.mu.Lock()
	if h.cfg.MaxEntries <= 0 || len(h.entries) <= h.cfg.MaxEntries {
		h.mu.Unlock()
		return 0, nil
	}
	cut := len(h.entries) - h.cfg.MaxEntries
	dropped := h.entries[:cut]
	h.entries = h.entries[cut:]
	h.mu.Unlock()

	for _, e := range dropped {
		if e.BackupPath != "" {
			os.Remove(e.BackupPath)
		}
	}
	if err := h.persist(); err != nil {
		return len(dropped), err
	}
	return len(dropped), nil
}

// Export returns the full history document for transfer as a single,
// importable unit.
func (h *History) Export() []Entry { return h.Entries() }

// Import appends every entry from doc to the log, never overwriting
// existing entries.
func (h *History) Import(doc []Entry) error {
	h.mu.Lock()
	h.entries = append(h.entries, doc...)
	sort.Slice(h.entries, func(i, j int) bool { return h.entries[i].Timestamp.Before(h.entries[j].Timestamp) })
	h.mu.Unlock()
	return h.persist()
}

