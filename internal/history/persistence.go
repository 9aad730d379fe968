package history

import (
	"encoding/json"
	"os"
	"time"

	"github.com/google/renameio"
	"golang.org/x/xerrors"
)

// documentEntry is the on-disk shape of one Entry: timestamps render as
// "YYYY-MM-DD HH:MM:SS", not unix seconds.
type documentEntry struct {
	PackageName     string   `json:"package_name"`
	OldVersion      string   `json:"old_version"`
	NewVersion      string   `json:"new_version"`
	RepositoryURL   string   `json:"repository_url"`
	Reason          string   `json:"reason"`
	User            string   `json:"user"`
	CommitHash      string   `json:"commit_hash"`
	IsRollback      bool     `json:"is_rollback"`
	BackupPath      string   `json:"backup_path"`
	BackupSizeBytes int64    `json:"backup_size_bytes"`
	AffectedFiles   []string `json:"affected_files"`
	Timestamp       string   `json:"timestamp"`
}

const timestampLayout = "2006-01-02 15:04:05"

type document struct {
	Version     int             `json:"version"`
	LastUpdated string          `json:"last_updated"`
	History     []documentEntry `json:"history"`
}

// persist writes the full log to h.path via renameio, so a crash mid-write
// never corrupts a previously valid history document. Caller must not hold
// h.mu (persist takes its own brief read of the entries).
func (h *History) persist() error {
	h.mu.Lock()
	entries := make([]Entry, len(h.entries))
	copy(entries, h.entries)
	h.mu.Unlock()

	docs := make([]documentEntry, len(entries))
	for i, e := range entries {
		docs[i] = documentEntry{
			PackageName: e.PackageName, OldVersion: e.OldVersion, NewVersion: e.NewVersion,
			RepositoryURL: e.RepositoryURL, Reason: e.Reason, User: e.User, CommitHash: e.CommitHash,
			IsRollback: e.IsRollback, BackupPath: e.BackupPath, BackupSizeBytes: e.BackupSizeBytes,
			AffectedFiles: e.AffectedFiles, Timestamp: e.Timestamp.UTC().Format(timestampLayout),
		}
	}
	doc := document{Version: documentVersion, LastUpdated: h.cfg.Clock.Now().UTC().Format(timestampLayout), History: docs}
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return xerrors.Errorf("history.persist: %w", err)
	}
	if err := renameio.WriteFile(h.path, b, 0644); err != nil {
		return xerrors.Errorf("history.persist: %w", err)
	}
	return nil
}

// Load reads h.path into memory, replacing any in-memory entries. A missing
// file is not an error: it simply leaves the log empty.
func (h *History) Load() error {
	b, err := os.ReadFile(h.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return xerrors.Errorf("history.Load: %w", err)
	}
	var doc document
	if err := json.Unmarshal(b, &doc); err != nil {
		return xerrors.Errorf("history.Load: %w", err)
	}
	entries := make([]Entry, len(doc.History))
	for i, d := range doc.History {
		ts, err := time.Parse(timestampLayout, d.Timestamp)
		if err != nil {
			return xerrors.Errorf("history.Load: parsing timestamp %q: %w", d.Timestamp, err)
		}
		entries[i] = Entry{
			PackageName: d.PackageName, OldVersion: d.OldVersion, NewVersion: d.NewVersion,
			RepositoryURL: d.RepositoryURL, Reason: d.Reason, User: d.User, CommitHash: d.CommitHash,
			IsRollback: d.IsRollback, BackupPath: d.BackupPath, BackupSizeBytes: d.BackupSizeBytes,
			AffectedFiles: d.AffectedFiles, Timestamp: ts.UTC(),
		}
	}
	h.mu.Lock()
	h.entries = entries
	h.mu.Unlock()
	return nil
}
