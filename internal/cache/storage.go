package cache

import (
	"context"
	"os"
	"path/filepath"

	paker "github.com/Cyxuan0311/Paker-sub001"
	"github.com/Cyxuan0311/Paker-sub001/internal/archive"
	"github.com/Cyxuan0311/Paker-sub001/internal/asyncio"
	"golang.org/x/xerrors"
)

// StorageStrategy selects how an installed package's bytes end up on disk.
type StorageStrategy int

const (
	// ShallowClone unpacks the fetched tree as-is (the archive formats
	// Paker fetches from never carry version-control history, so this is
	// already "depth 1" in effect).
	ShallowClone StorageStrategy = iota
	// ArchiveOnly additionally strips any version-control metadata
	// directories the unpacked tree happens to contain.
	ArchiveOnly
	// Compressed repacks the installed tree into a single archive and
	// discards the expanded copy.
	Compressed
)

func (s StorageStrategy) String() string {
	switch s {
	case ShallowClone:
		return "shallow-clone"
	case ArchiveOnly:
		return "archive-only"
	case Compressed:
		return "compressed"
	default:
		return "unknown"
	}
}

// fetcher is the subset of asyncio.Engine the storage strategies need,
// narrowed so tests can substitute a fake without dragging in real workers.
type fetcher interface {
	FetchURL(url string) *asyncio.Future
}

var vcsMetadataDirs = []string{".git", ".hg", ".svn"}

// install fetches sourceURL (resolving it through gh first if it points at
// GitHub) and lays it out at dest according to strategy. dest is a
// directory for ShallowClone/ArchiveOnly, and the final archive file path
// for Compressed.
func install(ctx context.Context, aio fetcher, gh *GitHubResolver, strategy StorageStrategy, sourceURL, ref, dest string) error {
	fetchURL := sourceURL
	if gh != nil && IsGitHubSource(sourceURL) {
		link, err := gh.ArchiveLink(ctx, sourceURL, ref)
		if err != nil {
			return err
		}
		fetchURL = link
	}

	f := aio.FetchURL(fetchURL)
	res, err := f.Wait(ctx)
	if err != nil {
		return xerrors.Errorf("cache: fetching %s: %w", fetchURL, err)
	}
	if res.Status != asyncio.StatusCompleted {
		if res.Err != nil {
			return paker.Wrap(paker.KindIO, "cache.install", res.Err)
		}
		return paker.Errorf(paker.KindIO, "cache.install", "fetch of %s ended in status %v", fetchURL, res.Status)
	}

	tmpArchive := dest + ".fetch.tmp"
	if err := os.WriteFile(tmpArchive, res.Bytes, 0644); err != nil {
		return xerrors.Errorf("cache: staging fetched archive: %w", err)
	}
	defer os.Remove(tmpArchive)

	tmpTree := dest + ".tree.tmp"
	defer os.RemoveAll(tmpTree)
	if err := archive.Unpack(tmpArchive, tmpTree); err != nil {
		return xerrors.Errorf("cache: unpacking fetched archive: %w", err)
	}
	root := singleTopLevelDir(tmpTree)

	switch strategy {
	case ShallowClone:
		return finalizeMove(root, dest)
	case ArchiveOnly:
		for _, d := range vcsMetadataDirs {
			os.RemoveAll(filepath.Join(root, d))
		}
		return finalizeMove(root, dest)
	case Compressed:
		if _, err := archive.Pack(root, dest); err != nil {
			return xerrors.Errorf("cache: repacking as compressed archive: %w", err)
		}
		return nil
	default:
		return xerrors.Errorf("cache: unknown storage strategy %v", strategy)
	}
}

// singleTopLevelDir returns the lone child of tmpTree if it has exactly
// one, which unwraps the "<repo>-<sha>/" wrapper directory archive
// endpoints (GitHub's included) conventionally produce. Otherwise it
// returns tmpTree itself.
func singleTopLevelDir(tmpTree string) string {
	entries, err := os.ReadDir(tmpTree)
	if err != nil || len(entries) != 1 || !entries[0].IsDir() {
		return tmpTree
	}
	return filepath.Join(tmpTree, entries[0].Name())
}

// finalizeMove relocates src to dest, replacing anything already there. The
// cache store's at-most-once install guarantee makes this the only writer
// of dest at any given time, so a plain remove-then-rename suffices.
func finalizeMove(src, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return err
	}
	if _, err := os.Lstat(dest); err == nil {
		if err := os.RemoveAll(dest); err != nil {
			return err
		}
	}
	return os.Rename(src, dest)
}
