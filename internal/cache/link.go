package cache

import (
	"os"
	"path/filepath"

	"github.com/Cyxuan0311/Paker-sub001/internal/env"
	"golang.org/x/xerrors"
)

// LinkIntoProject creates or replaces a symbolic link at
// <project>/.paker/links/<name> pointing at the cached path for (name,
// version). Any previous link at the target is removed first, so the
// visible effect is atomic: a reader never observes a half-created link.
func (s *Store) LinkIntoProject(name, version, projectPath string) (bool, error) {
	target, ok := s.CachedPath(name, version)
	if !ok {
		return false, nil
	}
	linksDir := env.ProjectLinksDir(projectPath)
	if err := os.MkdirAll(linksDir, 0755); err != nil {
		return false, xerrors.Errorf("cache.LinkIntoProject: %w", err)
	}
	linkPath := filepath.Join(linksDir, name)
	if _, err := os.Lstat(linkPath); err == nil {
		if err := os.Remove(linkPath); err != nil {
			return false, xerrors.Errorf("cache.LinkIntoProject: removing stale link: %w", err)
		}
	}
	if err := os.Symlink(target, linkPath); err != nil {
		return false, xerrors.Errorf("cache.LinkIntoProject: %w", err)
	}
	return true, nil
}

// UnlinkFromProject removes <project>/.paker/links/<name>, if present.
func (s *Store) UnlinkFromProject(name, projectPath string) (bool, error) {
	linkPath := filepath.Join(env.ProjectLinksDir(projectPath), name)
	if _, err := os.Lstat(linkPath); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, xerrors.Errorf("cache.UnlinkFromProject: %w", err)
	}
	if err := os.Remove(linkPath); err != nil {
		return false, xerrors.Errorf("cache.UnlinkFromProject: %w", err)
	}
	return true, nil
}
