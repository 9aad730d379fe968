// Package env captures details about the Paker environment: where the
// user-scoped and global cache roots live, and who to attribute history
// entries to.
package env

import (
	"os"
	"os/user"
	"path/filepath"
)

// GlobalCacheRoot is the system-wide cache location used by the Global-only
// and Hybrid placement strategies. It requires privilege to write on most
// systems; Paker does not attempt to elevate, it surfaces a permission
// error instead.
const GlobalCacheRoot = "/usr/local/share/paker/cache"

func userHome() (home string, ok bool) {
	home = os.Getenv("HOME")
	return home, home != ""
}

// UserCacheRoot returns the per-user cache root: $HOME/.paker/cache if $HOME
// is set, otherwise a .paker-cache directory under the working directory.
func UserCacheRoot() string {
	if home, ok := userHome(); ok {
		return filepath.Join(home, ".paker", "cache")
	}
	wd, err := os.Getwd()
	if err != nil {
		wd = "."
	}
	return filepath.Join(wd, ".paker-cache")
}

// UserCacheIndexPath returns the well-known path of the persisted cache
// index document under the user cache root.
func UserCacheIndexPath() string {
	return filepath.Join(UserCacheRoot(), "cache_index.json")
}

// ProjectDir returns the <project>/.paker directory for projectPath.
func ProjectDir(projectPath string) string {
	return filepath.Join(projectPath, ".paker")
}

// ProjectLinksDir returns <project>/.paker/links.
func ProjectLinksDir(projectPath string) string {
	return filepath.Join(ProjectDir(projectPath), "links")
}

// ProjectCacheDir returns <project>/.paker/cache (the legacy project-local
// placement strategy, and also where the parse cache lives).
func ProjectCacheDir(projectPath string) string {
	return filepath.Join(ProjectDir(projectPath), "cache")
}

// ProjectBackupsDir returns <project>/.paker/backups.
func ProjectBackupsDir(projectPath string) string {
	return filepath.Join(ProjectDir(projectPath), "backups")
}

// ProjectHistoryPath returns <project>/.paker/version_history.json.
func ProjectHistoryPath(projectPath string) string {
	return filepath.Join(ProjectDir(projectPath), "version_history.json")
}

// CurrentUser consults a user-identity variable for history attribution,
// falling back to the OS user, and finally "unknown".
func CurrentUser() string {
	if u := os.Getenv("PAKER_USER"); u != "" {
		return u
	}
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "unknown"
}
