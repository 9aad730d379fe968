package cache

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/Cyxuan0311/Paker-sub001/internal/archive"
	"github.com/Cyxuan0311/Paker-sub001/internal/asyncio"
)

// servePackage starts an httptest server that serves a tar.gz built from a
// single file so Store.Install has something real to fetch and unpack.
func servePackage(t *testing.T) *httptest.Server {
	t.Helper()
	srcDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(srcDir, "manifest.json"), []byte(`{}`), 0644); err != nil {
		t.Fatal(err)
	}
	archivePath := filepath.Join(t.TempDir(), "pkg.tar.gz")
	if _, err := archive.Pack(srcDir, archivePath); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(archivePath)
	if err != nil {
		t.Fatal(err)
	}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(data)
	}))
}

func testStore(t *testing.T, cfg Config) (*Store, *asyncio.Engine) {
	t.Helper()
	aio := asyncio.New(asyncio.Config{MaxWorkers: 2})
	t.Cleanup(aio.Close)
	cfg.IndexPath = filepath.Join(t.TempDir(), "cache_index.json")
	if cfg.ProjectPath == "" {
		cfg.ProjectPath = t.TempDir()
	}
	s, err := New(cfg, aio)
	if err != nil {
		t.Fatal(err)
	}
	return s, aio
}

func TestInstallThenIsCached(t *testing.T) {
	srv := servePackage(t)
	defer srv.Close()

	s, _ := testStore(t, Config{Placement: PlacementProjectLocal})
	ok, err := s.Install(context.Background(), "fmt", "9.1.0", srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("Install returned false")
	}
	if !s.IsCached("fmt", "9.1.0") {
		t.Fatal("expected fmt@9.1.0 to be cached")
	}
	path, ok := s.CachedPath("fmt", "9.1.0")
	if !ok || path == "" {
		t.Fatal("expected a cached path")
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("cached path does not exist on disk: %v", err)
	}
}

func TestInstallIsIdempotent(t *testing.T) {
	srv := servePackage(t)
	defer srv.Close()

	s, _ := testStore(t, Config{Placement: PlacementProjectLocal})
	ctx := context.Background()
	if _, err := s.Install(ctx, "fmt", "9.1.0", srv.URL); err != nil {
		t.Fatal(err)
	}
	before, _ := s.CachedPath("fmt", "9.1.0")
	if _, err := s.Install(ctx, "fmt", "9.1.0", srv.URL); err != nil {
		t.Fatal(err)
	}
	after, _ := s.CachedPath("fmt", "9.1.0")
	if before != after {
		t.Fatalf("second install changed the cached path: %q != %q", before, after)
	}
}

func TestRemoveDeletesEntryAndBytes(t *testing.T) {
	srv := servePackage(t)
	defer srv.Close()

	s, _ := testStore(t, Config{Placement: PlacementProjectLocal})
	ctx := context.Background()
	s.Install(ctx, "fmt", "9.1.0", srv.URL)
	path, _ := s.CachedPath("fmt", "9.1.0")

	if !s.Remove("fmt", "9.1.0") {
		t.Fatal("Remove returned false")
	}
	if s.IsCached("fmt", "9.1.0") {
		t.Fatal("expected fmt@9.1.0 to no longer be cached")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected cached bytes removed, stat err = %v", err)
	}
}

func TestLinkIntoProjectThenUnlink(t *testing.T) {
	srv := servePackage(t)
	defer srv.Close()

	projectPath := t.TempDir()
	s, _ := testStore(t, Config{Placement: PlacementProjectLocal, ProjectPath: projectPath})
	ctx := context.Background()
	if _, err := s.Install(ctx, "fmt", "9.1.0", srv.URL); err != nil {
		t.Fatal(err)
	}

	ok, err := s.LinkIntoProject("fmt", "9.1.0", projectPath)
	if err != nil || !ok {
		t.Fatalf("LinkIntoProject: ok=%v err=%v", ok, err)
	}
	linkPath := filepath.Join(projectPath, ".paker", "links", "fmt")
	if target, err := os.Readlink(linkPath); err != nil {
		t.Fatalf("expected a symlink at %s: %v", linkPath, err)
	} else if target == "" {
		t.Fatal("expected non-empty link target")
	}

	ok, err = s.UnlinkFromProject("fmt", projectPath)
	if err != nil || !ok {
		t.Fatalf("UnlinkFromProject: ok=%v err=%v", ok, err)
	}
	if _, err := os.Lstat(linkPath); !os.IsNotExist(err) {
		t.Fatalf("expected link removed, stat err = %v", err)
	}
}

func TestValidateIntegrityPrunesMissingPaths(t *testing.T) {
	srv := servePackage(t)
	defer srv.Close()

	s, _ := testStore(t, Config{Placement: PlacementProjectLocal})
	ctx := context.Background()
	s.Install(ctx, "fmt", "9.1.0", srv.URL)
	path, _ := s.CachedPath("fmt", "9.1.0")
	os.RemoveAll(path) // simulate bytes disappearing out from under the index

	repaired, err := s.ValidateIntegrity()
	if err != nil {
		t.Fatal(err)
	}
	if repaired != 1 {
		t.Fatalf("repaired = %d, want 1", repaired)
	}
	if s.IsCached("fmt", "9.1.0") {
		t.Fatal("expected entry pruned after integrity check")
	}
}

func TestEvictOldVersionsKeepsNewest(t *testing.T) {
	srv := servePackage(t)
	defer srv.Close()

	s, _ := testStore(t, Config{Placement: PlacementProjectLocal})
	ctx := context.Background()
	for _, v := range []string{"1.0.0", "1.1.0", "1.2.0"} {
		if _, err := s.Install(ctx, "fmt", v, srv.URL); err != nil {
			t.Fatal(err)
		}
	}
	s.EvictOldVersions(1)
	if s.IsCached("fmt", "1.0.0") || s.IsCached("fmt", "1.1.0") {
		t.Fatal("expected older versions evicted")
	}
	if !s.IsCached("fmt", "1.2.0") {
		t.Fatal("expected newest version retained")
	}
}

func TestStatisticsCountsEntries(t *testing.T) {
	srv := servePackage(t)
	defer srv.Close()

	s, _ := testStore(t, Config{Placement: PlacementProjectLocal})
	s.Install(context.Background(), "fmt", "9.1.0", srv.URL)

	stats := s.Statistics()
	if stats.TotalEntries != 1 {
		t.Fatalf("TotalEntries = %d, want 1", stats.TotalEntries)
	}
	if stats.TotalBytes <= 0 {
		t.Fatalf("TotalBytes = %d, want > 0", stats.TotalBytes)
	}
}
