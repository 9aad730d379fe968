package parser

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Cyxuan0311/Paker-sub001/internal/clock"
	"github.com/Cyxuan0311/Paker-sub001/internal/graph"
)

// dirLocator is a fixed name/version -> directory map for tests.
type dirLocator map[string]string

func (d dirLocator) PackageDir(name, version string) (string, error) {
	dir, ok := d[name]
	if !ok {
		return "", os.ErrNotExist
	}
	return dir, nil
}

func TestCmakeReaderParsesFindPackageAndPkgCheckModules(t *testing.T) {
	dir := t.TempDir()
	content := "find_package(OpenSSL REQUIRED)\n" +
		"pkg_check_modules(ZLIB REQUIRED zlib)\n"
	if err := os.WriteFile(filepath.Join(dir, "CMakeLists.txt"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	r := cmakeReader{}
	path, ok := r.detect(dir)
	if !ok {
		t.Fatal("expected detect to find CMakeLists.txt")
	}
	deps, raw, err := r.parse(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(raw) == 0 {
		t.Fatal("expected non-empty raw bytes")
	}
	want := map[string]bool{"OpenSSL": true, "zlib": true}
	if len(deps) != len(want) {
		t.Fatalf("got deps %v, want keys of %v", deps, want)
	}
	for _, d := range deps {
		if !want[d] {
			t.Fatalf("unexpected dependency %q", d)
		}
	}
}

func TestPkgConfigReaderStripsVersionConstraints(t *testing.T) {
	dir := t.TempDir()
	content := "Name: foo\nRequires: bar >= 1.2, baz\nRequires.private: qux\n"
	if err := os.WriteFile(filepath.Join(dir, "foo.pc"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	r := pkgConfigReader{}
	path, ok := r.detect(dir)
	if !ok {
		t.Fatal("expected detect to find foo.pc")
	}
	deps, _, err := r.parse(path)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]bool{"bar": true, "baz": true, "qux": true}
	if len(deps) != len(want) {
		t.Fatalf("got %v, want keys of %v", deps, want)
	}
}

func TestJSONManifestReaderReadsDependencies(t *testing.T) {
	dir := t.TempDir()
	content := `{"name":"app","dependencies":{"left-pad":"1.0.0","right-pad":"2.0.0"}}`
	if err := os.WriteFile(filepath.Join(dir, "package.json"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	r := jsonManifestReader{}
	path, ok := r.detect(dir)
	if !ok {
		t.Fatal("expected detect to find package.json")
	}
	deps, _, err := r.parse(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(deps) != 2 {
		t.Fatalf("got %v, want 2 deps", deps)
	}
}

func TestRequirementsReaderSkipsCommentsAndStripsSpecifiers(t *testing.T) {
	dir := t.TempDir()
	content := "# a comment\nrequests==2.0.0\n\nnumpy>=1.20\nscipy\n"
	if err := os.WriteFile(filepath.Join(dir, "requirements.txt"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	r := requirementsReader{}
	path, ok := r.detect(dir)
	if !ok {
		t.Fatal("expected detect to find requirements.txt")
	}
	deps, _, err := r.parse(path)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]bool{"requests": true, "numpy": true, "scipy": true}
	if len(deps) != len(want) {
		t.Fatalf("got %v, want keys of %v", deps, want)
	}
}

func TestAutotoolsReaderParsesPkgCheckModulesAndCheckLib(t *testing.T) {
	dir := t.TempDir()
	content := "PKG_CHECK_MODULES([GLIB], [glib-2.0 gobject-2.0])\n" +
		"AC_CHECK_LIB([m], [cos])\n"
	if err := os.WriteFile(filepath.Join(dir, "configure.ac"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	r := autotoolsReader{}
	path, ok := r.detect(dir)
	if !ok {
		t.Fatal("expected detect to find configure.ac")
	}
	deps, _, err := r.parse(path)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]bool{"glib-2.0": true, "gobject-2.0": true, "m": true}
	if len(deps) != len(want) {
		t.Fatalf("got %v, want keys of %v", deps, want)
	}
}

func TestStructuralFallbackReaderListsSubdirsAndMarksInferred(t *testing.T) {
	dir := t.TempDir()
	vendor := filepath.Join(dir, "third_party")
	if err := os.MkdirAll(filepath.Join(vendor, "libfoo"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(vendor, "libbar"), 0755); err != nil {
		t.Fatal(err)
	}
	r := structuralFallbackReader{}
	if !r.inferred() {
		t.Fatal("expected structuralFallbackReader.inferred() to be true")
	}
	path, ok := r.detect(dir)
	if !ok {
		t.Fatal("expected detect to find third_party")
	}
	deps, raw, err := r.parse(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(raw) == 0 {
		t.Fatal("expected non-empty raw listing")
	}
	want := map[string]bool{"libfoo": true, "libbar": true}
	if len(deps) != len(want) {
		t.Fatalf("got %v, want keys of %v", deps, want)
	}
}

func newTestParser(t *testing.T, fc *clock.Fixed, loc dirLocator) *Parser {
	t.Helper()
	g := graph.New(64)
	return New(g, loc, Config{Clock: fc, MaxCacheEntries: 8, CacheTTL: time.Hour})
}

func TestParsePackagePopulatesGraph(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "requirements.txt"), []byte("libssl\n"), 0644); err != nil {
		t.Fatal(err)
	}
	fc := clock.NewFixed(time.Unix(1000, 0))
	p := newTestParser(t, fc, dirLocator{"app": dir})
	if err := p.ParsePackage("app", "1.0.0"); err != nil {
		t.Fatal(err)
	}
	if !p.graph.HasNode("app") || !p.graph.HasNode("libssl") {
		t.Fatal("expected graph to contain app and libssl")
	}
	deps := p.graph.Dependencies("app")
	if len(deps) != 1 || deps[0] != "libssl" {
		t.Fatalf("got deps %v, want [libssl]", deps)
	}
	st := p.Stats()
	if st.FullCount != 1 || st.CacheMisses != 1 {
		t.Fatalf("got stats %+v, want one full parse and one cache miss", st)
	}
}

func TestParsePackageUnknownNameErrors(t *testing.T) {
	fc := clock.NewFixed(time.Unix(1000, 0))
	p := newTestParser(t, fc, dirLocator{})
	if err := p.ParsePackage("missing", "1.0.0"); err == nil {
		t.Fatal("expected an error for an unlocatable package")
	}
}

func TestSelectStrategyStaysFullParseAtLowFrequencyAndAfterIdle(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "requirements.txt"), []byte("libssl\n"), 0644); err != nil {
		t.Fatal(err)
	}
	fc := clock.NewFixed(time.Unix(1000, 0))
	p := newTestParser(t, fc, dirLocator{"app": dir})

	if got := p.selectStrategy("app"); got != FullParse {
		t.Fatalf("got %v before any cache entry, want FullParse", got)
	}
	if err := p.ParsePackage("app", "1.0.0"); err != nil {
		t.Fatal(err)
	}
	// Frequency after one put is 0.3, right at the Incremental/FullParse
	// boundary, so the next call still selects FullParse.
	if got := p.selectStrategy("app"); got != FullParse {
		t.Fatalf("got %v right after first parse, want FullParse", got)
	}

	fc.Advance(40 * time.Minute)
	if got := p.selectStrategy("app"); got != FullParse {
		t.Fatalf("got %v after 40 minutes idle, want FullParse", got)
	}
}

func TestIncrementalStrategyReusesCacheWhenHashUnchanged(t *testing.T) {
	dir := t.TempDir()
	manifestPath := filepath.Join(dir, "requirements.txt")
	if err := os.WriteFile(manifestPath, []byte("libssl\n"), 0644); err != nil {
		t.Fatal(err)
	}
	fc := clock.NewFixed(time.Unix(1000, 0))
	p := newTestParser(t, fc, dirLocator{"app": dir})

	if err := p.ParsePackage("app", "1.0.0"); err != nil {
		t.Fatal(err)
	}
	// Bump frequency into Incremental's band by touching the entry directly.
	p.cache.touch("app")
	p.cache.touch("app")

	if err := p.ParsePackageWithStrategy("app", "1.0.0", Incremental); err != nil {
		t.Fatal(err)
	}
	st := p.Stats()
	if st.IncrementalCount != 1 {
		t.Fatalf("got stats %+v, want one incremental hit", st)
	}
}

func TestCachedOnlyWithoutEntryErrors(t *testing.T) {
	fc := clock.NewFixed(time.Unix(1000, 0))
	p := newTestParser(t, fc, dirLocator{})
	if err := p.ParsePackageWithStrategy("app", "1.0.0", CachedOnly); err == nil {
		t.Fatal("expected an error when no cache entry exists for a cached-only parse")
	}
}

func TestParsePackagesRunsConcurrentlyWithoutDeadlock(t *testing.T) {
	loc := dirLocator{}
	names := make([]string, 0, 10)
	for i := 0; i < 10; i++ {
		dir := t.TempDir()
		name := filepath.Base(dir)
		if err := os.WriteFile(filepath.Join(dir, "requirements.txt"), []byte("libssl\n"), 0644); err != nil {
			t.Fatal(err)
		}
		loc[name] = dir
		names = append(names, name)
	}
	fc := clock.NewFixed(time.Unix(1000, 0))
	p := newTestParser(t, fc, loc)
	if err := p.ParsePackages(names, "1.0.0"); err != nil {
		t.Fatal(err)
	}
	if p.graph.Size() != len(names)+1 { // +1 for the shared libssl node
		t.Fatalf("got graph size %d, want %d", p.graph.Size(), len(names)+1)
	}
}

func TestSaveAndLoadCacheRoundTrips(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "requirements.txt"), []byte("libssl\n"), 0644); err != nil {
		t.Fatal(err)
	}
	fc := clock.NewFixed(time.Unix(1000, 0))
	p := newTestParser(t, fc, dirLocator{"app": dir})
	if err := p.ParsePackage("app", "1.0.0"); err != nil {
		t.Fatal(err)
	}

	cachePath := filepath.Join(t.TempDir(), "parsecache.json")
	if err := p.SaveCache(cachePath); err != nil {
		t.Fatal(err)
	}

	p2 := newTestParser(t, fc, dirLocator{"app": dir})
	if err := p2.LoadCache(cachePath); err != nil {
		t.Fatal(err)
	}
	if p2.cache.Size() != 1 {
		t.Fatalf("got cache size %d after load, want 1", p2.cache.Size())
	}
	entry, ok := p2.cache.get("app")
	if !ok {
		t.Fatal("expected app to be present after LoadCache")
	}
	if len(entry.Deps) != 1 || entry.Deps[0] != "libssl" {
		t.Fatalf("got deps %v after load, want [libssl]", entry.Deps)
	}
}

func TestLoadCacheMissingFileIsNotAnError(t *testing.T) {
	fc := clock.NewFixed(time.Unix(1000, 0))
	p := newTestParser(t, fc, dirLocator{})
	if err := p.LoadCache(filepath.Join(t.TempDir(), "absent.json")); err != nil {
		t.Fatalf("expected no error for a missing cache file, got %v", err)
	}
}
