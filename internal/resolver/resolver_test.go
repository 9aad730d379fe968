package resolver

import (
	"os"
	"path/filepath"
	"testing"

	paker "github.com/Cyxuan0311/Paker-sub001"
	"github.com/Cyxuan0311/Paker-sub001/internal/graph"
	"github.com/Cyxuan0311/Paker-sub001/internal/parser"
)

type fixedLocator map[string]string

func (f fixedLocator) PackageDir(name, version string) (string, error) {
	dir, ok := f[name]
	if !ok {
		return "", os.ErrNotExist
	}
	return dir, nil
}

type fakeLister map[string][]string

func (f fakeLister) ListVersions(name string) ([]string, error) { return f[name], nil }

type recordingReporter struct {
	calls []string
}

func (r *recordingReporter) ReportVersionConflict(name string, constraints map[string]paker.Constraint) error {
	r.calls = append(r.calls, name)
	return paker.Errorf(paker.KindConstraintUnsatisfiable, "test.conflict", "forced conflict for %q", name)
}

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "requirements.txt"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestResolveWalksDependenciesAndPicksHighestVersion(t *testing.T) {
	g := graph.New(64)
	appDir := writeManifest(t, "libfoo\n")
	fooDir := writeManifest(t, "")
	loc := fixedLocator{"app": appDir, "libfoo": fooDir}
	p := parser.New(g, loc, parser.Config{})

	r := New(g, p, nil, map[string]string{"app": "https://example.com/app", "libfoo": "https://example.com/libfoo"}, nil, Config{})
	r.SetVersionLister(fakeLister{"app": {"1.0.0", "1.2.0"}, "libfoo": {"0.9.0", "1.0.0"}})

	if err := r.Resolve("app", "*"); err != nil {
		t.Fatal(err)
	}
	appNode := g.GetNode("app")
	if appNode == nil || appNode.Version != "1.2.0" {
		t.Fatalf("got app node %+v, want version 1.2.0", appNode)
	}
	fooNode := g.GetNode("libfoo")
	if fooNode == nil || fooNode.Version != "1.0.0" {
		t.Fatalf("got libfoo node %+v, want version 1.0.0", fooNode)
	}
}

func TestResolveReturnsErrorOnUnsatisfiableConstraintAndReportsConflict(t *testing.T) {
	g := graph.New(64)
	appDir := writeManifest(t, "")
	loc := fixedLocator{"app": appDir}
	p := parser.New(g, loc, parser.Config{})

	reporter := &recordingReporter{}
	r := New(g, p, reporter, map[string]string{"app": "https://example.com/app"}, nil, Config{})
	r.SetVersionLister(fakeLister{"app": {"1.0.0"}})

	if err := r.Resolve("app", ">=2.0.0"); err == nil {
		t.Fatal("expected an unsatisfiable-constraint error")
	}
	if len(reporter.calls) != 1 || reporter.calls[0] != "app" {
		t.Fatalf("got reporter calls %v, want one call for app", reporter.calls)
	}
}

func TestRegisterSourceAddsRuntimeEntry(t *testing.T) {
	g := graph.New(64)
	p := parser.New(g, fixedLocator{}, parser.Config{})
	r := New(g, p, nil, nil, nil, Config{})

	if _, ok := r.SourceURL("newpkg"); ok {
		t.Fatal("expected no source URL before registration")
	}
	r.RegisterSource("newpkg", "https://example.com/newpkg")
	url, ok := r.SourceURL("newpkg")
	if !ok || url != "https://example.com/newpkg" {
		t.Fatalf("got (%q, %v), want the registered URL", url, ok)
	}
}

func TestResolveUsesAlreadyInstalledVersionWithoutLister(t *testing.T) {
	g := graph.New(64)
	if err := g.AddNode(&graph.Node{Name: "app", Version: "1.0.0"}); err != nil {
		t.Fatal(err)
	}
	appDir := writeManifest(t, "")
	loc := fixedLocator{"app": appDir}
	p := parser.New(g, loc, parser.Config{})

	r := New(g, p, nil, nil, nil, Config{})
	if err := r.Resolve("app", "*"); err != nil {
		t.Fatal(err)
	}
	node := g.GetNode("app")
	if node.Version != "1.0.0" {
		t.Fatalf("got version %q, want 1.0.0", node.Version)
	}
}

func TestRemotesExtendBuiltinRepositoryMap(t *testing.T) {
	g := graph.New(64)
	p := parser.New(g, fixedLocator{}, parser.Config{})
	r := New(g, p, nil, map[string]string{"app": "https://builtin.example.com/app"},
		[]Remote{{Name: "extra", URL: "https://remote.example.com/extra"}}, Config{})

	if url, ok := r.SourceURL("app"); !ok || url != "https://builtin.example.com/app" {
		t.Fatalf("got (%q, %v) for builtin app", url, ok)
	}
	if url, ok := r.SourceURL("extra"); !ok || url != "https://remote.example.com/extra" {
		t.Fatalf("got (%q, %v) for remote extra", url, ok)
	}
}
