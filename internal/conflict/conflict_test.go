package conflict

import (
	"testing"

	paker "github.com/Cyxuan0311/Paker-sub001"
	"github.com/Cyxuan0311/Paker-sub001/internal/graph"
)

func buildNode(t *testing.T, g *graph.Graph, name, version string, constraints map[string]paker.Constraint) {
	t.Helper()
	if err := g.AddNode(&graph.Node{Name: name, Version: version, Constraints: constraints}); err != nil {
		t.Fatal(err)
	}
}

func TestDetectVersionConflictsFindsIncompatibleConstraints(t *testing.T) {
	g := graph.New(64)
	buildNode(t, g, "app", "1.0.0", map[string]paker.Constraint{
		"left": paker.ParseConstraint(">=2.0.0"),
	})
	buildNode(t, g, "left", "1.0.0", map[string]paker.Constraint{
		"shared": paker.ParseConstraint(">=2.0.0"),
	})
	buildNode(t, g, "right", "1.0.0", map[string]paker.Constraint{
		"shared": paker.ParseConstraint("<2.0.0"),
	})
	buildNode(t, g, "shared", "1.5.0", nil)

	if err := g.AddEdge("app", "left", false); err != nil {
		t.Fatal(err)
	}
	if err := g.AddEdge("app", "right", false); err != nil {
		t.Fatal(err)
	}
	if err := g.AddEdge("left", "shared", false); err != nil {
		t.Fatal(err)
	}
	if err := g.AddEdge("right", "shared", false); err != nil {
		t.Fatal(err)
	}

	e := New(g, Policy{})
	conflicts := e.DetectVersionConflicts()
	found := false
	for _, c := range conflicts {
		if c.Package == "shared" && c.Kind == KindVersion {
			found = true
			if len(c.Resolutions) != 3 {
				t.Fatalf("got %d resolutions, want 3", len(c.Resolutions))
			}
		}
	}
	if !found {
		t.Fatalf("expected a version conflict on shared, got %+v", conflicts)
	}
}

func TestDetectCircularFindsCycleAndResolutionRemovesEdge(t *testing.T) {
	g := graph.New(64)
	buildNode(t, g, "a", "1.0.0", nil)
	buildNode(t, g, "b", "1.0.0", nil)
	buildNode(t, g, "c", "1.0.0", nil)
	if err := g.AddEdge("a", "b", false); err != nil {
		t.Fatal(err)
	}
	if err := g.AddEdge("b", "c", false); err != nil {
		t.Fatal(err)
	}
	if err := g.AddEdge("c", "a", false); err != nil {
		t.Fatal(err)
	}

	e := New(g, Policy{AutoResolve: true})
	conflicts := e.DetectCircular()
	if len(conflicts) != 1 {
		t.Fatalf("got %d circular conflicts, want 1", len(conflicts))
	}
	if !g.HasCycle() {
		t.Fatal("expected HasCycle true before resolution")
	}
	applied, err := e.Resolve(conflicts[0])
	if err != nil {
		t.Fatal(err)
	}
	if !applied {
		t.Fatal("expected the cycle resolution to apply under AutoResolve")
	}
	if g.HasCycle() {
		t.Fatal("expected HasCycle false after the cycle-breaking resolution")
	}
}

func TestDetectMissingFlagsEdgeWithNoNodeAndNoRepositoryURL(t *testing.T) {
	g := graph.New(64)
	buildNode(t, g, "app", "1.0.0", nil)
	buildNode(t, g, "ghostlib", "", nil)
	if err := g.AddEdge("app", "ghostlib", false); err != nil {
		t.Fatal(err)
	}
	g.RemoveNode("ghostlib")

	e := New(g, Policy{})
	conflicts := e.DetectMissing(nil)
	if len(conflicts) != 1 || conflicts[0].Package != "ghostlib" {
		t.Fatalf("got %+v, want one missing conflict for ghostlib", conflicts)
	}
}

type fakeRepo map[string]string

func (f fakeRepo) SourceURL(name string) (string, bool) {
	url, ok := f[name]
	return url, ok
}

func TestDetectMissingSkipsDependencyWithRepositoryURL(t *testing.T) {
	g := graph.New(64)
	buildNode(t, g, "app", "1.0.0", nil)
	buildNode(t, g, "ghostlib", "", nil)
	if err := g.AddEdge("app", "ghostlib", false); err != nil {
		t.Fatal(err)
	}
	g.RemoveNode("ghostlib")

	e := New(g, Policy{})
	conflicts := e.DetectMissing(fakeRepo{"ghostlib": "https://example.com/ghostlib"})
	if len(conflicts) != 0 {
		t.Fatalf("got %+v, want no conflicts when a repository URL is known", conflicts)
	}
}

func TestResolveChoiceAppliesSelectedResolution(t *testing.T) {
	g := graph.New(64)
	buildNode(t, g, "a", "1.0.0", nil)
	buildNode(t, g, "b", "1.0.0", nil)
	if err := g.AddEdge("a", "b", false); err != nil {
		t.Fatal(err)
	}
	if err := g.AddEdge("b", "a", false); err != nil {
		t.Fatal(err)
	}

	e := New(g, Policy{})
	conflicts := e.DetectCircular()
	if len(conflicts) != 1 {
		t.Fatalf("got %d conflicts, want 1", len(conflicts))
	}
	if err := e.ResolveChoice(conflicts[0], 0); err != nil {
		t.Fatal(err)
	}
	if g.HasCycle() {
		t.Fatal("expected HasCycle false after ResolveChoice(0) removed the cycle edge")
	}
}
