package graph

import (
	"sort"
	"testing"
)

func addChain(t *testing.T, g *Graph, names ...string) {
	t.Helper()
	for _, n := range names {
		if err := g.AddNode(&Node{Name: n, Version: "1.0.0"}); err != nil {
			t.Fatalf("AddNode(%q): %v", n, err)
		}
	}
	for i := 0; i+1 < len(names); i++ {
		if err := g.AddEdge(names[i], names[i+1], false); err != nil {
			t.Fatalf("AddEdge(%q,%q): %v", names[i], names[i+1], err)
		}
	}
}

func TestAddEdgeRequiresExistingNodes(t *testing.T) {
	g := New(0)
	g.AddNode(&Node{Name: "a"})
	if err := g.AddEdge("a", "missing", false); err == nil {
		t.Fatal("expected error adding edge to nonexistent node")
	}
}

func TestAddEdgeRejectsSelfLoop(t *testing.T) {
	g := New(0)
	g.AddNode(&Node{Name: "a"})
	if err := g.AddEdge("a", "a", false); err == nil {
		t.Fatal("expected error on self-loop")
	}
}

func TestAddNodeRejectsDuplicate(t *testing.T) {
	g := New(0)
	g.AddNode(&Node{Name: "a"})
	if err := g.AddNode(&Node{Name: "a"}); err == nil {
		t.Fatal("expected error on duplicate node")
	}
}

func TestTopologicalSortOrdersDependenciesFirst(t *testing.T) {
	g := New(0)
	addChain(t, g, "app", "lib", "core")

	order, err := g.TopologicalSort()
	if err != nil {
		t.Fatal(err)
	}
	pos := make(map[string]int)
	for i, n := range order {
		pos[n] = i
	}
	if pos["core"] > pos["lib"] || pos["lib"] > pos["app"] {
		t.Fatalf("order = %v, want core before lib before app", order)
	}
}

func TestDetectCyclesFindsCycle(t *testing.T) {
	g := New(0)
	g.AddNode(&Node{Name: "a"})
	g.AddNode(&Node{Name: "b"})
	g.AddNode(&Node{Name: "c"})
	g.AddEdge("a", "b", false)
	g.AddEdge("b", "c", false)
	g.AddEdge("c", "a", false)

	cycles := g.DetectCycles()
	if len(cycles) != 1 {
		t.Fatalf("len(cycles) = %d, want 1", len(cycles))
	}
	sort.Strings(cycles[0])
	want := []string{"a", "b", "c"}
	if len(cycles[0]) != 3 {
		t.Fatalf("cycle = %v, want 3 members", cycles[0])
	}
	for i, n := range want {
		if cycles[0][i] != n {
			t.Fatalf("cycle = %v, want %v", cycles[0], want)
		}
	}
	if !g.HasCycle() {
		t.Fatal("HasCycle() = false, want true")
	}
}

func TestDetectCyclesEmptyOnDAG(t *testing.T) {
	g := New(0)
	addChain(t, g, "app", "lib", "core")
	if cycles := g.DetectCycles(); len(cycles) != 0 {
		t.Fatalf("cycles = %v, want none", cycles)
	}
}

func TestReachableTransitive(t *testing.T) {
	g := New(0)
	addChain(t, g, "app", "lib", "core")
	reach := g.Reachable("app")
	sort.Strings(reach)
	if len(reach) != 2 || reach[0] != "core" || reach[1] != "lib" {
		t.Fatalf("Reachable(app) = %v, want [core lib]", reach)
	}
}

func TestAllPathsEnumeratesDiamond(t *testing.T) {
	g := New(0)
	for _, n := range []string{"app", "left", "right", "base"} {
		g.AddNode(&Node{Name: n})
	}
	g.AddEdge("app", "left", false)
	g.AddEdge("app", "right", false)
	g.AddEdge("left", "base", false)
	g.AddEdge("right", "base", false)

	paths := g.AllPaths("app", "base")
	if len(paths) != 2 {
		t.Fatalf("len(paths) = %d, want 2: %v", len(paths), paths)
	}
}

func TestRemoveNodeDropsEdges(t *testing.T) {
	g := New(0)
	addChain(t, g, "app", "lib", "core")
	g.RemoveNode("lib")
	if g.HasNode("lib") {
		t.Fatal("lib should be removed")
	}
	if deps := g.Dependencies("app"); len(deps) != 0 {
		t.Fatalf("Dependencies(app) = %v, want none", deps)
	}
}

func TestIsInferredTracksHeuristicEdges(t *testing.T) {
	g := New(0)
	g.AddNode(&Node{Name: "app"})
	g.AddNode(&Node{Name: "lib"})
	g.AddEdge("app", "lib", true)
	if !g.IsInferred("app", "lib") {
		t.Fatal("expected edge to be marked inferred")
	}
}

func TestLRUDemotesLeastRecentlyTouched(t *testing.T) {
	g := New(2)
	g.AddNode(&Node{Name: "a"})
	g.AddNode(&Node{Name: "b"})
	g.AddNode(&Node{Name: "c"})
	// a was touched first and never again, so it should have been demoted
	// once c pushed the hot set past its cap of 2.
	if g.IsHot("a") {
		t.Fatal("a should have been demoted from the hot set")
	}
	if !g.IsHot("b") || !g.IsHot("c") {
		t.Fatal("b and c should still be hot")
	}
}
