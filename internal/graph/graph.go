// Package graph implements an in-memory directed graph of packages with
// version constraints, built on gonum's graph/simple and graph/topo
// packages. Adjacency lives in gonum's graph; name↔ID lookups, per-node
// data, and inferred-edge marks are kept in maps keyed by name or ID.
package graph

import (
	"container/list"
	"sync"

	paker "github.com/Cyxuan0311/Paker-sub001"
	"gonum.org/v1/gonum/graph/simple"
)

// Node is one dependency-graph vertex.
type Node struct {
	Name          string
	Version       string
	Source        string
	Dependencies  map[string]bool
	Constraints   map[string]paker.Constraint
	Installed     bool
	InstallPath   string
	ParseHash     string
}

// Graph is a directed graph over dependency nodes. The zero value is not
// usable; construct with New.
type Graph struct {
	mu    sync.RWMutex
	g     *simple.DirectedGraph
	ids   map[string]int64
	names map[int64]string
	data  map[int64]*Node
	next  int64

	// inferred marks edges produced by the structural-heuristic manifest
	// reader so the conflict engine can deprioritise them.
	inferred map[edgeKey]bool

	lru *lruIndex
}

type edgeKey struct{ from, to int64 }

// New returns an empty graph. maxCached bounds the "hot" LRU set of
// recently-touched nodes; 0 means unbounded (no demotion).
func New(maxCached int) *Graph {
	return &Graph{
		g:        simple.NewDirectedGraph(),
		ids:      make(map[string]int64),
		names:    make(map[int64]string),
		data:     make(map[int64]*Node),
		inferred: make(map[edgeKey]bool),
		lru:      newLRUIndex(maxCached),
	}
}

// HasNode reports whether name exists in the graph.
func (gr *Graph) HasNode(name string) bool {
	gr.mu.RLock()
	defer gr.mu.RUnlock()
	_, ok := gr.ids[name]
	return ok
}

// AddNode adds a new node for name, failing with KindAlreadyExists if one
// is already present — per invariant (ii), at most one node per name may
// exist at a time; callers that want to replace an existing node's data
// should go through the conflict engine first.
func (gr *Graph) AddNode(n *Node) error {
	gr.mu.Lock()
	defer gr.mu.Unlock()
	if _, ok := gr.ids[n.Name]; ok {
		return paker.Errorf(paker.KindAlreadyExists, "graph.AddNode", "node %q already exists", n.Name)
	}
	id := gr.next
	gr.next++
	gr.ids[n.Name] = id
	gr.names[id] = n.Name
	if n.Dependencies == nil {
		n.Dependencies = make(map[string]bool)
	}
	if n.Constraints == nil {
		n.Constraints = make(map[string]paker.Constraint)
	}
	gr.data[id] = n
	gr.g.AddNode(simple.Node(id))
	gr.lru.touch(id)
	return nil
}

// UpsertNode adds n if absent, or overwrites the existing node's data
// in-place (preserving its adjacency) if present. It exists for the
// resolver, which legitimately needs to update a node's resolved version
// after the conflict engine has approved the change.
func (gr *Graph) UpsertNode(n *Node) {
	gr.mu.Lock()
	defer gr.mu.Unlock()
	id, ok := gr.ids[n.Name]
	if !ok {
		gr.mu.Unlock()
		gr.AddNode(n)
		gr.mu.Lock()
		return
	}
	if n.Dependencies == nil {
		n.Dependencies = make(map[string]bool)
	}
	if n.Constraints == nil {
		n.Constraints = make(map[string]paker.Constraint)
	}
	gr.data[id] = n
	gr.lru.touch(id)
}

// RemoveNode removes name and every edge touching it.
func (gr *Graph) RemoveNode(name string) {
	gr.mu.Lock()
	defer gr.mu.Unlock()
	id, ok := gr.ids[name]
	if !ok {
		return
	}
	gr.g.RemoveNode(id)
	delete(gr.ids, name)
	delete(gr.names, id)
	delete(gr.data, id)
	gr.lru.remove(id)
	for k := range gr.inferred {
		if k.from == id || k.to == id {
			delete(gr.inferred, k)
		}
	}
}

// GetNode returns the node data for name, or nil if it does not exist.
func (gr *Graph) GetNode(name string) *Node {
	gr.mu.RLock()
	defer gr.mu.RUnlock()
	id, ok := gr.ids[name]
	if !ok {
		return nil
	}
	gr.lru.touch(id)
	return gr.data[id]
}

// AddEdge adds a dependency edge from -> to (from depends on to). Per
// invariant (i), to must already exist; per the "no self-loops" invariant,
// from == to is rejected.
func (gr *Graph) AddEdge(from, to string, inferred bool) error {
	gr.mu.Lock()
	defer gr.mu.Unlock()
	if from == to {
		return paker.Errorf(paker.KindConflict, "graph.AddEdge", "self-loop on %q", from)
	}
	fid, ok := gr.ids[from]
	if !ok {
		return paker.Errorf(paker.KindNotFound, "graph.AddEdge", "node %q does not exist", from)
	}
	tid, ok := gr.ids[to]
	if !ok {
		return paker.Errorf(paker.KindNotFound, "graph.AddEdge", "edge target %q does not exist", to)
	}
	gr.g.SetEdge(gr.g.NewEdge(simple.Node(fid), simple.Node(tid)))
	if n := gr.data[fid]; n != nil {
		n.Dependencies[to] = true
	}
	if inferred {
		gr.inferred[edgeKey{fid, tid}] = true
	} else {
		delete(gr.inferred, edgeKey{fid, tid})
	}
	return nil
}

// RemoveEdge removes the from -> to edge, if present.
func (gr *Graph) RemoveEdge(from, to string) {
	gr.mu.Lock()
	defer gr.mu.Unlock()
	fid, ok1 := gr.ids[from]
	tid, ok2 := gr.ids[to]
	if !ok1 || !ok2 {
		return
	}
	gr.g.RemoveEdge(fid, tid)
	if n := gr.data[fid]; n != nil {
		delete(n.Dependencies, to)
	}
	delete(gr.inferred, edgeKey{fid, tid})
}

// IsInferred reports whether the from -> to edge was produced by the
// structural-heuristic fallback reader, rather than a real manifest parse.
func (gr *Graph) IsInferred(from, to string) bool {
	gr.mu.RLock()
	defer gr.mu.RUnlock()
	fid, ok1 := gr.ids[from]
	tid, ok2 := gr.ids[to]
	if !ok1 || !ok2 {
		return false
	}
	return gr.inferred[edgeKey{fid, tid}]
}

// Dependencies returns the direct dependency names of name.
func (gr *Graph) Dependencies(name string) []string {
	gr.mu.RLock()
	defer gr.mu.RUnlock()
	id, ok := gr.ids[name]
	if !ok {
		return nil
	}
	it := gr.g.From(id)
	var out []string
	for it.Next() {
		out = append(out, gr.names[it.Node().ID()])
	}
	return out
}

// Dependents returns the names of nodes that directly depend on name.
func (gr *Graph) Dependents(name string) []string {
	gr.mu.RLock()
	defer gr.mu.RUnlock()
	id, ok := gr.ids[name]
	if !ok {
		return nil
	}
	it := gr.g.To(id)
	var out []string
	for it.Next() {
		out = append(out, gr.names[it.Node().ID()])
	}
	return out
}

// Reachable returns every node reachable from name (name excluded), via a
// plain BFS over the adjacency.
func (gr *Graph) Reachable(name string) []string {
	gr.mu.RLock()
	defer gr.mu.RUnlock()
	start, ok := gr.ids[name]
	if !ok {
		return nil
	}
	visited := map[int64]bool{start: true}
	queue := []int64{start}
	var out []string
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		it := gr.g.From(cur)
		for it.Next() {
			id := it.Node().ID()
			if visited[id] {
				continue
			}
			visited[id] = true
			out = append(out, gr.names[id])
			queue = append(queue, id)
		}
	}
	return out
}

// Clear empties the graph.
func (gr *Graph) Clear() {
	gr.mu.Lock()
	defer gr.mu.Unlock()
	gr.g = simple.NewDirectedGraph()
	gr.ids = make(map[string]int64)
	gr.names = make(map[int64]string)
	gr.data = make(map[int64]*Node)
	gr.inferred = make(map[edgeKey]bool)
	gr.next = 0
	gr.lru.clear()
}

// Size returns the number of nodes in the graph.
func (gr *Graph) Size() int {
	gr.mu.RLock()
	defer gr.mu.RUnlock()
	return len(gr.ids)
}

// Empty reports whether the graph has no nodes.
func (gr *Graph) Empty() bool { return gr.Size() == 0 }

// Names returns every node name currently in the graph.
func (gr *Graph) Names() []string {
	gr.mu.RLock()
	defer gr.mu.RUnlock()
	out := make([]string, 0, len(gr.ids))
	for name := range gr.ids {
		out = append(out, name)
	}
	return out
}

// IsHot reports whether name is still in the bounded "cached" working set;
// least-recently-accessed nodes are demoted out of it once it fills up.
func (gr *Graph) IsHot(name string) bool {
	gr.mu.RLock()
	defer gr.mu.RUnlock()
	id, ok := gr.ids[name]
	if !ok {
		return false
	}
	return gr.lru.isHot(id)
}

type lruIndex struct {
	max   int
	order *list.List
	elems map[int64]*list.Element
}

func newLRUIndex(max int) *lruIndex {
	return &lruIndex{max: max, order: list.New(), elems: make(map[int64]*list.Element)}
}

func (l *lruIndex) touch(id int64) {
	if l.max <= 0 {
		return
	}
	if e, ok := l.elems[id]; ok {
		l.order.MoveToFront(e)
		return
	}
	l.elems[id] = l.order.PushFront(id)
	for l.order.Len() > l.max {
		back := l.order.Back()
		if back == nil {
			break
		}
		l.order.Remove(back)
		delete(l.elems, back.Value.(int64))
	}
}

func (l *lruIndex) remove(id int64) {
	if e, ok := l.elems[id]; ok {
		l.order.Remove(e)
		delete(l.elems, id)
	}
}

func (l *lruIndex) isHot(id int64) bool {
	if l.max <= 0 {
		return true
	}
	_, ok := l.elems[id]
	return ok
}

func (l *lruIndex) clear() {
	l.order = list.New()
	l.elems = make(map[int64]*list.Element)
}
