package graph

// AllPaths enumerates every simple path from -> to, via depth-first search
// with a visited set on the current path. gonum's path package only finds
// shortest paths, not the full enumeration the conflict engine needs to
// explain a version clash, so this is hand-rolled.
func (gr *Graph) AllPaths(from, to string) [][]string {
	gr.mu.RLock()
	defer gr.mu.RUnlock()

	fid, ok1 := gr.ids[from]
	tid, ok2 := gr.ids[to]
	if !ok1 || !ok2 {
		return nil
	}

	var out [][]string
	visited := map[int64]bool{fid: true}
	path := []string{from}
	gr.dfsPaths(fid, tid, visited, path, &out)
	return out
}

func (gr *Graph) dfsPaths(cur, target int64, visited map[int64]bool, path []string, out *[][]string) {
	if cur == target {
		cp := make([]string, len(path))
		copy(cp, path)
		*out = append(*out, cp)
		return
	}
	it := gr.g.From(cur)
	for it.Next() {
		next := it.Node().ID()
		if visited[next] {
			continue
		}
		visited[next] = true
		gr.dfsPaths(next, target, visited, append(path, gr.names[next]), out)
		delete(visited, next)
	}
}

// PathsTo enumerates every simple path ending at to, starting from any node
// with no incoming edges (a root). Used by the conflict engine to show all
// the ways a package was pulled in.
func (gr *Graph) PathsTo(to string) [][]string {
	gr.mu.RLock()
	roots := gr.roots()
	gr.mu.RUnlock()

	var out [][]string
	for _, r := range roots {
		out = append(out, gr.AllPaths(r, to)...)
	}
	return out
}

// roots returns the names of every node with no incoming edges. Caller
// must hold gr.mu.
func (gr *Graph) roots() []string {
	var out []string
	for name, id := range gr.ids {
		if gr.g.To(id).Len() == 0 {
			out = append(out, name)
		}
	}
	return out
}
