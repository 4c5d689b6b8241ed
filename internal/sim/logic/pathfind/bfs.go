package pathfind

import "gridscout.ai/internal/sim/grid"

// Map is the agent's belief. Search never consults anything else.
type Map interface {
	Lookup(p grid.Pos) (grid.CellKind, bool)
}

// Traversable reports whether the agent may step onto p according to m.
// Unknown cells are never traversable.
func Traversable(m Map, p grid.Pos) bool {
	k, ok := m.Lookup(p)
	if !ok {
		return false
	}
	return k == grid.Empty || k == grid.Danger
}

// FindPath returns a shortest route from -> to over m, first element from.
// When to holds a known object the route ends on a cell adjacent to it.
// Neighbors expand in N, E, S, W order; the first route discovered wins.
func FindPath(m Map, from, to grid.Pos) ([]grid.Pos, bool) {
	if from == to {
		return []grid.Pos{from}, true
	}
	if k, ok := m.Lookup(to); ok && k == grid.ObjectCell {
		return search(m, from, func(p grid.Pos) bool { return grid.Manhattan(p, to) == 1 })
	}
	if !Traversable(m, to) {
		return nil, false
	}
	return search(m, from, func(p grid.Pos) bool { return p == to })
}

// Nearest returns the shortest route to the closest traversable cell
// satisfying match. from itself is considered first.
func Nearest(m Map, from grid.Pos, match func(grid.Pos) bool) ([]grid.Pos, bool) {
	return search(m, from, match)
}

// Distance is the BFS step count, or -1 when unreachable.
func Distance(m Map, from, to grid.Pos) int {
	path, ok := FindPath(m, from, to)
	if !ok {
		return -1
	}
	return len(path) - 1
}

func search(m Map, from grid.Pos, goal func(grid.Pos) bool) ([]grid.Pos, bool) {
	if goal(from) {
		return []grid.Pos{from}, true
	}

	parent := make(map[grid.Pos]grid.Pos, 64)
	parent[from] = from

	queue := make([]grid.Pos, 0, 64)
	queue = append(queue, from)

	for head := 0; head < len(queue); head++ {
		cur := queue[head]
		for _, np := range cur.Neighbors() {
			if _, seen := parent[np]; seen {
				continue
			}
			if !Traversable(m, np) {
				continue
			}
			parent[np] = cur
			if goal(np) {
				return unwind(parent, from, np), true
			}
			queue = append(queue, np)
		}
	}
	return nil, false
}

func unwind(parent map[grid.Pos]grid.Pos, from, end grid.Pos) []grid.Pos {
	var rev []grid.Pos
	for p := end; p != from; p = parent[p] {
		rev = append(rev, p)
	}
	rev = append(rev, from)
	out := make([]grid.Pos, len(rev))
	for i := range rev {
		out[i] = rev[len(rev)-1-i]
	}
	return out
}
