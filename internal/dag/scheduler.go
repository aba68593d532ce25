package dag

import (
	"container/heap"
	"sort"

	"testweaver/internal/model"
)

// TopoLeavesFirst returns ids in Kahn topological order: a node is emitted
// only after all of its dependencies. Ties are broken by canonical order
// (definition hash, then id), which is stable across construction.
func (g *TestGraph) TopoLeavesFirst() []model.TestId {
	order := g.topoOrderIndices()
	out := make([]model.TestId, 0, len(order))
	for _, idx := range order {
		out = append(out, g.nodes[idx].Id)
	}
	return out
}

// BFSRootsFirst returns ids via BFS starting from nodes with no dependents
// (roots), descending through dependents. Any node unreachable from a root
// (including disconnected subgraphs) is appended at the end in canonical
// order, so nothing is silently dropped.
func (g *TestGraph) BFSRootsFirst() []model.TestId {
	isRoot := make([]bool, len(g.nodes))
	for i := range g.nodes {
		isRoot[i] = len(g.outgoing[i]) == 0
	}

	visited := make([]bool, len(g.nodes))
	out := make([]model.TestId, 0, len(g.nodes))

	queue := &intMinHeap{}
	heap.Init(queue)
	for i, root := range isRoot {
		if root {
			heap.Push(queue, i)
		}
	}

	var frontier []int
	for queue.Len() > 0 {
		frontier = frontier[:0]
		for queue.Len() > 0 {
			frontier = append(frontier, heap.Pop(queue).(int))
		}
		sort.Ints(frontier)
		for _, u := range frontier {
			if visited[u] {
				continue
			}
			visited[u] = true
			out = append(out, g.nodes[u].Id)
			for _, p := range g.incoming[u] {
				if !visited[p] {
					heap.Push(queue, p)
				}
			}
		}
	}

	for i, n := range g.nodes {
		if !visited[i] {
			out = append(out, n.Id)
		}
	}
	return out
}

// DirectDependencies returns the immediate (non-transitive) dependencies of id.
func (g *TestGraph) DirectDependencies(id model.TestId) []model.TestId {
	n, ok := g.byId[id]
	if !ok {
		return nil
	}
	out := make([]model.TestId, 0, len(g.incoming[n.canonicalIndex]))
	for _, p := range g.incoming[n.canonicalIndex] {
		out = append(out, g.nodes[p].Id)
	}
	return out
}

// Ancestors returns the set of ids that id transitively depends on.
func (g *TestGraph) Ancestors(id model.TestId) []model.TestId {
	n, ok := g.byId[id]
	if !ok {
		return nil
	}
	seen := make(map[int]bool)
	var stack []int
	stack = append(stack, g.incoming[n.canonicalIndex]...)
	for len(stack) > 0 {
		u := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[u] {
			continue
		}
		seen[u] = true
		stack = append(stack, g.incoming[u]...)
	}
	return g.idsFromIndexSet(seen)
}

// Descendants returns the set of ids that transitively depend on id.
func (g *TestGraph) Descendants(id model.TestId) []model.TestId {
	n, ok := g.byId[id]
	if !ok {
		return nil
	}
	seen := make(map[int]bool)
	var stack []int
	stack = append(stack, g.outgoing[n.canonicalIndex]...)
	for len(stack) > 0 {
		u := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[u] {
			continue
		}
		seen[u] = true
		stack = append(stack, g.outgoing[u]...)
	}
	return g.idsFromIndexSet(seen)
}

// Closure returns the union of the given ids and all of their ancestors
// (dependency closure), in canonical order.
func (g *TestGraph) Closure(ids []model.TestId) []model.TestId {
	seen := make(map[int]bool)
	for _, id := range ids {
		n, ok := g.byId[id]
		if !ok {
			continue
		}
		seen[n.canonicalIndex] = true
		for _, anc := range g.Ancestors(id) {
			if an, ok := g.byId[anc]; ok {
				seen[an.canonicalIndex] = true
			}
		}
	}
	return g.idsFromIndexSet(seen)
}

func (g *TestGraph) idsFromIndexSet(set map[int]bool) []model.TestId {
	idxs := make([]int, 0, len(set))
	for idx := range set {
		idxs = append(idxs, idx)
	}
	sort.Ints(idxs)
	out := make([]model.TestId, 0, len(idxs))
	for _, idx := range idxs {
		out = append(out, g.nodes[idx].Id)
	}
	return out
}

// Remove returns a new TestGraph with the given ids removed; edges to/from
// removed nodes are pruned. Remaining nodes are rebuilt from their original
// model.TestNode definitions, with DependsOn filtered to survivors.
func (g *TestGraph) Remove(ids []model.TestId) (*TestGraph, error) {
	drop := make(map[model.TestId]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}

	kept := make([]model.TestNode, 0, len(g.nodes))
	for _, n := range g.nodes {
		if drop[n.Id] {
			continue
		}
		t := n.Test
		filteredDeps := make([]model.TestId, 0, len(t.DependsOn))
		for _, d := range t.DependsOn {
			if !drop[d] {
				filteredDeps = append(filteredDeps, d)
			}
		}
		t.DependsOn = filteredDeps
		kept = append(kept, t)
	}

	return Build(kept)
}
