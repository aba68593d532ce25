// Package dag implements the immutable test dependency graph: construction
// and validation, deterministic topological and BFS orderings, ancestor and
// descendant closures, and cycle detection.
package dag

import (
	"encoding/hex"
	"sort"

	"github.com/zeebo/blake3"

	"testweaver/internal/model"
)

type edgeIndex struct {
	from int
	to   int
}

// TestGraph is an immutable, validated DAG of test nodes.
//
// It is safe for concurrent read access.
type TestGraph struct {
	byId map[model.TestId]*Node
	nodes []*Node // canonical order

	edges []edgeIndex // sorted

	outgoing [][]int // dependents, by canonical index, sorted ascending
	incoming [][]int // dependencies, by canonical index, sorted ascending
	indeg    []int   // by canonical index (count of dependencies)
	depth    []int   // by canonical index (topological depth)

	hash GraphHash
}

// Build constructs and validates a TestGraph from a flat list of nodes.
//
// Validation rejects:
//   - empty or duplicate ids
//   - depends_on referencing unknown ids
//   - duplicate edges or self-loops
//   - any cycle, direct or indirect
func Build(nodes []model.TestNode) (*TestGraph, error) {
	byId := make(map[model.TestId]*Node, len(nodes))
	ordered := make([]*Node, 0, len(nodes))

	for _, t := range nodes {
		if t.Id == "" {
			return nil, invalidf("test id is required")
		}
		if _, exists := byId[t.Id]; exists {
			return nil, invalidf("duplicate test id: %q", t.Id)
		}
		n := &Node{Id: t.Id, Test: t, DefinitionHash: computeDefHash(t)}
		byId[t.Id] = n
		ordered = append(ordered, n)
	}

	// Canonicalize: sort by definition hash primarily, id as stable tie-breaker.
	sort.Slice(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.DefinitionHash != b.DefinitionHash {
			return a.DefinitionHash < b.DefinitionHash
		}
		return a.Id < b.Id
	})
	for i, n := range ordered {
		n.canonicalIndex = i
	}

	idToIndex := make(map[model.TestId]int, len(ordered))
	for _, n := range ordered {
		idToIndex[n.Id] = n.canonicalIndex
	}

	mapped := make([]edgeIndex, 0)
	seen := make(map[edgeIndex]struct{})
	for _, n := range ordered {
		for _, dep := range n.Test.DependsOn {
			depIdx, ok := idToIndex[dep]
			if !ok {
				return nil, invalidf("test %q depends on unknown test %q", n.Id, dep)
			}
			if depIdx == n.canonicalIndex {
				return nil, invalidf("self-loop: %q -> %q", n.Id, n.Id)
			}
			pair := edgeIndex{from: depIdx, to: n.canonicalIndex}
			if _, dup := seen[pair]; dup {
				return nil, invalidf("duplicate edge: %q -> %q", dep, n.Id)
			}
			seen[pair] = struct{}{}
			mapped = append(mapped, pair)
		}
	}

	sort.Slice(mapped, func(i, j int) bool {
		a, b := mapped[i], mapped[j]
		if a.from != b.from {
			return a.from < b.from
		}
		return a.to < b.to
	})

	outgoing := make([][]int, len(ordered))
	incoming := make([][]int, len(ordered))
	indeg := make([]int, len(ordered))
	for _, e := range mapped {
		outgoing[e.from] = append(outgoing[e.from], e.to)
		incoming[e.to] = append(incoming[e.to], e.from)
		indeg[e.to]++
	}
	for i := range outgoing {
		sort.Ints(outgoing[i])
	}
	for i := range incoming {
		sort.Ints(incoming[i])
	}

	g := &TestGraph{
		byId:     byId,
		nodes:    ordered,
		edges:    mapped,
		outgoing: outgoing,
		incoming: incoming,
		indeg:    indeg,
	}

	if err := g.validateAcyclic(); err != nil {
		return nil, err
	}

	g.depth = g.computeDepth()
	g.hash = g.computeGraphHash()
	return g, nil
}

// Hash returns the stable identity for this graph.
func (g *TestGraph) Hash() GraphHash { return g.hash }

// Node returns a node by id.
func (g *TestGraph) Node(id model.TestId) (*Node, bool) {
	n, ok := g.byId[id]
	return n, ok
}

// Nodes returns the nodes in canonical order.
func (g *TestGraph) Nodes() []*Node {
	out := make([]*Node, len(g.nodes))
	copy(out, g.nodes)
	return out
}

// Len returns the number of nodes in the graph.
func (g *TestGraph) Len() int { return len(g.nodes) }

// Edges returns the dependency edges as (From, To) id pairs in canonical order.
func (g *TestGraph) Edges() []Edge {
	out := make([]Edge, 0, len(g.edges))
	for _, e := range g.edges {
		out = append(out, Edge{From: g.nodes[e.from].Id, To: g.nodes[e.to].Id})
	}
	return out
}

// Depth returns the deterministic topological depth of the given node id:
// the length of its longest dependency chain, 0 for a test with no
// dependencies.
func (g *TestGraph) Depth(id model.TestId) (int, bool) {
	n, ok := g.byId[id]
	if !ok {
		return 0, false
	}
	return g.depth[n.canonicalIndex], true
}

func (g *TestGraph) computeDepth() []int {
	depth := make([]int, len(g.nodes))
	order := g.topoOrderIndices()
	for _, u := range order {
		maxParent := 0
		for _, p := range g.incoming[u] {
			if cand := depth[p] + 1; cand > maxParent {
				maxParent = cand
			}
		}
		depth[u] = maxParent
	}
	return depth
}

func (g *TestGraph) computeGraphHash() GraphHash {
	h := blake3.New()

	writeField := func(data []byte) {
		length := uint64(len(data))
		lengthBytes := []byte{
			byte(length >> 56), byte(length >> 48), byte(length >> 40), byte(length >> 32),
			byte(length >> 24), byte(length >> 16), byte(length >> 8), byte(length),
		}
		h.Write(lengthBytes)
		h.Write(data)
	}

	writeField([]byte{byte(len(g.nodes))})
	for _, n := range g.nodes {
		writeField([]byte(n.DefinitionHash))
	}

	writeField([]byte{byte(len(g.edges))})
	for _, e := range g.edges {
		writeField([]byte{byte(e.from >> 24), byte(e.from >> 16), byte(e.from >> 8), byte(e.from)})
		writeField([]byte{byte(e.to >> 24), byte(e.to >> 16), byte(e.to >> 8), byte(e.to)})
	}

	sum := h.Sum(nil)
	return GraphHash(hex.EncodeToString(sum))
}
