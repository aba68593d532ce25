package dag_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"testweaver/internal/dag"
	"testweaver/internal/model"
)

func node(id string, deps ...string) model.TestNode {
	ids := make([]model.TestId, len(deps))
	for i, d := range deps {
		ids[i] = model.TestId(d)
	}
	return model.TestNode{Id: model.TestId(id), Assertion: "does a thing", Executable: "/bin/" + id, DependsOn: ids}
}

func TestBuild_TopoLeavesFirst(t *testing.T) {
	g, err := dag.Build([]model.TestNode{node("C", "B"), node("B", "A"), node("A")})
	require.NoError(t, err)

	order := g.TopoLeavesFirst()
	require.Len(t, order, 3)

	pos := make(map[model.TestId]int, 3)
	for i, id := range order {
		pos[id] = i
	}
	assert.Less(t, pos["A"], pos["B"])
	assert.Less(t, pos["B"], pos["C"])
}

func TestBuild_BFSRootsFirst_includesDisconnected(t *testing.T) {
	g, err := dag.Build([]model.TestNode{node("C", "B"), node("B", "A"), node("A"), node("D")})
	require.NoError(t, err)

	order := g.BFSRootsFirst()
	ids := make(map[model.TestId]bool, len(order))
	for _, id := range order {
		ids[id] = true
	}
	assert.Len(t, order, 4)
	assert.True(t, ids["D"])
}

func TestBuild_CycleDetected(t *testing.T) {
	_, err := dag.Build([]model.TestNode{node("A", "B"), node("B", "A")})
	require.Error(t, err)
	var gerr *dag.GraphError
	require.ErrorAs(t, err, &gerr)
	assert.ErrorIs(t, gerr, dag.ErrCycleFound)
}

func TestBuild_UnknownDependency(t *testing.T) {
	_, err := dag.Build([]model.TestNode{node("A", "missing")})
	require.Error(t, err)
	assert.ErrorIs(t, err, dag.ErrInvalidGraph)
}

func TestGraphHash_StableAcrossInsertionOrder(t *testing.T) {
	g1, err := dag.Build([]model.TestNode{node("A"), node("B", "A")})
	require.NoError(t, err)
	g2, err := dag.Build([]model.TestNode{node("B", "A"), node("A")})
	require.NoError(t, err)
	assert.Equal(t, g1.Hash(), g2.Hash())
}

func TestAncestorsAndClosure(t *testing.T) {
	g, err := dag.Build([]model.TestNode{node("C", "B"), node("B", "A"), node("A"), node("D")})
	require.NoError(t, err)

	anc := g.Ancestors("C")
	assert.ElementsMatch(t, []model.TestId{"A", "B"}, anc)

	closure := g.Closure([]model.TestId{"C"})
	assert.ElementsMatch(t, []model.TestId{"A", "B", "C"}, closure)
}

func TestRemove_PrunesEdges(t *testing.T) {
	g, err := dag.Build([]model.TestNode{node("C", "B"), node("B", "A"), node("A")})
	require.NoError(t, err)

	g2, err := g.Remove([]model.TestId{"B"})
	require.NoError(t, err)
	require.Equal(t, 2, g2.Len())
	c, ok := g2.Node("C")
	require.True(t, ok)
	assert.Empty(t, c.Test.DependsOn)
}

func TestEmptyGraph(t *testing.T) {
	g, err := dag.Build(nil)
	require.NoError(t, err)
	assert.Empty(t, g.TopoLeavesFirst())
	assert.Empty(t, g.BFSRootsFirst())
}
