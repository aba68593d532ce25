package regression_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"testweaver/internal/dag"
	"testweaver/internal/model"
	"testweaver/internal/regression"
)

// inMemoryGraph is a trivial CoOccurrenceGraph for tests only, not a
// product feature — the core consumes the interface and never mandates an
// on-disk co-occurrence representation.
type inMemoryGraph struct {
	commits []regression.Commit
}

func (g *inMemoryGraph) CommitsTouching(file string) []regression.Commit {
	out := make([]regression.Commit, 0)
	for _, c := range g.commits {
		for _, f := range c.Files {
			if f == file {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

func TestSelect_PicksCorrelatedTestAndClosure(t *testing.T) {
	g, err := dag.Build([]model.TestNode{
		{Id: "base", Executable: "bin/base"},
		{Id: "dependent", Executable: "bin/dependent", DependsOn: []model.TestId{"base"}},
		{Id: "unrelated", Executable: "bin/unrelated"},
	})
	require.NoError(t, err)

	nodes := g.Nodes()
	testNodes := make([]model.TestNode, len(nodes))
	for i, n := range nodes {
		testNodes[i] = n.Test
	}

	co := &inMemoryGraph{commits: []regression.Commit{
		{Sha: "c1", Date: time.Now().UTC().Add(-24 * time.Hour), Files: []string{"src/foo.go", "bin/dependent"}},
	}}

	sel := regression.Select(g, testNodes, []string{"src/foo.go"}, co, []model.TestId{"base", "dependent", "unrelated"}, regression.Options{
		MaxTestPercentage: 1, MaxHops: 2, DecayPerHop: 0.5, RecencyHalfLifeDays: 180, MinTests: 1,
		SourceExtensions: []string{"**/*.go"},
	})

	assert.Contains(t, sel.Selected, model.TestId("dependent"))
	assert.Contains(t, sel.Selected, model.TestId("base")) // dependency closure pulls in "base"
	assert.False(t, sel.FallbackUsed)
}

func TestSelect_FallsBackWhenBelowMinTests(t *testing.T) {
	g, err := dag.Build([]model.TestNode{
		{Id: "t1", Executable: "bin/t1"},
		{Id: "t2", Executable: "bin/t2"},
	})
	require.NoError(t, err)

	nodes := g.Nodes()
	testNodes := make([]model.TestNode, len(nodes))
	for i, n := range nodes {
		testNodes[i] = n.Test
	}

	co := &inMemoryGraph{}
	sel := regression.Select(g, testNodes, []string{"src/unrelated.go"}, co, []model.TestId{"t1", "t2"}, regression.Options{
		MaxTestPercentage: 0.5, MaxHops: 1, DecayPerHop: 0.5, RecencyHalfLifeDays: 180, MinTests: 3,
		SourceExtensions: []string{"**/*.go"},
	})

	assert.True(t, sel.FallbackUsed)
	assert.ElementsMatch(t, []model.TestId{"t1", "t2"}, sel.Selected)
}
