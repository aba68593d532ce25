package executor_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"testweaver/internal/dag"
	"testweaver/internal/executor"
	"testweaver/internal/model"
)

type scriptedRunner struct {
	exitCodes map[model.TestId]int
	calls     map[model.TestId]int
}

func (r *scriptedRunner) Run(_ context.Context, node model.TestNode) ([]byte, []byte, int, bool, error) {
	r.calls[node.Id]++
	return nil, nil, r.exitCodes[node.Id], false, nil
}

func node(id string, deps ...string) model.TestNode {
	ids := make([]model.TestId, len(deps))
	for i, d := range deps {
		ids[i] = model.TestId(d)
	}
	return model.TestNode{Id: model.TestId(id), Assertion: "x", Executable: "true", DependsOn: ids}
}

// E1: diagnostic dependency gating. C depends on B depends on A. A passes, B
// fails, C is gated to dependencies_failed.
func TestE1_DiagnosticDependencyGating(t *testing.T) {
	g, err := dag.Build([]model.TestNode{node("A"), node("B", "A"), node("C", "B")})
	require.NoError(t, err)

	runner := &scriptedRunner{exitCodes: map[model.TestId]int{"A": 0, "B": 1, "C": 0}, calls: map[model.TestId]int{}}
	results, err := executor.Run(context.Background(), g, runner, executor.Options{Mode: model.ModeDiagnostic})
	require.NoError(t, err)

	byId := map[model.TestId]model.TestResult{}
	for _, r := range results {
		byId[r.Id] = r
	}
	assert.Equal(t, model.StatusPassed, byId["A"].Status)
	assert.Equal(t, model.StatusFailed, byId["B"].Status)
	assert.Equal(t, model.StatusDependenciesFailed, byId["C"].Status)
	assert.Equal(t, 0, runner.calls["C"])
}

// E2: detection ordering + max_failures. Two roots R1, R2 both fail, shared
// leaf L passes. Execution stops after 1 failure.
func TestE2_DetectionMaxFailures(t *testing.T) {
	g, err := dag.Build([]model.TestNode{node("L"), node("R1", "L"), node("R2", "L")})
	require.NoError(t, err)

	runner := &scriptedRunner{exitCodes: map[model.TestId]int{"L": 0, "R1": 1, "R2": 1}, calls: map[model.TestId]int{}}
	results, err := executor.Run(context.Background(), g, runner, executor.Options{Mode: model.ModeDetection, MaxFailures: 1})
	require.NoError(t, err)

	failCount := 0
	for _, r := range results {
		if r.Status == model.StatusFailed {
			failCount++
		}
	}
	assert.Equal(t, 1, failCount)
	assert.Less(t, len(results), 3)
}

func TestEmptyGraph_Executor(t *testing.T) {
	g, err := dag.Build(nil)
	require.NoError(t, err)
	runner := &scriptedRunner{exitCodes: map[model.TestId]int{}, calls: map[model.TestId]int{}}
	results, err := executor.Run(context.Background(), g, runner, executor.Options{Mode: model.ModeDiagnostic})
	require.NoError(t, err)
	assert.Empty(t, results)
}
