package orchestrator_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"testweaver/internal/evidence"
	"testweaver/internal/logging"
	"testweaver/internal/model"
	"testweaver/internal/orchestrator"
)

type scriptedRunner struct {
	exitCodes map[model.TestId]int
}

func (r *scriptedRunner) Run(_ context.Context, node model.TestNode) ([]byte, []byte, int, bool, error) {
	return nil, nil, r.exitCodes[node.Id], false, nil
}

func node(id string, deps ...string) model.TestNode {
	ids := make([]model.TestId, len(deps))
	for i, d := range deps {
		ids[i] = model.TestId(d)
	}
	return model.TestNode{Id: model.TestId(id), Assertion: "x", Executable: "true", DependsOn: ids}
}

func newStore(t *testing.T) *evidence.Store {
	t.Helper()
	return evidence.Load(filepath.Join(t.TempDir(), "store.json"), 0.99, 0.95)
}

// EffortNone with no store is the simplest path: one pass through the DAG,
// no lifecycle bookkeeping, exit code reflects the single failure.
func TestRun_EffortNone_NoStore(t *testing.T) {
	nodes := []model.TestNode{node("A"), node("B", "A")}
	runner := &scriptedRunner{exitCodes: map[model.TestId]int{"A": 0, "B": 1}}

	report, err := orchestrator.Run(context.Background(), nodes, nil, orchestrator.Deps{
		Runner: runner, Logger: logging.Nop(),
	}, orchestrator.RunOptions{Mode: model.ModeDiagnostic})
	require.NoError(t, err)

	assert.Equal(t, 2, report.Summary.Total)
	assert.Equal(t, 1, report.Summary.Passed)
	assert.Equal(t, 1, report.Summary.Failed)
	assert.Equal(t, 1, report.ExitCode)
	assert.NotEmpty(t, report.RunID)
	assert.NotEmpty(t, report.EventsHash)
}

// A failing dependency gates its dependent to dependencies_failed, which
// never contributes to the exit code on its own.
func TestRun_DependenciesFailedNeverFailsTheRun(t *testing.T) {
	nodes := []model.TestNode{node("A"), node("B", "A")}
	runner := &scriptedRunner{exitCodes: map[model.TestId]int{"A": 1, "B": 0}}

	report, err := orchestrator.Run(context.Background(), nodes, nil, orchestrator.Deps{
		Runner: runner, Logger: logging.Nop(),
	}, orchestrator.RunOptions{Mode: model.ModeDiagnostic})
	require.NoError(t, err)

	assert.Equal(t, model.StatusDependenciesFailed, report.Tests["B"].Status)
	assert.Equal(t, model.ClassificationNotEvaluated, report.Tests["B"].Classification)
	assert.Equal(t, 1, report.ExitCode) // A itself still failed
}

// With a store, a brand-new test that passes once stays in new: no stable
// classification yet, so it cannot fail the run.
func TestRun_NewTest_DoesNotFailBuild(t *testing.T) {
	store := newStore(t)
	nodes := []model.TestNode{node("A")}
	runner := &scriptedRunner{exitCodes: map[model.TestId]int{"A": 0}}

	report, err := orchestrator.Run(context.Background(), nodes, store, orchestrator.Deps{
		Runner: runner, Logger: logging.Nop(),
	}, orchestrator.RunOptions{
		Mode: model.ModeDiagnostic, MinReliability: 0.99, Significance: 0.95,
	})
	require.NoError(t, err)

	assert.Equal(t, model.LifecycleNew, report.Tests["A"].Lifecycle)
	assert.Equal(t, 0, report.ExitCode)
}

// A disabled test is synced out of the graph entirely and never dispatched.
func TestRun_DisabledTestIsSkipped(t *testing.T) {
	store := newStore(t)
	nodes := []model.TestNode{node("A"), {Id: "B", Assertion: "x", Executable: "true", Disabled: true}}
	runner := &scriptedRunner{exitCodes: map[model.TestId]int{"A": 0, "B": 1}}

	report, err := orchestrator.Run(context.Background(), nodes, store, orchestrator.Deps{
		Runner: runner, Logger: logging.Nop(),
	}, orchestrator.RunOptions{
		Mode: model.ModeDiagnostic, MinReliability: 0.99, Significance: 0.95,
	})
	require.NoError(t, err)

	_, ran := report.Tests["B"]
	assert.False(t, ran)
	assert.Equal(t, model.LifecycleDisabled, store.GetState("B"))
}

// Converge effort mode reruns a failing test up to its budget and records a
// classification; a flaky classification only fails the run under
// converge/max, not under a plain diagnostic run with no effort mode.
func TestRun_ConvergeEffort_ClassifiesFlake(t *testing.T) {
	store := newStore(t)
	// Seed five prior stable passes so the test is already "stable" before
	// this run, matching the lifecycle engine's stable-single-failure path.
	for i := 0; i < 5; i++ {
		store.RecordRun("A", true, "c0", "")
	}
	store.SetState("A", model.LifecycleStable, false)

	nodes := []model.TestNode{node("A")}
	runner := &scriptedRunner{exitCodes: map[model.TestId]int{"A": 1}}

	report, err := orchestrator.Run(context.Background(), nodes, store, orchestrator.Deps{
		Runner: runner, Logger: logging.Nop(),
	}, orchestrator.RunOptions{
		Mode: model.ModeDiagnostic, Effort: model.EffortConverge, MaxReruns: 3,
		MinReliability: 0.99, Significance: 0.95,
	})
	require.NoError(t, err)
	require.NotNil(t, report.Effort)
	_, ok := report.Effort.Results["A"]
	assert.True(t, ok)
}

func TestRun_EmptyManifest(t *testing.T) {
	report, err := orchestrator.Run(context.Background(), nil, nil, orchestrator.Deps{
		Runner: &scriptedRunner{exitCodes: map[model.TestId]int{}}, Logger: logging.Nop(),
	}, orchestrator.RunOptions{Mode: model.ModeDiagnostic})
	require.NoError(t, err)
	assert.Equal(t, 0, report.Summary.Total)
	assert.Equal(t, 0, report.ExitCode)
}
