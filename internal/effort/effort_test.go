package effort_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"testweaver/internal/effort"
	"testweaver/internal/evidence"
	"testweaver/internal/model"
)

type scriptedRunner struct {
	call  int
	codes []int // cycled
}

func (r *scriptedRunner) Run(_ context.Context, _ model.TestNode) ([]byte, []byte, int, bool, error) {
	code := r.codes[r.call%len(r.codes)]
	r.call++
	return nil, nil, code, false, nil
}

func newStore(t *testing.T) *evidence.Store {
	t.Helper()
	return evidence.Load(filepath.Join(t.TempDir(), "store.json"), 0.9, 0.9)
}

// Boundary: all tests pass initial, converge mode -> every test true_pass,
// zero reruns. No SPRT evaluation is made for these tests; their decision is
// recorded as continue.
func TestRun_ConvergeAllPassed_NoReruns(t *testing.T) {
	store := newStore(t)
	runner := &scriptedRunner{codes: []int{0}}
	nodes := map[model.TestId]model.TestNode{"t1": {Id: "t1", Executable: "true"}}
	initial := []model.TestResult{{Id: "t1", Status: model.StatusPassed}}

	report := effort.Run(context.Background(), store, runner, nodes, initial, effort.Options{
		EffortMode: model.EffortConverge, MaxReruns: 5, MinReliability: 0.9, Significance: 0.9, Margin: 0.1,
	})

	assert.Equal(t, 0, report.TotalReruns)
	assert.Equal(t, model.ClassificationTruePass, report.Results["t1"].Classification)
	assert.Equal(t, model.SPRTContinue, report.Results["t1"].SPRTDecision) // non-targeted passes are recorded as not re-evaluated
}

// E4-flavored: an initially failed test that flips pass/fail under rerun
// with insufficient budget ends undecided.
func TestRun_Converge_MaxRerunsExhausted_Undecided(t *testing.T) {
	store := newStore(t)
	runner := &scriptedRunner{codes: []int{1, 0}} // alternates fail/pass
	nodes := map[model.TestId]model.TestNode{"t1": {Id: "t1", Executable: "true"}}
	initial := []model.TestResult{{Id: "t1", Status: model.StatusFailed}}

	report := effort.Run(context.Background(), store, runner, nodes, initial, effort.Options{
		EffortMode: model.EffortConverge, MaxReruns: 5, MinReliability: 0.9, Significance: 0.95, Margin: 0.1,
	})

	require.Contains(t, report.Results, model.TestId("t1"))
	assert.Equal(t, model.ClassificationUndecided, report.Results["t1"].Classification)
	assert.Equal(t, 5, report.Results["t1"].Reruns)
}

func TestRun_Converge_AcceptsFlake(t *testing.T) {
	store := newStore(t)
	runner := &scriptedRunner{codes: []int{0}} // always passes on rerun
	nodes := map[model.TestId]model.TestNode{"t1": {Id: "t1", Executable: "true"}}
	initial := []model.TestResult{{Id: "t1", Status: model.StatusFailed}}

	report := effort.Run(context.Background(), store, runner, nodes, initial, effort.Options{
		EffortMode: model.EffortConverge, MaxReruns: 40, MinReliability: 0.9, Significance: 0.9, Margin: 0.1,
	})

	assert.Equal(t, model.ClassificationFlake, report.Results["t1"].Classification)
	assert.Equal(t, model.SPRTAccept, report.Results["t1"].SPRTDecision)
}

func TestRun_Max_TargetsEveryTest(t *testing.T) {
	store := newStore(t)
	runner := &scriptedRunner{codes: []int{0}}
	nodes := map[model.TestId]model.TestNode{
		"t1": {Id: "t1", Executable: "true"},
		"t2": {Id: "t2", Executable: "true"},
	}
	initial := []model.TestResult{
		{Id: "t1", Status: model.StatusPassed},
		{Id: "t2", Status: model.StatusPassed},
	}

	report := effort.Run(context.Background(), store, runner, nodes, initial, effort.Options{
		EffortMode: model.EffortMax, MaxReruns: 3, MinReliability: 0.9, Significance: 0.5, Margin: 0.1,
	})

	assert.Contains(t, report.Results, model.TestId("t1"))
	assert.Contains(t, report.Results, model.TestId("t2"))
}

func TestRun_MaxRerunsZero_NoReruns(t *testing.T) {
	store := newStore(t)
	runner := &scriptedRunner{codes: []int{0}}
	nodes := map[model.TestId]model.TestNode{"t1": {Id: "t1", Executable: "true"}}
	initial := []model.TestResult{{Id: "t1", Status: model.StatusFailed}}

	report := effort.Run(context.Background(), store, runner, nodes, initial, effort.Options{
		EffortMode: model.EffortConverge, MaxReruns: 0, MinReliability: 0.9, Significance: 0.9, Margin: 0.1,
	})

	assert.Equal(t, 0, report.TotalReruns)
	assert.Equal(t, model.ClassificationUndecided, report.Results["t1"].Classification)
}
