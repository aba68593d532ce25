// Package burnin drives any test left in the burning_in lifecycle state,
// after EffortRunner, to a stable/flaky decision — reusing existing
// evidence where possible before spending a fresh execution.
package burnin

import (
	"context"

	"testweaver/internal/evidence"
	"testweaver/internal/executor"
	"testweaver/internal/model"
	"testweaver/internal/sprt"
)

// Report is the outcome of one sweep: ids decided stable or flaky, and ids
// that exhausted max_iterations without a decision.
type Report struct {
	Decided   map[model.TestId]model.Lifecycle
	Undecided []model.TestId
}

// Options configures the sweep's statistical parameters and iteration cap.
type Options struct {
	MaxIterations  int
	Commit         string
	TargetHashes   map[model.TestId]string
	MinReliability float64
	Significance   float64
	Margin         float64
}

// Sweep evaluates, and if necessary reruns, every id in targets until each
// reaches a decision or max_iterations is exhausted. After each recorded
// run, store.Save() is called so progress survives a crash mid-sweep.
func Sweep(ctx context.Context, store *evidence.Store, runner executor.Runner, nodes map[model.TestId]model.TestNode, targets []model.TestId, opts Options) Report {
	report := Report{Decided: make(map[model.TestId]model.Lifecycle), Undecided: make([]model.TestId, 0)}

	for _, id := range targets {
		decided := false
		for iter := 0; iter < opts.MaxIterations; iter++ {
			hash := opts.TargetHashes[id]
			hist := historyFor(store, id, hash)
			runs, passes := countHistory(hist)

			decision := sprt.Evaluate(runs, passes, opts.MinReliability, opts.Significance, opts.Margin)
			if decision == model.SPRTAccept {
				store.SetState(id, model.LifecycleStable, false)
				report.Decided[id] = model.LifecycleStable
				decided = true
				break
			}
			if decision == model.SPRTReject {
				store.SetState(id, model.LifecycleFlaky, false)
				report.Decided[id] = model.LifecycleFlaky
				decided = true
				break
			}

			node, ok := nodes[id]
			if !ok {
				break
			}
			_, _, exitCode, timedOut, err := runner.Run(ctx, node)
			passed := exitCode == 0 && err == nil && !timedOut
			store.RecordRun(id, passed, opts.Commit, hash)
			_ = store.Save()
		}
		if !decided {
			report.Undecided = append(report.Undecided, id)
		}
	}

	return report
}

func historyFor(store *evidence.Store, id model.TestId, hash string) []model.HistoryEntry {
	if hash != "" {
		return store.GetSameHashHistory(id, hash)
	}
	return store.GetHistory(id)
}

func countHistory(hist []model.HistoryEntry) (runs, passes int) {
	for _, h := range hist {
		runs++
		if h.Passed {
			passes++
		}
	}
	return
}
