// Package effort implements the mini-converge / converge / max rerun loop:
// a round-robin pure-selection scheduler, in the shape of the DAG package's
// ready-set scheduler, driven by SPRT decisions instead of dependency
// completion.
package effort

import (
	"context"

	"testweaver/internal/evidence"
	"testweaver/internal/executor"
	"testweaver/internal/model"
	"testweaver/internal/sprt"
)

// Result is the per-test outcome of an effort run.
type Result struct {
	Id             model.TestId
	Classification model.Classification
	SPRTDecision   model.SPRTDecision
	Reruns         int
}

// Report summarizes an effort run: the per-test classifications and the
// total number of reruns actually performed.
type Report struct {
	Results      map[model.TestId]Result
	TotalReruns  int
}

// Options configures one EffortRunner invocation.
type Options struct {
	EffortMode     model.Effort // Converge or Max; any other value selects no targets
	MaxReruns      int
	Commit         string
	TargetHashes   map[model.TestId]string
	MinReliability float64
	Significance   float64
	Margin         float64
}

// target tracks one test's round-robin rerun state.
type target struct {
	id      model.TestId
	initial model.Status
	node    model.TestNode
	runs    int
	passes  int
	reruns  int
}

// Run drives the round-robin rerun loop described in spec.md §4.6.
//
// initialResults is the session's first-pass execution outcome; nodes maps
// ids to their resolved TestNode (needed to invoke the Runner again).
func Run(ctx context.Context, store *evidence.Store, runner executor.Runner, nodes map[model.TestId]model.TestNode, initialResults []model.TestResult, opts Options) Report {
	report := Report{Results: make(map[model.TestId]Result, len(initialResults))}

	byId := make(map[model.TestId]model.Status, len(initialResults))
	for _, r := range initialResults {
		byId[r.Id] = r.Status
	}

	targets := make([]*target, 0)
	for id, status := range byId {
		inTargetSet := opts.EffortMode == model.EffortMax || (opts.EffortMode == model.EffortConverge && status == model.StatusFailed)
		if !inTargetSet {
			if opts.EffortMode == model.EffortConverge && (status == model.StatusPassed || status == model.StatusPassedWithDepsFailed) {
				report.Results[id] = Result{Id: id, Classification: model.ClassificationTruePass, SPRTDecision: model.SPRTContinue}
			}
			continue
		}

		t := &target{id: id, initial: status, node: nodes[id]}
		t.runs, t.passes = seedEvidence(store, opts, id, status)

		decision := sprt.Evaluate(t.runs, t.passes, opts.MinReliability, opts.Significance, opts.Margin)
		if decision != model.SPRTContinue || opts.MaxReruns <= 0 {
			report.Results[id] = finalize(t, decision)
			continue
		}
		targets = append(targets, t)
	}

	// Sort by id for determinism; round-robin order is stable across runs
	// given identical inputs.
	sortTargets(targets)

	for len(targets) > 0 {
		next := targets[:0]
		for _, t := range targets {
			if t.reruns >= opts.MaxReruns {
				report.Results[t.id] = finalize(t, model.SPRTContinue)
				continue
			}

			hash := opts.TargetHashes[t.id]
			stdout, stderr, exitCode, timedOut, err := runner.Run(ctx, t.node)
			_ = stdout
			_ = stderr
			_ = timedOut
			_ = err
			passed := exitCode == 0 && err == nil && !timedOut

			store.RecordRun(t.id, passed, opts.Commit, hash)
			report.TotalReruns++
			t.reruns++
			t.runs++
			if passed {
				t.passes++
			}

			decision := sprt.Evaluate(t.runs, t.passes, opts.MinReliability, opts.Significance, opts.Margin)
			switch decision {
			case model.SPRTAccept, model.SPRTReject:
				report.Results[t.id] = finalize(t, decision)
			default:
				if opts.MaxReruns > 0 && t.reruns >= opts.MaxReruns {
					report.Results[t.id] = finalize(t, model.SPRTContinue)
				} else {
					next = append(next, t)
				}
			}
		}
		targets = next
	}

	return report
}

func seedEvidence(store *evidence.Store, opts Options, id model.TestId, initial model.Status) (runs, passes int) {
	if hash, ok := opts.TargetHashes[id]; ok && hash != "" {
		hist := store.GetSameHashHistory(id, hash)
		for _, h := range hist {
			runs++
			if h.Passed {
				passes++
			}
		}
		if runs > 0 {
			return
		}
	}
	runs = 1
	if initial == model.StatusPassed || initial == model.StatusPassedWithDepsFailed {
		passes = 1
	}
	return
}

func finalize(t *target, decision model.SPRTDecision) Result {
	return Result{Id: t.id, Classification: classify(t.initial, decision), SPRTDecision: decision, Reruns: t.reruns}
}

// classify derives the final classification from the classification matrix
// in spec.md §4.6.
func classify(initial model.Status, decision model.SPRTDecision) model.Classification {
	failed := initial == model.StatusFailed || initial == model.StatusFailedWithDepsFailed
	switch decision {
	case model.SPRTAccept:
		if failed {
			return model.ClassificationFlake
		}
		return model.ClassificationTruePass
	case model.SPRTReject:
		if failed {
			return model.ClassificationTrueFail
		}
		return model.ClassificationFlake
	default:
		return model.ClassificationUndecided
	}
}

func sortTargets(targets []*target) {
	for i := 1; i < len(targets); i++ {
		for j := i; j > 0 && targets[j-1].id > targets[j].id; j-- {
			targets[j-1], targets[j] = targets[j], targets[j-1]
		}
	}
}
