// Package verdict aggregates per-test evidence into a test-set-level
// GREEN/RED/UNDECIDED result with aggregate Type II error control, using
// an E-value (evidence-against-H0) construction over each test's SPRT
// log-likelihood ratio.
package verdict

import (
	"context"
	"math"

	"testweaver/internal/evidence"
	"testweaver/internal/executor"
	"testweaver/internal/model"
	"testweaver/internal/sprt"
)

// PerTest is one test's contribution to the aggregate verdict.
type PerTest struct {
	Id       model.TestId
	LogRatio float64
	S        float64 // evidence for reliability, exp(log_ratio)
	E        float64 // evidence against reliability, 1/S
}

// Result is the full Verdict computation output.
type Result struct {
	Result      model.VerdictResult
	ESet        float64
	MinS        float64
	NTests      int
	WeakestTest model.TestId
	PerTest     []PerTest
}

// Options configures the aggregate thresholds and evidence source.
type Options struct {
	AlphaSet       float64
	BetaSet        float64
	MinReliability float64
	Margin         float64
	// HiFi restricts each test's batch to only the current commit instead
	// of grouping history by commit (quick mode).
	HiFi           bool
	Commit         string
	TargetHashes   map[model.TestId]string
}

// Compute implements spec.md §4.9's math over the given tests' (same-hash
// filtered) history in the store.
func Compute(store *evidence.Store, ids []model.TestId, opts Options) Result {
	perTest := make([]PerTest, 0, len(ids))
	sumE := 0.0
	minS := math.Inf(1)
	var weakest model.TestId

	for _, id := range ids {
		hist := historyFor(store, id, opts.TargetHashes[id])
		if opts.HiFi {
			hist = filterToCommit(hist, opts.Commit)
		}
		runs, passes := countHistory(hist)
		logRatio := sprt.LogLikelihoodRatio(runs, passes, opts.MinReliability, opts.Margin)

		s := math.Exp(logRatio)
		e := 0.0
		if s > 0 {
			e = 1 / s
		} else {
			e = math.Inf(1)
		}

		perTest = append(perTest, PerTest{Id: id, LogRatio: logRatio, S: s, E: e})
		sumE += e
		if s < minS {
			minS = s
			weakest = id
		}
	}

	n := len(ids)
	res := Result{ESet: 0, MinS: minS, NTests: n, WeakestTest: weakest, PerTest: perTest}
	if n == 0 {
		res.Result = model.VerdictUndecided
		return res
	}

	meanE := sumE / float64(n)
	res.ESet = meanE

	switch {
	case meanE > 1/opts.AlphaSet:
		res.Result = model.VerdictRed
	case minS > float64(n)/opts.BetaSet:
		res.Result = model.VerdictGreen
	default:
		res.Result = model.VerdictUndecided
	}
	return res
}

// HiFiEvaluate iterates the rerun-until-decided loop: compute, and if not
// UNDECIDED return immediately; otherwise rerun every test once, record,
// and recompute. Bounded by maxReruns.
func HiFiEvaluate(ctx context.Context, store *evidence.Store, runner executor.Runner, nodes map[model.TestId]model.TestNode, ids []model.TestId, maxReruns int, opts Options) Result {
	res := Compute(store, ids, opts)
	for i := 0; i < maxReruns && res.Result == model.VerdictUndecided; i++ {
		for _, id := range ids {
			node, ok := nodes[id]
			if !ok {
				continue
			}
			_, _, exitCode, timedOut, err := runner.Run(ctx, node)
			passed := exitCode == 0 && err == nil && !timedOut
			store.RecordRun(id, passed, opts.Commit, opts.TargetHashes[id])
		}
		res = Compute(store, ids, opts)
	}
	return res
}

func historyFor(store *evidence.Store, id model.TestId, hash string) []model.HistoryEntry {
	if hash != "" {
		return store.GetSameHashHistory(id, hash)
	}
	return store.GetHistory(id)
}

func filterToCommit(hist []model.HistoryEntry, commit string) []model.HistoryEntry {
	if commit == "" {
		return hist
	}
	out := make([]model.HistoryEntry, 0, len(hist))
	for _, h := range hist {
		if h.Commit == commit {
			out = append(out, h)
		}
	}
	return out
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
