// Package orchestrator is the phase coordinator and exit-code authority
// (C10): it holds no persistent state of its own, wiring the Manifest,
// EvidenceStore, HashProvider, and CoOccurrenceGraph into the sequence of
// phases spec.md §4.10 describes, and assembling the Report.
package orchestrator

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"

	"testweaver/internal/burnin"
	"testweaver/internal/dag"
	"testweaver/internal/effort"
	"testweaver/internal/events"
	"testweaver/internal/evidence"
	"testweaver/internal/executor"
	"testweaver/internal/hashutil"
	"testweaver/internal/lifecycle"
	"testweaver/internal/logging"
	"testweaver/internal/model"
	"testweaver/internal/regression"
	"testweaver/internal/twerrors"
	"testweaver/internal/verdict"
)

// RunOptions is the minimal run-mode surface spec.md §6 names: everything
// else (CLI shell, config loading, container plumbing) is external glue.
type RunOptions struct {
	Mode        model.Mode
	Effort      model.Effort
	MaxReruns   int
	MaxFailures int
	MaxParallel int

	Commit       string
	ChangedFiles []string
	SkipUnchanged bool

	MinReliability float64
	Significance   float64
	Margin         float64 // defaults to 0.10 if zero

	FlakyDeadlineDays int

	Regression regression.Options
	CoOccurrence regression.CoOccurrenceGraph

	AlphaSet float64
	BetaSet  float64
	HiFiVerdict bool

	BurnInMaxIterations int

	Now time.Time // for deadline checks; defaults to time.Now().UTC()
}

// Deps bundles the collaborators the core depends on but does not own:
// the Runner that executes test executables, the HashProvider, and an
// optional logger (defaults to a no-op logger).
type Deps struct {
	Runner       executor.Runner
	HashProvider hashutil.Provider
	Logger       *logging.Logger
}

// Run drives one end-to-end invocation: build the DAG, sync lifecycle
// state, apply the effort mode's phases, and assemble the Report plus its
// deterministic exit code.
func Run(ctx context.Context, nodes []model.TestNode, store *evidence.Store, deps Deps, opts RunOptions) (*Report, error) {
	if deps.Logger == nil {
		deps.Logger = logging.Nop()
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	margin := opts.Margin
	if margin == 0 {
		margin = 0.10
	}

	g, err := dag.Build(nodes)
	if err != nil {
		return nil, twerrors.NewConfigError("building test graph", err)
	}

	var lc *lifecycle.Engine
	var lcEvents []lifecycle.Event
	if store != nil {
		lc = lifecycle.New(store, opts.MinReliability, opts.Significance)
		lc.Margin = margin
		lcEvents = append(lcEvents, lc.SyncDisabled(nodes)...)
		lcEvents = append(lcEvents, lc.CheckDeadlines(store.Ids(), opts.FlakyDeadlineDays, now)...)

		disabled := lifecycle.FilterByState(g, store, map[model.Lifecycle]bool{model.LifecycleDisabled: true})
		if len(disabled) > 0 {
			g, err = g.Remove(disabled)
			if err != nil {
				return nil, twerrors.NewConfigError("removing disabled tests", err)
			}
		}
	}

	targetHashes := map[model.TestId]string{}
	var hashFilter *HashFilterSummary
	var unchangedSkippable []model.TestId
	var changedHash []model.TestId

	if store != nil && deps.HashProvider != nil && opts.SkipUnchanged {
		computed, hashErr := deps.HashProvider.ComputeHashes(ctx, nodesOf(g))
		if hashErr != nil {
			deps.Logger.Warning().Err(hashErr).Log("hash provider failed, treating all tests as changed")
			computed = map[model.TestId]string{}
		}
		hf := HashFilterSummary{}
		for _, n := range nodesOf(g) {
			newHash, ok := computed[n.Id]
			if !ok || newHash == "" {
				hf.Changed++
				changedHash = append(changedHash, n.Id)
				continue
			}
			targetHashes[n.Id] = newHash
			old, hadOld := store.GetTargetHash(n.Id)
			if !hadOld || old != newHash {
				store.InvalidateEvidence(n.Id)
				store.SetTargetHash(n.Id, newHash)
				hf.Changed++
				changedHash = append(changedHash, n.Id)
				continue
			}
			hf.Unchanged++
			state := store.GetState(n.Id)
			if state == model.LifecycleStable || state == model.LifecycleFlaky {
				hf.Skipped++
				unchangedSkippable = append(unchangedSkippable, n.Id)
			}
		}
		hashFilter = &hf
	}

	report := &Report{
		RunID:       ulid.Make().String(),
		GeneratedAt: now,
		Commit:      opts.Commit,
		Tests:       map[model.TestId]TestReportEntry{},
		HashFilter:  hashFilter,
	}

	var results []model.TestResult
	var effortReport *effort.Report
	var burnReport *burnin.Report
	var selection *regression.Selection
	var verdictResult *verdict.Result
	var executedGraph *dag.TestGraph

	execOpts := executor.Options{Mode: opts.Mode, MaxParallel: opts.MaxParallel, MaxFailures: opts.MaxFailures}

	switch opts.Effort {
	case model.EffortRegression:
		stableTests := []model.TestId{}
		if store != nil {
			stableTests = lifecycle.FilterByState(g, store, map[model.Lifecycle]bool{model.LifecycleStable: true})
		} else {
			for _, n := range nodesOf(g) {
				stableTests = append(stableTests, n.Id)
			}
		}

		var selected []model.TestId
		if opts.CoOccurrence != nil {
			sel := regression.Select(g, nodeValues(g), opts.ChangedFiles, opts.CoOccurrence, stableTests, opts.Regression)
			selection = &sel
			selected = sel.Selected
		} else {
			selected = stableTests
		}

		if hashFilter != nil {
			changedSet := toSet(changedHash)
			filtered := make([]model.TestId, 0, len(selected))
			for _, id := range selected {
				if changedSet[id] {
					filtered = append(filtered, id)
				}
			}
			selected = filtered
		}

		if store != nil {
			selected = append(selected, lifecycle.FilterByState(g, store, map[model.Lifecycle]bool{
				model.LifecycleNew: true, model.LifecycleBurningIn: true,
			})...)
		}
		selected = g.Closure(dedupe(selected))

		executedGraph, err = subgraph(g, selected)
		if err != nil {
			return nil, twerrors.NewConfigError("building regression subgraph", err)
		}

		results, err = executor.Run(ctx, executedGraph, deps.Runner, execOpts)
		if err != nil {
			return nil, err
		}

		if store != nil && opts.Commit != "" && countFailed(results) > 0 {
			tight := opts.MaxReruns
			if tight == 0 || tight > 5 {
				tight = 5
			}
			rep := effort.Run(ctx, store, deps.Runner, nodeIndex(executedGraph), results, effort.Options{
				EffortMode: model.EffortConverge, MaxReruns: tight, Commit: opts.Commit,
				TargetHashes: targetHashes, MinReliability: opts.MinReliability, Significance: opts.Significance, Margin: margin,
			})
			effortReport = &rep
		}

		if lc != nil {
			lcEvents = append(lcEvents, lc.ProcessResults(results, opts.Commit, targetHashes)...)
		}

	case model.EffortConverge, model.EffortMax:
		executedGraph = g
		if store != nil && opts.SkipUnchanged && len(unchangedSkippable) > 0 {
			executedGraph, err = g.Remove(unchangedSkippable)
			if err != nil {
				return nil, twerrors.NewConfigError("dropping unchanged tests", err)
			}
		}

		results, err = executor.Run(ctx, executedGraph, deps.Runner, execOpts)
		if err != nil {
			return nil, err
		}

		if store != nil {
			rep := effort.Run(ctx, store, deps.Runner, nodeIndex(executedGraph), results, effort.Options{
				EffortMode: opts.Effort, MaxReruns: opts.MaxReruns, Commit: opts.Commit,
				TargetHashes: targetHashes, MinReliability: opts.MinReliability, Significance: opts.Significance, Margin: margin,
			})
			effortReport = &rep

			burningIn := lifecycle.FilterByState(executedGraph, store, map[model.Lifecycle]bool{model.LifecycleBurningIn: true})
			if len(burningIn) > 0 {
				br := burnin.Sweep(ctx, store, deps.Runner, nodeIndex(executedGraph), burningIn, burnin.Options{
					MaxIterations: opts.BurnInMaxIterations, Commit: opts.Commit, TargetHashes: targetHashes,
					MinReliability: opts.MinReliability, Significance: opts.Significance, Margin: margin,
				})
				burnReport = &br
			}
		}

		if lc != nil {
			lcEvents = append(lcEvents, lc.ProcessResults(results, opts.Commit, targetHashes)...)
		}

		if store != nil {
			allIds := idsOf(executedGraph)
			vr := verdict.Compute(store, allIds, verdict.Options{
				AlphaSet: opts.AlphaSet, BetaSet: opts.BetaSet, MinReliability: opts.MinReliability, Margin: margin,
				HiFi: opts.HiFiVerdict, Commit: opts.Commit, TargetHashes: targetHashes,
			})
			verdictResult = &vr
		}

	default: // model.EffortNone
		executedGraph = g
		results, err = executor.Run(ctx, executedGraph, deps.Runner, execOpts)
		if err != nil {
			return nil, err
		}
		if store != nil {
			for _, r := range results {
				if r.Status == model.StatusDependenciesFailed {
					continue
				}
				passed := r.Status == model.StatusPassed || r.Status == model.StatusPassedWithDepsFailed
				store.RecordRun(r.Id, passed, opts.Commit, targetHashes[r.Id])
			}
		}
	}

	if store != nil {
		_ = store.Save()
	}

	report.Effort = effortReport
	report.BurnInSweep = burnReport
	report.RegressionSelection = selection
	report.Verdict = verdictResult

	buildSummary(report, results)
	buildTestEntries(report, store, results, effortReport)
	report.Omitted = omittedIds(executedGraph, results)

	log := buildEventLog(results, lcEvents)
	report.Events = log.Events
	if h, hashErr := log.Hash(); hashErr == nil {
		report.EventsHash = h
	}

	report.ExitCode = computeExitCode(store, opts.Effort, results, effortReport)
	return report, nil
}

func buildSummary(report *Report, results []model.TestResult) {
	var s Summary
	for _, r := range results {
		s.Total++
		s.TotalDurationSeconds += r.Duration.Seconds()
		switch r.Status {
		case model.StatusPassed, model.StatusPassedWithDepsFailed:
			s.Passed++
		case model.StatusFailed, model.StatusFailedWithDepsFailed:
			s.Failed++
		case model.StatusDependenciesFailed:
			s.DependenciesFailed++
		}
	}
	report.Summary = s
}

func buildTestEntries(report *Report, store *evidence.Store, results []model.TestResult, effortReport *effort.Report) {
	for _, r := range results {
		entry := TestReportEntry{Status: r.Status, DurationSeconds: r.Duration.Seconds()}
		if store != nil {
			entry.Lifecycle = store.GetState(r.Id)
		}
		if effortReport != nil {
			if res, ok := effortReport.Results[r.Id]; ok {
				entry.Classification = res.Classification
			}
		}
		if r.Status == model.StatusDependenciesFailed && entry.Classification == "" {
			entry.Classification = model.ClassificationNotEvaluated
		}
		report.Tests[r.Id] = entry
	}
}

func buildEventLog(results []model.TestResult, lcEvents []lifecycle.Event) events.Log {
	log := events.Log{}
	for _, r := range results {
		var kind events.Kind
		switch r.Status {
		case model.StatusPassed, model.StatusPassedWithDepsFailed:
			kind = events.KindTestExecuted
		case model.StatusFailed, model.StatusFailedWithDepsFailed:
			kind = events.KindTestFailed
		case model.StatusDependenciesFailed:
			kind = events.KindTestSkipped
		default:
			continue
		}
		log.Events = append(log.Events, events.Event{Kind: kind, TestID: string(r.Id), Reason: string(r.Status)})
	}
	for _, e := range lcEvents {
		kind := events.KindLifecycleTransitioned
		if e.Kind == "flaky_deadline_exceeded" {
			kind = events.KindDeadlineDisabled
		}
		log.Events = append(log.Events, events.Event{
			Kind: kind, TestID: string(e.Id), OldState: string(e.OldState), Reason: e.Kind,
		})
	}
	log.Canonicalize()
	return log
}

func computeExitCode(store *evidence.Store, mode model.Effort, results []model.TestResult, effortReport *effort.Report) int {
	for _, r := range results {
		var state model.Lifecycle = model.LifecycleStable
		if store != nil {
			state = store.GetState(r.Id)
		}
		var classification model.Classification
		if effortReport != nil {
			if res, ok := effortReport.Results[r.Id]; ok {
				classification = res.Classification
			}
		}
		if r.Status == model.StatusDependenciesFailed {
			classification = model.ClassificationNotEvaluated
		} else if classification == "" {
			if r.Status == model.StatusPassed || r.Status == model.StatusPassedWithDepsFailed {
				classification = model.ClassificationTruePass
			} else {
				classification = model.ClassificationTrueFail
			}
		}
		if exitCodeFor(state, classification, mode) == 1 {
			return 1
		}
	}
	return 0
}

// exitCodeFor implements the lifecycle x classification x mode matrix of
// spec.md §7.
func exitCodeFor(state model.Lifecycle, classification model.Classification, mode model.Effort) int {
	switch state {
	case model.LifecycleDisabled, model.LifecycleFlaky, model.LifecycleBurningIn, model.LifecycleNew:
		return 0
	case model.LifecycleStable:
		switch classification {
		case model.ClassificationTrueFail, model.ClassificationUndecided:
			return 1
		case model.ClassificationFlake:
			if mode == model.EffortConverge || mode == model.EffortMax {
				return 1
			}
			return 0
		default:
			return 0
		}
	default:
		return 0
	}
}

func nodesOf(g *dag.TestGraph) []model.TestNode {
	ns := g.Nodes()
	out := make([]model.TestNode, 0, len(ns))
	for _, n := range ns {
		out = append(out, n.Test)
	}
	return out
}

func nodeValues(g *dag.TestGraph) []model.TestNode { return nodesOf(g) }

func nodeIndex(g *dag.TestGraph) map[model.TestId]model.TestNode {
	out := make(map[model.TestId]model.TestNode, g.Len())
	for _, n := range g.Nodes() {
		out[n.Id] = n.Test
	}
	return out
}

func idsOf(g *dag.TestGraph) []model.TestId {
	ns := g.Nodes()
	out := make([]model.TestId, 0, len(ns))
	for _, n := range ns {
		out = append(out, n.Id)
	}
	return out
}

func subgraph(g *dag.TestGraph, keep []model.TestId) (*dag.TestGraph, error) {
	keepSet := toSet(keep)
	drop := make([]model.TestId, 0)
	for _, n := range g.Nodes() {
		if !keepSet[n.Id] {
			drop = append(drop, n.Id)
		}
	}
	return g.Remove(drop)
}

func toSet(ids []model.TestId) map[model.TestId]bool {
	out := make(map[model.TestId]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out
}

func dedupe(ids []model.TestId) []model.TestId {
	seen := toSet(nil)
	out := make([]model.TestId, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func countFailed(results []model.TestResult) int {
	n := 0
	for _, r := range results {
		if r.Status == model.StatusFailed || r.Status == model.StatusFailedWithDepsFailed {
			n++
		}
	}
	return n
}

func omittedIds(g *dag.TestGraph, results []model.TestResult) []model.TestId {
	if g == nil {
		return nil
	}
	seen := make(map[model.TestId]bool, len(results))
	for _, r := range results {
		seen[r.Id] = true
	}
	out := make([]model.TestId, 0)
	for _, n := range g.Nodes() {
		if !seen[n.Id] {
			out = append(out, n.Id)
		}
	}
	return out
}
