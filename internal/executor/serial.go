package executor

import (
	"context"
	"time"

	"testweaver/internal/dag"
	"testweaver/internal/model"
)

// RunSerial executes the graph one test at a time in the mode's chosen
// traversal order. In diagnostic mode (leaves-first) every dependency is
// fully resolved before a dependent's turn arrives, so no dependency-failure
// race is possible: the dependencies_failed check is always against final,
// settled results. Detection mode runs roots-first and does no gating.
func RunSerial(ctx context.Context, g *dag.TestGraph, runner Runner, opts Options) ([]model.TestResult, error) {
	order := traversalOrder(g, opts.Mode)
	results := make(map[model.TestId]model.TestResult, len(order))
	out := make([]model.TestResult, 0, len(order))

	failures := 0
	for _, id := range order {
		if opts.MaxFailures > 0 && failures >= opts.MaxFailures {
			break
		}

		node, _ := g.Node(id)

		if opts.Mode == model.ModeDiagnostic {
			if failedAncestor, found := firstFailedAncestor(g, results, id); found {
				_ = failedAncestor
				res := model.TestResult{Id: id, Status: model.StatusDependenciesFailed, StartedAt: time.Now().UTC()}
				res.FinishedAt = res.StartedAt
				results[id] = res
				out = append(out, res)
				continue
			}
		}

		started := time.Now().UTC()
		stdout, stderr, exitCode, _, err := runner.Run(ctx, node.Test)
		finished := time.Now().UTC()

		res := model.TestResult{
			Id: id, Stdout: stdout, Stderr: stderr,
			StartedAt: started, FinishedAt: finished, Duration: finished.Sub(started),
		}
		if err != nil {
			res.Status = model.StatusFailed
			res.Stderr = append(res.Stderr, []byte("\n"+err.Error())...)
		} else {
			code := exitCode
			res.ExitCode = &code
			if exitCode == 0 {
				res.Status = model.StatusPassed
			} else {
				res.Status = model.StatusFailed
			}
		}

		if isFailedStatus(res.Status) {
			failures++
		}
		results[id] = res
		out = append(out, res)
	}

	return out, nil
}

func traversalOrder(g *dag.TestGraph, mode model.Mode) []model.TestId {
	if mode == model.ModeDetection {
		return g.BFSRootsFirst()
	}
	return g.TopoLeavesFirst()
}

// firstFailedAncestor reports whether any already-settled ancestor of id
// ended in a failed-flavored status.
func firstFailedAncestor(g *dag.TestGraph, results map[model.TestId]model.TestResult, id model.TestId) (model.TestId, bool) {
	for _, anc := range g.Ancestors(id) {
		if r, ok := results[anc]; ok && isFailedStatus(r.Status) {
			return anc, true
		}
	}
	return "", false
}
