package executor

import (
	"context"
	"sort"
	"sync"
	"time"

	"testweaver/internal/dag"
	"testweaver/internal/model"
)

type nodeStatus int

const (
	statusPending nodeStatus = iota
	statusRunning
	statusDone
)

type trackedNode struct {
	status     nodeStatus
	result     model.TestResult
	startedAt  time.Time
	finishedAt time.Time
}

type workItem struct {
	id   model.TestId
	node model.TestNode
}

type workResult struct {
	id       model.TestId
	stdout   []byte
	stderr   []byte
	exitCode int
	timedOut bool
	err      error
}

// RunParallel executes the graph using up to opts.MaxParallel concurrent
// workers. Tests are dispatched eagerly once none of their direct
// dependencies is YET known to have failed; dependencies need not have
// finished first, since a test executable does not consume a dependency's
// output, only its pass/fail signal. This optimistic dispatch is what makes
// the race window real: a dependency can still fail after its dependent has
// already started. That race is detected by comparing the dependency's
// finish time against the dependent's start time, and resolved into
// passed_with_deps_failed / failed_with_deps_failed rather than silently
// folded into passed/failed.
func RunParallel(ctx context.Context, g *dag.TestGraph, runner Runner, opts Options) ([]model.TestResult, error) {
	window := opts.MaxParallel
	if window <= 0 {
		window = 1
	}

	order := traversalOrder(g, opts.Mode)
	rank := make(map[model.TestId]int, len(order))
	for i, id := range order {
		rank[id] = i
	}

	var mu sync.Mutex
	nodes := make(map[model.TestId]*trackedNode, len(order))
	for _, id := range order {
		nodes[id] = &trackedNode{status: statusPending}
	}

	workCh := make(chan workItem, window)
	doneCh := make(chan workResult, window)

	var wg sync.WaitGroup
	for i := 0; i < window; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for w := range workCh {
				stdout, stderr, exitCode, timedOut, err := runner.Run(ctx, w.node)
				doneCh <- workResult{id: w.id, stdout: stdout, stderr: stderr, exitCode: exitCode, timedOut: timedOut, err: err}
			}
		}()
	}
	closeOnce := sync.Once{}
	stopWorkers := func() { closeOnce.Do(func() { close(workCh) }); wg.Wait() }

	inFlight := 0
	failures := 0
	remaining := len(order)
	cancelled := false

	dispatchReady := func() {
		if cancelled {
			return
		}
		candidates := make([]model.TestId, 0)
		mu.Lock()
		for _, id := range order {
			n := nodes[id]
			if n.status != statusPending {
				continue
			}
			if opts.Mode == model.ModeDiagnostic {
				if failedDep, found := firstKnownFailedDep(g, nodes, id); found {
					_ = failedDep
					now := time.Now().UTC()
					n.status = statusDone
					n.startedAt, n.finishedAt = now, now
					n.result = model.TestResult{Id: id, Status: model.StatusDependenciesFailed, StartedAt: now, FinishedAt: now}
					remaining--
					continue
				}
			}
			candidates = append(candidates, id)
		}
		sort.Slice(candidates, func(i, j int) bool { return rank[candidates[i]] < rank[candidates[j]] })

		for _, id := range candidates {
			if inFlight >= window {
				break
			}
			if opts.MaxFailures > 0 && failures >= opts.MaxFailures {
				cancelled = true
				break
			}
			n, nodeDef := nodes[id], mustNode(g, id)
			n.status = statusRunning
			n.startedAt = time.Now().UTC()
			inFlight++
			workCh <- workItem{id: id, node: nodeDef}
		}
		mu.Unlock()
	}

	out := make([]model.TestResult, 0, len(order))

	dispatchReady()
	for remaining > 0 && inFlight > 0 {
		select {
		case <-ctx.Done():
			stopWorkers()
			return out, ctx.Err()
		case r := <-doneCh:
			mu.Lock()
			n := nodes[r.id]
			n.finishedAt = time.Now().UTC()
			n.status = statusDone
			inFlight--
			remaining--

			res := model.TestResult{
				Id: r.id, Stdout: r.stdout, Stderr: r.stderr,
				StartedAt: n.startedAt, FinishedAt: n.finishedAt, Duration: n.finishedAt.Sub(n.startedAt),
			}
			if r.err != nil {
				res.Status = model.StatusFailed
				res.Stderr = append(res.Stderr, []byte("\n"+r.err.Error())...)
			} else {
				code := r.exitCode
				res.ExitCode = &code
				if r.exitCode == 0 {
					res.Status = model.StatusPassed
				} else {
					res.Status = model.StatusFailed
				}
			}

			if opts.Mode == model.ModeDiagnostic {
				if raced, raceFailedAt := dependencyFailedDuring(g, nodes, r.id, n.startedAt); raced {
					_ = raceFailedAt
					if res.Status == model.StatusPassed {
						res.Status = model.StatusPassedWithDepsFailed
					} else {
						res.Status = model.StatusFailedWithDepsFailed
					}
				}
			}

			if isFailedStatus(res.Status) {
				failures++
			}
			n.result = res
			mu.Unlock()
		}
		dispatchReady()
	}
	stopWorkers()

	// Collect results in canonical traversal order.
	mu.Lock()
	for _, id := range order {
		if n := nodes[id]; n.status == statusDone {
			out = append(out, n.result)
		}
	}
	mu.Unlock()

	return out, nil
}

func mustNode(g *dag.TestGraph, id model.TestId) model.TestNode {
	n, _ := g.Node(id)
	return n.Test
}

// firstKnownFailedDep reports a direct dependency already marked done with a
// failed-flavored status.
func firstKnownFailedDep(g *dag.TestGraph, nodes map[model.TestId]*trackedNode, id model.TestId) (model.TestId, bool) {
	for _, dep := range g.DirectDependencies(id) {
		n := nodes[dep]
		if n != nil && n.status == statusDone && isFailedStatus(n.result.Status) {
			return dep, true
		}
	}
	return "", false
}

// dependencyFailedDuring reports whether any direct dependency of id failed
// at or after startedAt — i.e. after the dependent had already begun.
func dependencyFailedDuring(g *dag.TestGraph, nodes map[model.TestId]*trackedNode, id model.TestId, startedAt time.Time) (bool, time.Time) {
	for _, dep := range g.DirectDependencies(id) {
		n := nodes[dep]
		if n == nil || n.status != statusDone || !isFailedStatus(n.result.Status) {
			continue
		}
		if !n.finishedAt.Before(startedAt) {
			return true, n.finishedAt
		}
	}
	return false, time.Time{}
}
