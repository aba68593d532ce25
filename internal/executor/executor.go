package executor

import (
	"context"

	"testweaver/internal/dag"
	"testweaver/internal/model"
)

// Run dispatches to RunSerial or RunParallel depending on opts.MaxParallel.
func Run(ctx context.Context, g *dag.TestGraph, runner Runner, opts Options) ([]model.TestResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.MaxParallel <= 1 {
		return RunSerial(ctx, g, runner, opts)
	}
	return RunParallel(ctx, g, runner, opts)
}
