// Package logging provides the structured JSON logger used by the
// Orchestrator, which logs one warning line when the hash provider fails.
// The Executor, LifecycleEngine, and EffortRunner do not log. Logging is an
// observability side channel — it never gates control flow; the Report's
// events array remains the durable record.
package logging

import (
	"io"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Logger is the concrete logger type used throughout this module.
type Logger = logiface.Logger[*stumpy.Event]

// New constructs a Logger writing newline-delimited JSON to w. A nil w
// defaults to os.Stderr (stumpy's own default).
func New(w io.Writer) *Logger {
	var opts []stumpy.Option
	if w != nil {
		opts = append(opts, stumpy.WithWriter(w))
	}
	return stumpy.L.New(stumpy.L.WithStumpy(opts...))
}

// Nop returns a Logger that discards everything, for callers (tests,
// library embedders) that do not want TestWeaver's log output.
func Nop() *Logger {
	return stumpy.L.New(stumpy.L.WithStumpy(stumpy.WithWriter(io.Discard)))
}
