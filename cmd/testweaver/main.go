// Command testweaver is the thin CLI entry point spec.md §1 allows: it
// parses the minimal run-mode flags of spec.md §6, wires a Manifest,
// EvidenceStore, and HashProvider into internal/orchestrator, and prints
// the resulting Report as JSON. No config loading, no container plumbing,
// no rendering beyond JSON — those are downstream concerns.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"testweaver/internal/evidence"
	"testweaver/internal/executor"
	"testweaver/internal/hashutil"
	"testweaver/internal/logging"
	"testweaver/internal/manifest"
	"testweaver/internal/model"
	"testweaver/internal/orchestrator"
	"testweaver/internal/regression"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("testweaver", flag.ContinueOnError)

	manifestPath := fs.String("manifest", "", "path to the Manifest JSON document")
	statusFile := fs.String("status-file", "", "path to the EvidenceStore JSON document")
	mode := fs.String("mode", "diagnostic", "diagnostic|detection")
	effortMode := fs.String("effort", "none", "none|regression|converge|max")
	maxReruns := fs.Int("max-reruns", 5, "per-test rerun budget for converge/max/regression")
	maxFailures := fs.Int("max-failures", 0, "stop dispatch after this many failures (0 = unlimited)")
	maxParallel := fs.Int("max-parallel", 1, "sliding-window width (<=1 is sequential)")
	commit := fs.String("commit", "", "commit identifier stamped onto recorded evidence")
	changedFiles := fs.String("changed-files", "", "comma-separated changed source files (regression mode)")
	skipUnchanged := fs.Bool("skip-unchanged", false, "skip tests whose target hash has not changed")
	minReliability := fs.Float64("min-reliability", 0.99, "SPRT H0 reliability threshold")
	significance := fs.Float64("significance", 0.95, "SPRT significance (alpha = beta = 1 - significance)")
	flakyDeadlineDays := fs.Int("flaky-deadline-days", -1, "auto-disable a flaky test after this many days (<0 disables)")
	alphaSet := fs.Float64("alpha-set", 0.05, "verdict aggregate Type I budget")
	betaSet := fs.Float64("beta-set", 0.05, "verdict aggregate Type II budget")
	timeout := fs.Duration("timeout", executor.DefaultTimeout, "per-test subprocess timeout")
	workingDir := fs.String("working-dir", "", "working directory for subprocess execution")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	if *manifestPath == "" {
		fmt.Fprintln(os.Stderr, "testweaver: -manifest is required")
		return 2
	}

	data, err := os.ReadFile(*manifestPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "testweaver: reading manifest: %v\n", err)
		return 2
	}

	doc, err := manifest.Parse(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "testweaver: %v\n", err)
		return 2
	}

	var store *evidence.Store
	if *statusFile != "" {
		store = evidence.Load(*statusFile, *minReliability, *significance)
	}

	logger := logging.New(os.Stderr)
	deps := orchestrator.Deps{
		Runner:       executor.NewSubprocessRunner(*workingDir, *timeout),
		HashProvider: hashutil.DefaultHashProvider{},
		Logger:       logger,
	}

	opts := orchestrator.RunOptions{
		Mode:              model.Mode(*mode),
		Effort:            model.Effort(*effortMode),
		MaxReruns:         *maxReruns,
		MaxFailures:       *maxFailures,
		MaxParallel:       *maxParallel,
		Commit:            *commit,
		ChangedFiles:      splitNonEmpty(*changedFiles),
		SkipUnchanged:     *skipUnchanged,
		MinReliability:    *minReliability,
		Significance:      *significance,
		FlakyDeadlineDays: *flakyDeadlineDays,
		AlphaSet:          *alphaSet,
		BetaSet:           *betaSet,
		Regression: regression.Options{
			MaxTestPercentage:   0.25,
			MaxHops:             3,
			DecayPerHop:         0.5,
			RecencyHalfLifeDays: 180,
			MinTests:            3,
			SourceExtensions:    []string{"**/*.go"},
		},
		BurnInMaxIterations: 40,
		Now:                 time.Now().UTC(),
	}

	report, err := orchestrator.Run(context.Background(), doc.Nodes(), store, deps, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "testweaver: %v\n", err)
		return 1
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(struct {
		Report *orchestrator.Report `json:"report"`
	}{Report: report}); err != nil {
		fmt.Fprintf(os.Stderr, "testweaver: encoding report: %v\n", err)
		return 1
	}

	return report.ExitCode
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
