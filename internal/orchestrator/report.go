package orchestrator

import (
	"time"

	"testweaver/internal/burnin"
	"testweaver/internal/effort"
	"testweaver/internal/events"
	"testweaver/internal/model"
	"testweaver/internal/regression"
	"testweaver/internal/verdict"
)

// Summary is the aggregate execution tally of one run.
type Summary struct {
	Total                 int     `json:"total"`
	Passed                int     `json:"passed"`
	Failed                int     `json:"failed"`
	DependenciesFailed    int     `json:"dependencies_failed"`
	TotalDurationSeconds  float64 `json:"total_duration_seconds"`
}

// HashFilterSummary is the §4.2 hash-invalidation tally.
type HashFilterSummary struct {
	Changed   int `json:"changed"`
	Unchanged int `json:"unchanged"`
	Skipped   int `json:"skipped"`
}

// TestReportEntry is one test's row in the Report's test_set. spec.md asks
// for "a hierarchical tree mirroring the manifest"; that nesting is a
// rendering concern (explicitly out of scope, see spec.md §1) built from
// the manifest's test_set.subsets downstream of this flat, keyed form.
type TestReportEntry struct {
	Status         model.Status         `json:"status"`
	Classification model.Classification `json:"classification,omitempty"`
	Lifecycle      model.Lifecycle      `json:"lifecycle,omitempty"`
	DurationSeconds float64             `json:"duration_seconds"`
}

// Report is the core's sole output artifact: data, not a rendering.
type Report struct {
	RunID       string    `json:"run_id"`
	GeneratedAt time.Time `json:"generated_at"`
	Commit      string    `json:"commit,omitempty"`

	Summary Summary `json:"summary"`

	Tests map[model.TestId]TestReportEntry `json:"test_set"`

	HashFilter *HashFilterSummary `json:"hash_filter,omitempty"`

	RegressionSelection *regression.Selection `json:"regression_selection,omitempty"`

	Effort *effort.Report `json:"effort,omitempty"`

	BurnInSweep *burnin.Report `json:"burn_in_sweep,omitempty"`

	Verdict *verdict.Result `json:"verdict,omitempty"`

	Events     []events.Event `json:"events"`
	EventsHash string         `json:"events_hash,omitempty"`

	// Omitted lists tests that were never attempted because max_failures
	// was reached mid-run (spec.md §9's first Open Question: these are not
	// silently absent, they are named here).
	Omitted []model.TestId `json:"omitted,omitempty"`

	ExitCode int `json:"-"`
}
