// Package model defines the shared domain types for test orchestration:
// identifiers, graph nodes, results, lifecycle state, and evidence records.
package model

import "time"

// TestId is a stable string identifier, unique within a run.
type TestId string

// Status is the outcome of a single TestResult.
type Status string

const (
	StatusPassed                Status = "passed"
	StatusFailed                Status = "failed"
	StatusDependenciesFailed    Status = "dependencies_failed"
	StatusPassedWithDepsFailed  Status = "passed_with_deps_failed"
	StatusFailedWithDepsFailed  Status = "failed_with_deps_failed"
)

// Lifecycle is the maturity state of a test in the EvidenceStore.
type Lifecycle string

const (
	LifecycleNew        Lifecycle = "new"
	LifecycleBurningIn  Lifecycle = "burning_in"
	LifecycleStable     Lifecycle = "stable"
	LifecycleFlaky      Lifecycle = "flaky"
	LifecycleDisabled   Lifecycle = "disabled"
)

// Classification is the per-test outcome of an effort phase.
type Classification string

const (
	ClassificationTruePass     Classification = "true_pass"
	ClassificationTrueFail     Classification = "true_fail"
	ClassificationFlake        Classification = "flake"
	ClassificationUndecided    Classification = "undecided"
	ClassificationNotEvaluated Classification = "not_evaluated"
)

// VerdictResult is the aggregate test-set outcome.
type VerdictResult string

const (
	VerdictGreen     VerdictResult = "GREEN"
	VerdictRed       VerdictResult = "RED"
	VerdictUndecided VerdictResult = "UNDECIDED"
)

// Mode selects DAG traversal and dependency-gating policy.
type Mode string

const (
	ModeDiagnostic Mode = "diagnostic"
	ModeDetection  Mode = "detection"
)

// Effort selects execution thoroughness.
type Effort string

const (
	EffortNone       Effort = "none"
	EffortRegression Effort = "regression"
	EffortConverge   Effort = "converge"
	EffortMax        Effort = "max"
)

// TestNode is one node of the test DAG, as declared by the Manifest.
type TestNode struct {
	Id         TestId
	Assertion  string
	Executable string
	DependsOn  []TestId
	Disabled   bool
	RequirementId string
	Parameters map[string]string
}

// TestResult is the outcome of one execution attempt of a test.
type TestResult struct {
	Id         TestId
	Status     Status
	Duration   time.Duration
	Stdout     []byte
	Stderr     []byte
	ExitCode   *int
	StartedAt  time.Time
	FinishedAt time.Time
}

// HistoryEntry is one appended evidence record for a test.
type HistoryEntry struct {
	Passed     bool   `json:"passed"`
	Commit     string `json:"commit,omitempty"`
	TargetHash string `json:"target_hash,omitempty"`
}

// TestEntry is the persisted per-test lifecycle record in the EvidenceStore.
type TestEntry struct {
	State       Lifecycle      `json:"state"`
	TargetHash  string         `json:"target_hash,omitempty"`
	History     []HistoryEntry `json:"history"`
	LastUpdated time.Time      `json:"last_updated"`
}

// MaxHistoryEntries is the cap on persisted history length per test; oldest
// entries are dropped on overflow.
const MaxHistoryEntries = 200

// SPRTDecision is the three-way outcome of a sequential probability ratio test.
type SPRTDecision string

const (
	SPRTAccept   SPRTDecision = "accept"
	SPRTReject   SPRTDecision = "reject"
	SPRTContinue SPRTDecision = "continue"
)

// DemotionDecision is the three-way outcome of demotion_evaluate.
type DemotionDecision string

const (
	DemotionDemote      DemotionDecision = "demote"
	DemotionRetain      DemotionDecision = "retain"
	DemotionInconclusive DemotionDecision = "inconclusive"
)
