// Package lifecycle drives test maturity state transitions using SPRT
// decisions over EvidenceStore history: new/burning_in/stable/flaky/disabled.
package lifecycle

import (
	"time"

	"testweaver/internal/dag"
	"testweaver/internal/evidence"
	"testweaver/internal/model"
	"testweaver/internal/sprt"
)

// Event is one observed lifecycle transition, suitable for the Report's
// events array.
type Event struct {
	Kind     string
	Id       model.TestId
	OldState model.Lifecycle
	NewState model.Lifecycle
}

// Engine bundles the statistical parameters used across lifecycle
// operations. Margin defaults to 0.10 per the reference SPRT configuration.
type Engine struct {
	Store          *evidence.Store
	MinReliability float64
	Significance   float64
	Margin         float64
}

func New(store *evidence.Store, minReliability, significance float64) *Engine {
	return &Engine{Store: store, MinReliability: minReliability, Significance: significance, Margin: 0.10}
}

// ProcessResults records every non-dependencies_failed result and, based on
// each test's current lifecycle state, calls into SPRT to decide on a
// transition.
func (e *Engine) ProcessResults(results []model.TestResult, commit string, targetHashes map[model.TestId]string) []Event {
	events := make([]Event, 0)
	for _, r := range results {
		if r.Status == model.StatusDependenciesFailed {
			continue
		}
		passed := r.Status == model.StatusPassed || r.Status == model.StatusPassedWithDepsFailed

		hash := targetHashes[r.Id]
		e.Store.RecordRun(r.Id, passed, commit, hash)

		old := e.Store.GetState(r.Id)
		switch old {
		case model.LifecycleBurningIn:
			hist := e.historyFor(r.Id, hash)
			runs, passes := countHistory(hist)
			switch sprt.Evaluate(runs, passes, e.MinReliability, e.Significance, e.Margin) {
			case model.SPRTAccept:
				e.Store.SetState(r.Id, model.LifecycleStable, false)
				events = append(events, Event{Kind: "sprt_accept", Id: r.Id, OldState: old, NewState: model.LifecycleStable})
			case model.SPRTReject:
				e.Store.SetState(r.Id, model.LifecycleFlaky, false)
				events = append(events, Event{Kind: "sprt_reject", Id: r.Id, OldState: old, NewState: model.LifecycleFlaky})
			}
		case model.LifecycleStable:
			if !passed {
				hist := e.historyFor(r.Id, hash)
				switch sprt.DemotionEvaluate(hist, e.MinReliability, e.Significance, e.Margin) {
				case model.DemotionDemote:
					e.Store.SetState(r.Id, model.LifecycleFlaky, false)
					events = append(events, Event{Kind: "demotion_demote", Id: r.Id, OldState: old, NewState: model.LifecycleFlaky})
				case model.DemotionInconclusive:
					e.Store.SetState(r.Id, model.LifecycleBurningIn, false)
					events = append(events, Event{Kind: "demotion_inconclusive", Id: r.Id, OldState: old, NewState: model.LifecycleBurningIn})
				}
			}
		}
	}
	return events
}

func (e *Engine) historyFor(id model.TestId, hash string) []model.HistoryEntry {
	if hash != "" {
		return e.Store.GetSameHashHistory(id, hash)
	}
	return e.Store.GetHistory(id)
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

// HandleStableFailure reruns a stable test's on-demand demotion check up to
// maxReruns times via rerun, recording each attempt, until demotion_evaluate
// reaches a decision.
func (e *Engine) HandleStableFailure(id model.TestId, hash string, maxReruns int, rerun func() (passed bool)) model.Classification {
	for i := 0; i < maxReruns; i++ {
		passed := rerun()
		e.Store.RecordRun(id, passed, "", hash)
		hist := e.historyFor(id, hash)
		switch sprt.DemotionEvaluate(hist, e.MinReliability, e.Significance, e.Margin) {
		case model.DemotionDemote:
			e.Store.SetState(id, model.LifecycleFlaky, false)
			return model.ClassificationFlake
		case model.DemotionRetain:
			return model.ClassificationTrueFail
		}
	}
	return model.ClassificationUndecided
}

// SyncDisabled bridges the manifest's mutable disabled flag into the
// persistent lifecycle: manifest.disabled=true transitions any non-disabled
// test to disabled (clearing history); disabled tests no longer marked
// disabled transition to new (clearing history). Idempotent given an
// unchanging manifest.
func (e *Engine) SyncDisabled(nodes []model.TestNode) []Event {
	events := make([]Event, 0)
	for _, n := range nodes {
		old := e.Store.GetState(n.Id)
		if n.Disabled && old != model.LifecycleDisabled {
			e.Store.SetState(n.Id, model.LifecycleDisabled, true)
			events = append(events, Event{Kind: "sync_disabled", Id: n.Id, OldState: old, NewState: model.LifecycleDisabled})
		} else if !n.Disabled && old == model.LifecycleDisabled {
			e.Store.SetState(n.Id, model.LifecycleNew, true)
			events = append(events, Event{Kind: "sync_enabled", Id: n.Id, OldState: old, NewState: model.LifecycleNew})
		}
	}
	return events
}

// CheckDeadlines disables any flaky test whose last_updated exceeds
// deadlineDays. A negative deadlineDays disables the check entirely.
func (e *Engine) CheckDeadlines(ids []model.TestId, deadlineDays int, now time.Time) []Event {
	events := make([]Event, 0)
	if deadlineDays < 0 {
		return events
	}
	for _, id := range ids {
		if e.Store.GetState(id) != model.LifecycleFlaky {
			continue
		}
		lastUpdated := e.lastUpdated(id)
		if now.Sub(lastUpdated) > time.Duration(deadlineDays)*24*time.Hour {
			e.Store.SetState(id, model.LifecycleDisabled, false)
			events = append(events, Event{Kind: "flaky_deadline_exceeded", Id: id, OldState: model.LifecycleFlaky, NewState: model.LifecycleDisabled})
		}
	}
	return events
}

func (e *Engine) lastUpdated(id model.TestId) time.Time {
	return e.Store.LastUpdated(id)
}

// FilterByState returns the subset of graph ids whose store state is in
// states; tests absent from the store are treated as stable.
func FilterByState(g *dag.TestGraph, store *evidence.Store, states map[model.Lifecycle]bool) []model.TestId {
	out := make([]model.TestId, 0)
	for _, n := range g.Nodes() {
		if states[store.GetState(n.Id)] {
			out = append(out, n.Id)
		}
	}
	return out
}
