package sprt_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"testweaver/internal/model"
	"testweaver/internal/sprt"
)

func TestEvaluate_AcceptsOnStrongPassStreak(t *testing.T) {
	decision := sprt.Evaluate(40, 40, 0.99, 0.95, 0.10)
	assert.Equal(t, model.SPRTAccept, decision)
}

func TestEvaluate_RejectsOnFailures(t *testing.T) {
	decision := sprt.Evaluate(10, 2, 0.99, 0.95, 0.10)
	assert.Equal(t, model.SPRTReject, decision)
}

func TestEvaluate_ContinuesWithLittleEvidence(t *testing.T) {
	assert.Equal(t, model.SPRTContinue, sprt.Evaluate(2, 2, 0.99, 0.95, 0.10))
}

func TestEvaluate_Monotonic(t *testing.T) {
	// Fixing (p, s, m, n), increasing k (passes) must never flip accept -> reject.
	n := 20
	var sawAccept bool
	for k := 0; k <= n; k++ {
		d := sprt.Evaluate(n, k, 0.9, 0.9, 0.10)
		if d == model.SPRTAccept {
			sawAccept = true
		}
		if sawAccept {
			assert.NotEqual(t, model.SPRTReject, d, "k=%d", k)
		}
	}
}

func TestEvaluate_DegenerateSignificance(t *testing.T) {
	// significance == 1.0 must not panic or produce NaN/Inf thresholds.
	d := sprt.Evaluate(5, 5, 0.99, 1.0, 0.10)
	assert.NotEqual(t, "", d)
}

func TestDemotionEvaluate_DemotesOnRecentFailures(t *testing.T) {
	hist := make([]model.HistoryEntry, 0, 10)
	for i := 0; i < 10; i++ {
		hist = append(hist, model.HistoryEntry{Passed: false})
	}
	assert.Equal(t, model.DemotionDemote, sprt.DemotionEvaluate(hist, 0.99, 0.95, 0.10))
}

func TestDemotionEvaluate_InconclusiveOnEmptyHistory(t *testing.T) {
	assert.Equal(t, model.DemotionInconclusive, sprt.DemotionEvaluate(nil, 0.99, 0.95, 0.10))
}
