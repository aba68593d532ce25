// Package sprt implements the Sequential Probability Ratio Test used to
// decide, from a stream of pass/fail observations, whether a test's
// reliability is at or above a threshold (accept), below it (reject), or
// whether more evidence is needed (continue).
package sprt

import (
	"math"

	"testweaver/internal/model"
)

const clampEpsilon = 1e-12

// Evaluate tests H0: p >= minReliability against H1: p <= minReliability -
// margin, under a symmetric error rate alpha = beta = 1 - significance,
// using the Wald log-likelihood ratio. Probabilities are clamped away from
// 0 and 1 to avoid log(0). When significance == 1.0 exactly, alpha and beta
// are set to 1e-10 rather than producing infinite thresholds.
func Evaluate(runs, passes int, minReliability, significance, margin float64) model.SPRTDecision {
	if runs == 0 {
		return model.SPRTContinue
	}

	alpha, beta := errorRates(significance)
	upper := math.Log((1 - beta) / alpha)
	lower := math.Log(beta / (1 - alpha))

	p0 := clamp(minReliability)
	p1 := clamp(minReliability - margin)

	failures := runs - passes
	logRatio := float64(passes)*math.Log(p0/p1) + float64(failures)*math.Log((1-p0)/(1-p1))

	switch {
	case logRatio >= upper:
		return model.SPRTAccept
	case logRatio <= lower:
		return model.SPRTReject
	default:
		return model.SPRTContinue
	}
}

// LogLikelihoodRatio returns the same Wald statistic Evaluate uses
// internally, exposed for the Verdict (C9) aggregate E-value computation.
func LogLikelihoodRatio(runs, passes int, minReliability, margin float64) float64 {
	p0 := clamp(minReliability)
	p1 := clamp(minReliability - margin)
	failures := runs - passes
	return float64(passes)*math.Log(p0/p1) + float64(failures)*math.Log((1-p0)/(1-p1))
}

func errorRates(significance float64) (alpha, beta float64) {
	if significance >= 1.0 {
		return 1e-10, 1e-10
	}
	v := 1 - significance
	return v, v
}

func clamp(p float64) float64 {
	if p < clampEpsilon {
		return clampEpsilon
	}
	if p > 1-clampEpsilon {
		return 1 - clampEpsilon
	}
	return p
}

// DemotionEvaluate walks history newest-first, streaming pass/fail into the
// SPRT, stopping at the first decision or when history is exhausted.
// "demote" corresponds to reject with observed reliability below
// minReliability; "retain" corresponds to accept; "inconclusive" means
// history ran out without a decision.
func DemotionEvaluate(historyNewestFirst []model.HistoryEntry, minReliability, significance, margin float64) model.DemotionDecision {
	runs, passes := 0, 0
	// Walk newest-first so the decision rests on the most recent evidence
	// and stops as soon as that evidence is conclusive.
	for _, h := range historyNewestFirst {
		runs++
		if h.Passed {
			passes++
		}
		switch Evaluate(runs, passes, minReliability, significance, margin) {
		case model.SPRTAccept:
			return model.DemotionRetain
		case model.SPRTReject:
			return model.DemotionDemote
		}
	}
	return model.DemotionInconclusive
}
