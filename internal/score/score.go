// Package score computes a heuristic quality value per clip plan and
// selects a non-overlapping top-K set, per SPEC_FULL.md §4.8.
package score

import (
	"sort"

	"github.com/clipforge/shorts-worker/internal/models"
)

const (
	durationScoreSpread = 12.0
	maxWordsPerSecond   = 3.0
	silencePenaltyRate  = 0.75
)

// Weights bundles the quality formula's component weights, all exported so
// callers can override a specific weight in tests without touching the
// formula itself.
type Weights struct {
	Duration      float64
	SpeechDensity float64
	AudioEnergy   float64
	Motion        float64
}

// DefaultWeights matches §4.8's formula: 0.30/0.35/0.20/0.15.
var DefaultWeights = Weights{Duration: 0.30, SpeechDensity: 0.35, AudioEnergy: 0.20, Motion: 0.15}

// Score computes the weighted quality for one plan. audioEnergyScore is the
// job-level Audio Stage score (§4.4); motionScore is the plan's own Camera
// Path score (§4.7); silences are the job-level silence intervals used to
// compute the silence-overlap penalty.
func Score(plan models.ClipPlan, targetSeconds, audioEnergyScore, motionScore float64, silences []models.Interval) models.ScoredPlan {
	dur := plan.Duration()
	durationScore := 1.0 / (1.0 + abs(dur-targetSeconds)/durationScoreSpread)

	wordsPerSecond := 0.0
	if dur > 0 {
		wordsPerSecond = float64(len(plan.Words)) / dur
	}
	speechDensity := min1(wordsPerSecond / maxWordsPerSecond)

	overlapFraction := silenceOverlapFraction(plan, silences)
	silencePenalty := 1.0 - silencePenaltyRate*overlapFraction

	quality := (DefaultWeights.Duration*durationScore +
		DefaultWeights.SpeechDensity*speechDensity +
		DefaultWeights.AudioEnergy*audioEnergyScore +
		DefaultWeights.Motion*motionScore) * silencePenalty

	return models.ScoredPlan{
		Plan:             plan,
		Quality:          quality,
		DurationScore:    durationScore,
		SpeechDensity:    speechDensity,
		AudioEnergyScore: audioEnergyScore,
		MotionScore:      motionScore,
		SilencePenalty:   silencePenalty,
	}
}

func silenceOverlapFraction(plan models.ClipPlan, silences []models.Interval) float64 {
	dur := plan.Duration()
	if dur <= 0 {
		return 0
	}
	overlap := 0.0
	for _, s := range silences {
		lo := max(plan.Start, s.Start)
		hi := min(plan.End, s.End)
		if hi > lo {
			overlap += hi - lo
		}
	}
	return min1(overlap / dur)
}

// Select sorts by quality desc (duration desc as tiebreak), greedily takes
// the top K non-overlapping plans, and falls back to the single best plan
// if the non-overlap rule would otherwise empty the result.
func Select(scored []models.ScoredPlan, topK int) []models.ScoredPlan {
	if len(scored) == 0 {
		return nil
	}

	ranked := make([]models.ScoredPlan, len(scored))
	copy(ranked, scored)
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Quality != ranked[j].Quality {
			return ranked[i].Quality > ranked[j].Quality
		}
		return ranked[i].Plan.Duration() > ranked[j].Plan.Duration()
	})

	var chosen []models.ScoredPlan
	for _, candidate := range ranked {
		if len(chosen) >= topK {
			break
		}
		if overlapsAny(candidate.Plan, chosen) {
			continue
		}
		chosen = append(chosen, candidate)
	}

	if len(chosen) == 0 {
		chosen = append(chosen, ranked[0])
	}
	return chosen
}

func overlapsAny(plan models.ClipPlan, chosen []models.ScoredPlan) bool {
	for _, c := range chosen {
		if plan.Start < c.Plan.End && c.Plan.Start < plan.End {
			return true
		}
	}
	return false
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func min1(v float64) float64 {
	if v > 1 {
		return 1
	}
	return v
}

func max(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
