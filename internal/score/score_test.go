package score

import (
	"testing"

	"github.com/clipforge/shorts-worker/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wordsAt(n int, start float64) []models.Word {
	out := make([]models.Word, n)
	for i := range out {
		t := start + float64(i)*0.3
		out[i] = models.Word{Start: t, End: t + 0.2, Text: "w"}
	}
	return out
}

func TestScoreRewardsTargetDurationAndPenalizesSilence(t *testing.T) {
	onTarget := models.ClipPlan{Start: 0, End: 35, Words: wordsAt(60, 0)}
	offTarget := models.ClipPlan{Start: 0, End: 60, Words: wordsAt(60, 0)}

	s1 := Score(onTarget, 35, 0.5, 0.6, nil)
	s2 := Score(offTarget, 35, 0.5, 0.6, nil)
	assert.Greater(t, s1.DurationScore, s2.DurationScore)

	silent := Score(onTarget, 35, 0.5, 0.6, []models.Interval{{Start: 0, End: 35}})
	assert.Less(t, silent.SilencePenalty, s1.SilencePenalty)
	assert.Less(t, silent.Quality, s1.Quality)
}

func TestSelectRejectsOverlapsAndRespectsTopK(t *testing.T) {
	scored := []models.ScoredPlan{
		{Plan: models.ClipPlan{Start: 0, End: 30}, Quality: 0.9},
		{Plan: models.ClipPlan{Start: 10, End: 40}, Quality: 0.8}, // overlaps first
		{Plan: models.ClipPlan{Start: 50, End: 80}, Quality: 0.7},
		{Plan: models.ClipPlan{Start: 100, End: 130}, Quality: 0.6},
	}

	chosen := Select(scored, 2)
	require.Len(t, chosen, 2)
	assert.Equal(t, 0.0, chosen[0].Plan.Start)
	assert.Equal(t, 50.0, chosen[1].Plan.Start)
}

func TestSelectFallsBackToBestWhenAllOverlap(t *testing.T) {
	scored := []models.ScoredPlan{
		{Plan: models.ClipPlan{Start: 0, End: 30}, Quality: 0.5},
		{Plan: models.ClipPlan{Start: 5, End: 35}, Quality: 0.9},
	}
	chosen := Select(scored, 2)
	require.Len(t, chosen, 1)
	assert.Equal(t, 0.9, chosen[0].Quality)
}

func TestSelectEmptyInputReturnsEmpty(t *testing.T) {
	assert.Empty(t, Select(nil, 3))
}
