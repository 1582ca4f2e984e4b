package camera

import (
	"testing"

	"github.com/clipforge/shorts-worker/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoverCropSizeNarrowsWidthForWideSource(t *testing.T) {
	w, h := coverCropSize(1920, 1080, 9.0/16.0)
	assert.InDelta(t, h, 1080.0, 1e-9)
	assert.Less(t, w, 1920.0)
	assert.InDelta(t, w/h, 9.0/16.0, 1e-6)
}

func TestClampToBoundsKeepsCropInsideSource(t *testing.T) {
	x, y := clampToBounds(10, 10, 1000, 1000, 400, 700)
	assert.GreaterOrEqual(t, x, 200.0)
	assert.GreaterOrEqual(t, y, 350.0)
}

func TestSmoothAndClampLimitsStepSize(t *testing.T) {
	raw := []models.CenterPoint{
		{T: 0, X: 500, Y: 500},
		{T: 0.25, X: 900, Y: 500}, // 400px jump, should clamp to maxStepPx
	}
	out := smoothAndClamp(raw, 1000, 1000, 200, 200)
	require.Len(t, out, 2)
	assert.LessOrEqual(t, out[1].X-out[0].X, maxStepPx+1e-6)
}

func TestMotionScoreNeutralForShortPath(t *testing.T) {
	assert.Equal(t, neutralMotionScore, motionScore(nil, true))
	assert.Equal(t, neutralMotionScore, motionScore([]models.CenterPoint{{T: 0, X: 0, Y: 0}}, true))
}

func TestMotionScoreNeutralWhenNothingDetected(t *testing.T) {
	// A perfectly constant path built entirely from the center-bias
	// fallback (no face/pose ever found) must report the neutral score,
	// not a high smoothness score, per §4.7 — this is the NoopDetector
	// path every production job takes today.
	var samples []models.CenterPoint
	for i := 0; i < 10; i++ {
		samples = append(samples, models.CenterPoint{T: float64(i) * 0.25, X: 500, Y: 500})
	}
	assert.Equal(t, neutralMotionScore, motionScore(samples, false))
}

func TestMotionScoreHighForStaticDetectedPath(t *testing.T) {
	var samples []models.CenterPoint
	for i := 0; i < 10; i++ {
		samples = append(samples, models.CenterPoint{T: float64(i) * 0.25, X: 500, Y: 500})
	}
	assert.Greater(t, motionScore(samples, true), 0.9)
}

func TestPathCenterAtInterpolatesLinearly(t *testing.T) {
	p := Path{Samples: []models.CenterPoint{
		{T: 0, X: 0, Y: 0},
		{T: 1, X: 100, Y: 200},
	}}
	x, y := p.CenterAt(0.5)
	assert.InDelta(t, 50, x, 1e-9)
	assert.InDelta(t, 100, y, 1e-9)
}

func TestNoopDetectorReportsNothing(t *testing.T) {
	d := NoopDetector{}
	faces, err := d.DetectFaces(nil, "irrelevant.jpg")
	require.NoError(t, err)
	assert.Empty(t, faces)

	_, _, found, err := d.DetectPose(nil, "irrelevant.jpg")
	require.NoError(t, err)
	assert.False(t, found)
}
