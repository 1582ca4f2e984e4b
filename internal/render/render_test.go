package render

import (
	"testing"

	"github.com/clipforge/shorts-worker/internal/camera"
	"github.com/clipforge/shorts-worker/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestEvenIntRoundsDownOddValues(t *testing.T) {
	assert.Equal(t, 1080, evenInt(1080))
	assert.Equal(t, 1078, evenInt(1079))
	assert.Equal(t, 2, evenInt(0))
}

func TestMedianCenterInWindowFallsBackWhenNoSamples(t *testing.T) {
	path := camera.Path{}
	x, y := medianCenterInWindow(path, 0, 1, 1000, 2000)
	assert.Equal(t, 500.0, x)
	assert.InDelta(t, 1240.0, y, 1e-9)
}

func TestMedianCenterInWindowUsesMedianOfSamplesInRange(t *testing.T) {
	path := camera.Path{Samples: []models.CenterPoint{
		{T: 0.1, X: 100, Y: 200},
		{T: 0.2, X: 300, Y: 400},
		{T: 0.3, X: 200, Y: 300},
		{T: 5.0, X: 999, Y: 999}, // outside window, must be excluded
	}}
	x, y := medianCenterInWindow(path, 0, 1, 1000, 2000)
	assert.Equal(t, 200.0, x)
	assert.Equal(t, 300.0, y)
}

func TestBuildFilterChainIncludesSubtitlesAndWatermarkWhenEnabled(t *testing.T) {
	req := Request{
		SourcePath:   "in.mp4",
		SubtitlePath: "captions.ass",
		SrcW:         1920,
		SrcH:         1080,
		CropPath:     camera.Path{CropWidth: 608, CropHeight: 1080},
		AspectLabel:  "9:16",
	}
	s := Settings{CRF: 20, Preset: "veryfast", FPS: 30, WatermarkEnabled: true, WatermarkText: "clipforge.ai", WatermarkPulseHz: 0.12, WatermarkPulseAmp: 0.14}
	filter := buildFilterChain(req, 1080, 1920, s, 500, 500, 520, 520, 35)
	assert.Contains(t, filter, "crop=608:1080")
	assert.Contains(t, filter, "scale=1080:1920")
	assert.Contains(t, filter, "subtitles=captions.ass")
	assert.Contains(t, filter, "drawtext=text='clipforge.ai'")
}

func TestBuildFilterChainOmitsWatermarkWhenDisabled(t *testing.T) {
	req := Request{SrcW: 1920, SrcH: 1080, CropPath: camera.Path{CropWidth: 608, CropHeight: 1080}}
	s := Settings{CRF: 20, Preset: "veryfast", FPS: 30, WatermarkEnabled: false}
	filter := buildFilterChain(req, 1080, 1920, s, 0, 0, 0, 0, 35)
	assert.NotContains(t, filter, "drawtext")
}

func TestRenderRejectsUnknownAspectLabel(t *testing.T) {
	req := Request{AspectLabel: "2:1"}
	err := Render(nil, nil, req, Settings{}, 0)
	assert.Error(t, err)
}
