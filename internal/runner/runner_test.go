package runner

import (
	"testing"

	"github.com/clipforge/shorts-worker/internal/camera"
	"github.com/clipforge/shorts-worker/internal/config"
	"github.com/clipforge/shorts-worker/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestAspectValueKnownAndUnknownLabels(t *testing.T) {
	assert.InDelta(t, 9.0/16.0, aspectValue("9:16"), 1e-9)
	assert.InDelta(t, 9.0/16.0, aspectValue("not-a-label"), 1e-9)
	assert.InDelta(t, 1.0, aspectValue("1:1"), 1e-9)
}

func TestShiftWordsAppliesDelta(t *testing.T) {
	words := []models.Word{{Start: 10, End: 11, Text: "hi"}}
	shifted := shiftWords(words, -10)
	assert.Equal(t, 0.0, shifted[0].Start)
	assert.Equal(t, 1.0, shifted[0].End)
}

func TestMedianPathYTakesMedianOfSamples(t *testing.T) {
	path := camera.Path{Samples: []models.CenterPoint{{Y: 100}, {Y: 200}}}
	assert.Equal(t, 150.0, medianPathY(path))
	assert.Equal(t, 0.0, medianPathY(camera.Path{}))
}

func TestCaptionStyleFallsBackOnMissingOrInvalidJSON(t *testing.T) {
	cfg := &config.Config{CaptionFont: "Arial", CaptionFontSize: 64}
	style := captionStyle(nil, cfg)
	assert.Equal(t, "Arial", style.Font)
	assert.Equal(t, 64, style.FontSize)

	bad := "not json"
	style = captionStyle(&bad, cfg)
	assert.Equal(t, "Arial", style.Font)
}

func TestCaptionStyleAppliesOverrides(t *testing.T) {
	cfg := &config.Config{CaptionFont: "Arial", CaptionFontSize: 64}
	raw := `{"Font": "Impact", "FontSize": 72}`
	style := captionStyle(&raw, cfg)
	assert.Equal(t, "Impact", style.Font)
	assert.Equal(t, 72, style.FontSize)
}

func TestHeuristicTitleTruncatesToEightWords(t *testing.T) {
	words := make([]models.Word, 0)
	for i := 0; i < 20; i++ {
		words = append(words, models.Word{Text: "word"})
	}
	title := HeuristicTitle(models.ClipPlan{Words: words})
	assert.Contains(t, title, "…")
}

func TestHeuristicTitleEmptyWordsReturnsEmpty(t *testing.T) {
	assert.Equal(t, "", HeuristicTitle(models.ClipPlan{}))
}
