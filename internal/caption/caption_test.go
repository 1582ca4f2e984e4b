package caption

import (
	"strings"
	"testing"

	"github.com/clipforge/shorts-worker/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildBlocksBreaksOnSilenceGap(t *testing.T) {
	words := []models.Word{
		{Start: 0.0, End: 0.3, Text: "one"},
		{Start: 0.35, End: 0.6, Text: "two"},
		{Start: 2.0, End: 2.3, Text: "three"}, // 1.4s gap
	}
	blocks := BuildBlocks(words)
	require.Len(t, blocks, 2)
	assert.Len(t, blocks[0].Words, 2)
	assert.Len(t, blocks[1].Words, 1)
}

func TestBuildBlocksBreaksOnDurationCap(t *testing.T) {
	var words []models.Word
	// 0.05s gaps stay under the silence break; the sixth word ends at 2.95s,
	// past the 2.8s block duration cap.
	for i := 0; i < 10; i++ {
		t := float64(i) * 0.5
		words = append(words, models.Word{Start: t, End: t + 0.45, Text: "w"})
	}
	blocks := BuildBlocks(words)
	require.Greater(t, len(blocks), 1)
}

func TestWrapLinesRespectsCaps(t *testing.T) {
	words := make([]models.Word, 0)
	for i := 0; i < 20; i++ {
		words = append(words, models.Word{Text: "word"})
	}
	lines := WrapLines(words)
	assert.LessOrEqual(t, len(lines), maxLines)
	for _, l := range lines {
		assert.LessOrEqual(t, len(l), maxCharsPerLine+1) // allow for join spacing slack
	}
}

func TestKaraokeTextClampsDuration(t *testing.T) {
	words := []models.Word{
		{Start: 12.34, End: 12.345, Text: "x"}, // 0.005s -> 0 or 0.5cs, clamp up to karaokeMinCS
		{Start: 0, End: 5.0, Text: "y"},        // 500cs, clamp down to karaokeMaxCS
	}
	text := karaokeText(words)
	assert.Contains(t, text, "{\\k2}x")
	assert.Contains(t, text, "{\\k250}y")
}

func TestEscapeTextHandlesReservedCharacters(t *testing.T) {
	assert.Equal(t, `a\\b\{c\}d\Ne`, escapeText("a\\b{c}d\ne"))
}

func TestMarginMultiplierLiftsForLowSubject(t *testing.T) {
	assert.Equal(t, 1.0, marginMultiplier(400, 1000))
	assert.Equal(t, 1.2, marginMultiplier(550, 1000))
	assert.Equal(t, 1.4, marginMultiplier(600, 1000))
}

func TestBuildDocumentProducesValidStructure(t *testing.T) {
	style := models.CaptionStyle{Font: "Arial", FontSize: 64, Outline: 2, Shadow: 1, MarginH: 40, MarginV: 80, Alignment: 2}
	blocks := []Block{
		{Start: 0, End: 1.0, Words: []models.Word{{Start: 0, End: 0.5, Text: "hi"}}},
	}
	doc := BuildDocument(blocks, style, 1080, 1920, 0.5, 1920)
	assert.True(t, strings.HasPrefix(doc, "[Script Info]"))
	assert.Contains(t, doc, "[V4+ Styles]")
	assert.Contains(t, doc, "[Events]")
	assert.Contains(t, doc, "Dialogue: 0,")
	assert.Contains(t, doc, "Dialogue: 1,")
}

func TestAssTimeFormatsHoursMinutesSeconds(t *testing.T) {
	assert.Equal(t, "0:00:12.34", assTime(12.34))
	assert.Equal(t, "1:01:01.00", assTime(3661.0))
}
