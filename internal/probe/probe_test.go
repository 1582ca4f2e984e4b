package probe

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFFprobeOutputReadsRotateTag(t *testing.T) {
	raw := `{
		"streams": [{"width": 1080, "height": 1920, "duration": "12.5", "tags": {"rotate": "90"}}],
		"format": {"duration": "12.5"}
	}`
	var data ffprobeOutput
	require.NoError(t, json.Unmarshal([]byte(raw), &data))

	s0 := data.Streams[0]
	assert.Equal(t, 1080, s0.Width)
	assert.Equal(t, "90", s0.Tags.Rotate)
}

func TestParseFFprobeOutputFallsBackToFormatDuration(t *testing.T) {
	raw := `{
		"streams": [{"width": 1920, "height": 1080, "duration": ""}],
		"format": {"duration": "30.0"}
	}`
	var data ffprobeOutput
	require.NoError(t, json.Unmarshal([]byte(raw), &data))
	assert.Empty(t, data.Streams[0].Duration)
	assert.Equal(t, "30.0", data.Format.Duration)
}
