package transcribe

import (
	"testing"

	"github.com/clipforge/shorts-worker/internal/werror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWireOutputDropsSegmentsWithoutWordTiming(t *testing.T) {
	raw := []byte(`{
		"transcription": [
			{"offsets": {"from_seconds": 0, "to_seconds": 2}, "text": "hello there", "tokens": [
				{"text": "hello", "from_seconds": 0.0, "to_seconds": 0.4},
				{"text": "there", "from_seconds": 0.5, "to_seconds": 0.9}
			]},
			{"offsets": {"from_seconds": 2, "to_seconds": 3}, "text": "untimed", "tokens": []}
		]
	}`)

	transcript, err := parseWireOutput(raw)
	require.NoError(t, err)
	require.Len(t, transcript.Segments, 1)
	assert.Equal(t, "hello there", transcript.Segments[0].Text)
	assert.Len(t, transcript.Segments[0].Words, 2)
	assert.Equal(t, "hello", transcript.Segments[0].Words[0].Text)
}

func TestParseWireOutputFiltersSpecialTokens(t *testing.T) {
	raw := []byte(`{
		"transcription": [
			{"offsets": {"from_seconds": 0, "to_seconds": 1}, "text": "ok", "tokens": [
				{"text": "[_BEG_]", "from_seconds": 0.0, "to_seconds": 0.0},
				{"text": " ok", "from_seconds": 0.0, "to_seconds": 0.3}
			]}
		]
	}`)

	transcript, err := parseWireOutput(raw)
	require.NoError(t, err)
	require.Len(t, transcript.Segments, 1)
	require.Len(t, transcript.Segments[0].Words, 1)
	assert.Equal(t, "ok", transcript.Segments[0].Words[0].Text)
}

func TestParseWireOutputMalformedJSONIsTranscribeFailed(t *testing.T) {
	_, err := parseWireOutput([]byte("not json"))
	require.Error(t, err)
	assert.Equal(t, werror.TranscribeFailed, werror.KindOf(err))
}

func TestNewSubprocessTranscriberFailsOnMissingBinary(t *testing.T) {
	_, err := NewSubprocessTranscriber("definitely-not-a-real-whisper-binary", "base", 0)
	require.Error(t, err)
	assert.Equal(t, werror.ConfigError, werror.KindOf(err))
}
