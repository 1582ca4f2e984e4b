package audio

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTestWAV synthesizes a mono 16kHz WAV: silence, then a 440Hz tone,
// then silence again, each lasting secs seconds.
func writeTestWAV(t *testing.T, path string, secs float64) {
	t.Helper()

	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	n := int(secs * sampleRate)

	silence := make([]int, n)
	tone := make([]int, n)
	for i := range tone {
		tone[i] = int(20000 * math.Sin(2*math.Pi*440*float64(i)/sampleRate))
	}

	for _, chunk := range [][]int{silence, tone, silence} {
		buf := &audio.IntBuffer{
			Format: &audio.Format{NumChannels: 1, SampleRate: sampleRate},
			Data:   chunk,
		}
		require.NoError(t, enc.Write(buf))
	}
	require.NoError(t, enc.Close())
}

func TestAnalyzeDetectsSilenceAroundTone(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.wav")
	writeTestWAV(t, path, 1.0)

	result, err := Analyze(path, -35, 0.35)
	require.NoError(t, err)

	require.NotEmpty(t, result.Silences)
	// The leading silence interval should start at (or near) t=0.
	assert.InDelta(t, 0, result.Silences[0].Start, 0.2)
	assert.Greater(t, result.EnergyScore, 0.0)
}

func TestAnalyzeRejectsMissingFile(t *testing.T) {
	_, err := Analyze("/nonexistent/path.wav", -35, 0.35)
	require.Error(t, err)
}

func TestRmsToDBFloorsAtSilence(t *testing.T) {
	assert.Equal(t, -120.0, rmsToDB(0))
	assert.Less(t, rmsToDB(0.5), 0.0)
}

func TestPercentileClampsToBounds(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5}
	assert.Equal(t, 1.0, percentile(values, 0))
	assert.Equal(t, 5.0, percentile(values, 1))
}
