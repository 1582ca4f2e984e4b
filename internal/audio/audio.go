// Package audio extracts mono 16 kHz PCM from a source container, detects
// silence intervals, and scores the source audio's dynamic range, per SPEC_FULL.md
// §4.4.
package audio

import (
	"context"
	"fmt"
	"math"
	"os"
	"sort"
	"time"

	"github.com/go-audio/wav"

	"github.com/clipforge/shorts-worker/internal/ffmpegutil"
	"github.com/clipforge/shorts-worker/internal/models"
	"github.com/clipforge/shorts-worker/internal/werror"
)

const (
	sampleRate   = 16000
	windowSeconds = 0.05 // ~50ms RMS windows, per §4.4.3
)

// ExtractPCM shells ffmpeg to produce a mono, 16 kHz, 16-bit signed WAV at
// outPath. Empty output is fatal.
func ExtractPCM(ctx context.Context, tc *ffmpegutil.Toolchain, videoPath, outPath string, timeout time.Duration) error {
	_, err := tc.RunFFmpeg(ctx, timeout,
		"-y",
		"-i", videoPath,
		"-vn",
		"-acodec", "pcm_s16le",
		"-ar", fmt.Sprintf("%d", sampleRate),
		"-ac", "1",
		outPath,
	)
	if err != nil {
		return werror.Wrap(werror.CorruptMedia, "audio", err, "extracting PCM")
	}

	info, err := os.Stat(outPath)
	if err != nil || info.Size() == 0 {
		return werror.New(werror.CorruptMedia, "audio", "empty PCM output")
	}
	return nil
}

// Analysis bundles the silence intervals and energy score computed from one
// WAV file.
type Analysis struct {
	Silences    []models.Interval
	EnergyScore float64
}

// Analyze decodes wavPath and computes silence intervals (below silenceDB
// for at least silenceMinDur seconds) and the energy score described in
// §4.4.3: RMS per ~50ms window, sorted, spread between the 10th and 90th
// percentile divided by the 90th percentile.
func Analyze(wavPath string, silenceDB, silenceMinDur float64) (Analysis, error) {
	f, err := os.Open(wavPath)
	if err != nil {
		return Analysis{}, werror.Wrap(werror.CorruptMedia, "audio", err, "opening wav")
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		return Analysis{}, werror.New(werror.CorruptMedia, "audio", "invalid wav file")
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return Analysis{}, werror.Wrap(werror.CorruptMedia, "audio", err, "decoding wav")
	}
	if buf == nil || len(buf.Data) == 0 {
		return Analysis{}, werror.New(werror.CorruptMedia, "audio", "empty PCM output")
	}

	rate := buf.Format.SampleRate
	if rate <= 0 {
		rate = sampleRate
	}
	windowSamples := int(float64(rate) * windowSeconds)
	if windowSamples < 1 {
		windowSamples = 1
	}

	type window struct {
		start, end float64
		rms        float64
		db         float64
	}
	var windows []window

	for start := 0; start < len(buf.Data); start += windowSamples {
		end := start + windowSamples
		if end > len(buf.Data) {
			end = len(buf.Data)
		}
		sum := 0.0
		for i := start; i < end; i++ {
			v := float64(buf.Data[i]) / math.MaxInt16
			sum += v * v
		}
		rms := math.Sqrt(sum / float64(end-start))
		db := rmsToDB(rms)
		windows = append(windows, window{
			start: float64(start) / float64(rate),
			end:   float64(end) / float64(rate),
			rms:   rms,
			db:    db,
		})
	}

	// Silence detection: consecutive windows below threshold merge into one interval.
	var silences []models.Interval
	var curStart float64
	inSilence := false
	for _, w := range windows {
		below := w.db < silenceDB
		switch {
		case below && !inSilence:
			inSilence = true
			curStart = w.start
		case !below && inSilence:
			inSilence = false
			if w.start-curStart >= silenceMinDur {
				silences = append(silences, models.Interval{Start: curStart, End: w.start})
			}
		}
	}
	if inSilence {
		last := windows[len(windows)-1].end
		if last-curStart >= silenceMinDur {
			silences = append(silences, models.Interval{Start: curStart, End: last})
		}
	}

	// Energy score: percentile spread of RMS, normalized by the 90th percentile.
	rmsValues := make([]float64, len(windows))
	for i, w := range windows {
		rmsValues[i] = w.rms
	}
	sort.Float64s(rmsValues)

	p10 := percentile(rmsValues, 0.10)
	p90 := percentile(rmsValues, 0.90)
	score := 0.0
	if p90 > 0 {
		score = (p90 - p10) / p90
	}
	score = clamp(score, 0, 1)

	return Analysis{Silences: silences, EnergyScore: score}, nil
}

func rmsToDB(rms float64) float64 {
	if rms <= 0 {
		return -120
	}
	return 20 * math.Log10(rms)
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p * float64(len(sorted)-1))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
