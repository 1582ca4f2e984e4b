// Package render synthesizes one output MP4 per selected clip plan: crop,
// pan, scale, subtitles, and watermark, per SPEC_FULL.md §4.10.
package render

import (
	"context"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/clipforge/shorts-worker/internal/camera"
	"github.com/clipforge/shorts-worker/internal/ffmpegutil"
	"github.com/clipforge/shorts-worker/internal/werror"
)

// OutputDims maps an aspect label to its output pixel dimensions, per
// §4.10 step 1. All dimensions are even, as libx264 requires.
var OutputDims = map[string][2]int{
	"9:16": {1080, 1920},
	"1:1":  {1080, 1080},
	"4:5":  {1080, 1350},
	"16:9": {1920, 1080},
	"4:3":  {1440, 1080},
}

// Settings bundles the encode knobs threaded from config.Config.
type Settings struct {
	CRF    int
	Preset string
	FPS    int

	WatermarkText     string
	WatermarkEnabled  bool
	WatermarkPulseHz  float64
	WatermarkPulseAmp float64
}

// Request is everything one Render call needs for a single clip.
type Request struct {
	SourcePath    string
	OutputPath    string
	SubtitlePath  string // "" disables burned-in captions
	Start, End    float64
	CropPath      camera.Path
	SrcW, SrcH    int
	AspectLabel   string
}

// Render shells ffmpeg to produce one H.264/AAC MP4 for the given clip
// plan, applying the crop→pan→scale→fps→subtitles→watermark filter chain.
// Empty output is fatal.
func Render(ctx context.Context, tc *ffmpegutil.Toolchain, req Request, s Settings, timeout time.Duration) error {
	dims, ok := OutputDims[req.AspectLabel]
	if !ok {
		return werror.New(werror.ConfigError, "render", fmt.Sprintf("unknown aspect label %q", req.AspectLabel))
	}
	outW, outH := dims[0], dims[1]

	duration := req.End - req.Start
	if duration <= 0 {
		return werror.New(werror.EncodeFailed, "render", "non-positive clip duration")
	}

	// Camera path samples carry clip-relative times, so the windows are
	// taken over [0, duration] rather than the source-absolute range.
	x0, y0 := earlyCenter(req.CropPath, 0, duration, float64(req.SrcW), float64(req.SrcH))
	x1, y1 := lateCenter(req.CropPath, 0, duration, float64(req.SrcW), float64(req.SrcH))

	filter := buildFilterChain(req, outW, outH, s, x0, y0, x1, y1, duration)

	args := []string{
		"-y",
		"-ss", fmt.Sprintf("%.3f", req.Start),
		"-i", req.SourcePath,
		"-t", fmt.Sprintf("%.3f", duration),
		"-vf", filter,
		"-c:v", "libx264",
		"-profile:v", "high",
		"-pix_fmt", "yuv420p",
		"-crf", fmt.Sprintf("%d", s.CRF),
		"-preset", s.Preset,
		"-c:a", "aac",
		"-b:a", "128k",
		"-movflags", "+faststart",
		req.OutputPath,
	}

	if _, err := tc.RunFFmpeg(ctx, timeout, args...); err != nil {
		return werror.Wrap(werror.EncodeFailed, "render", err, "encoding clip")
	}

	info, err := os.Stat(req.OutputPath)
	if err != nil || info.Size() == 0 {
		return werror.New(werror.EncodeFailed, "render", "empty render output")
	}
	return nil
}

func buildFilterChain(req Request, outW, outH int, s Settings, x0, y0, x1, y1, duration float64) string {
	cropW := evenInt(req.CropPath.CropWidth)
	cropH := evenInt(req.CropPath.CropHeight)

	// crop's x/y are the window's top-left corner; the inputs are centers.
	halfW, halfH := float64(cropW)/2, float64(cropH)/2
	xExpr := panExpr(x0-halfW, x1-halfW, duration, float64(req.SrcW)-float64(cropW))
	yExpr := panExpr(y0-halfH, y1-halfH, duration, float64(req.SrcH)-float64(cropH))

	stages := []string{
		fmt.Sprintf("crop=%d:%d:%s:%s", cropW, cropH, xExpr, yExpr),
		fmt.Sprintf("scale=%d:%d", outW, outH),
		fmt.Sprintf("fps=%d", s.FPS),
	}
	if req.SubtitlePath != "" {
		stages = append(stages, fmt.Sprintf("subtitles=%s", escapeFilterPath(req.SubtitlePath)))
	}
	if s.WatermarkEnabled && s.WatermarkText != "" {
		stages = append(stages, watermarkExpr(s, outW, outH))
	}
	return strings.Join(stages, ",")
}

// panExpr builds a linear pan expression x(t) = x0 + (x1-x0)*clamp(t/dur,0,1),
// with the endpoint clamped to keep the crop window inside source bounds.
func panExpr(a, b, duration, maxCoord float64) string {
	a = clampCoord(a, maxCoord)
	b = clampCoord(b, maxCoord)
	return fmt.Sprintf("%d+(%d-%d)*clip(t/%.4f\\,0\\,1)", int(a), int(b), int(a), duration)
}

func clampCoord(v, max float64) float64 {
	if v < 0 {
		return 0
	}
	if max >= 0 && v > max {
		return max
	}
	return v
}

// watermarkExpr is a drawtext layer that pulses alpha slowly, drifts along a
// bounded Lissajous-like path, and scales font size with output height.
func watermarkExpr(s Settings, outW, outH int) string {
	fontSize := int(float64(outH) * 0.03)
	padX := outW / 20
	padY := outH / 20
	ampX := outW/10 - padX
	ampY := outH/20 - padY
	if ampX < 0 {
		ampX = 0
	}
	if ampY < 0 {
		ampY = 0
	}

	alphaExpr := fmt.Sprintf("0.5+%.3f*sin(2*PI*%.4f*t)", s.WatermarkPulseAmp, s.WatermarkPulseHz)
	xExpr := fmt.Sprintf("%d+%d*sin(2*PI*0.05*t)", padX, ampX)
	yExpr := fmt.Sprintf("%d+%d*sin(2*PI*0.07*t+1)", padY, ampY)

	return fmt.Sprintf("drawtext=text='%s':fontsize=%d:fontcolor=white@%s:x=%s:y=%s:box=1:boxcolor=black@0.25:boxborderw=8",
		escapeDrawtext(s.WatermarkText), fontSize, alphaExpr, xExpr, yExpr)
}

func escapeDrawtext(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `:`, `\:`)
	s = strings.ReplaceAll(s, `'`, `\'`)
	return s
}

func escapeFilterPath(path string) string {
	path = strings.ReplaceAll(path, `\`, `\\`)
	path = strings.ReplaceAll(path, `:`, `\:`)
	return path
}

func evenInt(v float64) int {
	n := int(math.Round(v))
	if n%2 != 0 {
		n--
	}
	if n < 2 {
		n = 2
	}
	return n
}

// earlyCenter/lateCenter sample the camera path's median center over the
// first/last one-second window inside [start, end], falling back to
// horizontal center / 0.62*h when the path has no samples in range.
func earlyCenter(path camera.Path, start, end, srcW float64, srcH float64) (float64, float64) {
	windowEnd := start + 1.0
	if windowEnd > end {
		windowEnd = end
	}
	return medianCenterInWindow(path, start, windowEnd, srcW, srcH)
}

func lateCenter(path camera.Path, start, end, srcW float64, srcH float64) (float64, float64) {
	windowStart := end - 1.0
	if windowStart < start {
		windowStart = start
	}
	return medianCenterInWindow(path, windowStart, end, srcW, srcH)
}

func medianCenterInWindow(path camera.Path, lo, hi, srcW, srcH float64) (float64, float64) {
	var xs, ys []float64
	for _, sample := range path.Samples {
		if sample.T >= lo && sample.T <= hi {
			xs = append(xs, sample.X)
			ys = append(ys, sample.Y)
		}
	}
	if len(xs) == 0 {
		return srcW / 2, srcH * 0.62
	}
	return median(xs), median(ys)
}

func median(vs []float64) float64 {
	sorted := append([]float64(nil), vs...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1] > sorted[j]; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
