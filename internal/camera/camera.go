// Package camera computes a smoothed crop-center trajectory that keeps a
// subject inside a fixed-aspect window, per SPEC_FULL.md §4.7.
package camera

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/clipforge/shorts-worker/internal/ffmpegutil"
	"github.com/clipforge/shorts-worker/internal/models"
	"github.com/clipforge/shorts-worker/internal/werror"
)

const (
	sampleFPS    = 4.0
	smoothingAlpha = 0.85
	maxStepPx    = 120.0
	centerBiasY  = 0.58
	neutralMotionScore = 0.60
	sampleConcurrency  = 4
)

// FaceBox is one detected face, in source pixels.
type FaceBox struct {
	CenterX, CenterY float64
	Width, Height    float64
}

// FaceDetector finds faces in a single frame image. The shipped default
// (NoopDetector) reports none, driving every sample to the pose/bias
// fallback described in §4.7.
type FaceDetector interface {
	DetectFaces(ctx context.Context, framePath string) ([]FaceBox, error)
}

// PoseDetector finds a single subject anchor point (e.g. torso centroid)
// when no face was found.
type PoseDetector interface {
	DetectPose(ctx context.Context, framePath string) (x, y float64, found bool, err error)
}

// NoopDetector implements both FaceDetector and PoseDetector with no
// capability, the shipped default in the absence of a computer-vision
// backend (§4.7, §9).
type NoopDetector struct{}

func (NoopDetector) DetectFaces(ctx context.Context, framePath string) ([]FaceBox, error) {
	return nil, nil
}

func (NoopDetector) DetectPose(ctx context.Context, framePath string) (float64, float64, bool, error) {
	return 0, 0, false, nil
}

// Path is the computed crop-center trajectory for one clip.
type Path struct {
	CropWidth, CropHeight float64
	Samples               []models.CenterPoint
	MotionScore           float64
}

// CenterAt linearly interpolates the crop center at time t, clamping to the
// first/last sample outside the sampled range.
func (p Path) CenterAt(t float64) (x, y float64) {
	if len(p.Samples) == 0 {
		return 0, 0
	}
	if t <= p.Samples[0].T {
		return p.Samples[0].X, p.Samples[0].Y
	}
	last := p.Samples[len(p.Samples)-1]
	if t >= last.T {
		return last.X, last.Y
	}
	for i := 1; i < len(p.Samples); i++ {
		if p.Samples[i].T >= t {
			a, b := p.Samples[i-1], p.Samples[i]
			frac := (t - a.T) / (b.T - a.T)
			return a.X + frac*(b.X-a.X), a.Y + frac*(b.Y-a.Y)
		}
	}
	return last.X, last.Y
}

// Build samples faces/pose over [0, duration), smooths the result, and
// returns a bounded, interpolatable Path for a crop window of the given
// target aspect against a srcW x srcH source.
func Build(ctx context.Context, tc *ffmpegutil.Toolchain, videoPath, scratchDir string, srcW, srcH int, clipStart, duration, targetAspect float64, faceDet FaceDetector, poseDet PoseDetector, frameTimeout time.Duration) (Path, error) {
	cropW, cropH := coverCropSize(float64(srcW), float64(srcH), targetAspect)

	var times []float64
	for t := 0.0; t < duration; t += 1.0 / sampleFPS {
		times = append(times, t)
	}
	if len(times) == 0 {
		times = []float64{0}
	}

	rawCenters := make([]models.CenterPoint, len(times))
	detected := make([]bool, len(times))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sampleConcurrency)
	for i, t := range times {
		i, t := i, t
		g.Go(func() error {
			x, y, found, err := sampleCenter(gctx, tc, videoPath, scratchDir, i, clipStart+t, float64(srcW), float64(srcH), faceDet, poseDet, frameTimeout)
			if err != nil {
				return err
			}
			rawCenters[i] = models.CenterPoint{T: t, X: x, Y: y}
			detected[i] = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Path{}, werror.Wrap(werror.CorruptMedia, "camera", err, "sampling crop centers")
	}

	sort.Slice(rawCenters, func(i, j int) bool { return rawCenters[i].T < rawCenters[j].T })

	anyDetected := false
	for _, d := range detected {
		if d {
			anyDetected = true
			break
		}
	}

	samples := smoothAndClamp(rawCenters, float64(srcW), float64(srcH), cropW, cropH)
	motion := motionScore(samples, anyDetected)

	return Path{CropWidth: cropW, CropHeight: cropH, Samples: samples, MotionScore: motion}, nil
}

func coverCropSize(srcW, srcH, targetAspect float64) (w, h float64) {
	srcAspect := srcW / srcH
	if srcAspect > targetAspect {
		// Source is wider than target: full height, narrower width.
		h = srcH
		w = h * targetAspect
	} else {
		w = srcW
		h = w / targetAspect
	}
	return w, h
}

// sampleCenter returns the chosen crop center for one sampled frame and
// whether it came from a real face/pose detection, as opposed to the
// constant center-bias fallback used when no detector reports anything.
func sampleCenter(ctx context.Context, tc *ffmpegutil.Toolchain, videoPath, scratchDir string, index int, t, srcW, srcH float64, faceDet FaceDetector, poseDet PoseDetector, timeout time.Duration) (x, y float64, detected bool, err error) {
	framePath := filepath.Join(scratchDir, fmt.Sprintf("sample-%04d.jpg", index))
	_, err = tc.RunFFmpeg(ctx, timeout,
		"-y",
		"-ss", fmt.Sprintf("%.3f", t),
		"-i", videoPath,
		"-frames:v", "1",
		"-q:v", "2",
		framePath,
	)
	if err != nil {
		return 0, 0, false, err
	}
	defer os.Remove(framePath)

	if faces, ferr := faceDet.DetectFaces(ctx, framePath); ferr == nil && len(faces) > 0 {
		largest := faces[0]
		for _, f := range faces[1:] {
			if f.Width*f.Height > largest.Width*largest.Height {
				largest = f
			}
		}
		return largest.CenterX, largest.CenterY, true, nil
	}

	if px, py, found, perr := poseDet.DetectPose(ctx, framePath); perr == nil && found {
		return px, py, true, nil
	}

	return srcW / 2, srcH * centerBiasY, false, nil
}

// smoothAndClamp applies the per-sample step clamp, the exponential
// smoothing filter, and the in-bounds clamp, in that order, per §4.7.
func smoothAndClamp(raw []models.CenterPoint, srcW, srcH, cropW, cropH float64) []models.CenterPoint {
	if len(raw) == 0 {
		return nil
	}

	out := make([]models.CenterPoint, len(raw))
	prevX, prevY := raw[0].X, raw[0].Y
	smoothX, smoothY := prevX, prevY

	for i, r := range raw {
		stepX := clampStep(r.X-prevX, maxStepPx)
		stepY := clampStep(r.Y-prevY, maxStepPx)
		cx := prevX + stepX
		cy := prevY + stepY
		prevX, prevY = cx, cy

		if i == 0 {
			smoothX, smoothY = cx, cy
		} else {
			smoothX = smoothingAlpha*smoothX + (1-smoothingAlpha)*cx
			smoothY = smoothingAlpha*smoothY + (1-smoothingAlpha)*cy
		}

		boundedX, boundedY := clampToBounds(smoothX, smoothY, srcW, srcH, cropW, cropH)
		out[i] = models.CenterPoint{T: r.T, X: boundedX, Y: boundedY}
	}
	return out
}

func clampStep(delta, max float64) float64 {
	if delta > max {
		return max
	}
	if delta < -max {
		return -max
	}
	return delta
}

func clampToBounds(x, y, srcW, srcH, cropW, cropH float64) (float64, float64) {
	halfW, halfH := cropW/2, cropH/2
	if x < halfW {
		x = halfW
	}
	if x > srcW-halfW {
		x = srcW - halfW
	}
	if y < halfH {
		y = halfH
	}
	if y > srcH-halfH {
		y = srcH - halfH
	}
	return x, y
}

// motionScore reports a smoothness score in [0,1] from the path's velocity
// and jerk magnitude: smoother (slower-changing) paths score higher. Per
// §4.7, a path built with no detection capability at all reports the
// neutral score unconditionally — its samples are a perfectly constant
// center-bias fallback, which the velocity/jerk formula would otherwise
// (wrongly) read as a maximally smooth, high-scoring path. The same neutral
// score covers paths too short to compute velocity/jerk from.
func motionScore(samples []models.CenterPoint, anyDetected bool) float64 {
	if !anyDetected || len(samples) < 3 {
		return neutralMotionScore
	}

	var velocities []float64
	for i := 1; i < len(samples); i++ {
		dt := samples[i].T - samples[i-1].T
		if dt <= 0 {
			continue
		}
		dx := samples[i].X - samples[i-1].X
		dy := samples[i].Y - samples[i-1].Y
		velocities = append(velocities, math.Hypot(dx, dy)/dt)
	}
	if len(velocities) < 2 {
		return neutralMotionScore
	}

	var jerks []float64
	for i := 1; i < len(velocities); i++ {
		jerks = append(jerks, math.Abs(velocities[i]-velocities[i-1]))
	}

	avgVelocity := mean(velocities)
	avgJerk := mean(jerks)

	// Normalize both terms so a rate of maxStepPx per sample interval maps
	// to 1: a path moving steadily at that rate scores 0.5, and only paths
	// whose speed also swings sharply between samples score lower.
	velNorm := clamp01(avgVelocity / (maxStepPx * sampleFPS))
	jerkNorm := clamp01(avgJerk / (maxStepPx * sampleFPS))

	return clamp01(1 - 0.5*velNorm - 0.5*jerkNorm)
}

func mean(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
