// Package runner orchestrates one job's full pipeline run: download,
// preflight, billing, audio, transcription, segmentation, reframing,
// scoring, rendering, and persistence, per SPEC_FULL.md §4.11.
package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clipforge/shorts-worker/internal/artifact"
	"github.com/clipforge/shorts-worker/internal/audio"
	"github.com/clipforge/shorts-worker/internal/billing"
	"github.com/clipforge/shorts-worker/internal/camera"
	"github.com/clipforge/shorts-worker/internal/caption"
	"github.com/clipforge/shorts-worker/internal/config"
	"github.com/clipforge/shorts-worker/internal/ffmpegutil"
	"github.com/clipforge/shorts-worker/internal/jobstore"
	"github.com/clipforge/shorts-worker/internal/logging"
	"github.com/clipforge/shorts-worker/internal/metrics"
	"github.com/clipforge/shorts-worker/internal/models"
	"github.com/clipforge/shorts-worker/internal/probe"
	"github.com/clipforge/shorts-worker/internal/render"
	"github.com/clipforge/shorts-worker/internal/score"
	"github.com/clipforge/shorts-worker/internal/segment"
	"github.com/clipforge/shorts-worker/internal/transcribe"
	"github.com/clipforge/shorts-worker/internal/werror"
)

// Runner bundles every stage dependency, each constructed once at process
// start, per §9's explicit-init rule.
type Runner struct {
	Store        *jobstore.Store
	Artifacts    artifact.Store
	Toolchain    *ffmpegutil.Toolchain
	Transcriber  transcribe.Transcriber
	FaceDetector camera.FaceDetector
	PoseDetector camera.PoseDetector
	Titles       TitleGenerator
	Cfg          *config.Config
	Log          *zap.Logger
	Metrics      *metrics.Metrics
}

// Run executes one claimed job end to end, converting any stage failure
// into a terminal 'failed' status with a best-effort credits refund, per
// §7's error handling design.
func (r *Runner) Run(ctx context.Context, jobID int64) error {
	stageStart := time.Now()
	jwu, err := r.Store.LoadJobWithUpload(ctx, jobID)
	if err != nil {
		return err
	}

	log := r.Log.With(logging.StageFields(fmt.Sprintf("%d", jobID), "load")...)

	scratchDir := filepath.Join(r.Cfg.TmpDir, uuid.New().String())
	if err := os.MkdirAll(scratchDir, 0o755); err != nil {
		return werror.Wrap(werror.ConfigError, "scratch", err, "creating scratch dir")
	}
	defer os.RemoveAll(scratchDir)

	stopHeartbeat := r.startHeartbeat(ctx, jobID)
	defer stopHeartbeat()

	var billedCredits int
	billed := false

	runErr := r.runStages(ctx, jobID, jwu, scratchDir, log, &billedCredits, &billed)

	if runErr != nil {
		kind := werror.KindOf(runErr)
		msg := werror.Truncate(runErr.Error(), 2000)
		if billed {
			if refundErr := billing.Refund(ctx, r.Store.DB(), jwu.Upload.UserID, billedCredits); refundErr != nil {
				log.Warn("credits refund failed", zap.Error(refundErr), zap.Int64("job_id", jobID))
				msg = msg + fmt.Sprintf(" (refund failed: %v)", refundErr)
			}
		}
		if err := r.Store.SetStatus(ctx, jobID, models.StatusFailed, &msg); err != nil {
			log.Error("failed to record terminal failure", zap.Error(err))
		}
		r.Metrics.JobsFailed.WithLabelValues(string(kind)).Inc()
		return runErr
	}

	if err := r.Store.SetStatus(ctx, jobID, models.StatusDone, nil); err != nil {
		log.Error("failed to record completion", zap.Error(err))
	}
	r.Metrics.JobsSucceeded.Inc()
	r.Metrics.StageDuration.WithLabelValues("job").Observe(time.Since(stageStart).Seconds())
	return nil
}

func (r *Runner) runStages(ctx context.Context, jobID int64, jwu models.JobWithUpload, scratchDir string, log *zap.Logger, billedCredits *int, billed *bool) error {
	setStage := func(stage string) error { return r.Store.SetStatus(ctx, jobID, models.RunningStage(stage), nil) }

	// download
	if err := setStage("download"); err != nil {
		return err
	}
	sourcePath := filepath.Join(scratchDir, "source.mp4")
	if err := r.download(ctx, jwu.Upload.StorageKey, sourcePath); err != nil {
		return err
	}

	// preflight
	if err := setStage("preflight"); err != nil {
		return err
	}
	info, err := os.Stat(sourcePath)
	if err != nil {
		return werror.Wrap(werror.CorruptMedia, "preflight", err, "statting downloaded source")
	}
	if info.Size() > r.Cfg.MaxSourceBytes {
		return werror.New(werror.CorruptMedia, "preflight", "source exceeds max allowed size")
	}
	probeResult, err := probe.Probe(ctx, r.Toolchain, sourcePath, r.Cfg.ProbeTimeout)
	if err != nil {
		return err
	}

	// billing
	if err := setStage("billing"); err != nil {
		return err
	}
	*billedCredits = billing.RequiredCredits(probeResult.Duration, r.Cfg.CreditsPerMinute, r.Cfg.MinCreditsPerJob)
	if err := billing.Debit(ctx, r.Store.DB(), jwu.Upload.UserID, *billedCredits); err != nil {
		return err
	}
	*billed = true

	// audio
	if err := setStage("audio"); err != nil {
		return err
	}
	wavPath := filepath.Join(scratchDir, "audio.wav")
	if err := audio.ExtractPCM(ctx, r.Toolchain, sourcePath, wavPath, r.Cfg.AudioExtractTimeout); err != nil {
		return err
	}
	audioAnalysis, err := audio.Analyze(wavPath, r.Cfg.SilenceDB, r.Cfg.SilenceMinDur)
	if err != nil {
		return err
	}

	// transcribe
	if err := setStage("transcribe"); err != nil {
		return err
	}
	transcript, err := r.Transcriber.Transcribe(ctx, wavPath)
	if err != nil {
		return err
	}

	// segment
	if err := setStage("segment"); err != nil {
		return err
	}
	utterances := segment.BuildUtterances(transcript.Words())
	tuning := segment.Tuning{
		MinSeconds:    r.Cfg.ClipMinSeconds,
		TargetSeconds: r.Cfg.ClipTargetSeconds,
		MaxSeconds:    r.Cfg.ClipMaxSeconds,
		MaxGapMerge:   r.Cfg.MaxGapMerge,
	}
	plans := segment.BuildPlans(utterances, audioAnalysis.Silences, tuning, probeResult.Duration)

	targetAspect := aspectValue(jwu.Job.AspectRatio)

	// reframe
	if err := setStage("reframe"); err != nil {
		return err
	}
	paths := make([]camera.Path, len(plans))
	for i, plan := range plans {
		p, err := camera.Build(ctx, r.Toolchain, sourcePath, scratchDir,
			probeResult.DisplayWidth, probeResult.DisplayHeight,
			plan.Start, plan.Duration(), targetAspect,
			r.FaceDetector, r.PoseDetector, r.Cfg.ProbeTimeout)
		if err != nil {
			return err
		}
		paths[i] = p
	}

	// score
	if err := setStage("score"); err != nil {
		return err
	}
	scored := make([]models.ScoredPlan, len(plans))
	for i, plan := range plans {
		scored[i] = score.Score(plan, r.Cfg.ClipTargetSeconds, audioAnalysis.EnergyScore, paths[i].MotionScore, audioAnalysis.Silences)
	}
	selected := score.Select(scored, r.Cfg.TopKClips)

	selectedPaths := make([]camera.Path, len(selected))
	for i, sp := range selected {
		for j, plan := range plans {
			if plan.Start == sp.Plan.Start && plan.End == sp.Plan.End {
				selectedPaths[i] = paths[j]
				break
			}
		}
	}

	// render
	if err := setStage("render"); err != nil {
		return err
	}
	style := captionStyle(jwu.Job.CaptionStyleJSON, r.Cfg)
	watermarkEnabled := r.Cfg.WatermarkEnabled && (jwu.Job.WatermarkEnabled || jwu.User.IsFree())

	// Re-rendering a job replaces its clip rows rather than adding to them.
	if _, err := r.Store.DB().ExecContext(ctx, `DELETE FROM clips WHERE job_id = $1`, jobID); err != nil {
		return werror.Wrap(werror.DBFailure, "persist", err, "clearing previous clip rows")
	}

	for i, sp := range selected {
		if err := r.renderOne(ctx, jobID, i, jwu, sp, selectedPaths[i], sourcePath, scratchDir, probeResult, targetAspect, style, watermarkEnabled, log); err != nil {
			return err
		}
	}

	return nil
}

func (r *Runner) renderOne(ctx context.Context, jobID int64, index int, jwu models.JobWithUpload, sp models.ScoredPlan, path camera.Path, sourcePath, scratchDir string, probeResult probe.Result, targetAspect float64, style models.CaptionStyle, watermarkEnabled bool, log *zap.Logger) error {
	clipID := uuid.New().String()
	outPath := filepath.Join(scratchDir, clipID+".mp4")

	subtitlePath := ""
	if jwu.Job.CaptionsEnabled {
		subtitlePath = filepath.Join(scratchDir, clipID+".ass")
		clipRelativeWords := shiftWords(sp.Plan.Words, -sp.Plan.Start)
		blocks := caption.BuildBlocks(clipRelativeWords)
		dims := render.OutputDims[jwu.Job.AspectRatio]
		medianY := medianPathY(path)
		doc := caption.BuildDocument(blocks, style, dims[0], dims[1], medianY, float64(probeResult.DisplayHeight))
		if err := os.WriteFile(subtitlePath, []byte(doc), 0o644); err != nil {
			return werror.Wrap(werror.EncodeFailed, "caption", err, "writing subtitle file")
		}
	}

	req := render.Request{
		SourcePath:   sourcePath,
		OutputPath:   outPath,
		SubtitlePath: subtitlePath,
		Start:        sp.Plan.Start,
		End:          sp.Plan.End,
		CropPath:     path,
		SrcW:         probeResult.DisplayWidth,
		SrcH:         probeResult.DisplayHeight,
		AspectLabel:  jwu.Job.AspectRatio,
	}
	settings := render.Settings{
		CRF:               r.Cfg.RenderCRF,
		Preset:            r.Cfg.RenderPreset,
		FPS:               r.Cfg.RenderFPS,
		WatermarkText:     r.Cfg.WatermarkText,
		WatermarkEnabled:  watermarkEnabled,
		WatermarkPulseHz:  r.Cfg.WatermarkPulseHz,
		WatermarkPulseAmp: r.Cfg.WatermarkPulseAmp,
	}
	if err := render.Render(ctx, r.Toolchain, req, settings, r.Cfg.RenderTimeout); err != nil {
		return err
	}
	r.Metrics.ClipsRendered.Inc()

	title := r.Titles.Title(ctx, sp.Plan)

	storageKey := fmt.Sprintf("users/%d/clips/%d/%02d_%s.mp4", jwu.Upload.UserID, jobID, index, strings.ReplaceAll(clipID, "-", "")[:10])
	f, err := os.Open(outPath)
	if err != nil {
		return werror.Wrap(werror.EncodeFailed, "persist", err, "opening rendered clip")
	}
	defer f.Close()
	if err := r.Artifacts.Save(ctx, storageKey, f); err != nil {
		return werror.Wrap(werror.StorageUnavailable, "persist", err, "saving rendered clip")
	}

	if err := r.insertClip(ctx, jwu.Upload.ID, jobID, storageKey, sp.Plan.Start, sp.Plan.End, title); err != nil {
		return err
	}

	log.Info("clip rendered", zap.String("clip_id", clipID), zap.Float64("quality", sp.Quality))
	return nil
}

func (r *Runner) insertClip(ctx context.Context, uploadID, jobID int64, storageKey string, start, end float64, title string) error {
	_, err := r.Store.DB().ExecContext(ctx, `
		INSERT INTO clips (upload_id, job_id, storage_key, start_time, end_time, duration, title)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, uploadID, jobID, storageKey, start, end, end-start, title)
	if err != nil {
		return werror.Wrap(werror.DBFailure, "persist", err, "inserting clip row")
	}
	return nil
}

func (r *Runner) download(ctx context.Context, storageKey, destPath string) error {
	src, err := r.Artifacts.Open(ctx, storageKey)
	if err != nil {
		if artifact.IsNotFound(err) {
			return werror.Wrap(werror.StorageUnavailable, "download", err, "source upload not found")
		}
		return werror.Wrap(werror.StorageUnavailable, "download", err, "opening source upload")
	}
	defer src.Close()

	dst, err := os.Create(destPath)
	if err != nil {
		return werror.Wrap(werror.ConfigError, "download", err, "creating scratch destination")
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return werror.Wrap(werror.StorageUnavailable, "download", err, "copying source upload")
	}
	return nil
}

// startHeartbeat launches a ticker that beats the job row every
// HeartbeatInterval until the returned stop function is called.
func (r *Runner) startHeartbeat(ctx context.Context, jobID int64) func() {
	hbCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(r.Cfg.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-hbCtx.Done():
				return
			case <-ticker.C:
				r.Store.Heartbeat(ctx, jobID)
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func aspectValue(label string) float64 {
	dims, ok := render.OutputDims[label]
	if !ok {
		return 9.0 / 16.0
	}
	return float64(dims[0]) / float64(dims[1])
}

func shiftWords(words []models.Word, delta float64) []models.Word {
	out := make([]models.Word, len(words))
	for i, w := range words {
		out[i] = models.Word{Start: w.Start + delta, End: w.End + delta, Text: w.Text}
	}
	return out
}

func medianPathY(path camera.Path) float64 {
	if len(path.Samples) == 0 {
		return 0
	}
	ys := make([]float64, len(path.Samples))
	for i, s := range path.Samples {
		ys[i] = s.Y
	}
	sort.Float64s(ys)
	mid := len(ys) / 2
	if len(ys)%2 == 0 {
		return (ys[mid-1] + ys[mid]) / 2
	}
	return ys[mid]
}

// captionStyle parses the job's stored caption-style JSON. Only Font and
// FontSize are taken from it (keys matched against those Go field names);
// every other field keeps the default set below. A nil, empty, or
// unparsable value yields the defaults.
func captionStyle(raw *string, cfg *config.Config) models.CaptionStyle {
	style := models.CaptionStyle{
		Font:         cfg.CaptionFont,
		FontSize:     cfg.CaptionFontSize,
		PrimaryColor: 0x00FFFFFF,
		OutlineColor: 0x00000000,
		Outline:      2,
		Shadow:       1,
		MarginH:      40,
		MarginV:      80,
		Alignment:    2,
	}
	if raw == nil || *raw == "" {
		return style
	}
	var overrides models.CaptionStyle
	if err := json.Unmarshal([]byte(*raw), &overrides); err != nil {
		return style
	}
	if overrides.Font != "" {
		style.Font = overrides.Font
	}
	if overrides.FontSize != 0 {
		style.FontSize = overrides.FontSize
	}
	return style
}
