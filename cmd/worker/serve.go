package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/clipforge/shorts-worker/internal/artifact"
	"github.com/clipforge/shorts-worker/internal/camera"
	"github.com/clipforge/shorts-worker/internal/config"
	"github.com/clipforge/shorts-worker/internal/ffmpegutil"
	"github.com/clipforge/shorts-worker/internal/jobstore"
	"github.com/clipforge/shorts-worker/internal/logging"
	"github.com/clipforge/shorts-worker/internal/metrics"
	"github.com/clipforge/shorts-worker/internal/runner"
	"github.com/clipforge/shorts-worker/internal/transcribe"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Poll for queued jobs and render clips until interrupted",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := logging.New(cfg.LogDev)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return err
		}
		redisClient = redis.NewClient(opts)
	}

	store, err := jobstore.New(cfg.DatabaseURL, redisClient, log)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}

	artifacts, err := artifact.New(ctx, cfg.StorageBackend, cfg.S3Bucket, cfg.S3Region, cfg.LocalStorageDir)
	if err != nil {
		return err
	}

	toolchain, err := ffmpegutil.NewToolchain()
	if err != nil {
		return err
	}

	transcriber, err := transcribe.NewSubprocessTranscriber(cfg.WhisperBin, cfg.WhisperModel, cfg.WhisperTimeout)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	rn := &runner.Runner{
		Store:        store,
		Artifacts:    artifacts,
		Toolchain:    toolchain,
		Transcriber:  transcriber,
		FaceDetector: camera.NoopDetector{},
		PoseDetector: camera.NoopDetector{},
		Titles:       runner.NewOpenAITitleGenerator(cfg.OpenAIAPIKey),
		Cfg:          cfg,
		Log:          log,
		Metrics:      m,
	}

	stopMetrics := startMetricsServer(cfg.MetricsAddr, reg, log)
	defer stopMetrics()

	go runReclaimLoop(ctx, store, cfg.StaleJobSeconds, m, log)

	log.Info("worker serve starting", zap.String("poll_interval", cfg.PollInterval.String()))
	pollLoop(ctx, store, rn, cfg.PollInterval, m, log)
	return nil
}

func pollLoop(ctx context.Context, store *jobstore.Store, rn *runner.Runner, interval time.Duration, m *metrics.Metrics, log *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("worker serve stopping")
			return
		case <-ticker.C:
			claimAndRun(ctx, store, rn, m, log)
		}
	}
}

func claimAndRun(ctx context.Context, store *jobstore.Store, rn *runner.Runner, m *metrics.Metrics, log *zap.Logger) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("recovered from panic in job run", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()

	jobID, err := store.ClaimNext(ctx)
	if err != nil {
		log.Warn("claim failed", zap.Error(err))
		return
	}
	if jobID == 0 {
		return
	}

	m.JobsClaimed.Inc()
	log.Info("job claimed", zap.Int64("job_id", jobID))

	if err := rn.Run(ctx, jobID); err != nil {
		log.Error("job failed", zap.Int64("job_id", jobID), zap.Error(err))
		return
	}
	log.Info("job completed", zap.Int64("job_id", jobID))
}

func runReclaimLoop(ctx context.Context, store *jobstore.Store, staleAfter time.Duration, m *metrics.Metrics, log *zap.Logger) {
	ticker := time.NewTicker(staleAfter / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.ReclaimStale(ctx, staleAfter)
			if err != nil {
				log.Warn("stale reclaim failed", zap.Error(err))
				continue
			}
			if n > 0 {
				m.ReclaimedJobs.Add(float64(n))
				log.Info("reclaimed stale jobs", zap.Int64("count", n))
			}
		}
	}
}

func startMetricsServer(addr string, reg *prometheus.Registry, log *zap.Logger) func() {
	if addr == "" {
		return func() {}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn("metrics server stopped", zap.Error(err))
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}
