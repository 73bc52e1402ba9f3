package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/zzn199216/hum2song-webui/internal/audio"
	"github.com/zzn199216/hum2song-webui/internal/config"
	"github.com/zzn199216/hum2song-webui/internal/handlers"
	"github.com/zzn199216/hum2song-webui/internal/logger"
	"github.com/zzn199216/hum2song-webui/internal/pipeline"
	"github.com/zzn199216/hum2song-webui/internal/queue"
	"github.com/zzn199216/hum2song-webui/internal/storage"
	"github.com/zzn199216/hum2song-webui/internal/synth"
	"github.com/zzn199216/hum2song-webui/internal/tasks"
	"github.com/zzn199216/hum2song-webui/internal/transcribe"
	"github.com/zzn199216/hum2song-webui/internal/version"
)

// artifactMaxAge bounds how long uploads, outputs and finished tasks are
// kept around before the hourly sweep removes them.
const artifactMaxAge = 24 * time.Hour

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "No .env file found, using system environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Initialize(cfg.LogLevel, cfg.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	logger.Log.Info("Hum2Song server starting",
		zap.String("version", version.Version),
		zap.String("env", cfg.AppEnv),
		zap.String("base_dir", cfg.BaseDir),
	)

	if err := cfg.EnsureDirs(); err != nil {
		logger.Log.Fatal("Failed to create working directories", zap.Error(err))
	}

	layout := storage.NewLayout(cfg.UploadDir, cfg.OutputDir, cfg.ArtifactsDir())

	// Sweep leftovers from previous runs; task state does not survive a
	// restart, only the files do.
	removed := layout.CleanupOld(cfg.UploadDir, artifactMaxAge) +
		layout.CleanupOld(cfg.OutputDir, artifactMaxAge) +
		layout.CleanupOld(cfg.ArtifactsDir(), artifactMaxAge)
	if removed > 0 {
		logger.Log.Info("Removed stale files from previous runs", zap.Int("count", removed))
	}

	checkExternalTools(cfg)

	store := tasks.NewManager()
	synthesizer := buildSynthesizer(cfg)
	pipe := pipeline.New(store,
		audio.NewPreprocessor(cfg.MaxAudioSeconds, cfg.TargetSampleRate),
		buildTranscriber(cfg),
		synthesizer,
		layout,
		cfg.KeepIntermediateWav,
	)

	q := queue.New(pipe, cfg.WorkerCount)
	q.Start()

	go sweepLoop(store, layout, cfg)

	if !cfg.IsDev() {
		gin.SetMode(gin.ReleaseMode)
	}
	h := handlers.NewHandlers(cfg, store, layout, q, synthesizer)

	server := &http.Server{
		Addr:    cfg.Addr(),
		Handler: h.Router(),
	}

	go func() {
		logger.Log.Info("HTTP server listening", zap.String("addr", cfg.Addr()))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down")
	q.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Log.Error("Forced shutdown", zap.Error(err))
	}
	logger.Log.Info("Server stopped")
}

// buildTranscriber picks the transcribe adapter from configuration. The
// stub is the default so a fresh checkout works without any model
// installed; an external command is opt-in via TRANSCRIBER_CMD.
func buildTranscriber(cfg *config.Settings) pipeline.Transcriber {
	if cfg.UseStubConverter || cfg.TranscriberCmd == "" {
		return transcribe.NewStub(cfg.OutputDir)
	}
	return transcribe.NewCommand(cfg.TranscriberCmd, cfg.OutputDir, cfg.OnsetThreshold, cfg.FrameThreshold)
}

func buildSynthesizer(cfg *config.Settings) pipeline.Synthesizer {
	if cfg.UseStubSynth {
		return synth.NewStub(cfg.OutputDir)
	}
	return synth.NewFluidSynth(cfg.FluidsynthPath, cfg.SoundFontPath, cfg.OutputDir, cfg.KeepIntermediateWav)
}

// checkExternalTools logs which external binaries are usable so a
// misconfigured host shows up at startup instead of at first render.
func checkExternalTools(cfg *config.Settings) {
	if cfg.UseStubSynth {
		logger.Log.Info("Using stub synthesizer, external binaries not required")
		return
	}
	if err := synth.CheckFluidsynthAvailable(cfg.FluidsynthPath); err != nil {
		logger.Log.Warn("FluidSynth not available, rendering will fail", zap.Error(err))
	}
	if err := audio.CheckFFmpegAvailable(); err != nil {
		logger.Log.Warn("ffmpeg not available, mp3 output and non-wav uploads will fail", zap.Error(err))
	}
	if _, err := os.Stat(cfg.SoundFontPath); err != nil {
		logger.Log.Warn("Configured soundfont missing", logger.WithPath(cfg.SoundFontPath))
	}
}

// sweepLoop prunes finished tasks and expired files once an hour.
// Pruning the store never touches disk; the file sweeps are separate.
func sweepLoop(store *tasks.Manager, layout *storage.Layout, cfg *config.Settings) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for range ticker.C {
		pruned := store.Prune(artifactMaxAge)
		removed := layout.CleanupOld(cfg.UploadDir, artifactMaxAge) +
			layout.CleanupOld(cfg.OutputDir, artifactMaxAge) +
			layout.CleanupOld(cfg.ArtifactsDir(), artifactMaxAge)
		if pruned > 0 || removed > 0 {
			logger.Log.Info("Periodic cleanup",
				zap.Int("tasks_pruned", pruned),
				zap.Int("files_removed", removed),
			)
		}
	}
}
