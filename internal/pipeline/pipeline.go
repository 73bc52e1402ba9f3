// Package pipeline drives one task through the processing chain:
// preprocess the upload, transcribe it to MIDI, synthesize audio, bind
// the artifacts. Every failure is recorded in the task store; nothing
// escapes to the worker.
package pipeline

import (
	"context"
	"fmt"
	"os"

	"github.com/zzn199216/hum2song-webui/internal/logger"
	"github.com/zzn199216/hum2song-webui/internal/models"
	"github.com/zzn199216/hum2song-webui/internal/storage"
	"github.com/zzn199216/hum2song-webui/internal/tasks"
	"go.uber.org/zap"
)

// Job is one unit of queued work.
type Job struct {
	TaskID       string
	InputPath    string
	OutputFormat models.OutputFormat
	Gain         float64
}

// Preprocessor cleans an uploaded recording into transcription-ready wav.
type Preprocessor interface {
	Clean(ctx context.Context, inputPath string) (string, error)
}

// Transcriber converts clean wav into a MIDI file.
type Transcriber interface {
	Transcribe(ctx context.Context, cleanWavPath string) (string, error)
}

// Synthesizer renders a MIDI file into audible audio.
type Synthesizer interface {
	Render(ctx context.Context, midiPath string, format models.OutputFormat, gain float64) (string, error)
}

// Pipeline wires the stage adapters to the task store and disk layout.
type Pipeline struct {
	store      *tasks.Manager
	preprocess Preprocessor
	transcribe Transcriber
	synthesize Synthesizer
	layout     *storage.Layout
	keepWav    bool
}

// New builds a pipeline. keepWav retains the intermediate clean wav
// after processing.
func New(store *tasks.Manager, pre Preprocessor, tr Transcriber, syn Synthesizer, layout *storage.Layout, keepWav bool) *Pipeline {
	return &Pipeline{
		store:      store,
		preprocess: pre,
		transcribe: tr,
		synthesize: syn,
		layout:     layout,
		keepWav:    keepWav,
	}
}

// Process runs one job start to finish. The upload is deleted whatever
// the outcome; the clean wav survives only when keepWav is set.
func (p *Pipeline) Process(ctx context.Context, job Job) {
	log := logger.Log.With(logger.WithTaskID(job.TaskID))
	log.Info("Processing task",
		zap.String("format", string(job.OutputFormat)),
		zap.Float64("gain", job.Gain),
	)

	defer p.layout.SafeRemove(job.InputPath)

	if _, err := os.Stat(job.InputPath); err != nil {
		p.fail(job.TaskID, "input file missing", models.StagePreprocessing)
		return
	}

	stage := models.StagePreprocessing
	if err := p.store.MarkRunning(job.TaskID, stage); err != nil {
		log.Warn("Could not mark task running", zap.Error(err))
		return
	}
	_ = p.store.UpdateProgress(job.TaskID, 0.1, "")

	cleanWav, err := p.preprocess.Clean(ctx, job.InputPath)
	if err != nil {
		p.fail(job.TaskID, err.Error(), stage)
		return
	}
	defer func() {
		if !p.keepWav {
			p.layout.SafeRemove(cleanWav)
		}
	}()

	stage = models.StageConverting
	_ = p.store.UpdateProgress(job.TaskID, 0.4, stage)

	midPath, err := p.transcribe.Transcribe(ctx, cleanWav)
	if err != nil {
		p.fail(job.TaskID, err.Error(), stage)
		return
	}
	midPath, err = p.ensureAt(midPath, p.layout.MIDIPath(job.TaskID))
	if err != nil {
		p.fail(job.TaskID, err.Error(), stage)
		return
	}

	stage = models.StageSynthesizing
	_ = p.store.UpdateProgress(job.TaskID, 0.8, stage)

	audioPath, err := p.synthesize.Render(ctx, midPath, job.OutputFormat, job.Gain)
	if err != nil {
		p.fail(job.TaskID, err.Error(), stage)
		return
	}

	finalPath := p.layout.ArtifactPath(job.TaskID, string(job.OutputFormat))
	if audioPath != finalPath {
		if err := p.layout.Move(audioPath, finalPath); err != nil {
			p.fail(job.TaskID, fmt.Sprintf("move rendered audio: %v", err), stage)
			return
		}
	}

	if err := p.store.MarkCompleted(job.TaskID, finalPath, models.FileTypeAudio, "", ""); err != nil {
		p.fail(job.TaskID, fmt.Sprintf("finalize task: %v", err), models.StageFinalizing)
		return
	}
	if err := p.store.AttachArtifact(job.TaskID, midPath, models.FileTypeMIDI); err != nil {
		log.Warn("Could not attach midi artifact", logger.WithPath(midPath), zap.Error(err))
	}

	log.Info("Task completed", logger.WithPath(finalPath))
}

// ensureAt copies the transcriber output to the canonical location when
// it landed elsewhere. The source is left in place.
func (p *Pipeline) ensureAt(src, dst string) (string, error) {
	if src == dst {
		return dst, nil
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return "", fmt.Errorf("read transcriber output: %v", err)
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return "", fmt.Errorf("stage midi at %s: %v", dst, err)
	}
	return dst, nil
}

func (p *Pipeline) fail(taskID, message string, stage models.Stage) {
	logger.Log.Error("Task failed",
		logger.WithTaskID(taskID),
		logger.WithStage(string(stage)),
		zap.String("reason", message),
	)
	if err := p.store.MarkFailed(taskID, message, nil, stage); err != nil {
		logger.Log.Warn("Could not record task failure",
			logger.WithTaskID(taskID),
			zap.Error(err),
		)
	}
}
