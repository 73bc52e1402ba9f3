package tasks

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zzn199216/hum2song-webui/internal/errors"
	"github.com/zzn199216/hum2song-webui/internal/models"
)

// record is the mutable store entry. Callers only ever see value snapshots.
type record struct {
	info      models.TaskInfo
	artifacts map[models.FileType]string
}

// Manager is the in-memory job store: the single source of truth for task
// status, stage, progress, timestamps and artifact bindings.
type Manager struct {
	mu    sync.Mutex
	tasks map[string]*record
}

// NewManager creates an empty job store.
func NewManager() *Manager {
	return &Manager{tasks: make(map[string]*record)}
}

// Create allocates a queued task with progress 0 and returns its snapshot.
func (m *Manager) Create(initialStage models.Stage) models.TaskInfo {
	now := models.Now()
	info := models.TaskInfo{
		TaskID:    uuid.New().String(),
		Status:    models.StatusQueued,
		Progress:  0,
		Stage:     initialStage,
		CreatedAt: now,
		UpdatedAt: now,
	}

	m.mu.Lock()
	m.tasks[info.TaskID] = &record{info: info, artifacts: make(map[models.FileType]string)}
	m.mu.Unlock()

	return info
}

// Exists reports whether the id maps to a live task.
func (m *Manager) Exists(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.tasks[id]
	return ok
}

// GetInfo returns an immutable snapshot of the task.
func (m *Manager) GetInfo(id string) (models.TaskInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.tasks[id]
	if !ok {
		return models.TaskInfo{}, errors.TaskNotFound(id)
	}
	return snapshot(rec), nil
}

// MarkRunning moves the task to running. Legal from queued or running.
func (m *Manager) MarkRunning(id string, stage models.Stage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.tasks[id]
	if !ok {
		return errors.TaskNotFound(id)
	}
	if rec.info.Status.Final() {
		return errors.AlreadyFinal(id)
	}

	rec.info.Status = models.StatusRunning
	if stage != "" {
		rec.info.Stage = stage
	}
	rec.info.UpdatedAt = models.Now()
	return nil
}

// UpdateProgress records pipeline progress and promotes queued tasks to
// running. Progress 1.0 does not complete the task, MarkCompleted does.
func (m *Manager) UpdateProgress(id string, progress float64, stage models.Stage) error {
	if progress < 0 || progress > 1 {
		return errors.OutOfRange("progress", fmt.Sprintf("progress %g is outside [0, 1]", progress))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.tasks[id]
	if !ok {
		return errors.TaskNotFound(id)
	}
	if rec.info.Status.Final() {
		return errors.AlreadyFinal(id)
	}

	rec.info.Status = models.StatusRunning
	rec.info.Progress = progress
	if stage != "" {
		rec.info.Stage = stage
	}
	rec.info.UpdatedAt = models.Now()
	return nil
}

// MarkCompleted finalizes the task with its primary artifact. The output
// format is inferred from the path extension when not given, and the
// filename defaults to the path basename.
func (m *Manager) MarkCompleted(id, artifactPath string, kind models.FileType, format models.OutputFormat, filename string) error {
	if err := checkArtifact(artifactPath); err != nil {
		return err
	}
	if format == "" {
		format = models.FormatFromExtension(filepath.Ext(artifactPath))
	}
	if filename == "" {
		filename = filepath.Base(artifactPath)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.tasks[id]
	if !ok {
		return errors.TaskNotFound(id)
	}
	if rec.info.Status.Final() {
		return errors.AlreadyFinal(id)
	}

	rec.info.Status = models.StatusCompleted
	rec.info.Progress = 1.0
	rec.info.Stage = models.StageFinalizing
	rec.info.Result = &models.TaskResult{
		FileType:     kind,
		OutputFormat: format,
		Filename:     filename,
		DownloadURL:  fmt.Sprintf("/tasks/%s/download?file_type=%s", id, kind),
	}
	rec.info.Error = nil
	rec.artifacts[kind] = artifactPath
	rec.info.UpdatedAt = models.Now()
	return nil
}

// MarkFailed finalizes the task with an error message. The stage, when
// given, records where the pipeline broke.
func (m *Manager) MarkFailed(id, message string, traceID *string, stage models.Stage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.tasks[id]
	if !ok {
		return errors.TaskNotFound(id)
	}
	if rec.info.Status.Final() {
		return errors.AlreadyFinal(id)
	}

	rec.info.Status = models.StatusFailed
	rec.info.Result = nil
	rec.info.Error = &models.TaskFailure{Message: message, TraceID: traceID}
	if stage != "" {
		rec.info.Stage = stage
	}
	rec.info.UpdatedAt = models.Now()
	return nil
}

// AttachArtifact rebinds or adds an artifact mapping on a completed task.
// This is the only mutation allowed after finalization; re-render and
// score-put use it.
func (m *Manager) AttachArtifact(id, artifactPath string, kind models.FileType) error {
	if err := checkArtifact(artifactPath); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.tasks[id]
	if !ok {
		return errors.TaskNotFound(id)
	}
	if rec.info.Status != models.StatusCompleted {
		return errors.NotCompleted(id)
	}

	rec.artifacts[kind] = artifactPath
	rec.info.UpdatedAt = models.Now()
	return nil
}

// GetArtifactPath resolves a bound artifact, verifying the file still
// exists on disk.
func (m *Manager) GetArtifactPath(id string, kind models.FileType) (string, error) {
	path, err := m.boundPath(id, kind)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(path); err != nil {
		return "", errors.FileMissing(path)
	}
	return path, nil
}

func (m *Manager) boundPath(id string, kind models.FileType) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.tasks[id]
	if !ok {
		return "", errors.TaskNotFound(id)
	}
	if rec.info.Status != models.StatusCompleted {
		return "", errors.NotCompleted(id)
	}
	path, bound := rec.artifacts[kind]
	if !bound {
		return "", errors.ArtifactUnavailable(string(kind))
	}
	return path, nil
}

// Prune drops tasks whose updated_at is older than maxAge and reports how
// many were removed. Files on disk are CleanupOld's job, not ours.
func (m *Manager) Prune(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, rec := range m.tasks {
		if rec.info.UpdatedAt.Before(cutoff) {
			delete(m.tasks, id)
			removed++
		}
	}
	return removed
}

// checkArtifact verifies a bind path is absolute and present on disk. It
// runs before the lock so the critical section stays free of I/O.
func checkArtifact(path string) error {
	if !filepath.IsAbs(path) {
		return errors.FileMissing(path)
	}
	if _, err := os.Stat(path); err != nil {
		return errors.FileMissing(path)
	}
	return nil
}

func snapshot(rec *record) models.TaskInfo {
	info := rec.info
	if rec.info.Result != nil {
		res := *rec.info.Result
		info.Result = &res
	}
	if rec.info.Error != nil {
		fail := *rec.info.Error
		if rec.info.Error.TraceID != nil {
			tid := *rec.info.Error.TraceID
			fail.TraceID = &tid
		}
		info.Error = &fail
	}
	return info
}
