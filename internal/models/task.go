package models

import (
	"fmt"
	"strings"
	"time"
)

// TaskStatus is the lifecycle state of a generation task.
type TaskStatus string

const (
	StatusQueued    TaskStatus = "queued"
	StatusRunning   TaskStatus = "running"
	StatusCompleted TaskStatus = "completed"
	StatusFailed    TaskStatus = "failed"
)

// Final reports whether the status admits no further transitions.
func (s TaskStatus) Final() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Valid reports whether s is one of the four known statuses.
func (s TaskStatus) Valid() bool {
	switch s {
	case StatusQueued, StatusRunning, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Stage names the pipeline phase a running task is in.
type Stage string

const (
	StagePreprocessing Stage = "preprocessing"
	StageConverting    Stage = "converting"
	StageSynthesizing  Stage = "synthesizing"
	StageFinalizing    Stage = "finalizing"
)

// FileType is an artifact kind a task can bind.
type FileType string

const (
	FileTypeAudio FileType = "audio"
	FileTypeMIDI  FileType = "midi"
)

// ParseFileType validates a user-supplied file_type query value.
func ParseFileType(raw string) (FileType, bool) {
	switch FileType(strings.ToLower(strings.TrimSpace(raw))) {
	case FileTypeAudio:
		return FileTypeAudio, true
	case FileTypeMIDI:
		return FileTypeMIDI, true
	}
	return "", false
}

// OutputFormat is the rendered audio container. Results may also carry
// "mid" when the bound artifact is a MIDI file.
type OutputFormat string

const (
	FormatMP3 OutputFormat = "mp3"
	FormatWAV OutputFormat = "wav"
	FormatMID OutputFormat = "mid"
)

// ParseOutputFormat validates a user-supplied output_format query value.
// Only renderable formats are accepted here; "mid" is inference-only.
func ParseOutputFormat(raw string) (OutputFormat, bool) {
	switch OutputFormat(strings.ToLower(strings.TrimSpace(raw))) {
	case FormatMP3:
		return FormatMP3, true
	case FormatWAV:
		return FormatWAV, true
	}
	return "", false
}

// FormatFromExtension infers an output format from a file extension.
// Unknown extensions fall back to mp3.
func FormatFromExtension(ext string) OutputFormat {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "mp3":
		return FormatMP3
	case "wav":
		return FormatWAV
	case "mid", "midi":
		return FormatMID
	}
	return FormatMP3
}

// Timestamp marshals as UTC with seconds precision and a trailing Z,
// the only timestamp shape the task API emits.
type Timestamp struct {
	time.Time
}

const timestampLayout = "2006-01-02T15:04:05Z"

// Now returns the current time truncated to the wire precision.
func Now() Timestamp {
	return Timestamp{time.Now().UTC().Truncate(time.Second)}
}

// At wraps an arbitrary time, normalizing it to the wire precision.
func At(t time.Time) Timestamp {
	return Timestamp{t.UTC().Truncate(time.Second)}
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.UTC().Format(timestampLayout) + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(string(data), `"`)
	if raw == "null" || raw == "" {
		return nil
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return fmt.Errorf("parse timestamp %q: %w", raw, err)
	}
	t.Time = parsed.UTC()
	return nil
}

// TaskResult describes the primary artifact of a completed task.
type TaskResult struct {
	FileType     FileType     `json:"file_type"`
	OutputFormat OutputFormat `json:"output_format"`
	Filename     string       `json:"filename"`
	DownloadURL  string       `json:"download_url"`
}

// TaskFailure carries the user-visible error of a failed task.
type TaskFailure struct {
	Message string  `json:"message"`
	TraceID *string `json:"trace_id"`
}

// TaskInfo is the immutable snapshot returned by the task store and the
// poll endpoint. Result and Error are serialized as explicit nulls when
// absent so pollers can switch on them.
type TaskInfo struct {
	TaskID    string      `json:"task_id"`
	Status    TaskStatus  `json:"status"`
	Progress  float64     `json:"progress"`
	Stage     Stage       `json:"stage"`
	CreatedAt Timestamp   `json:"created_at"`
	UpdatedAt Timestamp   `json:"updated_at"`
	Result    *TaskResult  `json:"result"`
	Error     *TaskFailure `json:"error"`
}

// TaskCreateResponse is the 202 body of POST /generate.
type TaskCreateResponse struct {
	TaskID    string     `json:"task_id"`
	Status    TaskStatus `json:"status"`
	PollURL   string     `json:"poll_url"`
	CreatedAt Timestamp  `json:"created_at"`
}

// Task validation errors
type TaskInvariantError string

func (e TaskInvariantError) Error() string { return string(e) }

const (
	ErrTaskInvalidStatus  TaskInvariantError = "task: unknown status"
	ErrTaskProgressRange  TaskInvariantError = "task: progress must be within [0, 1]"
	ErrTaskCompletedShape TaskInvariantError = "task: completed requires result, no error, progress 1.0"
	ErrTaskFailedShape    TaskInvariantError = "task: failed requires error and no result"
	ErrTaskPendingShape   TaskInvariantError = "task: queued/running must carry neither result nor error"
	ErrTaskMissingID      TaskInvariantError = "task: task_id is required"
)

// Validate enforces the snapshot invariants every TaskInfo must satisfy.
func (t *TaskInfo) Validate() error {
	if t.TaskID == "" {
		return ErrTaskMissingID
	}
	if !t.Status.Valid() {
		return ErrTaskInvalidStatus
	}
	if t.Progress < 0 || t.Progress > 1 {
		return ErrTaskProgressRange
	}
	switch t.Status {
	case StatusCompleted:
		if t.Result == nil || t.Error != nil || t.Progress != 1.0 {
			return ErrTaskCompletedShape
		}
	case StatusFailed:
		if t.Error == nil || t.Result != nil {
			return ErrTaskFailedShape
		}
	default:
		if t.Result != nil || t.Error != nil {
			return ErrTaskPendingShape
		}
	}
	return nil
}
