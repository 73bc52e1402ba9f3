package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskStatusFinal(t *testing.T) {
	assert.False(t, StatusQueued.Final())
	assert.False(t, StatusRunning.Final())
	assert.True(t, StatusCompleted.Final())
	assert.True(t, StatusFailed.Final())
}

func TestParseFileType(t *testing.T) {
	ft, ok := ParseFileType("audio")
	require.True(t, ok)
	assert.Equal(t, FileTypeAudio, ft)

	ft, ok = ParseFileType(" MIDI ")
	require.True(t, ok)
	assert.Equal(t, FileTypeMIDI, ft)

	_, ok = ParseFileType("video")
	assert.False(t, ok)
	_, ok = ParseFileType("")
	assert.False(t, ok)
}

func TestParseOutputFormat(t *testing.T) {
	f, ok := ParseOutputFormat("mp3")
	require.True(t, ok)
	assert.Equal(t, FormatMP3, f)

	f, ok = ParseOutputFormat("WAV")
	require.True(t, ok)
	assert.Equal(t, FormatWAV, f)

	// mid is an inferred result format, never a request format
	_, ok = ParseOutputFormat("mid")
	assert.False(t, ok)
	_, ok = ParseOutputFormat("ogg")
	assert.False(t, ok)
}

func TestFormatFromExtension(t *testing.T) {
	assert.Equal(t, FormatMP3, FormatFromExtension(".mp3"))
	assert.Equal(t, FormatWAV, FormatFromExtension("wav"))
	assert.Equal(t, FormatMID, FormatFromExtension(".mid"))
	assert.Equal(t, FormatMID, FormatFromExtension(".MIDI"))
	assert.Equal(t, FormatMP3, FormatFromExtension(".flac"))
	assert.Equal(t, FormatMP3, FormatFromExtension(""))
}

func TestTimestampWireFormat(t *testing.T) {
	ts := At(time.Date(2024, 5, 17, 9, 30, 45, 987654321, time.FixedZone("CEST", 2*3600)))
	out, err := json.Marshal(ts)
	require.NoError(t, err)
	assert.Equal(t, `"2024-05-17T07:30:45Z"`, string(out))

	var back Timestamp
	require.NoError(t, json.Unmarshal(out, &back))
	assert.True(t, back.Equal(ts.Time))
}

func TestTaskInfoValidateCompletedShape(t *testing.T) {
	info := TaskInfo{
		TaskID:    gofakeit.UUID(),
		Status:    StatusCompleted,
		Progress:  1.0,
		Stage:     StageFinalizing,
		CreatedAt: Now(),
		UpdatedAt: Now(),
		Result: &TaskResult{
			FileType:     FileTypeAudio,
			OutputFormat: FormatMP3,
			Filename:     "a.mp3",
			DownloadURL:  "/tasks/x/download?file_type=audio",
		},
	}
	require.NoError(t, info.Validate())

	broken := info
	broken.Progress = 0.9
	assert.ErrorIs(t, broken.Validate(), ErrTaskCompletedShape)

	broken = info
	broken.Result = nil
	assert.ErrorIs(t, broken.Validate(), ErrTaskCompletedShape)

	broken = info
	broken.Error = &TaskFailure{Message: "boom"}
	assert.ErrorIs(t, broken.Validate(), ErrTaskCompletedShape)
}

func TestTaskInfoValidateFailedShape(t *testing.T) {
	info := TaskInfo{
		TaskID:    gofakeit.UUID(),
		Status:    StatusFailed,
		Progress:  0.4,
		Stage:     StageConverting,
		CreatedAt: Now(),
		UpdatedAt: Now(),
		Error:     &TaskFailure{Message: "transcription failed"},
	}
	require.NoError(t, info.Validate())

	broken := info
	broken.Error = nil
	assert.ErrorIs(t, broken.Validate(), ErrTaskFailedShape)

	broken = info
	broken.Result = &TaskResult{}
	assert.ErrorIs(t, broken.Validate(), ErrTaskFailedShape)
}

func TestTaskInfoValidatePendingShape(t *testing.T) {
	info := TaskInfo{
		TaskID:    gofakeit.UUID(),
		Status:    StatusRunning,
		Progress:  0.1,
		Stage:     StagePreprocessing,
		CreatedAt: Now(),
		UpdatedAt: Now(),
	}
	require.NoError(t, info.Validate())

	broken := info
	broken.Result = &TaskResult{}
	assert.ErrorIs(t, broken.Validate(), ErrTaskPendingShape)

	broken = info
	broken.Progress = 1.5
	assert.ErrorIs(t, broken.Validate(), ErrTaskProgressRange)

	broken = info
	broken.Status = "paused"
	assert.ErrorIs(t, broken.Validate(), ErrTaskInvalidStatus)
}

func TestTaskInfoJSONCarriesExplicitNulls(t *testing.T) {
	info := TaskInfo{
		TaskID:    gofakeit.UUID(),
		Status:    StatusQueued,
		Stage:     StagePreprocessing,
		CreatedAt: Now(),
		UpdatedAt: Now(),
	}
	out, err := json.Marshal(&info)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"result":null`)
	assert.Contains(t, string(out), `"error":null`)
}
