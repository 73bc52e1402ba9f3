package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zzn199216/hum2song-webui/internal/models"
)

func writeTempAudio(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hum.wav")
	require.NoError(t, os.WriteFile(path, []byte("RIFFxxxxWAVE"), 0o644))
	return path
}

func TestSubmitParsesAccepted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/generate", r.URL.Path)
		assert.Equal(t, "wav", r.URL.Query().Get("output_format"))

		require.NoError(t, r.ParseMultipartForm(1<<20))
		_, header, err := r.FormFile("file")
		require.NoError(t, err)
		assert.Equal(t, "hum.wav", header.Filename)

		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"task_id":"t-1","status":"queued","poll_url":"/tasks/t-1","created_at":"2025-01-02T03:04:05Z"}`))
	}))
	defer server.Close()

	c := New(server.URL, time.Second)
	created, err := c.Submit(context.Background(), writeTempAudio(t), models.FormatWAV, 0.8)
	require.NoError(t, err)
	assert.Equal(t, "t-1", created.TaskID)
	assert.Equal(t, models.StatusQueued, created.Status)
	assert.Equal(t, "/tasks/t-1", created.PollURL)
}

func TestSubmitRejectionIsHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusRequestEntityTooLarge)
		w.Write([]byte(`{"code":"UPLOAD_TOO_LARGE","message":"upload exceeds the 10 MB limit"}`))
	}))
	defer server.Close()

	c := New(server.URL, time.Second)
	_, err := c.Submit(context.Background(), writeTempAudio(t), models.FormatMP3, 0.8)

	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusRequestEntityTooLarge, httpErr.Status)
	assert.Equal(t, "UPLOAD_TOO_LARGE", httpErr.Code)
}

func TestSubmitMissingTaskIDIsContractError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"status":"queued"}`))
	}))
	defer server.Close()

	c := New(server.URL, time.Second)
	_, err := c.Submit(context.Background(), writeTempAudio(t), models.FormatMP3, 0.8)

	var contractErr *ContractError
	require.ErrorAs(t, err, &contractErr)
}

func TestStatusValidatesInvariants(t *testing.T) {
	// completed with progress below 1.0 violates the snapshot contract
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"task_id":"t-1","status":"completed","progress":0.99,"stage":"finalizing",` +
			`"created_at":"2025-01-02T03:04:05Z","updated_at":"2025-01-02T03:04:06Z",` +
			`"result":{"file_type":"audio","output_format":"mp3","filename":"t-1.mp3","download_url":"/tasks/t-1/download?file_type=audio"},` +
			`"error":null}`))
	}))
	defer server.Close()

	c := New(server.URL, time.Second)
	_, err := c.Status(context.Background(), "t-1")

	var contractErr *ContractError
	require.ErrorAs(t, err, &contractErr)
}

func TestStatusUnknownTaskIsHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"code":"TASK_NOT_FOUND","message":"task x not found"}`))
	}))
	defer server.Close()

	c := New(server.URL, time.Second)
	_, err := c.Status(context.Background(), "x")

	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusNotFound, httpErr.Status)
	assert.Equal(t, "TASK_NOT_FOUND", httpErr.Code)
}

func TestNetworkFailureIsNetworkError(t *testing.T) {
	c := New("http://127.0.0.1:1", 200*time.Millisecond)
	_, err := c.Status(context.Background(), "t-1")

	var netErr *NetworkError
	require.ErrorAs(t, err, &netErr)
}

func TestWaitForCompletionReturnsFinalSnapshot(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.Write([]byte(`{"task_id":"t-1","status":"running","progress":0.4,"stage":"converting",` +
				`"created_at":"2025-01-02T03:04:05Z","updated_at":"2025-01-02T03:04:06Z","result":null,"error":null}`))
			return
		}
		w.Write([]byte(`{"task_id":"t-1","status":"completed","progress":1.0,"stage":"finalizing",` +
			`"created_at":"2025-01-02T03:04:05Z","updated_at":"2025-01-02T03:04:07Z",` +
			`"result":{"file_type":"audio","output_format":"mp3","filename":"t-1.mp3","download_url":"/tasks/t-1/download?file_type=audio"},` +
			`"error":null}`))
	}))
	defer server.Close()

	c := New(server.URL, time.Second)
	var snapshots int
	info, err := c.WaitForCompletion(context.Background(), "t-1", 10*time.Millisecond, 5*time.Second,
		func(*models.TaskInfo) { snapshots++ })
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, info.Status)
	assert.Equal(t, 3, snapshots)
}

func TestWaitForCompletionTimesOut(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"task_id":"t-1","status":"running","progress":0.4,"stage":"converting",` +
			`"created_at":"2025-01-02T03:04:05Z","updated_at":"2025-01-02T03:04:06Z","result":null,"error":null}`))
	}))
	defer server.Close()

	c := New(server.URL, time.Second)
	_, err := c.WaitForCompletion(context.Background(), "t-1", 10*time.Millisecond, 30*time.Millisecond, nil)

	var timeoutErr *PollTimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, "t-1", timeoutErr.TaskID)
}

func TestDownloadStreamsToFile(t *testing.T) {
	payload := []byte("ID3 fake mp3 payload")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tasks/t-1/download", r.URL.Path)
		assert.Equal(t, "audio", r.URL.Query().Get("file_type"))
		w.Write(payload)
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "downloads", "t-1.mp3")
	c := New(server.URL, time.Second)
	require.NoError(t, c.Download(context.Background(), "t-1", models.FileTypeAudio, dest, false))

	body, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, payload, body)
}

func TestDownloadErrorKeepsTypedCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"code":"NOT_COMPLETED","message":"task t-1 is not completed yet"}`))
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "t-1.mp3")
	c := New(server.URL, time.Second)
	err := c.Download(context.Background(), "t-1", models.FileTypeAudio, dest, false)

	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, "NOT_COMPLETED", httpErr.Code)
	assert.NoFileExists(t, dest)
}

func TestDownloadRefusesOverwrite(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "t-1.mp3")
	require.NoError(t, os.WriteFile(dest, []byte("existing"), 0o644))

	c := New("http://127.0.0.1:1", time.Second)
	err := c.Download(context.Background(), "t-1", models.FileTypeAudio, dest, false)
	require.Error(t, err)

	body, _ := os.ReadFile(dest)
	assert.Equal(t, "existing", string(body))
}

func TestGetScoreDecodesStrictly(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"version":1,"tempo_bpm":120,"time_signature":"4/4",` +
			`"tracks":[{"id":"t_1","name":"ch0","notes":[{"id":"n_1","pitch":60,"start":0,"duration":0.5,"velocity":80}]}]}`))
	}))
	defer server.Close()

	c := New(server.URL, time.Second)
	sc, err := c.GetScore(context.Background(), "t-1")
	require.NoError(t, err)
	require.Len(t, sc.Tracks, 1)
	assert.Equal(t, 60, sc.Tracks[0].Notes[0].Pitch)
}

func TestPutScoreAndRender(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut:
			w.Write([]byte(`{"ok":true,"task_id":"t-1","midi_path":"/out/t-1.mid",` +
				`"midi_download_url":"/tasks/t-1/download?file_type=midi","hint":"Please reload score to sync IDs"}`))
		case r.Method == http.MethodPost:
			assert.Equal(t, "wav", r.URL.Query().Get("output_format"))
			w.Write([]byte(`{"ok":true,"task_id":"t-1","audio_path":"/artifacts/t-1.wav",` +
				`"audio_download_url":"/tasks/t-1/download?file_type=audio"}`))
		}
	}))
	defer server.Close()

	c := New(server.URL, time.Second)

	pushed, err := c.PutScore(context.Background(), "t-1", []byte(`{"version":1,"tempo_bpm":120,"time_signature":"4/4","tracks":[]}`))
	require.NoError(t, err)
	assert.True(t, pushed.OK)
	assert.Contains(t, pushed.MIDIDownloadURL, "file_type=midi")

	rendered, err := c.Render(context.Background(), "t-1", models.FormatWAV)
	require.NoError(t, err)
	assert.Contains(t, rendered.AudioDownloadURL, "file_type=audio")
}
