//go:build integration
// +build integration

package integration

import (
	"context"
	"math"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zzn199216/hum2song-webui/internal/audio"
	"github.com/zzn199216/hum2song-webui/internal/client"
	"github.com/zzn199216/hum2song-webui/internal/config"
	"github.com/zzn199216/hum2song-webui/internal/handlers"
	"github.com/zzn199216/hum2song-webui/internal/models"
	"github.com/zzn199216/hum2song-webui/internal/pipeline"
	"github.com/zzn199216/hum2song-webui/internal/queue"
	"github.com/zzn199216/hum2song-webui/internal/score"
	"github.com/zzn199216/hum2song-webui/internal/storage"
	"github.com/zzn199216/hum2song-webui/internal/synth"
	"github.com/zzn199216/hum2song-webui/internal/tasks"
	"github.com/zzn199216/hum2song-webui/internal/transcribe"
)

// startServer boots the full server stack (real ffmpeg preprocessor,
// stub transcriber and synthesizer) on an ephemeral port.
func startServer(t *testing.T) (*httptest.Server, *config.Settings) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	base := t.TempDir()
	cfg := &config.Settings{
		AppEnv:           "test",
		BaseDir:          base,
		UploadDir:        filepath.Join(base, "uploads"),
		OutputDir:        filepath.Join(base, "outputs"),
		LogFile:          filepath.Join(base, "logs", "server.log"),
		MaxUploadSizeMB:  10,
		MaxAudioSeconds:  30,
		TargetSampleRate: 22050,
	}
	require.NoError(t, cfg.EnsureDirs())

	store := tasks.NewManager()
	layout := storage.NewLayout(cfg.UploadDir, cfg.OutputDir, cfg.ArtifactsDir())
	synthesizer := synth.NewStub(cfg.OutputDir)

	pipe := pipeline.New(store,
		audio.NewPreprocessor(cfg.MaxAudioSeconds, cfg.TargetSampleRate),
		transcribe.NewStub(cfg.OutputDir),
		synthesizer,
		layout,
		false,
	)
	q := queue.New(pipe, 2)
	q.Start()
	t.Cleanup(q.Stop)

	server := httptest.NewServer(handlers.NewHandlers(cfg, store, layout, q, synthesizer).Router())
	t.Cleanup(server.Close)
	return server, cfg
}

// makeTestRecording writes a short 440 Hz sine wav so the real
// preprocessor has genuine audio to normalize.
func makeTestRecording(t *testing.T) string {
	t.Helper()

	const (
		rate    = 44100
		seconds = 2.0
	)
	path := filepath.Join(t.TempDir(), "hum.wav")

	out, err := os.Create(path)
	require.NoError(t, err)
	enc := wav.NewEncoder(out, rate, 16, 1, 1)

	n := int(seconds * rate)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: rate},
		SourceBitDepth: 16,
		Data:           make([]int, n),
	}
	for i := 0; i < n; i++ {
		buf.Data[i] = int(0.5 * 32767 * math.Sin(2*math.Pi*440*float64(i)/rate))
	}
	require.NoError(t, enc.Write(buf))
	require.NoError(t, enc.Close())
	require.NoError(t, out.Close())
	return path
}

func TestGenerateDownloadRoundTrip(t *testing.T) {
	server, _ := startServer(t)
	c := client.New(server.URL, 30*time.Second)
	ctx := context.Background()

	created, err := c.Submit(ctx, makeTestRecording(t), models.FormatMP3, 0.8)
	require.NoError(t, err)

	info, err := c.WaitForCompletion(ctx, created.TaskID, 100*time.Millisecond, 30*time.Second, nil)
	require.NoError(t, err)
	require.Equal(t, models.StatusCompleted, info.Status)
	require.NotNil(t, info.Result)

	dest := filepath.Join(t.TempDir(), "out.mp3")
	require.NoError(t, c.Download(ctx, created.TaskID, models.FileTypeAudio, dest, false))
	stat, err := os.Stat(dest)
	require.NoError(t, err)
	assert.Greater(t, stat.Size(), int64(0))
}

func TestScoreEditAndReRender(t *testing.T) {
	server, _ := startServer(t)
	c := client.New(server.URL, 30*time.Second)
	ctx := context.Background()

	created, err := c.Submit(ctx, makeTestRecording(t), models.FormatWAV, 0.8)
	require.NoError(t, err)
	_, err = c.WaitForCompletion(ctx, created.TaskID, 100*time.Millisecond, 30*time.Second, nil)
	require.NoError(t, err)

	sc, err := c.GetScore(ctx, created.TaskID)
	require.NoError(t, err)
	require.NotEmpty(t, sc.Tracks)

	// transpose everything up a whole tone and push the edit back
	for ti := range sc.Tracks {
		for ni := range sc.Tracks[ti].Notes {
			sc.Tracks[ti].Notes[ni].Pitch += 2
		}
	}
	edited, err := score.EncodeCanonical(sc)
	require.NoError(t, err)

	pushed, err := c.PutScore(ctx, created.TaskID, edited)
	require.NoError(t, err)
	assert.True(t, pushed.OK)

	rendered, err := c.Render(ctx, created.TaskID, models.FormatWAV)
	require.NoError(t, err)
	assert.True(t, rendered.OK)

	reloaded, err := c.GetScore(ctx, created.TaskID)
	require.NoError(t, err)
	require.NotEmpty(t, reloaded.Tracks)
	assert.Equal(t, sc.Tracks[0].Notes[0].Pitch, reloaded.Tracks[0].Notes[0].Pitch)
}
