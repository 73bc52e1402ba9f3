package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	base := t.TempDir()
	t.Setenv("BASE_DIR", base)

	s, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", s.AppEnv)
	assert.True(t, s.IsDev())
	assert.Equal(t, "0.0.0.0", s.Host)
	assert.Equal(t, 8000, s.Port)
	assert.Equal(t, filepath.Join(base, "uploads"), s.UploadDir)
	assert.Equal(t, filepath.Join(base, "outputs"), s.OutputDir)
	assert.Equal(t, filepath.Join(base, "assets", "piano.sf2"), s.SoundFontPath)
	assert.Equal(t, 10, s.MaxUploadSizeMB)
	assert.Equal(t, 30, s.MaxAudioSeconds)
	assert.Equal(t, 22050, s.TargetSampleRate)
	assert.InDelta(t, 0.5, s.OnsetThreshold, 1e-9)
	assert.InDelta(t, 0.3, s.FrameThreshold, 1e-9)
	assert.True(t, s.UseStubConverter)
	assert.False(t, s.UseStubSynth)
	assert.False(t, s.KeepIntermediateWav)
	assert.Equal(t, 0, s.WorkerCount)
	assert.Empty(t, s.CORSAllowOrigins)
}

func TestLoadClampsOutOfRangeValues(t *testing.T) {
	t.Setenv("BASE_DIR", t.TempDir())
	t.Setenv("MAX_UPLOAD_SIZE_MB", "-3")
	t.Setenv("MAX_AUDIO_SECONDS", "0")
	t.Setenv("TARGET_SAMPLE_RATE", "4000")
	t.Setenv("ONSET_THRESHOLD", "2.0")
	t.Setenv("FRAME_THRESHOLD", "0.0")

	s, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 10, s.MaxUploadSizeMB)
	assert.Equal(t, 20, s.MaxAudioSeconds)
	assert.Equal(t, 22050, s.TargetSampleRate)
	assert.InDelta(t, 0.95, s.OnsetThreshold, 1e-9)
	assert.InDelta(t, 0.05, s.FrameThreshold, 1e-9)
}

func TestLoadClampsLongAudioCeiling(t *testing.T) {
	t.Setenv("BASE_DIR", t.TempDir())
	t.Setenv("MAX_AUDIO_SECONDS", "1000")

	s, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 60, s.MaxAudioSeconds)
}

func TestLoadResolvesRelativePathsAgainstBaseDir(t *testing.T) {
	base := t.TempDir()
	t.Setenv("BASE_DIR", base)
	t.Setenv("UPLOAD_DIR", "data/in")
	t.Setenv("OUTPUT_DIR", filepath.Join(base, "out"))

	s, err := Load()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(base, "data", "in"), s.UploadDir)
	assert.Equal(t, filepath.Join(base, "out"), s.OutputDir)
	assert.Equal(t, filepath.Join(base, "artifacts"), s.ArtifactsDir())
}

func TestSoundFontAlias(t *testing.T) {
	base := t.TempDir()
	t.Setenv("BASE_DIR", base)
	t.Setenv("SF2_PATH", "fonts/other.sf2")

	s, err := Load()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "fonts", "other.sf2"), s.SoundFontPath)

	// SOUND_FONT_PATH wins over the alias.
	t.Setenv("SOUND_FONT_PATH", "fonts/primary.sf2")
	s, err = Load()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "fonts", "primary.sf2"), s.SoundFontPath)
}

func TestMaxUploadBytes(t *testing.T) {
	t.Setenv("BASE_DIR", t.TempDir())
	t.Setenv("MAX_UPLOAD_SIZE_MB", "2")

	s, err := Load()
	require.NoError(t, err)
	assert.Equal(t, int64(2*1024*1024), s.MaxUploadBytes())
}

func TestCORSOriginsParsing(t *testing.T) {
	t.Setenv("BASE_DIR", t.TempDir())
	t.Setenv("APP_ENV", "production")
	t.Setenv("CORS_ALLOW_ORIGINS", "https://a.example.com, https://b.example.com ,")

	s, err := Load()
	require.NoError(t, err)
	assert.False(t, s.IsDev())
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, s.CORSAllowOrigins)
}

func TestEnsureDirs(t *testing.T) {
	base := t.TempDir()
	t.Setenv("BASE_DIR", base)

	s, err := Load()
	require.NoError(t, err)
	require.NoError(t, s.EnsureDirs())

	for _, dir := range []string{s.UploadDir, s.OutputDir, s.ArtifactsDir()} {
		assert.DirExists(t, dir)
	}
}
