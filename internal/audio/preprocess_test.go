package audio

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSine(t *testing.T, path string, rate, channels int, seconds, amplitude, freq float64) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	frames := int(float64(rate) * seconds)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: rate},
		SourceBitDepth: 16,
		Data:           make([]int, frames*channels),
	}
	for i := 0; i < frames; i++ {
		v := int(math.Round(amplitude * 32767 * math.Sin(2*math.Pi*freq*float64(i)/float64(rate))))
		for c := 0; c < channels; c++ {
			buf.Data[i*channels+c] = v
		}
	}

	enc := wav.NewEncoder(f, rate, 16, channels, 1)
	require.NoError(t, enc.Write(buf))
	require.NoError(t, enc.Close())
}

func TestCleanProducesMonoAtTargetRate(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "hum1.wav")
	writeSine(t, input, 44100, 2, 2.0, 0.5, 440)

	p := NewPreprocessor(1, 22050)
	cleanPath, err := p.Clean(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, "hum1_clean.wav", filepath.Base(cleanPath))

	buf, depth, err := decodeWav(cleanPath)
	require.NoError(t, err)
	assert.Equal(t, 16, depth)
	assert.Equal(t, 1, buf.Format.NumChannels)
	assert.Equal(t, 22050, buf.Format.SampleRate)
	// one second truncated at the source rate, then resampled
	assert.Equal(t, 22050, len(buf.Data))
}

func TestCleanNormalizesPeak(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "quiet.wav")
	writeSine(t, input, 22050, 1, 1.0, 0.2, 440)

	p := NewPreprocessor(30, 22050)
	cleanPath, err := p.Clean(context.Background(), input)
	require.NoError(t, err)

	buf, _, err := decodeWav(cleanPath)
	require.NoError(t, err)

	peak := 0.0
	for _, v := range buf.Data {
		if a := math.Abs(float64(v)) / 32768.0; a > peak {
			peak = a
		}
	}
	assert.Greater(t, peak, 0.95)
	assert.LessOrEqual(t, peak, 1.0)
}

func TestCleanKeepsSilence(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "silent.wav")
	writeSine(t, input, 22050, 1, 0.5, 0, 440)

	p := NewPreprocessor(30, 22050)
	cleanPath, err := p.Clean(context.Background(), input)
	require.NoError(t, err)

	buf, _, err := decodeWav(cleanPath)
	require.NoError(t, err)
	for _, v := range buf.Data {
		require.Zero(t, v)
	}
}

func TestCleanRejectsGarbage(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "garbage.wav")
	require.NoError(t, os.WriteFile(input, []byte("this is not audio"), 0o644))

	p := NewPreprocessor(30, 22050)
	_, err := p.Clean(context.Background(), input)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wav")
}

func TestResampleLinearDoublesRate(t *testing.T) {
	in := []float64{0, 1, 0, -1}
	out := resampleLinear(in, 4, 8)

	want := []float64{0, 0.5, 1, 0.5, 0, -0.5, -1, -1}
	require.Len(t, out, len(want))
	for i := range want {
		assert.InDelta(t, want[i], out[i], 1e-9, "sample %d", i)
	}
}

func TestResampleLinearIdentity(t *testing.T) {
	in := []float64{0.1, 0.2, 0.3}
	assert.Equal(t, in, resampleLinear(in, 22050, 22050))
}

func TestMonoFloatDownmixes(t *testing.T) {
	buf := &audio.IntBuffer{
		Format: &audio.Format{NumChannels: 2, SampleRate: 22050},
		Data:   []int{16384, -16384, 32767, 32767},
	}
	mono := monoFloat(buf, 16)

	require.Len(t, mono, 2)
	assert.InDelta(t, 0.0, mono[0], 1e-9)
	assert.InDelta(t, 32767.0/32768.0, mono[1], 1e-9)
}

func TestNormalizePeakLeavesSilence(t *testing.T) {
	samples := []float64{0, 0, 0}
	normalizePeak(samples)
	assert.Equal(t, []float64{0, 0, 0}, samples)
}

func TestRunCmdMissingBinary(t *testing.T) {
	err := runCmd(context.Background(), "definitely-not-a-real-binary-xyz", "--flag")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "definitely-not-a-real-binary-xyz")
}

func TestRunCmdCapturesStderr(t *testing.T) {
	err := runCmd(context.Background(), "sh", "-c", "echo boom >&2; exit 3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}
