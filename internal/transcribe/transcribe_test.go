package transcribe

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zzn199216/hum2song-webui/internal/midifile"
)

func TestMidiTargetPath(t *testing.T) {
	assert.Equal(t, filepath.Join("/out", "abc.mid"), midiTargetPath("/out", "/uploads/abc_clean.wav"))
	assert.Equal(t, filepath.Join("/out", "raw.mid"), midiTargetPath("/out", "/uploads/raw.wav"))
}

func TestStubWritesDecodableArpeggio(t *testing.T) {
	out := t.TempDir()
	stub := NewStub(out)

	midPath, err := stub.Transcribe(context.Background(), "/uploads/task1_clean.wav")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(out, "task1.mid"), midPath)

	sc, err := midifile.DecodeFile(midPath)
	require.NoError(t, err)
	assert.Equal(t, 120.0, sc.TempoBPM)
	require.Len(t, sc.Tracks, 1)

	tr := sc.Tracks[0]
	require.NotNil(t, tr.Program)
	assert.Equal(t, 0, *tr.Program)
	require.Len(t, tr.Notes, 4)

	wantPitches := []int{60, 64, 67, 72}
	for i, n := range tr.Notes {
		assert.Equal(t, wantPitches[i], n.Pitch, "note %d pitch", i)
		assert.InDelta(t, float64(i)*0.5, n.Start, 1e-6, "note %d start", i)
		assert.InDelta(t, 0.5, n.Duration, 1e-6, "note %d duration", i)
		assert.Equal(t, 80, n.VelocityOrDefault(), "note %d velocity", i)
	}
}

func TestStubIsDeterministic(t *testing.T) {
	out := t.TempDir()
	stub := NewStub(out)

	p1, err := stub.Transcribe(context.Background(), "/uploads/a_clean.wav")
	require.NoError(t, err)
	p2, err := stub.Transcribe(context.Background(), "/uploads/b_clean.wav")
	require.NoError(t, err)

	d1, err := os.ReadFile(p1)
	require.NoError(t, err)
	d2, err := os.ReadFile(p2)
	require.NoError(t, err)
	assert.Equal(t, d1, d2)
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "transcriber.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func TestCommandPassesThresholdsAndPaths(t *testing.T) {
	out := t.TempDir()
	script := writeScript(t, `printf '%s %s' "$ONSET_THRESHOLD" "$FRAME_THRESHOLD" > "$2"`)

	cmd := NewCommand(script, out, 0.5, 0.3)
	midPath, err := cmd.Transcribe(context.Background(), "/uploads/task9_clean.wav")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(out, "task9.mid"), midPath)

	data, err := os.ReadFile(midPath)
	require.NoError(t, err)
	assert.Equal(t, "0.5 0.3", string(data))
}

func TestCommandRejectsEmptyOutput(t *testing.T) {
	out := t.TempDir()
	script := writeScript(t, `: > "$2"`)

	cmd := NewCommand(script, out, 0.5, 0.3)
	_, err := cmd.Transcribe(context.Background(), "/uploads/x_clean.wav")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty")
}

func TestCommandRejectsMissingOutput(t *testing.T) {
	out := t.TempDir()
	script := writeScript(t, `exit 0`)

	cmd := NewCommand(script, out, 0.5, 0.3)
	_, err := cmd.Transcribe(context.Background(), "/uploads/x_clean.wav")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no output")
}

func TestCommandSurfacesStderr(t *testing.T) {
	out := t.TempDir()
	script := writeScript(t, `echo "model weights missing" >&2; exit 2`)

	cmd := NewCommand(script, out, 0.5, 0.3)
	_, err := cmd.Transcribe(context.Background(), "/uploads/x_clean.wav")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model weights missing")
}
