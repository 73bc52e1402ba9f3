// Package synth renders task MIDI into audible audio. The production
// adapter shells out to fluidsynth (plus ffmpeg for mp3 transcode); the
// stub renders sine waves so development machines need no binaries.
package synth

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/zzn199216/hum2song-webui/internal/logger"
	"github.com/zzn199216/hum2song-webui/internal/models"
	"go.uber.org/zap"
)

// renderSampleRate is the synthesis rate for all rendered audio.
const renderSampleRate = 44100

// mp3Bitrate is passed to ffmpeg when transcoding rendered wav.
const mp3Bitrate = "192k"

// FluidSynth renders MIDI through the fluidsynth binary, writing audio
// into OutputDir. When Binary is empty the binary is resolved from PATH.
type FluidSynth struct {
	Binary    string
	SoundFont string
	OutputDir string
	KeepWav   bool
}

// NewFluidSynth builds the production synthesizer adapter.
func NewFluidSynth(binary, soundFont, outputDir string, keepWav bool) *FluidSynth {
	return &FluidSynth{
		Binary:    binary,
		SoundFont: soundFont,
		OutputDir: outputDir,
		KeepWav:   keepWav,
	}
}

// Render synthesizes midiPath into `{OutputDir}/{id}.{format}` and
// returns the written path. The intermediate wav is removed after mp3
// transcode unless KeepWav is set.
func (s *FluidSynth) Render(ctx context.Context, midiPath string, format models.OutputFormat, gain float64) (string, error) {
	binary, err := resolveFluidsynth(s.Binary)
	if err != nil {
		return "", err
	}
	soundFont, err := s.resolveSoundFont()
	if err != nil {
		return "", err
	}

	id := strings.TrimSuffix(filepath.Base(midiPath), filepath.Ext(midiPath))
	wavPath := filepath.Join(s.OutputDir, id+".wav")

	args := []string{
		"-ni",
		"-g", strconv.FormatFloat(gain, 'f', -1, 64),
		"-r", strconv.Itoa(renderSampleRate),
		"-F", wavPath,
		soundFont,
		midiPath,
	}
	if err := runCmd(ctx, binary, args...); err != nil {
		return "", fmt.Errorf("synthesize %s: %w", filepath.Base(midiPath), err)
	}
	if err := requireNonEmpty(wavPath); err != nil {
		return "", err
	}

	if format != models.FormatMP3 {
		return wavPath, nil
	}

	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return "", fmt.Errorf("mp3 output requires ffmpeg: %w", err)
	}
	mp3Path := filepath.Join(s.OutputDir, id+".mp3")
	if err := runCmd(ctx, "ffmpeg", "-y", "-i", wavPath, "-b:a", mp3Bitrate, mp3Path); err != nil {
		return "", fmt.Errorf("transcode %s to mp3: %w", filepath.Base(wavPath), err)
	}
	if err := requireNonEmpty(mp3Path); err != nil {
		return "", err
	}

	if !s.KeepWav {
		if err := os.Remove(wavPath); err != nil {
			logger.Log.Warn("Failed to remove intermediate wav",
				logger.WithPath(wavPath),
				zap.Error(err),
			)
		}
	}
	return mp3Path, nil
}

// resolveSoundFont returns the configured soundfont, falling back to the
// first *.sf2 sibling when the configured file is missing.
func (s *FluidSynth) resolveSoundFont() (string, error) {
	if _, err := os.Stat(s.SoundFont); err == nil {
		return s.SoundFont, nil
	}

	matches, _ := filepath.Glob(filepath.Join(filepath.Dir(s.SoundFont), "*.sf2"))
	if len(matches) > 0 {
		logger.Log.Warn("Configured soundfont missing, using fallback",
			logger.WithPath(s.SoundFont),
			zap.String("fallback", matches[0]),
		)
		return matches[0], nil
	}
	return "", fmt.Errorf("no soundfont found: %s does not exist and no *.sf2 files in %s",
		s.SoundFont, filepath.Dir(s.SoundFont))
}

// resolveFluidsynth locates the fluidsynth binary. A configured path
// must exist; an empty one falls back to PATH lookup.
func resolveFluidsynth(binary string) (string, error) {
	if binary != "" {
		if _, err := os.Stat(binary); err != nil {
			return "", fmt.Errorf("configured fluidsynth binary %s is not usable: %v", binary, err)
		}
		return binary, nil
	}
	path, err := exec.LookPath("fluidsynth")
	if err != nil {
		return "", fmt.Errorf("fluidsynth not found - please install FluidSynth or set FLUIDSYNTH_PATH: %w", err)
	}
	return path, nil
}

// CheckFluidsynthAvailable reports whether the synthesizer binary can be
// resolved, for startup and health checks.
func CheckFluidsynthAvailable(binary string) error {
	_, err := resolveFluidsynth(binary)
	return err
}

// requireNonEmpty rejects synthesis outputs that are missing or empty.
func requireNonEmpty(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("synthesizer wrote no output at %s", path)
	}
	if info.Size() == 0 {
		return fmt.Errorf("synthesizer output %s is empty", filepath.Base(path))
	}
	return nil
}

// runCmd runs an external command and folds the command line plus captured
// stderr into the returned error.
func runCmd(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s %s: %v, stderr: %s",
			name, strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return nil
}
