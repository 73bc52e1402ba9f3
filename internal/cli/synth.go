package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zzn199216/hum2song-webui/internal/models"
	"github.com/zzn199216/hum2song-webui/internal/synth"
)

var synthOpts struct {
	format    string
	outDir    string
	gain      float64
	keepWav   bool
	soundfont string
	binary    string
}

var synthCmd = &cobra.Command{
	Use:   "synth MIDI",
	Short: "Render a MIDI file to audio locally with FluidSynth",
	Long: `Renders a MIDI file without a server, using the local fluidsynth
binary (and ffmpeg for mp3). The soundfont comes from --soundfont or
the H2S_SOUNDFONT environment variable.`,
	Args: cobra.ExactArgs(1),
	RunE: runSynth,
}

func runSynth(cmd *cobra.Command, args []string) error {
	midiPath := args[0]
	format, ok := models.ParseOutputFormat(synthOpts.format)
	if !ok {
		return fmt.Errorf("--format must be mp3 or wav, got %q", synthOpts.format)
	}
	if _, err := os.Stat(midiPath); err != nil {
		return fmt.Errorf("MIDI file %s is not readable: %w", midiPath, err)
	}

	soundfont := synthOpts.soundfont
	if soundfont == "" {
		soundfont = viper.GetString("soundfont")
	}
	if soundfont == "" {
		return fmt.Errorf("no soundfont: pass --soundfont or set H2S_SOUNDFONT")
	}

	outDir, err := filepath.Abs(synthOpts.outDir)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}

	renderer := synth.NewFluidSynth(synthOpts.binary, soundfont, outDir, synthOpts.keepWav)
	outPath, err := renderer.Render(cmd.Context(), midiPath, format, synthOpts.gain)
	if err != nil {
		return taskFailed(fmt.Errorf("render failed: %w", err))
	}

	printSuccess("Rendered %s", outPath)
	return nil
}

func init() {
	synthCmd.Flags().StringVar(&synthOpts.format, "format", "wav", "Output format (mp3 or wav)")
	synthCmd.Flags().StringVar(&synthOpts.outDir, "out-dir", ".", "Directory for the rendered audio")
	synthCmd.Flags().Float64Var(&synthOpts.gain, "gain", 0.8, "Synthesis gain (0-5)")
	synthCmd.Flags().BoolVar(&synthOpts.keepWav, "keep-wav", false, "Keep the intermediate wav after mp3 transcode")
	synthCmd.Flags().StringVar(&synthOpts.soundfont, "soundfont", "", "Soundfont (.sf2) to render with")
	synthCmd.Flags().StringVar(&synthOpts.binary, "fluidsynth", "", "Explicit fluidsynth binary path")
}
