package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zzn199216/hum2song-webui/internal/models"
	"github.com/zzn199216/hum2song-webui/internal/score"
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Pull, push and optimize symbolic scores",
}

var scorePullOpts struct {
	out    string
	outDir string
}

var scorePullCmd = &cobra.Command{
	Use:   "pull TASK",
	Short: "Download a task's normalized score as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		taskID := args[0]

		sc, err := newClient().GetScore(cmd.Context(), taskID)
		if err != nil {
			return err
		}
		data, err := score.EncodeCanonical(sc)
		if err != nil {
			return err
		}

		out := scorePullOpts.out
		if out == "" {
			out = filepath.Join(scorePullOpts.outDir, taskID+".score.json")
		}
		if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(out, data, 0o644); err != nil {
			return err
		}
		printSuccess("Score saved to %s", out)
		return nil
	},
}

var scorePushOpts struct {
	scorePath    string
	render       bool
	format       string
	outDir       string
	download     string
	downloadMIDI bool
	midiOut      string
}

var scorePushCmd = &cobra.Command{
	Use:   "push TASK",
	Short: "Upload an edited score, optionally re-render and download",
	Args:  cobra.ExactArgs(1),
	RunE:  runScorePush,
}

func runScorePush(cmd *cobra.Command, args []string) error {
	taskID := args[0]
	if scorePushOpts.scorePath == "" {
		return fmt.Errorf("--score PATH is required")
	}
	format, ok := models.ParseOutputFormat(scorePushOpts.format)
	if !ok {
		return fmt.Errorf("--format must be mp3 or wav, got %q", scorePushOpts.format)
	}

	body, err := os.ReadFile(scorePushOpts.scorePath)
	if err != nil {
		return fmt.Errorf("read score file: %w", err)
	}
	// Validate locally before bothering the server.
	if _, err := score.DecodeStrict(body); err != nil {
		return fmt.Errorf("score file %s is not a valid score: %w", scorePushOpts.scorePath, err)
	}

	c := newClient()
	ctx := cmd.Context()

	pushed, err := c.PutScore(ctx, taskID, body)
	if err != nil {
		return err
	}
	printSuccess("Score pushed, MIDI rebound (%s)", pushed.MIDIDownloadURL)
	if pushed.Hint != "" {
		printInfo("%s", pushed.Hint)
	}

	if scorePushOpts.render {
		rendered, err := c.Render(ctx, taskID, format)
		if err != nil {
			return err
		}
		printSuccess("Audio re-rendered (%s)", rendered.AudioDownloadURL)
	}

	wantAudio, wantMIDI, err := pushDownloadKinds()
	if err != nil {
		return err
	}
	if wantAudio {
		dest := filepath.Join(scorePushOpts.outDir, fmt.Sprintf("%s.%s", taskID, format))
		if err := c.Download(ctx, taskID, models.FileTypeAudio, dest, true); err != nil {
			return err
		}
		printSuccess("Audio saved to %s", dest)
	}
	if wantMIDI {
		dest := scorePushOpts.midiOut
		if dest == "" {
			dest = filepath.Join(scorePushOpts.outDir, taskID+".mid")
		}
		if err := c.Download(ctx, taskID, models.FileTypeMIDI, dest, true); err != nil {
			return err
		}
		printSuccess("MIDI saved to %s", dest)
	}
	return nil
}

// pushDownloadKinds resolves --download for score push. "auto" fetches
// the audio only when a re-render was requested.
func pushDownloadKinds() (audio, midi bool, err error) {
	switch scorePushOpts.download {
	case "auto":
		audio = scorePushOpts.render
	case "none":
	case "audio":
		audio = true
	case "midi":
		midi = true
	case "both":
		audio, midi = true, true
	default:
		return false, false, fmt.Errorf("--download must be auto, none, audio, midi or both, got %q", scorePushOpts.download)
	}
	if scorePushOpts.downloadMIDI || scorePushOpts.midiOut != "" {
		midi = true
	}
	return audio, midi, nil
}

var scoreOptimizeOpts struct {
	out           string
	preset        string
	gridDiv       int
	minPitch      int
	maxPitch      int
	velocity      int
	mergeOverlaps bool
	monophonic    bool
}

var scoreOptimizeCmd = &cobra.Command{
	Use:   "optimize SCORE",
	Short: "Clean up a score file locally (no server involved)",
	Long: `Applies the optimizer to a score JSON file. The safe preset only
removes structurally invalid notes; strong quantizes, merges and
enforces monophony. Explicit flags override the preset.`,
	Args: cobra.ExactArgs(1),
	RunE: runScoreOptimize,
}

func runScoreOptimize(cmd *cobra.Command, args []string) error {
	inPath := args[0]

	opts, ok := score.PresetOptions(scoreOptimizeOpts.preset)
	if !ok {
		return fmt.Errorf("--preset must be safe or strong, got %q", scoreOptimizeOpts.preset)
	}
	applyOptimizeFlags(cmd, &opts)

	data, err := os.ReadFile(inPath)
	if err != nil {
		return fmt.Errorf("read score file: %w", err)
	}
	sc, err := score.DecodeStrict(data)
	if err != nil {
		return fmt.Errorf("score file %s is not a valid score: %w", inPath, err)
	}

	optimized := score.Normalize(score.Optimize(sc, opts))
	out, err := score.EncodeCanonical(optimized)
	if err != nil {
		return err
	}

	outPath := scoreOptimizeOpts.out
	if outPath == "" {
		outPath = optimizedPath(inPath)
	}
	if err := os.WriteFile(outPath, out, 0o644); err != nil {
		return err
	}

	kept := 0
	for _, tr := range optimized.Tracks {
		kept += len(tr.Notes)
	}
	printSuccess("Optimized score saved to %s (%d notes)", outPath, kept)
	return nil
}

// applyOptimizeFlags overlays explicitly set flags onto the preset.
func applyOptimizeFlags(cmd *cobra.Command, opts *score.Options) {
	flags := cmd.Flags()
	if flags.Changed("grid-div") {
		opts.GridDiv = scoreOptimizeOpts.gridDiv
		if opts.QuantizeMode == "" {
			opts.QuantizeMode = score.QuantizeNearest
		}
	}
	if flags.Changed("min-pitch") {
		opts.MinPitch = scoreOptimizeOpts.minPitch
	}
	if flags.Changed("max-pitch") {
		opts.MaxPitch = scoreOptimizeOpts.maxPitch
	}
	if flags.Changed("velocity") {
		opts.VelocityTarget = scoreOptimizeOpts.velocity
	}
	if flags.Changed("merge-overlaps") {
		opts.MergeSamePitchOverlaps = scoreOptimizeOpts.mergeOverlaps
	}
	if flags.Changed("monophonic") {
		opts.MakeMonophonic = scoreOptimizeOpts.monophonic
	}
}

// optimizedPath derives the default output: x.score.json becomes
// x.opt.score.json, anything else gets .opt before its extension.
func optimizedPath(in string) string {
	if strings.HasSuffix(in, ".score.json") {
		return strings.TrimSuffix(in, ".score.json") + ".opt.score.json"
	}
	ext := filepath.Ext(in)
	return strings.TrimSuffix(in, ext) + ".opt" + ext
}

func init() {
	scorePullCmd.Flags().StringVar(&scorePullOpts.out, "out", "", "Output path (default {out-dir}/{task}.score.json)")
	scorePullCmd.Flags().StringVar(&scorePullOpts.outDir, "out-dir", ".", "Directory for the score file")

	scorePushCmd.Flags().StringVar(&scorePushOpts.scorePath, "score", "", "Path of the score JSON to upload (required)")
	scorePushCmd.Flags().BoolVar(&scorePushOpts.render, "render", false, "Re-render audio after pushing")
	scorePushCmd.Flags().StringVar(&scorePushOpts.format, "format", "mp3", "Re-render format (mp3 or wav)")
	scorePushCmd.Flags().StringVar(&scorePushOpts.outDir, "out-dir", ".", "Directory for downloaded files")
	scorePushCmd.Flags().StringVar(&scorePushOpts.download, "download", "auto", "Artifacts to download: auto, none, audio, midi or both")
	scorePushCmd.Flags().BoolVar(&scorePushOpts.downloadMIDI, "download-midi", false, "Also download the MIDI artifact")
	scorePushCmd.Flags().StringVar(&scorePushOpts.midiOut, "midi-out", "", "Write the MIDI to this path (implies --download-midi)")

	scoreOptimizeCmd.Flags().StringVar(&scoreOptimizeOpts.out, "out", "", "Output path (default adds .opt before the extension)")
	scoreOptimizeCmd.Flags().StringVar(&scoreOptimizeOpts.preset, "preset", score.PresetSafe, "Optimizer preset: safe or strong")
	scoreOptimizeCmd.Flags().IntVar(&scoreOptimizeOpts.gridDiv, "grid-div", 0, "Quantization grid subdivisions per beat")
	scoreOptimizeCmd.Flags().IntVar(&scoreOptimizeOpts.minPitch, "min-pitch", 0, "Clamp pitches below this value")
	scoreOptimizeCmd.Flags().IntVar(&scoreOptimizeOpts.maxPitch, "max-pitch", 0, "Clamp pitches above this value")
	scoreOptimizeCmd.Flags().IntVar(&scoreOptimizeOpts.velocity, "velocity", 0, "Force a uniform velocity")
	scoreOptimizeCmd.Flags().BoolVar(&scoreOptimizeOpts.mergeOverlaps, "merge-overlaps", false, "Merge overlapping same-pitch notes")
	scoreOptimizeCmd.Flags().BoolVar(&scoreOptimizeOpts.monophonic, "monophonic", false, "Reduce to one note at a time")

	scoreCmd.AddCommand(scorePullCmd)
	scoreCmd.AddCommand(scorePushCmd)
	scoreCmd.AddCommand(scoreOptimizeCmd)
}
