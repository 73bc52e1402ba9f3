package cli

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/zzn199216/hum2song-webui/internal/models"
)

var generateOpts struct {
	format       string
	gain         float64
	outDir       string
	pollInterval time.Duration
	timeout      time.Duration
	noWait       bool
	noDownload   bool
	download     string
	downloadMIDI bool
	midiOut      string
}

var generateCmd = &cobra.Command{
	Use:   "generate FILE",
	Short: "Submit a humming recording and download the rendered result",
	Args:  cobra.ExactArgs(1),
	RunE:  runGenerate,
}

func runGenerate(cmd *cobra.Command, args []string) error {
	format, ok := models.ParseOutputFormat(generateOpts.format)
	if !ok {
		return fmt.Errorf("--format must be mp3 or wav, got %q", generateOpts.format)
	}
	wantAudio, wantMIDI, err := downloadKinds()
	if err != nil {
		return err
	}

	c := newClient()
	ctx := cmd.Context()

	created, err := c.Submit(ctx, args[0], format, generateOpts.gain)
	if err != nil {
		return err
	}
	fmt.Printf("task_id=%s\n", created.TaskID)
	fmt.Printf("poll_url=%s\n", created.PollURL)

	if generateOpts.noWait {
		return nil
	}

	printer := &statusPrinter{}
	info, err := c.WaitForCompletion(ctx, created.TaskID, generateOpts.pollInterval, generateOpts.timeout,
		func(snapshot *models.TaskInfo) {
			printer.print(string(snapshot.Status), string(snapshot.Stage), snapshot.Progress)
		})
	if err != nil {
		return err
	}

	if info.Status == models.StatusFailed {
		message := "task failed"
		if info.Error != nil {
			message = info.Error.Message
		}
		return taskFailed(fmt.Errorf("task %s failed: %s", info.TaskID, message))
	}

	if generateOpts.noDownload {
		printSuccess("Task %s completed", info.TaskID)
		return nil
	}

	if wantAudio {
		dest := filepath.Join(generateOpts.outDir, audioFilename(info, format))
		if err := c.Download(ctx, info.TaskID, models.FileTypeAudio, dest, true); err != nil {
			return err
		}
		printSuccess("Audio saved to %s", dest)
	}
	if wantMIDI {
		dest := generateOpts.midiOut
		if dest == "" {
			dest = filepath.Join(generateOpts.outDir, "downloads", info.TaskID+".mid")
		}
		if err := c.Download(ctx, info.TaskID, models.FileTypeMIDI, dest, true); err != nil {
			return err
		}
		printSuccess("MIDI saved to %s", dest)
	}
	return nil
}

// downloadKinds resolves the artifact kinds to fetch from --download,
// --download-midi and --midi-out (the last two imply the MIDI).
func downloadKinds() (audio, midi bool, err error) {
	switch generateOpts.download {
	case "audio":
		audio = true
	case "midi":
		midi = true
	case "both":
		audio, midi = true, true
	default:
		return false, false, fmt.Errorf("--download must be audio, midi or both, got %q", generateOpts.download)
	}
	if generateOpts.downloadMIDI || generateOpts.midiOut != "" {
		midi = true
	}
	return audio, midi, nil
}

// audioFilename picks the audio download name: the server-reported
// filename when present, else the task id with the requested format.
func audioFilename(info *models.TaskInfo, format models.OutputFormat) string {
	if info.Result != nil && info.Result.Filename != "" {
		return sanitizeFilename(info.Result.Filename)
	}
	return fmt.Sprintf("%s.%s", info.TaskID, format)
}

func init() {
	generateCmd.Flags().StringVar(&generateOpts.format, "format", "mp3", "Output audio format (mp3 or wav)")
	generateCmd.Flags().Float64Var(&generateOpts.gain, "gain", 0.8, "Synthesis gain (0-5)")
	generateCmd.Flags().StringVar(&generateOpts.outDir, "out-dir", ".", "Directory for downloaded files")
	generateCmd.Flags().DurationVar(&generateOpts.pollInterval, "poll-interval", time.Second, "Delay between status polls")
	generateCmd.Flags().DurationVar(&generateOpts.timeout, "timeout", 60*time.Second, "Give up polling after this long")
	generateCmd.Flags().BoolVar(&generateOpts.noWait, "no-wait", false, "Print the task id and exit without polling")
	generateCmd.Flags().BoolVar(&generateOpts.noDownload, "no-download", false, "Poll to completion but skip downloads")
	generateCmd.Flags().StringVar(&generateOpts.download, "download", "audio", "Artifacts to download: audio, midi or both")
	generateCmd.Flags().BoolVar(&generateOpts.downloadMIDI, "download-midi", false, "Also download the MIDI artifact")
	generateCmd.Flags().StringVar(&generateOpts.midiOut, "midi-out", "", "Write the MIDI to this path (implies --download-midi)")
}
