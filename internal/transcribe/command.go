package transcribe

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Command shells out to an external transcriber invoked as
// `{cmd} {wav} {mid}`, with detection thresholds passed via environment.
type Command struct {
	Cmd            string
	OutputDir      string
	OnsetThreshold float64
	FrameThreshold float64
}

// NewCommand builds a command transcriber.
func NewCommand(cmd, outputDir string, onsetThreshold, frameThreshold float64) *Command {
	return &Command{
		Cmd:            cmd,
		OutputDir:      outputDir,
		OnsetThreshold: onsetThreshold,
		FrameThreshold: frameThreshold,
	}
}

// Transcribe runs the external binary and verifies it produced a
// non-empty MIDI file.
func (c *Command) Transcribe(ctx context.Context, cleanWavPath string) (string, error) {
	midPath := midiTargetPath(c.OutputDir, cleanWavPath)

	cmd := exec.CommandContext(ctx, c.Cmd, cleanWavPath, midPath)
	cmd.Env = append(os.Environ(),
		fmt.Sprintf("ONSET_THRESHOLD=%g", c.OnsetThreshold),
		fmt.Sprintf("FRAME_THRESHOLD=%g", c.FrameThreshold),
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s %s %s: %v, stderr: %s",
			c.Cmd, cleanWavPath, midPath, err, strings.TrimSpace(stderr.String()))
	}

	info, err := os.Stat(midPath)
	if err != nil {
		return "", fmt.Errorf("transcriber wrote no output at %s", midPath)
	}
	if info.Size() == 0 {
		return "", fmt.Errorf("transcriber output %s is empty", midPath)
	}
	return midPath, nil
}
