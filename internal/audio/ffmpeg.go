package audio

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

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

// CheckFFmpegAvailable verifies FFmpeg is installed and working
func CheckFFmpegAvailable() error {
	cmd := exec.Command("ffmpeg", "-version")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg not found - please install FFmpeg: %w", err)
	}
	return nil
}
